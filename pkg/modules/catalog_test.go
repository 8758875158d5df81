package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/waypoint/pkg/rbac"
)

func TestCatalog_EveryOperationHasHandler(t *testing.T) {
	specs := Catalog()
	require.Len(t, specs, len(handlers))
	for _, spec := range specs {
		_, ok := handlers[spec.Name]
		assert.True(t, ok, spec.Name)
		assert.NotEmpty(t, spec.Departments, spec.Name)
		if spec.Permission != "" {
			assert.True(t, rbac.DefaultCatalog().Has(spec.Permission), spec.Name)
		}
	}
}

func TestCatalog_Sorted(t *testing.T) {
	specs := Catalog()
	for i := 1; i < len(specs); i++ {
		assert.Less(t, specs[i-1].Name, specs[i].Name)
	}
}

func TestCatalog_MutatingOperationsHaveNoSection(t *testing.T) {
	for _, spec := range Catalog() {
		if spec.Mutating {
			assert.Empty(t, spec.Section, spec.Name)
		}
	}
}

func TestLoaderFor(t *testing.T) {
	tests := []struct {
		section string
		want    string
	}{
		{SectionTrips, OpLoadTrips},
		{SectionTickets, OpLoadTickets},
		{SectionUsers, OpLoadUsers},
		{SectionVehicles, OpLoadVehicles},
		{SectionReports, OpLoadReports},
		{SectionDashboard, OpLoadDashboard},
	}
	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			got, ok := LoaderFor(tt.section)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.True(t, KnownSection(tt.section))
		})
	}

	_, ok := LoaderFor("galaxy")
	assert.False(t, ok)
	assert.False(t, KnownSection("galaxy"))
}

func TestOpsFor(t *testing.T) {
	perms := rbac.NewPermissionSet(rbac.PermReadTrips, rbac.PermWriteTrips)

	assert.ElementsMatch(t, []string{OpLoadTrips, OpStartTrip, OpCompleteTrip, OpLoadDashboard}, opsFor(rbac.DepartmentDriver, perms))
	assert.ElementsMatch(t, []string{OpLoadTrips, OpLoadDashboard}, opsFor(rbac.DepartmentAgent, perms))
	assert.ElementsMatch(t, []string{OpCreateTrip, OpUpdateTrip, OpLoadDashboard}, opsFor(rbac.DepartmentAdmin, perms))
}

func TestDefaultSection(t *testing.T) {
	assert.Equal(t, SectionUsers, DefaultSection(rbac.DepartmentAdmin))
	assert.Equal(t, SectionTickets, DefaultSection(rbac.DepartmentAgent))
	assert.Equal(t, SectionTrips, DefaultSection(rbac.DepartmentDriver))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "state(9)", State(9).String())

	text, err := StateReady.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ready", string(text))
}

func TestPayload_Decode(t *testing.T) {
	var out struct {
		Seat int    `json:"seat"`
		Name string `json:"name"`
	}
	require.NoError(t, Payload{"seat": 4, "name": "Ada"}.Decode(&out))
	assert.Equal(t, 4, out.Seat)
	assert.Equal(t, "Ada", out.Name)

	assert.ErrorIs(t, Payload{"seat": "four"}.Decode(&out), ErrInvalidPayload)
	assert.NoError(t, Payload(nil).Decode(&out))

	assert.Equal(t, "Ada", Payload{"name": "Ada"}.String("name"))
	assert.Equal(t, "", Payload{"seat": 4}.String("seat"))
	assert.ErrorIs(t, Payload{}.require("trip_id"), ErrInvalidPayload)
}
