package modules

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/datastore"
	"github.com/platinummonkey/waypoint/pkg/events"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

type captured struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captured) handle(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captured) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.events...)
}

func subscribeAll(fx *fixture) *captured {
	c := &captured{}
	fx.bus.Subscribe("*", c.handle)
	return c
}

func moduleFor(t *testing.T, fx *fixture, dept rbac.Department, userID string) *Module {
	t.Helper()
	m, err := fx.factory.Create(context.Background(), dept, userID)
	require.NoError(t, err)
	return m
}

func TestInvoke_UnknownAction(t *testing.T) {
	fx := newFixture(t)
	m := moduleFor(t, fx, rbac.DepartmentAgent, "u2")

	_, err := m.Invoke(context.Background(), "teleport", nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	// a real operation of another department is absent, not unknown
	_, err = m.Invoke(context.Background(), OpStartTrip, Payload{"trip_id": "t1"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 1, fx.rec.count(fx.rec.ops, OpStartTrip+"/denied"))
}

func TestCreateReservation_PublishesOneEvent(t *testing.T) {
	fx := newFixture(t)
	got := subscribeAll(fx)
	m := moduleFor(t, fx, rbac.DepartmentAgent, "u2")

	out, err := m.Invoke(context.Background(), OpCreateReservation, Payload{
		"trip_id":        "t1",
		"passenger_name": "Lena Ortiz",
		"seat":           9,
		"price":          4.5,
		"status":         "validated",
	})
	require.NoError(t, err)

	ticket, ok := out.(*datastore.Ticket)
	require.True(t, ok)
	assert.Equal(t, datastore.TicketReserved, ticket.Status)

	evs := got.all()
	require.Len(t, evs, 1)
	assert.Equal(t, OpCreateReservation, evs[0].Topic)
	assert.Equal(t, "agent", evs[0].Source)
	assert.Equal(t, ticket.ID, evs[0].Payload["entity_id"])
	assert.Equal(t, "u2", evs[0].Payload["user_id"])
	assert.Equal(t, "agent", evs[0].Payload["department"])
	assert.Contains(t, evs[0].Payload["summary"], "seat 9")
	assert.Equal(t, 1, fx.rec.count(fx.rec.ops, OpCreateReservation+"/ok"))
}

func TestCreateReservation_Failures(t *testing.T) {
	fx := newFixture(t)
	got := subscribeAll(fx)
	m := moduleFor(t, fx, rbac.DepartmentAgent, "u2")
	ctx := context.Background()

	tests := []struct {
		name    string
		payload Payload
		wantErr error
	}{
		{"taken seat", Payload{"trip_id": "t1", "passenger_name": "A", "seat": 1}, datastore.ErrValidation},
		{"seat beyond capacity", Payload{"trip_id": "t1", "passenger_name": "A", "seat": 49}, datastore.ErrValidation},
		{"missing passenger", Payload{"trip_id": "t1", "seat": 5}, datastore.ErrValidation},
		{"missing trip", Payload{"trip_id": "t9", "passenger_name": "A", "seat": 5}, datastore.ErrNotFound},
		{"bad payload", Payload{"trip_id": "t1", "passenger_name": "A", "seat": "five"}, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Invoke(ctx, OpCreateReservation, tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, got.all())
}

func TestLoads_WriteDebugAudit(t *testing.T) {
	fx := newFixture(t)
	got := subscribeAll(fx)
	m := moduleFor(t, fx, rbac.DepartmentAgent, "u2")

	out, err := m.Invoke(context.Background(), OpLoadTickets, nil)
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Empty(t, got.all())

	entries := fx.audit.Search(audit.Filter{Scope: auditScope})
	var found bool
	for _, e := range entries {
		if e.Level == audit.LevelDebug && strings.Contains(e.Message, "u2 ran loadTickets") {
			found = true
		}
	}
	assert.True(t, found, "expected a debug audit entry for the load")
}

func TestTicketTransitions(t *testing.T) {
	fx := newFixture(t)
	agentM := moduleFor(t, fx, rbac.DepartmentAgent, "u2")
	driverM := moduleFor(t, fx, rbac.DepartmentDriver, "u3")
	ctx := context.Background()

	out, err := agentM.Invoke(ctx, OpCancelReservation, Payload{"ticket_id": "k1"})
	require.NoError(t, err)
	assert.Equal(t, datastore.TicketCancelled, out.(*datastore.Ticket).Status)

	_, err = driverM.Invoke(ctx, OpValidateTicket, Payload{"ticket_id": "k1"})
	assert.ErrorIs(t, err, datastore.ErrValidation)

	out, err = agentM.Invoke(ctx, OpRefundTicket, Payload{"ticket_id": "k1"})
	require.NoError(t, err)
	assert.Equal(t, datastore.TicketRefunded, out.(*datastore.Ticket).Status)

	_, err = agentM.Invoke(ctx, OpRefundTicket, Payload{"ticket_id": "k1"})
	assert.ErrorIs(t, err, datastore.ErrValidation)

	out, err = driverM.Invoke(ctx, OpValidateTicket, Payload{"ticket_id": "k2"})
	require.NoError(t, err)
	assert.Equal(t, datastore.TicketValidated, out.(*datastore.Ticket).Status)

	_, err = agentM.Invoke(ctx, OpCancelReservation, Payload{})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = agentM.Invoke(ctx, OpCancelReservation, Payload{"ticket_id": "k404"})
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func TestTicketTransitions_ConcurrentCancelSucceedsOnce(t *testing.T) {
	fx := newFixture(t)
	got := subscribeAll(fx)
	agentM := moduleFor(t, fx, rbac.DepartmentAgent, "u2")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := agentM.Invoke(context.Background(), OpCancelReservation, Payload{"ticket_id": "k1"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	cancels := 0
	for _, e := range got.all() {
		if e.Topic == OpCancelReservation {
			cancels++
		}
	}
	assert.Equal(t, 1, cancels)
}

func TestValidatePassengerList(t *testing.T) {
	fx := newFixture(t)
	agentM := moduleFor(t, fx, rbac.DepartmentAgent, "u2")
	ctx := context.Background()

	_, err := agentM.Invoke(ctx, OpCancelReservation, Payload{"ticket_id": "k2"})
	require.NoError(t, err)

	out, err := agentM.Invoke(ctx, OpValidatePassengerList, Payload{"trip_id": "t1"})
	require.NoError(t, err)
	list := out.(PassengerList)
	assert.Equal(t, 1, list.Boarding)
	assert.Equal(t, 48, list.Seats)
	assert.False(t, list.Overbooked)
	require.Len(t, list.Passengers, 1)
	assert.Equal(t, "Mara Quinn", list.Passengers[0].Name)
}

func TestDriver_OnlyOwnTrips(t *testing.T) {
	fx := newFixture(t)
	m := moduleFor(t, fx, rbac.DepartmentDriver, "u3")
	ctx := context.Background()

	out, err := m.Invoke(ctx, OpLoadTrips, nil)
	require.NoError(t, err)
	trips := out.([]*datastore.Trip)
	require.Len(t, trips, 2)
	for _, trip := range trips {
		assert.Equal(t, "u3", trip.DriverID)
	}

	_, err = m.Invoke(ctx, OpStartTrip, Payload{"trip_id": "t3"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = m.Invoke(ctx, OpCompleteTrip, Payload{"trip_id": "t1"})
	assert.ErrorIs(t, err, datastore.ErrValidation)

	out, err = m.Invoke(ctx, OpStartTrip, Payload{"trip_id": "t1"})
	require.NoError(t, err)
	started := out.(*datastore.Trip)
	assert.Equal(t, datastore.TripInProgress, started.Status)
	assert.NotNil(t, started.StartedAt)

	out, err = m.Invoke(ctx, OpCompleteTrip, Payload{"trip_id": "t1"})
	require.NoError(t, err)
	assert.Equal(t, datastore.TripCompleted, out.(*datastore.Trip).Status)
}

func TestDriver_VehicleAndIncident(t *testing.T) {
	fx := newFixture(t)
	got := subscribeAll(fx)
	m := moduleFor(t, fx, rbac.DepartmentDriver, "u3")
	ctx := context.Background()

	_, err := m.Invoke(ctx, OpUpdateVehicleStatus, Payload{"vehicle_id": "v1"})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	out, err := m.Invoke(ctx, OpUpdateVehicleStatus, Payload{"vehicle_id": "v1", "status": "maintenance", "notes": "flat tyre"})
	require.NoError(t, err)
	vehicle := out.(*datastore.Vehicle)
	assert.Equal(t, datastore.VehicleMaintenance, vehicle.Status)
	assert.Equal(t, "flat tyre", vehicle.Notes)

	out, err = m.Invoke(ctx, OpReportIncident, Payload{"title": "Flat tyre", "trip_id": "t1", "body": "replaced at depot"})
	require.NoError(t, err)
	report := out.(*datastore.Report)
	assert.Equal(t, datastore.ReportIncident, report.Kind)
	assert.Equal(t, "u3", report.AuthorID)

	_, err = m.Invoke(ctx, OpReportIncident, Payload{"trip_id": "t1"})
	assert.ErrorIs(t, err, datastore.ErrValidation)

	var topics []string
	for _, e := range got.all() {
		topics = append(topics, e.Topic)
	}
	assert.Equal(t, []string{OpUpdateVehicleStatus, OpReportIncident}, topics)
}

func TestAdmin_DelegatedOperationsPublishAsAdmin(t *testing.T) {
	fx := newFixture(t)
	got := subscribeAll(fx)
	m := moduleFor(t, fx, rbac.DepartmentAdmin, "u1")
	ctx := context.Background()

	_, err := m.Invoke(ctx, OpCreateReservation, Payload{"trip_id": "t3", "passenger_name": "Noor", "seat": 3})
	require.NoError(t, err)

	// the admin drives any trip, assigned or not
	_, err = m.Invoke(ctx, OpStartTrip, Payload{"trip_id": "t3"})
	require.NoError(t, err)

	evs := got.all()
	require.Len(t, evs, 2)
	for _, e := range evs {
		assert.Equal(t, "admin", e.Source)
		assert.Equal(t, "u1", e.Payload["user_id"])
	}

	out, err := m.Invoke(ctx, OpLoadTrips, nil)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestAdmin_TripsAndSchedule(t *testing.T) {
	fx := newFixture(t)
	m := moduleFor(t, fx, rbac.DepartmentAdmin, "u1")
	ctx := context.Background()

	out, err := m.Invoke(ctx, OpCreateTrip, Payload{
		"route":        "R9",
		"origin":       "Harbor",
		"destination":  "Airport",
		"departure_at": "2026-05-04T15:00:00Z",
		"seats":        22,
	})
	require.NoError(t, err)
	trip := out.(*datastore.Trip)
	assert.Equal(t, datastore.TripScheduled, trip.Status)

	_, err = m.Invoke(ctx, OpCreateTrip, Payload{"route": "R9", "origin": "Harbor", "destination": "Harbor", "seats": 22})
	assert.ErrorIs(t, err, datastore.ErrValidation)

	out, err = m.Invoke(ctx, OpUpdateTrip, Payload{"trip_id": trip.ID, "seats": 30})
	require.NoError(t, err)
	assert.Equal(t, 30, out.(*datastore.Trip).Seats)

	_, err = m.Invoke(ctx, OpUpdateTrip, Payload{"seats": 30})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = m.Invoke(ctx, OpDeleteTrip, Payload{"trip_id": "t2"})
	require.NoError(t, err)

	out, err = m.Invoke(ctx, OpPublishSchedule, nil)
	require.NoError(t, err)
	sched := out.(*datastore.Schedule)
	assert.Equal(t, "u1", sched.PublishedBy)
	assert.ElementsMatch(t, []string{"t1", "t3", trip.ID}, sched.TripIDs)
}

func TestAdmin_Users(t *testing.T) {
	fx := newFixture(t)
	m := moduleFor(t, fx, rbac.DepartmentAdmin, "u1")
	ctx := context.Background()

	out, err := m.Invoke(ctx, OpCreateUser, Payload{"id": "u9", "name": "Kit", "email": "kit@waypoint.local", "department": "agent"})
	require.NoError(t, err)
	assert.Equal(t, "u9", out.(*rbac.User).ID)

	out, err = m.Invoke(ctx, OpUpdateUser, Payload{"user_id": "u9", "status": "suspended"})
	require.NoError(t, err)
	assert.Equal(t, rbac.StatusSuspended, out.(*rbac.User).Status)

	out, err = m.Invoke(ctx, OpLoadUsers, nil)
	require.NoError(t, err)
	assert.Len(t, out, 4)

	_, err = m.Invoke(ctx, OpDeleteUser, Payload{"user_id": "u9"})
	require.NoError(t, err)

	_, err = m.Invoke(ctx, OpDeleteUser, Payload{"user_id": "u9"})
	assert.ErrorIs(t, err, rbac.ErrUserNotFound)
}

func TestAdmin_UsersWithoutDirectory(t *testing.T) {
	fx := newFixture(t, func(c *Config) { c.Users = nil })
	m := moduleFor(t, fx, rbac.DepartmentAdmin, "u1")
	ctx := context.Background()

	out, err := m.Invoke(ctx, OpLoadUsers, nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = m.Invoke(ctx, OpCreateUser, Payload{"name": "Kit"})
	assert.ErrorIs(t, err, errNoUserAdmin)
}

func TestAdmin_GenerateReport(t *testing.T) {
	fx := newFixture(t)
	m := moduleFor(t, fx, rbac.DepartmentAdmin, "u1")
	ctx := context.Background()

	out, err := m.Invoke(ctx, OpGenerateReport, nil)
	require.NoError(t, err)
	report := out.(*datastore.Report)

	assert.Equal(t, datastore.ReportSummary, report.Kind)
	assert.True(t, strings.HasPrefix(report.Title, "Operations summary "))
	assert.Equal(t, 3, report.Metrics["trips"])
	assert.Equal(t, 3, report.Metrics["trips_scheduled"])
	assert.Equal(t, 3, report.Metrics["tickets_reserved"])
	assert.Equal(t, 1, report.Metrics["vehicles_maintenance"])

	agentM := moduleFor(t, fx, rbac.DepartmentAgent, "u2")
	out, err = agentM.Invoke(ctx, OpLoadReports, nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestLoadDashboard(t *testing.T) {
	fx := newFixture(t)
	m := moduleFor(t, fx, rbac.DepartmentDriver, "u3")

	out, err := m.Invoke(context.Background(), OpLoadDashboard, nil)
	require.NoError(t, err)
	summary := out.(Summary)
	assert.Equal(t, rbac.DepartmentDriver, summary.Department)
	assert.Equal(t, []string{SectionTrips, SectionVehicles, SectionDashboard}, summary.Sections)
	assert.Contains(t, summary.Operations, OpStartTrip)
}

func TestWarm(t *testing.T) {
	fx := newFixture(t)
	m := moduleFor(t, fx, rbac.DepartmentDriver, "u3")
	ctx := context.Background()

	assert.ErrorIs(t, m.Warm(ctx, "galaxy"), ErrUnknownSection)
	require.NoError(t, m.Warm(ctx, SectionTickets))
	_, ok := m.Preloaded(SectionTickets)
	assert.False(t, ok, "drivers cannot load tickets")

	require.NoError(t, WarmDefaultSection(ctx, m))
	trips, ok := m.Preloaded(SectionTrips)
	require.True(t, ok)
	assert.Len(t, trips, 2)
}
