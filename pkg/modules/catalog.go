package modules

import (
	"sort"

	"github.com/platinummonkey/waypoint/pkg/rbac"
)

// Operation names
const (
	OpLoadTrips             = "loadTrips"
	OpLoadTickets           = "loadTickets"
	OpLoadReports           = "loadReports"
	OpLoadVehicles          = "loadVehicles"
	OpLoadUsers             = "loadUsers"
	OpLoadDashboard         = "loadDashboard"
	OpCreateReservation     = "createReservation"
	OpCancelReservation     = "cancelReservation"
	OpRefundTicket          = "refundTicket"
	OpValidatePassengerList = "validatePassengerList"
	OpStartTrip             = "startTrip"
	OpCompleteTrip          = "completeTrip"
	OpValidateTicket        = "validateTicket"
	OpUpdateVehicleStatus   = "updateVehicleStatus"
	OpReportIncident        = "reportIncident"
	OpCreateTrip            = "createTrip"
	OpUpdateTrip            = "updateTrip"
	OpDeleteTrip            = "deleteTrip"
	OpPublishSchedule       = "publishSchedule"
	OpCreateUser            = "createUser"
	OpUpdateUser            = "updateUser"
	OpDeleteUser            = "deleteUser"
	OpGenerateReport        = "generateReport"
)

// Section names accepted by dashboards
const (
	SectionTrips     = "trips"
	SectionTickets   = "tickets"
	SectionUsers     = "users"
	SectionVehicles  = "vehicles"
	SectionReports   = "reports"
	SectionDashboard = "dashboard"
)

// MinimumPermission is the permission a user needs before a module of the
// department can be built. Admin modules have no minimum.
var MinimumPermission = map[rbac.Department]string{
	rbac.DepartmentAgent:  rbac.PermReadTickets,
	rbac.DepartmentDriver: rbac.PermReadTrips,
}

// OpSpec describes one operation a module may expose
type OpSpec struct {
	Name        string            `json:"name"`
	Departments []rbac.Department `json:"departments"`
	// Permission gates the operation. Empty means the department minimum,
	// which every built module already satisfies.
	Permission string `json:"permission,omitempty"`
	Mutating   bool   `json:"mutating"`
	Section    string `json:"section,omitempty"`
}

func (s OpSpec) availableTo(dept rbac.Department) bool {
	for _, d := range s.Departments {
		if d == dept {
			return true
		}
	}
	return false
}

var (
	agent  = []rbac.Department{rbac.DepartmentAgent}
	driver = []rbac.Department{rbac.DepartmentDriver}
	admin  = []rbac.Department{rbac.DepartmentAdmin}
)

var opCatalog = []OpSpec{
	{Name: OpLoadTrips, Departments: []rbac.Department{rbac.DepartmentAgent, rbac.DepartmentDriver}, Permission: rbac.PermReadTrips, Section: SectionTrips},
	{Name: OpLoadTickets, Departments: agent, Permission: rbac.PermReadTickets, Section: SectionTickets},
	{Name: OpLoadReports, Departments: agent, Permission: rbac.PermReadReports, Section: SectionReports},
	{Name: OpCreateReservation, Departments: agent, Permission: rbac.PermWriteTickets, Mutating: true},
	{Name: OpCancelReservation, Departments: agent, Permission: rbac.PermCancelTickets, Mutating: true},
	{Name: OpRefundTicket, Departments: agent, Permission: rbac.PermRefundTickets, Mutating: true},
	{Name: OpValidatePassengerList, Departments: agent, Permission: rbac.PermValidatePassengers, Mutating: true},

	{Name: OpLoadVehicles, Departments: driver, Permission: rbac.PermReadVehicles, Section: SectionVehicles},
	{Name: OpStartTrip, Departments: driver, Permission: rbac.PermWriteTrips, Mutating: true},
	{Name: OpCompleteTrip, Departments: driver, Permission: rbac.PermWriteTrips, Mutating: true},
	{Name: OpValidateTicket, Departments: driver, Permission: rbac.PermValidateTickets, Mutating: true},
	{Name: OpUpdateVehicleStatus, Departments: driver, Permission: rbac.PermWriteVehicles, Mutating: true},
	{Name: OpReportIncident, Departments: driver, Permission: rbac.PermWriteReports, Mutating: true},

	{Name: OpCreateTrip, Departments: admin, Permission: rbac.PermWriteTrips, Mutating: true},
	{Name: OpUpdateTrip, Departments: admin, Permission: rbac.PermWriteTrips, Mutating: true},
	{Name: OpDeleteTrip, Departments: admin, Permission: rbac.PermCancelTrips, Mutating: true},
	{Name: OpPublishSchedule, Departments: admin, Permission: rbac.PermPublishSchedules, Mutating: true},
	{Name: OpLoadUsers, Departments: admin, Permission: rbac.PermReadUsers, Section: SectionUsers},
	{Name: OpCreateUser, Departments: admin, Permission: rbac.PermAdminUsers, Mutating: true},
	{Name: OpUpdateUser, Departments: admin, Permission: rbac.PermAdminUsers, Mutating: true},
	{Name: OpDeleteUser, Departments: admin, Permission: rbac.PermAdminUsers, Mutating: true},
	{Name: OpGenerateReport, Departments: admin, Permission: rbac.PermPublishReports, Mutating: true},

	{Name: OpLoadDashboard, Departments: []rbac.Department{rbac.DepartmentAdmin, rbac.DepartmentAgent, rbac.DepartmentDriver}, Section: SectionDashboard},
}

var opIndex = func() map[string]OpSpec {
	idx := make(map[string]OpSpec, len(opCatalog))
	for _, s := range opCatalog {
		if _, dup := idx[s.Name]; dup {
			panic("modules: duplicate operation " + s.Name)
		}
		idx[s.Name] = s
	}
	return idx
}()

// Lookup returns the spec of a catalog operation
func Lookup(name string) (OpSpec, bool) {
	s, ok := opIndex[name]
	return s, ok
}

// Catalog returns every operation spec sorted by name
func Catalog() []OpSpec {
	out := make([]OpSpec, len(opCatalog))
	copy(out, opCatalog)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sections returns the section names in display order
func Sections() []string {
	return []string{SectionTrips, SectionTickets, SectionUsers, SectionVehicles, SectionReports, SectionDashboard}
}

// KnownSection reports whether name is a section dashboards accept
func KnownSection(name string) bool {
	for _, s := range Sections() {
		if s == name {
			return true
		}
	}
	return false
}

// LoaderFor returns the load operation serving section
func LoaderFor(section string) (string, bool) {
	for _, s := range opCatalog {
		if s.Section == section {
			return s.Name, true
		}
	}
	return "", false
}

// opsFor returns the names of the department's operations the permission
// set unlocks
func opsFor(dept rbac.Department, perms rbac.PermissionSet) []string {
	var out []string
	for _, s := range opCatalog {
		if !s.availableTo(dept) {
			continue
		}
		if s.Permission == "" || perms.Has(s.Permission) {
			out = append(out, s.Name)
		}
	}
	return out
}
