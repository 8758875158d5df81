package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Permission ids. The category is the prefix before the first underscore.
const (
	PermReadTrips          = "read_trips"
	PermWriteTrips         = "write_trips"
	PermReadTickets        = "read_tickets"
	PermWriteTickets       = "write_tickets"
	PermValidateTickets    = "validate_tickets"
	PermValidatePassengers = "validate_passengers"
	PermCancelTickets      = "cancel_tickets"
	PermCancelTrips        = "cancel_trips"
	PermRefundTickets      = "refund_tickets"
	PermReadVehicles       = "read_vehicles"
	PermWriteVehicles      = "write_vehicles"
	PermReadReports        = "read_reports"
	PermWriteReports       = "write_reports"
	PermPublishReports     = "publish_reports"
	PermPublishSchedules   = "publish_schedules"
	PermReadUsers          = "read_users"
	PermAdminUsers         = "admin_users"
	PermAdminRoles         = "admin_roles"
)

// Catalog is the immutable registry of every known permission
type Catalog struct {
	perms []Permission
	byID  map[string]Permission
}

var defaultCatalog = NewCatalog([]Permission{
	{PermReadTrips, "Read trips", "View trips and schedules", CategoryRead},
	{PermWriteTrips, "Write trips", "Create, update, start and complete trips", CategoryWrite},
	{PermReadTickets, "Read tickets", "View tickets and reservations", CategoryRead},
	{PermWriteTickets, "Write tickets", "Create reservations", CategoryWrite},
	{PermValidateTickets, "Validate tickets", "Scan and validate tickets at boarding", CategoryValidate},
	{PermValidatePassengers, "Validate passengers", "Validate a trip's passenger list", CategoryValidate},
	{PermCancelTickets, "Cancel tickets", "Cancel reservations", CategoryCancel},
	{PermCancelTrips, "Cancel trips", "Cancel and delete trips", CategoryCancel},
	{PermRefundTickets, "Refund tickets", "Refund cancelled or unused tickets", CategoryRefund},
	{PermReadVehicles, "Read vehicles", "View the vehicle fleet", CategoryRead},
	{PermWriteVehicles, "Write vehicles", "Update vehicle status", CategoryWrite},
	{PermReadReports, "Read reports", "View reports", CategoryRead},
	{PermWriteReports, "Write reports", "File incident reports", CategoryWrite},
	{PermPublishReports, "Publish reports", "Generate and publish reports", CategoryPublish},
	{PermPublishSchedules, "Publish schedules", "Publish trip schedules", CategoryPublish},
	{PermReadUsers, "Read users", "View the user directory", CategoryRead},
	{PermAdminUsers, "Administer users", "Create, update and delete users", CategoryAdmin},
	{PermAdminRoles, "Administer roles", "Manage roles and role assignments", CategoryAdmin},
})

// DefaultCatalog returns the process-wide permission catalog
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// NewCatalog builds a catalog. It panics on a duplicate id.
func NewCatalog(perms []Permission) *Catalog {
	c := &Catalog{
		perms: make([]Permission, len(perms)),
		byID:  make(map[string]Permission, len(perms)),
	}
	copy(c.perms, perms)
	for _, p := range perms {
		if _, dup := c.byID[p.ID]; dup {
			panic(fmt.Sprintf("rbac: duplicate permission id %q", p.ID))
		}
		c.byID[p.ID] = p
	}
	return c
}

// All returns every permission in catalog order
func (c *Catalog) All() []Permission {
	out := make([]Permission, len(c.perms))
	copy(out, c.perms)
	return out
}

// IDs returns every permission id in catalog order
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.perms))
	for i, p := range c.perms {
		ids[i] = p.ID
	}
	return ids
}

// Set returns every permission id as a set
func (c *Catalog) Set() PermissionSet {
	return NewPermissionSet(c.IDs()...)
}

// Get returns the permission with the given id
func (c *Catalog) Get(id string) (Permission, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Has reports whether id is in the catalog
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// ByCategory returns the permissions of one category in catalog order
func (c *Catalog) ByCategory(category Category) []Permission {
	var out []Permission
	for _, p := range c.perms {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Validate returns a set of ids, or an error wrapping ErrInvalidPermissionSet
// that names every id missing from the catalog
func (c *Catalog) Validate(ids []string) (PermissionSet, error) {
	var unknown []string
	set := make(PermissionSet, len(ids))
	for _, id := range ids {
		if !c.Has(id) {
			unknown = append(unknown, id)
			continue
		}
		set[id] = struct{}{}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown permissions %s", ErrInvalidPermissionSet, strings.Join(unknown, ", "))
	}
	return set, nil
}
