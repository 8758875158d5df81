package rbac

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/waypoint/pkg/audit"
)

// Seed is the initial role and user set loaded at process start
type Seed struct {
	Roles []SeedRole `yaml:"roles" json:"roles"`
	Users []SeedUser `yaml:"users" json:"users"`
}

// SeedRole is a role with a fixed id so seed users can reference it
type SeedRole struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Permissions []string `yaml:"permissions" json:"permissions"`
}

// SeedUser references its role by id. An empty role means no role.
type SeedUser struct {
	ID         string     `yaml:"id" json:"id"`
	Name       string     `yaml:"name" json:"name"`
	Email      string     `yaml:"email" json:"email"`
	Role       string     `yaml:"role" json:"role"`
	Department Department `yaml:"department" json:"department"`
	Status     UserStatus `yaml:"status" json:"status"`
}

// Built-in seed role ids
const (
	SeedRoleAdmin  = "role-admin"
	SeedRoleAgent  = "role-agent"
	SeedRoleDriver = "role-driver"
)

// AgentPermissions is the full permission list of the agent department
var AgentPermissions = []string{
	PermReadTrips,
	PermReadTickets,
	PermWriteTickets,
	PermCancelTickets,
	PermRefundTickets,
	PermValidatePassengers,
	PermReadReports,
}

// DriverPermissions is the full permission list of the driver department
var DriverPermissions = []string{
	PermReadTrips,
	PermWriteTrips,
	PermValidateTickets,
	PermValidatePassengers,
	PermReadVehicles,
	PermWriteVehicles,
	PermWriteReports,
}

// DefaultSeed returns the built-in seed: one role per department and one
// user for each
func DefaultSeed() Seed {
	return Seed{
		Roles: []SeedRole{
			{
				ID:          SeedRoleAdmin,
				Name:        "Administrator",
				Description: "Full access to every operation",
				Permissions: DefaultCatalog().IDs(),
			},
			{
				ID:          SeedRoleAgent,
				Name:        "Agent",
				Description: "Ticket desk and reservations",
				Permissions: append([]string(nil), AgentPermissions...),
			},
			{
				ID:          SeedRoleDriver,
				Name:        "Driver",
				Description: "Trip execution and boarding",
				Permissions: append([]string(nil), DriverPermissions...),
			},
		},
		Users: []SeedUser{
			{ID: "u1", Name: "Ada Admin", Email: "admin@waypoint.local", Role: SeedRoleAdmin, Department: DepartmentAdmin, Status: StatusActive},
			{ID: "u2", Name: "Sam Agent", Email: "agent@waypoint.local", Role: SeedRoleAgent, Department: DepartmentAgent, Status: StatusActive},
			{ID: "u3", Name: "Dee Driver", Email: "driver@waypoint.local", Role: SeedRoleDriver, Department: DepartmentDriver, Status: StatusActive},
		},
	}
}

// ApplySeed validates the whole seed and then loads it. Nothing is stored
// when any role or user is invalid.
func (s *Service) ApplySeed(seed Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roleIDs := make(map[string]bool, len(seed.Roles))
	roles := make([]Role, 0, len(seed.Roles))
	for i, sr := range seed.Roles {
		if strings.TrimSpace(sr.ID) == "" || strings.TrimSpace(sr.Name) == "" {
			return fmt.Errorf("seed role %d: %w: id and name are required", i, ErrInvalidRole)
		}
		if roleIDs[sr.ID] {
			return fmt.Errorf("seed role %s: %w: duplicate id", sr.ID, ErrInvalidRole)
		}
		perms, err := s.catalog.Validate(sr.Permissions)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", sr.ID, err)
		}
		roleIDs[sr.ID] = true
		roles = append(roles, Role{ID: sr.ID, Name: sr.Name, Description: sr.Description, Permissions: perms})
	}

	now := s.now().UTC()
	userIDs := make(map[string]bool, len(seed.Users))
	users := make([]User, 0, len(seed.Users))
	for i, su := range seed.Users {
		user := User{
			ID:         su.ID,
			Name:       su.Name,
			Email:      su.Email,
			Department: su.Department,
			Status:     su.Status,
			CreatedAt:  now,
		}
		if user.Status == "" {
			user.Status = StatusActive
		}
		if su.Role != "" {
			if !roleIDs[su.Role] && !s.roles.Exists(su.Role) {
				return fmt.Errorf("seed user %s: %w: %s", su.ID, ErrRoleNotFound, su.Role)
			}
			role := su.Role
			user.RoleID = &role
		}
		if userIDs[user.ID] {
			return fmt.Errorf("seed user %s: %w: duplicate id", su.ID, ErrInvalidUser)
		}
		if err := s.users.Validate(&user); err != nil {
			return fmt.Errorf("seed user %d: %w", i, err)
		}
		userIDs[user.ID] = true
		users = append(users, user)
	}

	for _, role := range roles {
		if _, err := s.roles.Put(role); err != nil {
			return err
		}
	}
	for _, user := range users {
		if _, err := s.users.Put(user); err != nil {
			return err
		}
	}

	s.log.WithFields(logrus.Fields{
		"roles": len(roles),
		"users": len(users),
	}).Info("rbac seed applied")
	if s.audit != nil {
		s.audit.Logf(audit.LevelInfo, auditScope, "seed applied: %d roles, %d users", len(roles), len(users))
	}
	return nil
}
