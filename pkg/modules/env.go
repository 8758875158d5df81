package modules

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/datastore"
	"github.com/platinummonkey/waypoint/pkg/events"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

const auditScope = "modules"

// Publisher is the part of the event bus modules publish through
type Publisher interface {
	PublishFrom(source, topic string, payload map[string]interface{}) events.Event
}

// UserAdmin is the user administration surface of the RBAC service
type UserAdmin interface {
	ListUsers() []*rbac.User
	CreateUser(in rbac.UserInput) (*rbac.User, error)
	UpdateUser(id string, upd rbac.UserUpdate) (*rbac.User, error)
	DeleteUser(id string) error
}

// PermissionSource resolves a user's effective permissions
type PermissionSource interface {
	GetUserPermissions(userID string) rbac.PermissionSet
}

// Recorder receives module metrics
type Recorder interface {
	ModuleInitialized(department, outcome string, elapsed time.Duration)
	ModulesRegistered(n int)
	OperationInvoked(op, status string)
}

var errNoUserAdmin = errors.New("user administration is not configured")

// env is shared by every module a factory builds
type env struct {
	repo     datastore.Repository
	users    UserAdmin
	bus      Publisher
	audit    *audit.Logger
	recorder Recorder
	log      *logrus.Logger
	now      func() time.Time
}

// call is one operation invocation
type call struct {
	env     *env
	spec    OpSpec
	module  *Module
	origin  *Module
	payload Payload
}

// outcome is what an operation handler reports back
type outcome struct {
	value    interface{}
	entityID string
	summary  string
}

func (e *env) operationInvoked(op, status string) {
	if e.recorder != nil {
		e.recorder.OperationInvoked(op, status)
	}
}

// completed publishes the event of a mutating operation, or records the
// read of a load operation
func (e *env) completed(spec OpSpec, origin *Module, out outcome) {
	fields := logrus.Fields{
		"op":         spec.Name,
		"user_id":    origin.userID,
		"department": origin.department,
	}
	if !spec.Mutating {
		if e.audit != nil {
			e.audit.Debug(auditScope, fmt.Sprintf("%s ran %s: %s", origin.userID, spec.Name, out.summary))
		}
		e.log.WithFields(fields).Debug(out.summary)
		return
	}

	fields["entity_id"] = out.entityID
	e.log.WithFields(fields).Info(out.summary)
	if e.bus != nil {
		e.bus.PublishFrom(string(origin.department), spec.Name, map[string]interface{}{
			"entity_id":  out.entityID,
			"summary":    out.summary,
			"user_id":    origin.userID,
			"department": string(origin.department),
		})
	}
}
