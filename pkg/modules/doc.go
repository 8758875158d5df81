// Package modules builds capability-scoped modules: the handles through
// which an actor invokes domain operations.
//
// A Factory builds at most one Module per user. Agent and driver modules
// expose exactly the catalog operations the user's permissions unlock,
// and building one fails with rbac.ErrPermissionDenied when the user
// lacks the department minimum (read_tickets for agents, read_trips for
// drivers). Operations the user lacks are absent from the module;
// invoking one returns ErrPermissionDenied, while names outside the
// catalog return ErrUnknownAction.
//
// The admin module is built from the full permission catalog. It holds
// the admin operations and delegates every agent and driver operation to
// a full agent module and a full driver module, reachable through
// PerformAgentActions and PerformDriverActions.
//
// # Lifecycle
//
//	Uninitialized -> Initializing -> Ready
//	                              -> Error
//
// Concurrent creates for one user share the first build. Unregister
// removes the module and resets it to Uninitialized; the Reaper does so
// for modules idle longer than the configured TTL.
//
// # Events
//
// Each successful mutating operation publishes one event whose topic is
// the operation name and whose payload carries entity_id, summary,
// user_id and department. Load operations write a DEBUG audit entry.
package modules
