// Package events is the in-process publish/subscribe backbone.
//
// Every mutating module operation publishes exactly one Event, named after
// the action. Delivery is synchronous and ordered by subscription:
//
//	bus := events.NewBus(events.Config{Audit: auditLog})
//	bus.Subscribe("createTrip", func(e events.Event) error {
//		return refresh(e.Payload["entity_id"])
//	})
//	bus.Publish("createTrip", map[string]interface{}{"entity_id": id})
//
// A subscriber that returns an error or panics is recorded in the audit log
// at ERROR and the remaining subscribers still receive the event.
package events
