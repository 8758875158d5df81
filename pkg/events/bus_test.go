package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/waypoint/pkg/audit"
)

type countingRecorder struct {
	published atomic.Int64
	failed    atomic.Int64
}

func (c *countingRecorder) EventPublished(string)     { c.published.Add(1) }
func (c *countingRecorder) EventHandlerFailed(string) { c.failed.Add(1) }

func newTestBus(t *testing.T) (*Bus, *audit.Logger) {
	t.Helper()
	logger := audit.NewLogger(audit.Config{MaxEntries: 100, MinLevel: audit.LevelDebug})
	return NewBus(Config{Audit: logger}), logger
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus, _ := newTestBus(t)

	assert.NotPanics(t, func() {
		bus.Publish("createTrip", map[string]interface{}{"entity_id": "t1"})
	})

	stats := bus.Stats()
	assert.Equal(t, int64(1), stats.TotalPublished)
	assert.Equal(t, 1, stats.Topics)
	assert.Equal(t, int64(1), stats.PerTopic["createTrip"])
}

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus, _ := newTestBus(t)

	var order []int
	for i := 1; i <= 3; i++ {
		n := i
		bus.Subscribe("refundTicket", func(Event) error {
			order = append(order, n)
			return nil
		})
	}

	bus.Publish("refundTicket", nil)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_FaultySubscriberIsIsolated(t *testing.T) {
	bus, logger := newTestBus(t)
	recorder := &countingRecorder{}
	bus.recorder = recorder

	var received []string
	bus.Subscribe("deleteTrip", func(e Event) error {
		received = append(received, "first")
		return nil
	})
	bus.Subscribe("deleteTrip", func(Event) error {
		return errors.New("listener broke")
	})
	bus.Subscribe("deleteTrip", func(Event) error {
		panic("listener exploded")
	})
	bus.Subscribe("deleteTrip", func(e Event) error {
		received = append(received, "last")
		return nil
	})

	bus.Publish("deleteTrip", map[string]interface{}{"entity_id": "t9"})

	assert.Equal(t, []string{"first", "last"}, received)
	assert.Equal(t, int64(2), recorder.failed.Load())
	assert.Equal(t, int64(1), recorder.published.Load())

	errorsLogged := logger.Search(audit.Filter{MinLevel: audit.LevelError, Scope: "events"})
	require.Len(t, errorsLogged, 2)
	assert.Contains(t, errorsLogged[0].Message, "listener broke")
	assert.Contains(t, errorsLogged[1].Message, "listener exploded")
}

func TestBus_PublishIsAudited(t *testing.T) {
	bus, logger := newTestBus(t)

	bus.PublishFrom("agent", "createReservation", nil)

	entries := logger.Search(audit.Filter{Scope: "events"})
	require.Len(t, entries, 1)
	assert.Equal(t, audit.LevelDebug, entries[0].Level)
	assert.Contains(t, entries[0].Message, "createReservation")
}

func TestBus_EventFields(t *testing.T) {
	bus, _ := newTestBus(t)

	var got Event
	bus.Subscribe("startTrip", func(e Event) error {
		got = e
		return nil
	})

	published := bus.PublishFrom("driver", "startTrip", map[string]interface{}{"entity_id": "trip-1"})

	assert.Equal(t, published.ID, got.ID)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "driver", got.Source)
	assert.Equal(t, "trip-1", got.Payload["entity_id"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus, _ := newTestBus(t)

	calls := 0
	id := bus.Subscribe("updateTrip", func(Event) error {
		calls++
		return nil
	})

	bus.Publish("updateTrip", nil)
	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id))
	bus.Publish("updateTrip", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.SubscriberCount("updateTrip"))
}

func TestBus_HandlerMaySubscribeDuringDelivery(t *testing.T) {
	bus, _ := newTestBus(t)

	bus.Subscribe("publishSchedule", func(Event) error {
		bus.Subscribe("publishSchedule", func(Event) error { return nil })
		bus.Publish("nested", nil)
		return nil
	})

	assert.NotPanics(t, func() { bus.Publish("publishSchedule", nil) })
	assert.Equal(t, 2, bus.SubscriberCount("publishSchedule"))
	assert.Equal(t, []string{"nested", "publishSchedule"}, bus.Topics())
}

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"createTrip", "createTrip", true},
		{"createTrip", "createTrips", false},
		{"*", "anything", true},
		{"rbac.*", "rbac.role.created", true},
		{"rbac.*", "rbac", false},
		{"rbac.*", "rbacx.role", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.pattern, tt.topic))
		})
	}
}

func TestBus_WildcardSubscribers(t *testing.T) {
	bus, _ := newTestBus(t)

	var all, rbacOnly int
	bus.Subscribe("*", func(Event) error { all++; return nil })
	bus.Subscribe("rbac.*", func(Event) error { rbacOnly++; return nil })

	bus.Publish("rbac.role.created", nil)
	bus.Publish("createTrip", nil)

	assert.Equal(t, 2, all)
	assert.Equal(t, 1, rbacOnly)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus, _ := newTestBus(t)

	var delivered atomic.Int64
	bus.Subscribe("validateTicket", func(Event) error {
		delivered.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Publish("validateTicket", nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), delivered.Load())
	assert.Equal(t, int64(200), bus.Stats().TotalPublished)
}
