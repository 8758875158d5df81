package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	moduleInitDuration metric.Float64Histogram
	operations         metric.Int64Counter
	eventsPublished    metric.Int64Counter
}

// NewOTelMetrics creates the instruments on provider. A nil provider uses
// the global meter provider.
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("github.com/platinummonkey/waypoint")

	m := &OTelMetrics{}
	var err error

	m.moduleInitDuration, err = meter.Float64Histogram(
		"waypoint.module.init.duration",
		metric.WithDescription("Module build duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create module init histogram: %w", err)
	}

	m.operations, err = meter.Int64Counter(
		"waypoint.operations",
		metric.WithDescription("Module operation invocations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	m.eventsPublished, err = meter.Int64Counter(
		"waypoint.events.published",
		metric.WithDescription("Events published on the bus"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}

	return m, nil
}

// ModuleInitialized records one module build
func (m *OTelMetrics) ModuleInitialized(ctx context.Context, department, outcome string, elapsed time.Duration) {
	m.moduleInitDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("department", department),
		attribute.String("outcome", outcome),
	))
}

// OperationInvoked counts one operation invocation
func (m *OTelMetrics) OperationInvoked(ctx context.Context, op, status string) {
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// EventPublished counts one publication
func (m *OTelMetrics) EventPublished(ctx context.Context, topic string) {
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
