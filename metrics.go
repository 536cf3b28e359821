package frontdesk

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/frontdesk-ai/console/sdk/golang"

// instruments are created from the global MeterProvider, which is a no-op
// until the embedding application installs one.
type instruments struct {
	refreshes     metric.Int64Counter
	throttled     metric.Int64Counter
	forcedLogouts metric.Int64Counter
	reconnects    metric.Int64Counter
	droppedFrames metric.Int64Counter
}

func newInstruments() *instruments {
	m := otel.Meter(instrumentationName)
	ins := &instruments{}
	// Errors only occur for invalid instrument names; the counters below are
	// then no-ops and the client keeps working.
	ins.refreshes, _ = m.Int64Counter("frontdesk.auth.refreshes",
		metric.WithDescription("Credential refresh calls, by outcome."))
	ins.throttled, _ = m.Int64Counter("frontdesk.http.throttled",
		metric.WithDescription("Responses with status 429."))
	ins.forcedLogouts, _ = m.Int64Counter("frontdesk.auth.forced_logouts",
		metric.WithDescription("Sessions ended by the client, by reason."))
	ins.reconnects, _ = m.Int64Counter("frontdesk.realtime.reconnects",
		metric.WithDescription("Scheduled realtime reconnection attempts."))
	ins.droppedFrames, _ = m.Int64Counter("frontdesk.realtime.dropped_frames",
		metric.WithDescription("Inbound realtime frames that could not be parsed."))
	return ins
}

func (i *instruments) add(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
