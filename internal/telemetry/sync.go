package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const syncScopeName = "github.com/jira2gitlab/j2g/syncer"

// SyncInstruments records one span per migrated issue and counts outcomes in
// j2g.sync.* metrics. With telemetry disabled the global providers are no-ops.
type SyncInstruments struct {
	tracer   trace.Tracer
	outcomes metric.Int64Counter
	dur      metric.Float64Histogram
	errs     metric.Int64Counter
}

// NewSyncInstruments creates instruments from the global providers.
func NewSyncInstruments() *SyncInstruments {
	m := Meter(syncScopeName)
	outcomes, _ := m.Int64Counter("j2g.sync.issues",
		metric.WithDescription("Issues processed, by outcome"),
	)
	dur, _ := m.Float64Histogram("j2g.sync.issue.duration",
		metric.WithDescription("Time spent on one issue in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("j2g.sync.errors",
		metric.WithDescription("Issues that failed to migrate"),
	)
	return &SyncInstruments{
		tracer:   Tracer(syncScopeName),
		outcomes: outcomes,
		dur:      dur,
		errs:     errs,
	}
}

// IssueSpan tracks the work done for one source issue.
type IssueSpan struct {
	inst  *SyncInstruments
	span  trace.Span
	start time.Time
	key   string
}

// StartIssue opens a span for the issue with the given key.
func (s *SyncInstruments) StartIssue(ctx context.Context, key string, simulation bool) (context.Context, *IssueSpan) {
	ctx, span := s.tracer.Start(ctx, "sync.issue",
		trace.WithAttributes(
			attribute.String("j2g.issue.key", key),
			attribute.Bool("j2g.simulation", simulation),
		),
	)
	return ctx, &IssueSpan{inst: s, span: span, start: time.Now(), key: key}
}

// Event adds a named event to the span.
func (is *IssueSpan) Event(name string) {
	is.span.AddEvent(name)
}

// End records the outcome ("created", "updated", "filtered", "failed"...) and
// closes the span. A non-nil err marks the span as failed.
func (is *IssueSpan) End(ctx context.Context, outcome string, err error) {
	attrs := metric.WithAttributes(attribute.String("j2g.outcome", outcome))
	is.inst.outcomes.Add(ctx, 1, attrs)
	is.inst.dur.Record(ctx, float64(time.Since(is.start).Milliseconds()), attrs)
	is.span.SetAttributes(attribute.String("j2g.outcome", outcome))
	if err != nil {
		is.span.RecordError(err)
		is.span.SetStatus(codes.Error, err.Error())
		is.inst.errs.Add(ctx, 1)
	}
	is.span.End()
}
