package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/decisiongraph/ledger"

// Operations wraps the counters the ledger engine emits around its core
// operations: chain appends, WAL segment rolls, precedent queries, and
// shadow-chain simulations.
type Operations struct {
	tracer            trace.Tracer
	appends           metric.Int64Counter
	segmentRolls      metric.Int64Counter
	precedentQueries  metric.Int64Counter
	simulations       metric.Int64Counter
}

// NewOperations builds an Operations instrument set against the current
// global tracer/meter providers. Safe to call before Init (no-op
// providers are used until Init configures real exporters).
func NewOperations() (*Operations, error) {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	appends, err := meter.Int64Counter("ledger.chain.appends",
		metric.WithDescription("Number of cells appended to a chain"))
	if err != nil {
		return nil, err
	}
	segmentRolls, err := meter.Int64Counter("ledger.wal.segment_rolls",
		metric.WithDescription("Number of WAL segment file rolls"))
	if err != nil {
		return nil, err
	}
	precedentQueries, err := meter.Int64Counter("ledger.precedent.queries",
		metric.WithDescription("Number of precedent registry lookups"))
	if err != nil {
		return nil, err
	}
	simulations, err := meter.Int64Counter("ledger.shadow.simulations",
		metric.WithDescription("Number of shadow-chain simulations run"))
	if err != nil {
		return nil, err
	}

	return &Operations{
		tracer:           otel.GetTracerProvider().Tracer(instrumentationName),
		appends:          appends,
		segmentRolls:     segmentRolls,
		precedentQueries: precedentQueries,
		simulations:      simulations,
	}, nil
}

// RecordAppend starts a span for a chain.Append call and returns a func
// to end it; err (possibly nil) determines the span status.
func (o *Operations) RecordAppend(ctx context.Context, graphID string) (context.Context, func(err error)) {
	ctx, span := o.tracer.Start(ctx, "ledger.chain.append", trace.WithAttributes(
		attribute.String("ledger.graph_id", graphID)))
	o.appends.Add(ctx, 1, metric.WithAttributes(attribute.String("ledger.graph_id", graphID)))
	return ctx, func(err error) { endSpan(span, err) }
}

// RecordSegmentRoll records a WAL segment roll event.
func (o *Operations) RecordSegmentRoll(ctx context.Context, graphID, fileName string) {
	o.segmentRolls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ledger.graph_id", graphID),
		attribute.String("ledger.wal.segment", fileName),
	))
}

// RecordPrecedentQuery starts a span for a precedent registry lookup.
func (o *Operations) RecordPrecedentQuery(ctx context.Context, domain string) (context.Context, func(err error)) {
	ctx, span := o.tracer.Start(ctx, "ledger.precedent.query", trace.WithAttributes(
		attribute.String("ledger.domain", domain)))
	o.precedentQueries.Add(ctx, 1, metric.WithAttributes(attribute.String("ledger.domain", domain)))
	return ctx, func(err error) { endSpan(span, err) }
}

// RecordSimulation starts a span for a shadow-chain simulate_rfa run.
func (o *Operations) RecordSimulation(ctx context.Context, graphID string) (context.Context, func(err error)) {
	ctx, span := o.tracer.Start(ctx, "ledger.shadow.simulate", trace.WithAttributes(
		attribute.String("ledger.graph_id", graphID)))
	o.simulations.Add(ctx, 1, metric.WithAttributes(attribute.String("ledger.graph_id", graphID)))
	return ctx, func(err error) { endSpan(span, err) }
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
