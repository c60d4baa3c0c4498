package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	instOnce sync.Once
	inst     struct {
		txResolved  metric.Int64Counter
		txMasked    metric.Int64Counter
		completions metric.Int64Counter
		points      metric.Int64Counter
		badges      metric.Int64Counter
		claps       metric.Int64Counter
		storeRetry  metric.Int64Counter
		txLatency   metric.Float64Histogram
	}
)

func instruments() {
	instOnce.Do(func() {
		m := Meter("")
		inst.txResolved, _ = m.Int64Counter("nexus.transaction.resolved",
			metric.WithDescription("Transactions reaching a terminal status"))
		inst.txMasked, _ = m.Int64Counter("nexus.transaction.auto_resolved",
			metric.WithDescription("Transactions resolved as success by the optimistic policy"))
		inst.completions, _ = m.Int64Counter("nexus.demo.completions",
			metric.WithDescription("Demo completions credited to accounts"))
		inst.points, _ = m.Int64Counter("nexus.points.awarded",
			metric.WithDescription("Points credited to accounts"))
		inst.badges, _ = m.Int64Counter("nexus.badge.awarded",
			metric.WithDescription("Badges awarded"))
		inst.claps, _ = m.Int64Counter("nexus.demo.claps",
			metric.WithDescription("Claps recorded"))
		inst.storeRetry, _ = m.Int64Counter("nexus.store.write_failures",
			metric.WithDescription("Account store writes that failed after retries"))
		inst.txLatency, _ = m.Float64Histogram("nexus.transaction.latency",
			metric.WithDescription("Time from creation to resolution"),
			metric.WithUnit("s"))
	})
}

// RecordTransaction counts a resolved transaction.
func RecordTransaction(ctx context.Context, status, source string, seconds float64) {
	instruments()
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("source", source),
	)
	if inst.txResolved != nil {
		inst.txResolved.Add(ctx, 1, attrs)
	}
	if inst.txLatency != nil {
		inst.txLatency.Record(ctx, seconds, attrs)
	}
	if source == "AUTO" && inst.txMasked != nil {
		inst.txMasked.Add(ctx, 1)
	}
}

// RecordCompletion counts a credited demo completion.
func RecordCompletion(ctx context.Context, demoID string, replay bool, points int64) {
	instruments()
	attrs := metric.WithAttributes(
		attribute.String("demo", demoID),
		attribute.Bool("replay", replay),
	)
	if inst.completions != nil {
		inst.completions.Add(ctx, 1, attrs)
	}
	if inst.points != nil {
		inst.points.Add(ctx, points, attrs)
	}
}

// RecordBadge counts an awarded badge.
func RecordBadge(ctx context.Context, badgeID string) {
	instruments()
	if inst.badges != nil {
		inst.badges.Add(ctx, 1, metric.WithAttributes(attribute.String("badge", badgeID)))
	}
}

// RecordClap counts a clap.
func RecordClap(ctx context.Context, demoID string) {
	instruments()
	if inst.claps != nil {
		inst.claps.Add(ctx, 1, metric.WithAttributes(attribute.String("demo", demoID)))
	}
}

// RecordStoreFailure counts an account write that exhausted its retries.
func RecordStoreFailure(ctx context.Context) {
	instruments()
	if inst.storeRetry != nil {
		inst.storeRetry.Add(ctx, 1)
	}
}
