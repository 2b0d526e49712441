package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"resourcekit/internal/resterr"
)

// MeterName is the instrumentation scope of every resourcekit instrument.
const MeterName = "resourcekit"

// Metrics holds the filter compilation and pivot synchronization instruments.
// A nil *Metrics records nothing.
type Metrics struct {
	filtersCompiled metric.Int64Counter
	filtersSkipped  metric.Int64Counter
	joinsEmitted    metric.Int64Counter
	compileErrors   metric.Int64Counter
	pivotAdded      metric.Int64Counter
	pivotRemoved    metric.Int64Counter
	syncDuration    metric.Float64Histogram
	syncErrors      metric.Int64Counter
	lastSyncUnix    atomic.Int64
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics(logger *slog.Logger) (*Metrics, error) {
	metrics, err := NewMetrics(otel.Meter(MeterName))
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("resourcekit metrics initialized")
	}
	return metrics, nil
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	filtersCompiled, err := meter.Int64Counter(
		"resourcekit.filters.compiled",
		metric.WithDescription("Filter keys compiled, by strategy"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filters compiled counter: %w", err)
	}

	filtersSkipped, err := meter.Int64Counter(
		"resourcekit.filters.skipped",
		metric.WithDescription("Filter keys ignored because no search definition exists"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filters skipped counter: %w", err)
	}

	joinsEmitted, err := meter.Int64Counter(
		"resourcekit.joins.emitted",
		metric.WithDescription("LEFT JOINs emitted by filter compilation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create joins counter: %w", err)
	}

	compileErrors, err := meter.Int64Counter(
		"resourcekit.filters.errors",
		metric.WithDescription("Failed filter compilations, by error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create compile error counter: %w", err)
	}

	pivotAdded, err := meter.Int64Counter(
		"resourcekit.pivot.rows_added",
		metric.WithDescription("Pivot rows inserted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pivot added counter: %w", err)
	}

	pivotRemoved, err := meter.Int64Counter(
		"resourcekit.pivot.rows_removed",
		metric.WithDescription("Pivot rows deleted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pivot removed counter: %w", err)
	}

	syncDuration, err := meter.Float64Histogram(
		"resourcekit.pivot.sync.duration",
		metric.WithDescription("Duration of many-to-many synchronizations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync duration histogram: %w", err)
	}

	syncErrors, err := meter.Int64Counter(
		"resourcekit.pivot.sync.errors",
		metric.WithDescription("Failed many-to-many synchronizations, by error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync error counter: %w", err)
	}

	lastSyncGauge, err := meter.Int64ObservableGauge(
		"resourcekit.pivot.sync.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful synchronization"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create last sync gauge: %w", err)
	}

	metrics := &Metrics{
		filtersCompiled: filtersCompiled,
		filtersSkipped:  filtersSkipped,
		joinsEmitted:    joinsEmitted,
		compileErrors:   compileErrors,
		pivotAdded:      pivotAdded,
		pivotRemoved:    pivotRemoved,
		syncDuration:    syncDuration,
		syncErrors:      syncErrors,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if value := metrics.lastSyncUnix.Load(); value > 0 {
				observer.ObserveInt64(lastSyncGauge, value)
			}
			return nil
		},
		lastSyncGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register last sync gauge callback: %w", err)
	}

	return metrics, nil
}

// CompileStats is what one filter compilation contributed.
type CompileStats struct {
	ByStrategy map[string]int
	Skipped    int
	Joins      int
}

// RecordCompile records one filter compilation of resource.
func (m *Metrics) RecordCompile(ctx context.Context, resource string, stats CompileStats, err error) {
	if m == nil {
		return
	}
	res := attribute.String("resource", resource)
	if err != nil {
		m.compileErrors.Add(ctx, 1, metric.WithAttributes(res, attribute.String("kind", errorKind(err))))
		return
	}
	for strategy, n := range stats.ByStrategy {
		if n == 0 {
			continue
		}
		m.filtersCompiled.Add(ctx, int64(n), metric.WithAttributes(res, attribute.String("strategy", strategy)))
	}
	if stats.Skipped > 0 {
		m.filtersSkipped.Add(ctx, int64(stats.Skipped), metric.WithAttributes(res))
	}
	if stats.Joins > 0 {
		m.joinsEmitted.Add(ctx, int64(stats.Joins), metric.WithAttributes(res))
	}
}

// RecordSync records one pivot synchronization of relationship.
func (m *Metrics) RecordSync(ctx context.Context, relationship string, added, removed int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	rel := attribute.String("relationship", relationship)
	m.syncDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(rel, attribute.Bool("success", err == nil)))

	if err != nil {
		m.syncErrors.Add(ctx, 1, metric.WithAttributes(rel, attribute.String("kind", errorKind(err))))
		return
	}
	if added > 0 {
		m.pivotAdded.Add(ctx, int64(added), metric.WithAttributes(rel))
	}
	if removed > 0 {
		m.pivotRemoved.Add(ctx, int64(removed), metric.WithAttributes(rel))
	}
	m.lastSyncUnix.Store(time.Now().Unix())
}

func errorKind(err error) string {
	if kind := resterr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}
