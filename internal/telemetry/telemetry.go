// Package telemetry provides OpenTelemetry metrics for drain passes.
//
// Telemetry is disabled by default and then installs a no-op meter provider.
//
// # Configuration
//
//	CARESYNC_OTEL_ENABLED=true   enable metrics (default: off)
//	CARESYNC_OTEL_STDOUT=true    export metrics to stdout every 15s
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mrlokans/caresync/internal/syncengine"
)

const instrumentationScope = "github.com/mrlokans/caresync/syncengine"

type Config struct {
	Enabled bool
	Stdout  bool

	// ExportInterval for the stdout reader. Defaults to 15s.
	ExportInterval time.Duration
}

// Init installs the global meter provider and returns its shutdown function.
func Init(cfg Config) (metric.MeterProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		mp := metricnoop.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, func(context.Context) error { return nil }, nil
	}

	var opts []sdkmetric.Option
	if cfg.Stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, err
		}
		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp, mp.Shutdown, nil
}

// Recorder counts drain pass outcomes. It satisfies syncengine.PassRecorder.
type Recorder struct {
	entries  metric.Int64Counter
	passes   metric.Int64Counter
	duration metric.Float64Histogram
	pending  metric.Int64Gauge
}

func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	m := mp.Meter(instrumentationScope)

	entries, err := m.Int64Counter("caresync.sync.entries",
		metric.WithDescription("Queue entries handled by drain passes, by outcome"),
	)
	if err != nil {
		return nil, err
	}
	passes, err := m.Int64Counter("caresync.sync.passes",
		metric.WithDescription("Drain passes run"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := m.Float64Histogram("caresync.sync.pass.duration",
		metric.WithDescription("Drain pass duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	pending, err := m.Int64Gauge("caresync.sync.pending",
		metric.WithDescription("Queue depth after the last pass"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{entries: entries, passes: passes, duration: duration, pending: pending}, nil
}

func (r *Recorder) RecordPass(ctx context.Context, report syncengine.Report) {
	aborted := attribute.Bool("aborted", report.Aborted)
	r.passes.Add(ctx, 1, metric.WithAttributes(aborted))

	for outcome, n := range map[string]int{
		"synced":  report.Synced,
		"failed":  report.Failed,
		"evicted": report.Evicted,
		"dropped": report.Dropped,
	} {
		if n > 0 {
			r.entries.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}

	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		ms := float64(report.FinishedAt.Sub(report.StartedAt).Microseconds()) / 1000
		r.duration.Record(ctx, ms, metric.WithAttributes(aborted))
	}
	r.pending.Record(ctx, report.Remaining)
}
