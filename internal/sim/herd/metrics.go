package herd

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "leviathan.ai/internal/sim/herd"

type metrics struct {
	population  metric.Int64ObservableGauge
	ticks       metric.Int64Counter
	transitions metric.Int64Counter
	spawns      metric.Int64Counter
	tickTime    metric.Float64Histogram

	// Written by the herd loop, read by the gauge callback.
	current atomic.Int64
}

// newMetrics registers instruments on mp, or on the global provider when mp
// is nil.
func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(instrumentationName)
	out := &metrics{}
	var err error

	out.population, err = m.Int64ObservableGauge("herd.population",
		metric.WithDescription("Live creatures"))
	if err != nil {
		return nil, fmt.Errorf("creating population gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(out.population, out.current.Load())
		return nil
	}, out.population)
	if err != nil {
		return nil, fmt.Errorf("registering population callback: %w", err)
	}

	if out.ticks, err = m.Int64Counter("herd.ticks",
		metric.WithDescription("Completed herd ticks")); err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	if out.transitions, err = m.Int64Counter("herd.transitions",
		metric.WithDescription("Creature state transitions by target state")); err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}
	if out.spawns, err = m.Int64Counter("herd.spawns",
		metric.WithDescription("Spawn requests by result")); err != nil {
		return nil, fmt.Errorf("creating spawns counter: %w", err)
	}
	if out.tickTime, err = m.Float64Histogram("herd.tick.duration",
		metric.WithDescription("Wall time spent in one herd tick"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}
	return out, nil
}

func (m *metrics) transition(to string) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", to)))
}

func (m *metrics) spawn(result string) {
	m.spawns.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *metrics) tick(population int, ms float64) {
	ctx := context.Background()
	m.current.Store(int64(population))
	m.ticks.Add(ctx, 1)
	m.tickTime.Record(ctx, ms)
}
