package island

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "leviathan.ai/internal/sim/island"

type metrics struct {
	relocations metric.Int64Counter
	moved       metric.Int64Counter
	failed      metric.Int64Counter
	lost        metric.Int64Counter
}

// newMetrics registers instruments on mp, or on the global provider when mp
// is nil.
func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(instrumentationName)
	var (
		out metrics
		err error
	)
	if out.relocations, err = m.Int64Counter("island.relocations",
		metric.WithDescription("Structure relocations that moved the anchor")); err != nil {
		return nil, fmt.Errorf("creating relocations counter: %w", err)
	}
	if out.moved, err = m.Int64Counter("island.blocks.moved",
		metric.WithDescription("Blocks written at their new cell")); err != nil {
		return nil, fmt.Errorf("creating moved counter: %w", err)
	}
	if out.failed, err = m.Int64Counter("island.blocks.failed",
		metric.WithDescription("Block clears or writes rejected by the world")); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if out.lost, err = m.Int64Counter("island.blocks.lost",
		metric.WithDescription("Blocks that could be neither moved nor restored")); err != nil {
		return nil, fmt.Errorf("creating lost counter: %w", err)
	}
	return &out, nil
}

func (m *metrics) record(st RelocationStats) {
	ctx := context.Background()
	m.relocations.Add(ctx, 1)
	if st.Moved > 0 {
		m.moved.Add(ctx, int64(st.Moved))
	}
	if st.Failed > 0 {
		m.failed.Add(ctx, int64(st.Failed))
	}
	if st.Lost > 0 {
		m.lost.Add(ctx, int64(st.Lost))
	}
}
