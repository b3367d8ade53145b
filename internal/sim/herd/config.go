package herd

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel/metric"

	"leviathan.ai/internal/sim/creature"
	"leviathan.ai/internal/sim/island"
	"leviathan.ai/internal/sim/navigation"
	"leviathan.ai/internal/sim/tuning"
	"leviathan.ai/internal/sim/world"
)

type Config struct {
	TickRateHz int
	Seed       int64

	// Spawn guard.
	PopulationCap    int
	MinSpawnDistance float32

	// Ticks between island spawn attempts for a creature without one.
	CaptureRetryTicks int
	// Creatures swim at SeaLevel+SwimOffsetY.
	SwimOffsetY float32

	InitialCreatures int
	SpawnRadius      float32

	Debug bool
}

func (c *Config) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.PopulationCap <= 0 {
		c.PopulationCap = 4
	}
	if c.MinSpawnDistance < 0 {
		c.MinSpawnDistance = 0
	}
	if c.CaptureRetryTicks <= 0 {
		c.CaptureRetryTicks = 200
	}
	if c.InitialCreatures < 0 {
		c.InitialCreatures = 0
	}
	if c.InitialCreatures > c.PopulationCap {
		c.InitialCreatures = c.PopulationCap
	}
	if c.SpawnRadius <= 0 {
		c.SpawnRadius = 512
	}
}

// Settings is every component config the host needs, built from one tuning
// document.
type Settings struct {
	Herd        Config
	World       world.WorldConfig
	Creature    creature.Config
	Navigation  navigation.Config
	Island      island.Config
	Pathfinding Pathfinding
	// Shared by the herd and island instruments. Nil uses the otel global.
	MeterProvider metric.MeterProvider
}

type Pathfinding struct {
	Enabled  bool
	Margin   int
	Stride   int
	MaxNodes int
}

func FromTuning(t tuning.Tuning) Settings {
	weights := make(map[string]island.SizeWeights, len(t.Island.SizeWeights))
	for cat, w := range t.Island.SizeWeights {
		inner := make(island.SizeWeights, len(w))
		for class, n := range w {
			inner[class] = n
		}
		weights[cat] = inner
	}
	return Settings{
		Herd: Config{
			TickRateHz:        t.TickRateHz,
			Seed:              t.Seed,
			PopulationCap:     t.Herd.PopulationCap,
			MinSpawnDistance:  t.Herd.MinSpawnDistance,
			CaptureRetryTicks: t.Herd.CaptureRetryTicks,
			SwimOffsetY:       t.Herd.SwimOffsetY,
			InitialCreatures:  t.Herd.InitialCreatures,
			SpawnRadius:       t.Herd.SpawnRadius,
			Debug:             t.Herd.Debug,
		},
		World: world.WorldConfig{
			ID:            t.World.ID,
			Seed:          t.Seed,
			Height:        t.World.Height,
			BoundaryR:     t.World.BoundaryR,
			SeaLevel:      t.World.SeaLevel,
			MinDepth:      t.World.MinDepth,
			MaxDepth:      t.World.MaxDepth,
			BasinSize:     t.World.BasinSize,
			ShoalPermille: t.World.ShoalPermille,
			ShoalSize:     t.World.ShoalSize,
		},
		Creature: creature.Config{
			MinIdleTicks:        t.Creature.MinIdleTicks,
			MaxIdleTicks:        t.Creature.MaxIdleTicks,
			IdleMinSpan:         t.Creature.IdleMinSpan,
			TransitionTicks:     t.Creature.TransitionTicks,
			DamageResponseTicks: t.Creature.DamageResponseTicks,
			MinMovingTicks:      t.Creature.MinMovingTicks,
			MaxMovingTicks:      t.Creature.MaxMovingTicks,
			Debug:               t.Creature.Debug,
		},
		Navigation: navigation.Config{
			SeaLevel:            t.World.SeaLevel,
			DepthCap:            t.Navigation.DepthCap,
			MinWaterDepth:       t.Navigation.MinWaterDepth,
			DestinationSamples:  t.Navigation.DestinationSamples,
			DestinationDistance: t.Navigation.DestinationDistance,
			ArrivalDistance:     t.Navigation.ArrivalDistance,
			EscapeBias:          t.Navigation.EscapeBias,
			Home:                mgl32.Vec3(t.Navigation.Home),
			MoveSpeed:           t.Navigation.MoveSpeed,
			EscapeSpeed:         t.Navigation.EscapeSpeed,
			SteerRetain:         t.Navigation.SteerRetain,
			ShallowSpeedFactor:  t.Navigation.ShallowSpeedFactor,
			HeadingDotThreshold: t.Navigation.HeadingDotThreshold,
			HeadingPenalty:      t.Navigation.HeadingPenalty,
			MaxTurnDegrees:      t.Navigation.MaxTurnDegrees,
			WaypointRadius:      t.Navigation.WaypointRadius,
			RecalcIntervalTicks: t.Navigation.RecalcIntervalTicks,
			StuckCheckTicks:     t.Navigation.StuckCheckTicks,
			StuckEpsilon:        t.Navigation.StuckEpsilon,
			StuckThresholdTicks: t.Navigation.StuckThresholdTicks,
			Debug:               t.Navigation.Debug,
		},
		Island: island.Config{
			MoveEpsilon: t.Island.MoveEpsilon,
			RideHeight:  t.Island.RideHeight,
			SizeWeights: weights,
			Debug:       t.Island.Debug,
		},
		Pathfinding: Pathfinding{
			Enabled:  t.Pathfinding.Enabled,
			Margin:   t.Pathfinding.Margin,
			Stride:   t.Pathfinding.Stride,
			MaxNodes: t.Pathfinding.MaxNodes,
		},
	}
}
