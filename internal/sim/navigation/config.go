package navigation

import "github.com/go-gl/mathgl/mgl32"

type Config struct {
	// Water sampling.
	SeaLevel      int
	DepthCap      int
	MinWaterDepth int

	// Destination selection.
	DestinationSamples  int
	DestinationDistance float32
	ArrivalDistance     float32
	EscapeBias          float32
	Home                mgl32.Vec3

	// Steering.
	MoveSpeed           float32
	EscapeSpeed         float32
	SteerRetain         float32
	ShallowSpeedFactor  float32
	HeadingDotThreshold float32
	HeadingPenalty      float32
	MaxTurnDegrees      float32
	WaypointRadius      float32

	RecalcIntervalTicks int

	// Stuck detection.
	StuckCheckTicks     int
	StuckEpsilon        float32
	StuckThresholdTicks int

	Debug bool
}

func (c *Config) applyDefaults() {
	if c.SeaLevel <= 0 {
		c.SeaLevel = 62
	}
	if c.DepthCap <= 0 {
		c.DepthCap = 32
	}
	if c.MinWaterDepth <= 0 {
		c.MinWaterDepth = 6
	}
	if c.MinWaterDepth > c.DepthCap {
		c.MinWaterDepth = c.DepthCap
	}
	if c.DestinationSamples <= 0 {
		c.DestinationSamples = 8
	}
	if c.DestinationDistance <= 0 {
		c.DestinationDistance = 64
	}
	if c.ArrivalDistance <= 0 {
		c.ArrivalDistance = 8
	}
	if c.EscapeBias <= 0 {
		c.EscapeBias = 0.5
	}
	if c.MoveSpeed <= 0 {
		c.MoveSpeed = 0.08
	}
	if c.EscapeSpeed <= 0 {
		c.EscapeSpeed = 0.2
	}
	if c.SteerRetain <= 0 || c.SteerRetain >= 1 {
		c.SteerRetain = 0.8
	}
	if c.ShallowSpeedFactor <= 0 || c.ShallowSpeedFactor > 1 {
		c.ShallowSpeedFactor = 0.5
	}
	if c.HeadingDotThreshold == 0 {
		c.HeadingDotThreshold = 0.5
	}
	if c.HeadingPenalty <= 0 || c.HeadingPenalty > 1 {
		c.HeadingPenalty = 0.5
	}
	if c.MaxTurnDegrees <= 0 {
		c.MaxTurnDegrees = 2
	}
	if c.WaypointRadius <= 0 {
		c.WaypointRadius = 2
	}
	if c.RecalcIntervalTicks <= 0 {
		c.RecalcIntervalTicks = 200
	}
	if c.StuckCheckTicks <= 0 {
		c.StuckCheckTicks = 20
	}
	if c.StuckEpsilon <= 0 {
		c.StuckEpsilon = 0.25
	}
	if c.StuckThresholdTicks <= 0 {
		c.StuckThresholdTicks = 100
	}
}

// WithDefaults returns c with unset fields filled in.
func (c Config) WithDefaults() Config {
	c.applyDefaults()
	return c
}
