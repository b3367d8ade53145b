package island

import (
	"strings"

	"go.opentelemetry.io/otel/metric"

	"leviathan.ai/internal/sim/catalogs"
)

// SizeWeights maps a size class to its relative selection weight.
type SizeWeights map[string]int

const DefaultCategory = "default"

type Config struct {
	// Anchor displacements at or below this length are ignored.
	MoveEpsilon float32
	// Entities up to this far above the structure's top face count as riding it.
	RideHeight float32
	// Per-category size class weights; DefaultCategory is the fallback.
	SizeWeights map[string]SizeWeights
	// Nil uses the otel global provider.
	MeterProvider metric.MeterProvider

	Debug bool
}

func (c *Config) applyDefaults() {
	if c.MoveEpsilon <= 0 {
		c.MoveEpsilon = 0.001
	}
	if c.RideHeight <= 0 {
		c.RideHeight = 2
	}
	if len(c.SizeWeights) == 0 {
		c.SizeWeights = DefaultSizeWeights()
	}
	if _, ok := c.SizeWeights[DefaultCategory]; !ok {
		c.SizeWeights[DefaultCategory] = DefaultSizeWeights()[DefaultCategory]
	}
}

func DefaultSizeWeights() map[string]SizeWeights {
	return map[string]SizeWeights{
		DefaultCategory: {catalogs.SizeSmall: 5, catalogs.SizeMedium: 3, catalogs.SizeLarge: 1},
		"SHOAL":         {catalogs.SizeSmall: 1},
		"OCEAN":         {catalogs.SizeSmall: 4, catalogs.SizeMedium: 3, catalogs.SizeLarge: 1},
		"DEEP_OCEAN":    {catalogs.SizeSmall: 1, catalogs.SizeMedium: 3, catalogs.SizeLarge: 4},
	}
}

func (c *Config) weightsFor(category string) SizeWeights {
	if w, ok := c.SizeWeights[strings.ToUpper(category)]; ok {
		return w
	}
	if w, ok := c.SizeWeights[category]; ok {
		return w
	}
	return c.SizeWeights[DefaultCategory]
}
