package world

type WorldConfig struct {
	ID        string
	Seed      int64
	Height    int
	BoundaryR int

	// Ocean worldgen.
	SeaLevel      int
	MaxDepth      int
	MinDepth      int
	BasinSize     int
	ShoalPermille int
	ShoalSize     int

	// Entity arena initial capacity.
	EntityCapacity int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "ocean_1"
	}
	if c.Height <= 0 {
		c.Height = 128
	}
	if c.BoundaryR <= 0 {
		c.BoundaryR = 4000
	}
	if c.SeaLevel <= 0 || c.SeaLevel >= c.Height {
		c.SeaLevel = 62
		if c.SeaLevel >= c.Height {
			c.SeaLevel = c.Height / 2
		}
	}
	if c.MinDepth <= 0 {
		c.MinDepth = 4
	}
	if c.MaxDepth <= c.MinDepth {
		c.MaxDepth = c.MinDepth + 36
	}
	if c.MaxDepth > c.SeaLevel {
		c.MaxDepth = c.SeaLevel
	}
	if c.BasinSize <= 0 {
		c.BasinSize = 48
	}
	if c.ShoalPermille < 0 {
		c.ShoalPermille = 0
	}
	if c.ShoalSize <= 0 {
		c.ShoalSize = 96
	}
	if c.EntityCapacity <= 0 {
		c.EntityCapacity = 64
	}
}
