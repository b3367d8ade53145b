package creature

type Config struct {
	MinIdleTicks int
	MaxIdleTicks int
	// Span used to widen the idle range when MaxIdleTicks <= MinIdleTicks.
	IdleMinSpan int

	TransitionTicks     int
	DamageResponseTicks int
	MinMovingTicks      int
	MaxMovingTicks      int

	Debug bool
}

func (c *Config) applyDefaults() {
	if c.MinIdleTicks <= 0 {
		c.MinIdleTicks = 200
	}
	if c.MaxIdleTicks <= 0 {
		c.MaxIdleTicks = 600
	}
	if c.IdleMinSpan <= 0 {
		c.IdleMinSpan = 20
	}
	if c.TransitionTicks <= 0 {
		c.TransitionTicks = 40
	}
	if c.DamageResponseTicks <= 0 {
		c.DamageResponseTicks = 20
	}
	if c.MinMovingTicks <= 0 {
		c.MinMovingTicks = 100
	}
	if c.MaxMovingTicks <= 0 {
		c.MaxMovingTicks = 2400
	}
	if c.MaxMovingTicks < c.MinMovingTicks {
		c.MaxMovingTicks = c.MinMovingTicks
	}
}

// IdleBounds returns the inclusive idle range, widening it when the
// configured max does not exceed the min.
func (c Config) IdleBounds() (lo, hi int, widened bool) {
	lo, hi = c.MinIdleTicks, c.MaxIdleTicks
	if hi <= lo {
		return lo, lo + c.IdleMinSpan, true
	}
	return lo, hi, false
}

func (c Config) WithDefaults() Config {
	c.applyDefaults()
	return c
}
