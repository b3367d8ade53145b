package navigation

import (
	"github.com/chewxy/math32"
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"leviathan.ai/internal/sim/world"
)

type Signal uint8

const (
	SignalNone Signal = iota
	SignalArrived
	SignalAbandon
)

func (s Signal) String() string {
	switch s {
	case SignalArrived:
		return "ARRIVED"
	case SignalAbandon:
		return "ABANDON"
	default:
		return "NONE"
	}
}

// Steering is one tick of navigation output.
type Steering struct {
	Velocity mgl32.Vec3
	Yaw      float32
	Signal   Signal
	Reason   string
}

// Controller steers one creature toward its destination. It holds per-creature
// path and stuck state and is not shared between creatures.
type Controller struct {
	cfg   Config
	world world.Query
	paths Pathfinder
	log   zerolog.Logger

	active   bool
	escaping bool
	dest     mgl32.Vec3
	speed    float32

	waypoints   []mgl32.Vec3
	blocked     bool
	sinceRecalc int
	stuck       stuckTracker
}

// NewController builds a controller. paths may be nil, in which case the
// controller always steers directly.
func NewController(cfg Config, q world.Query, paths Pathfinder, logger zerolog.Logger) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:   cfg,
		world: q,
		paths: paths,
		log:   logger.With().Str("component", "navigation").Logger(),
	}
}

func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) Active() bool { return c.active }

func (c *Controller) Escaping() bool { return c.escaping }

func (c *Controller) Destination() (mgl32.Vec3, bool) { return c.dest, c.active }

func (c *Controller) Waypoints() []mgl32.Vec3 { return c.waypoints }

// Begin starts steering toward dest from pos. escaping selects EscapeSpeed.
func (c *Controller) Begin(pos, dest mgl32.Vec3, escaping bool) {
	c.active = true
	c.escaping = escaping
	c.speed = c.cfg.MoveSpeed
	if escaping {
		c.speed = c.cfg.EscapeSpeed
	}
	c.stuck.reset(pos)
	c.retarget(pos, dest)
}

// Stop drops the destination. Subsequent updates only brake.
func (c *Controller) Stop() {
	c.active = false
	c.escaping = false
	c.waypoints = nil
	c.blocked = false
}

func (c *Controller) retarget(pos, dest mgl32.Vec3) {
	dest[1] = pos[1]
	c.dest = dest
	c.sinceRecalc = 0
	c.plan(pos)
}

func (c *Controller) plan(pos mgl32.Vec3) {
	c.waypoints = nil
	c.blocked = false
	if c.paths != nil {
		wp, err := c.paths.FindPath(pos, c.dest)
		if err == nil && len(wp) > 0 {
			c.waypoints = wp
			return
		}
		if c.cfg.Debug {
			c.log.Debug().Err(err).Msg("pathfinder failed; steering directly")
		}
	}
	c.blocked = c.lineBlocked(pos, c.dest)
}

// lineBlocked marches the straight segment at sea level and reports the first
// non-water cell.
func (c *Controller) lineBlocked(from, to mgl32.Vec3) bool {
	d := to.Sub(from)
	d[1] = 0
	dist := d.Len()
	if dist < 1 {
		return false
	}
	dir := d.Mul(1 / dist)
	steps := int(math32.Ceil(dist))
	for i := 1; i <= steps; i++ {
		p := from.Add(dir.Mul(float32(i)))
		if float32(i) > dist {
			p = to
		}
		cell := cube.PosFromVec3(p)
		if !c.world.IsWater(cube.Pos{cell.X(), c.cfg.SeaLevel, cell.Z()}) {
			return true
		}
	}
	return false
}

func (c *Controller) recalculate(pos mgl32.Vec3) {
	c.sinceRecalc = 0
	if !c.escaping && c.depthAt(c.dest) < c.cfg.MinWaterDepth {
		if next, ok := c.SelectDestination(pos); ok {
			c.dest = next
		}
	}
	c.plan(pos)
}

func (c *Controller) nextWaypoint(pos mgl32.Vec3) mgl32.Vec3 {
	for len(c.waypoints) > 0 && horizontalDist(pos, c.waypoints[0]) < c.cfg.WaypointRadius {
		c.waypoints = c.waypoints[1:]
	}
	if len(c.waypoints) > 0 {
		return c.waypoints[0]
	}
	return c.dest
}

func (c *Controller) abandon(vel mgl32.Vec3, yaw float32, reason string) Steering {
	c.Stop()
	if c.cfg.Debug {
		c.log.Debug().Str("reason", reason).Msg("abandoning destination")
	}
	return Steering{Velocity: c.Brake(vel), Yaw: yaw, Signal: SignalAbandon, Reason: reason}
}

// Update advances one tick of navigation for a creature at pos.
func (c *Controller) Update(pos, vel mgl32.Vec3, yaw float32) Steering {
	if !c.active {
		return Steering{Velocity: c.Brake(vel), Yaw: yaw}
	}

	if horizontalDist(pos, c.dest) < c.cfg.ArrivalDistance {
		v, y := c.steer(pos, vel, yaw, c.dest, c.speed)
		return Steering{Velocity: v, Yaw: y, Signal: SignalArrived}
	}

	c.sinceRecalc++
	if c.sinceRecalc >= c.cfg.RecalcIntervalTicks {
		c.recalculate(pos)
	}

	if c.stuck.observe(pos, &c.cfg) {
		if c.stuck.retried {
			return c.abandon(vel, yaw, "stuck")
		}
		alt, ok := c.alternativeDestination(pos, c.dest)
		if !ok {
			return c.abandon(vel, yaw, "stuck; no alternative destination")
		}
		c.stuck.reset(pos)
		c.stuck.retried = true
		c.retarget(pos, alt)
		if c.cfg.Debug {
			c.log.Debug().Floats32("dest", alt[:]).Msg("stuck; trying alternative destination")
		}
	}

	if c.blocked {
		return c.abandon(vel, yaw, "direct line blocked")
	}

	v, y := c.steer(pos, vel, yaw, c.nextWaypoint(pos), c.speed)
	return Steering{Velocity: v, Yaw: y}
}
