package creature

import (
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"leviathan.ai/internal/sim/navigation"
)

// Hooks receives state entry notifications. Implementations must not block.
type Hooks interface {
	EnterState(id string, from, to State)
}

type nopHooks struct{}

func (nopHooks) EnterState(string, State, State) {}

// Transition records one state change.
type Transition struct {
	From  State `json:"from"`
	To    State `json:"to"`
	Event Event `json:"event"`
}

// Machine drives one creature. It owns that creature's navigation controller
// and random source.
type Machine struct {
	cfg   Config
	nav   *navigation.Controller
	rng   *rand.Rand
	hooks Hooks

	log   zerolog.Logger
	debug zerolog.Logger
}

func NewMachine(cfg Config, nav *navigation.Controller, rng *rand.Rand, hooks Hooks, logger zerolog.Logger) *Machine {
	cfg.applyDefaults()
	if hooks == nil {
		hooks = nopHooks{}
	}
	log := logger.With().Str("component", "creature").Logger()
	if lo, hi, widened := cfg.IdleBounds(); widened {
		log.Warn().
			Int("min_idle_ticks", cfg.MinIdleTicks).
			Int("max_idle_ticks", cfg.MaxIdleTicks).
			Int("effective_max", hi).
			Int("effective_min", lo).
			Msg("idle range empty; widened")
	}
	return &Machine{
		cfg:   cfg,
		nav:   nav,
		rng:   rng,
		hooks: hooks,
		log:   log,
		debug: log.Sample(&zerolog.BurstSampler{Burst: 20, Period: time.Second}),
	}
}

func (m *Machine) Config() Config { return m.cfg }

func (m *Machine) Navigation() *navigation.Controller { return m.nav }

// RollIdle draws an idle duration from the effective idle range.
func (m *Machine) RollIdle() int {
	lo, hi, _ := m.cfg.IdleBounds()
	return lo + m.rng.Intn(hi-lo+1)
}

// Init puts c into Idle with a fresh idle roll.
func (m *Machine) Init(c *Creature) {
	c.State = Idle
	c.PrevState = Idle
	c.StateTimer = 0
	c.IdleRemaining = m.RollIdle()
	c.Vel = mgl32.Vec3{}
	c.HasTarget = false
	c.pendingDamage = false
	m.nav.Stop()
	m.hooks.EnterState(c.ID, Idle, Idle)
}

// Damage flags c for a damage response on its next tick. attacker may be nil.
func (m *Machine) Damage(c *Creature, attacker *mgl32.Vec3) {
	if attacker != nil {
		c.LastAttacker = *attacker
		c.HasAttacker = true
	}
	c.pendingDamage = true
}

// Step runs one tick of behaviour: pending damage, the current state's
// handler, then at most one timer-driven transition. It returns the
// transitions taken this tick in order.
func (m *Machine) Step(c *Creature) []Transition {
	var out []Transition
	if c.pendingDamage {
		c.pendingDamage = false
		if t, ok := m.apply(c, EventDamaged); ok {
			out = append(out, t)
		}
	}

	c.StateTimer++
	var ev Event
	switch c.State {
	case Idle:
		ev = m.tickIdle(c)
	case Transitioning:
		ev = m.tickTransitioning(c)
	case Moving:
		ev = m.tickMoving(c)
	case Damaged:
		ev = m.tickDamaged(c)
	}
	if ev != EventNone {
		if t, ok := m.apply(c, ev); ok {
			out = append(out, t)
		}
	}

	if m.cfg.Debug {
		m.debug.Debug().
			Str("creature", c.ID).
			Stringer("state", c.State).
			Int("timer", c.StateTimer).
			Floats32("vel", c.Vel[:]).
			Float32("yaw", c.Yaw).
			Msg("step")
	}
	return out
}

func (m *Machine) tickIdle(c *Creature) Event {
	c.Vel = m.nav.Brake(c.Vel)
	if c.IdleRemaining > 0 {
		c.IdleRemaining--
	}
	if c.IdleRemaining <= 0 {
		return EventIdleElapsed
	}
	return EventNone
}

func (m *Machine) tickTransitioning(c *Creature) Event {
	c.Vel = m.nav.Brake(c.Vel)
	if c.StateTimer >= m.cfg.TransitionTicks {
		return EventTransitionElapsed
	}
	return EventNone
}

func (m *Machine) tickDamaged(c *Creature) Event {
	c.Vel = m.nav.Brake(c.Vel)
	if c.StateTimer >= m.cfg.DamageResponseTicks {
		return EventDamageElapsed
	}
	return EventNone
}

func (m *Machine) tickMoving(c *Creature) Event {
	s := m.nav.Update(c.Pos, c.Vel, c.Yaw)
	c.Vel, c.Yaw = s.Velocity, s.Yaw
	switch {
	case s.Signal == navigation.SignalAbandon:
		m.log.Info().Str("creature", c.ID).Str("reason", s.Reason).Msg("movement abandoned")
		return EventAbandon
	case c.StateTimer < m.cfg.MinMovingTicks:
		return EventNone
	case s.Signal == navigation.SignalArrived:
		return EventArrived
	case c.StateTimer >= m.cfg.MaxMovingTicks:
		return EventMoveTimeout
	}
	return EventNone
}

func (m *Machine) apply(c *Creature, ev Event) (Transition, bool) {
	next, effects, ok := Next(c.State, c.PrevState, ev)
	if !ok {
		return Transition{}, false
	}
	t := Transition{From: c.State, To: next, Event: ev}
	c.PrevState = c.State
	c.State = next
	c.StateTimer = 0
	for _, eff := range effects {
		m.perform(c, eff)
	}
	m.hooks.EnterState(c.ID, t.From, t.To)
	return t, true
}

func (m *Machine) perform(c *Creature, eff Effect) {
	switch eff {
	case EffectSelectDestination:
		dest, ok := m.nav.SelectDestination(c.Pos)
		if !ok {
			m.log.Debug().Str("creature", c.ID).Msg("no deep water sampled; heading away from home")
		}
		c.Target, c.HasTarget = dest, true
		m.nav.Begin(c.Pos, dest, false)
	case EffectEscapeDestination:
		dest := m.nav.EscapeDestination(c.Pos, c.Attacker())
		c.Target, c.HasTarget = dest, true
		m.nav.Begin(c.Pos, dest, true)
	case EffectRollIdle:
		c.IdleRemaining = m.RollIdle()
	case EffectStopNavigation:
		m.nav.Stop()
		c.HasTarget = false
	}
}
