package creature

import (
	"math/rand"
	"testing"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"leviathan.ai/internal/sim/navigation"
	"leviathan.ai/internal/sim/world"
)

const sea = 62

type ocean struct{ depth func(x, z int) int }

func (o ocean) Block(cube.Pos) world.Block           { return world.Air }
func (o ocean) SetBlock(cube.Pos, world.Block) error { return nil }
func (o ocean) EntitiesInVolume(cube.BBox, func(world.EntityRef) bool) []world.EntityRef {
	return nil
}
func (o ocean) IsWater(p cube.Pos) bool {
	return p.Y() <= sea && p.Y() > sea-o.depth(p.X(), p.Z())
}

func deep() ocean { return ocean{depth: func(int, int) int { return 30 }} }

type recorder struct{ entered []State }

func (r *recorder) EnterState(_ string, _, to State) { r.entered = append(r.entered, to) }

func newMachine(t *testing.T, q world.Query, cfg Config, navCfg navigation.Config, hooks Hooks) *Machine {
	t.Helper()
	navCfg.SeaLevel = sea
	nav := navigation.NewController(navCfg, q, nil, zerolog.Nop())
	return NewMachine(cfg, nav, rand.New(rand.NewSource(42)), hooks, zerolog.Nop())
}

func newCreature(m *Machine) *Creature {
	c := &Creature{ID: "L1", Pos: mgl32.Vec3{0, sea, 0}}
	m.Init(c)
	return c
}

func TestNextTable(t *testing.T) {
	cases := []struct {
		cur, prev State
		ev        Event
		want      State
		effect    Effect
		ok        bool
	}{
		{Idle, Idle, EventIdleElapsed, Transitioning, 0, true},
		{Transitioning, Idle, EventTransitionElapsed, Moving, EffectSelectDestination, true},
		{Transitioning, Moving, EventTransitionElapsed, Idle, EffectRollIdle, true},
		{Idle, Idle, EventDamaged, Damaged, EffectStopNavigation, true},
		{Moving, Transitioning, EventDamaged, Damaged, EffectStopNavigation, true},
		{Transitioning, Idle, EventDamaged, Damaged, EffectStopNavigation, true},
		{Damaged, Idle, EventDamaged, Damaged, 0, false},
		{Damaged, Idle, EventDamageElapsed, Moving, EffectEscapeDestination, true},
		{Moving, Transitioning, EventArrived, Transitioning, EffectStopNavigation, true},
		{Moving, Transitioning, EventMoveTimeout, Transitioning, EffectStopNavigation, true},
		{Moving, Damaged, EventAbandon, Transitioning, EffectStopNavigation, true},
		{Idle, Idle, EventArrived, Idle, 0, false},
		{Moving, Idle, EventIdleElapsed, Moving, 0, false},
		{Transitioning, Idle, EventDamageElapsed, Transitioning, 0, false},
	}
	for _, tc := range cases {
		got, effects, ok := Next(tc.cur, tc.prev, tc.ev)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Next(%v,%v,%v) = %v,%v want %v,%v", tc.cur, tc.prev, tc.ev, got, ok, tc.want, tc.ok)
		}
		if tc.effect == 0 {
			if len(effects) != 0 {
				t.Fatalf("Next(%v,%v,%v) effects = %v", tc.cur, tc.prev, tc.ev, effects)
			}
			continue
		}
		if len(effects) != 1 || effects[0] != tc.effect {
			t.Fatalf("Next(%v,%v,%v) effects = %v, want %v", tc.cur, tc.prev, tc.ev, effects, tc.effect)
		}
	}
}

func TestRollIdleBounds(t *testing.T) {
	m := newMachine(t, deep(), Config{MinIdleTicks: 10, MaxIdleTicks: 15}, navigation.Config{}, nil)
	for i := 0; i < 1000; i++ {
		if v := m.RollIdle(); v < 10 || v > 15 {
			t.Fatalf("roll %d outside [10,15]", v)
		}
	}

	m = newMachine(t, deep(), Config{MinIdleTicks: 50, MaxIdleTicks: 10, IdleMinSpan: 20}, navigation.Config{}, nil)
	seenAboveOld := false
	for i := 0; i < 1000; i++ {
		v := m.RollIdle()
		if v < 50 || v > 70 {
			t.Fatalf("widened roll %d outside [50,70]", v)
		}
		if v > 50 {
			seenAboveOld = true
		}
	}
	if !seenAboveOld {
		t.Fatalf("widened range never used")
	}
}

func TestIdleTimeout(t *testing.T) {
	m := newMachine(t, deep(), Config{}, navigation.Config{}, nil)
	c := newCreature(m)
	c.IdleRemaining = 5

	for i := 1; i <= 4; i++ {
		if tr := m.Step(c); len(tr) != 0 || c.State != Idle {
			t.Fatalf("tick %d: state=%v transitions=%v", i, c.State, tr)
		}
	}
	tr := m.Step(c)
	if c.State != Transitioning || c.PrevState != Idle {
		t.Fatalf("state=%v prev=%v, want TRANSITIONING from IDLE", c.State, c.PrevState)
	}
	if len(tr) != 1 || tr[0].Event != EventIdleElapsed || c.StateTimer != 0 {
		t.Fatalf("transitions=%v timer=%d", tr, c.StateTimer)
	}
}

func TestDamageOverridesIdle(t *testing.T) {
	rec := &recorder{}
	m := newMachine(t, deep(), Config{MinIdleTicks: 500, MaxIdleTicks: 600}, navigation.Config{}, rec)
	c := newCreature(m)

	m.Damage(c, nil)
	if c.State != Idle {
		t.Fatalf("damage applied before tick")
	}
	tr := m.Step(c)
	if c.State != Damaged || c.PrevState != Idle {
		t.Fatalf("state=%v prev=%v", c.State, c.PrevState)
	}
	if len(tr) != 1 || tr[0].From != Idle || tr[0].To != Damaged {
		t.Fatalf("transitions = %v", tr)
	}
	if rec.entered[len(rec.entered)-1] != Damaged {
		t.Fatalf("entry hook not called: %v", rec.entered)
	}
}

func TestDamageWhileDamagedCoalesced(t *testing.T) {
	m := newMachine(t, deep(), Config{DamageResponseTicks: 50}, navigation.Config{}, nil)
	c := newCreature(m)
	m.Damage(c, nil)
	for i := 0; i < 5; i++ {
		m.Step(c)
	}
	timer := c.StateTimer

	m.Damage(c, nil)
	if tr := m.Step(c); len(tr) != 0 {
		t.Fatalf("re-damage produced transitions %v", tr)
	}
	if c.StateTimer != timer+1 {
		t.Fatalf("timer = %d, want %d (no reset)", c.StateTimer, timer+1)
	}
}

func TestDamagedEscapesAwayFromAttacker(t *testing.T) {
	m := newMachine(t, deep(), Config{DamageResponseTicks: 3}, navigation.Config{}, nil)
	c := newCreature(m)

	m.Damage(c, &mgl32.Vec3{-10, sea, 0})
	for i := 0; i < 3; i++ {
		m.Step(c)
	}
	if c.State != Moving || c.PrevState != Damaged {
		t.Fatalf("state=%v prev=%v", c.State, c.PrevState)
	}
	if !m.Navigation().Escaping() {
		t.Fatalf("navigation not in escape mode")
	}
	if c.Target.Sub(mgl32.Vec3{64, sea, 0}).Len() > 1e-3 {
		t.Fatalf("escape target = %v", c.Target)
	}
}

func TestMovingHonoursMinMovingTicks(t *testing.T) {
	cfg := Config{TransitionTicks: 1, MinMovingTicks: 5, MaxMovingTicks: 100}
	m := newMachine(t, deep(), cfg, navigation.Config{ArrivalDistance: 1000}, nil)
	c := newCreature(m)
	c.State, c.PrevState, c.StateTimer = Transitioning, Idle, 0

	m.Step(c)
	if c.State != Moving {
		t.Fatalf("state = %v, want MOVING", c.State)
	}
	for i := 1; i <= 4; i++ {
		m.Step(c)
		if c.State != Moving {
			t.Fatalf("left MOVING after %d ticks", i)
		}
	}
	tr := m.Step(c)
	if c.State != Transitioning || len(tr) != 1 || tr[0].Event != EventArrived {
		t.Fatalf("state=%v transitions=%v", c.State, tr)
	}
}

func TestMoveTimeout(t *testing.T) {
	cfg := Config{TransitionTicks: 1, MinMovingTicks: 2, MaxMovingTicks: 6}
	m := newMachine(t, deep(), cfg, navigation.Config{}, nil)
	c := newCreature(m)
	c.State, c.PrevState = Transitioning, Idle

	m.Step(c)
	var last []Transition
	for i := 0; i < 6; i++ {
		last = m.Step(c)
	}
	if c.State != Transitioning || len(last) != 1 || last[0].Event != EventMoveTimeout {
		t.Fatalf("state=%v transitions=%v", c.State, last)
	}
}

func TestAbandonLeavesMovingImmediately(t *testing.T) {
	lagoon := ocean{depth: func(x, z int) int {
		if x < -3 || x > 3 || z < -3 || z > 3 {
			return 0
		}
		return 30
	}}
	cfg := Config{TransitionTicks: 1, MinMovingTicks: 100}
	m := newMachine(t, lagoon, cfg, navigation.Config{}, nil)
	c := newCreature(m)
	c.State, c.PrevState = Transitioning, Idle

	m.Step(c)
	if c.State != Moving {
		t.Fatalf("state = %v", c.State)
	}
	tr := m.Step(c)
	if c.State != Transitioning || len(tr) != 1 || tr[0].Event != EventAbandon {
		t.Fatalf("state=%v transitions=%v", c.State, tr)
	}
}

func TestEveryStateReachable(t *testing.T) {
	cfg := Config{MinIdleTicks: 2, MaxIdleTicks: 3, TransitionTicks: 2, DamageResponseTicks: 2, MinMovingTicks: 2, MaxMovingTicks: 4}
	rec := &recorder{}
	m := newMachine(t, deep(), cfg, navigation.Config{}, rec)
	c := newCreature(m)

	seen := map[State]bool{Idle: true}
	damaged := false
	for tick := 0; tick < 200; tick++ {
		if tick == 100 {
			m.Damage(c, nil)
			damaged = true
		}
		m.Step(c)
		seen[c.State] = true
		c.Pos = c.Pos.Add(c.Vel)
	}
	if !damaged {
		t.Fatalf("damage not sent")
	}
	for _, s := range AllStates {
		if !seen[s] {
			t.Fatalf("state %v never reached; entered=%v", s, rec.entered)
		}
	}
	// Moving -> Transitioning -> Idle must have happened at least once.
	backToIdle := false
	for i := 2; i < len(rec.entered); i++ {
		if rec.entered[i-2] == Moving && rec.entered[i-1] == Transitioning && rec.entered[i] == Idle {
			backToIdle = true
		}
	}
	if !backToIdle {
		t.Fatalf("never cycled back to IDLE: %v", rec.entered)
	}
}

func TestStateText(t *testing.T) {
	for _, s := range AllStates {
		b, _ := s.MarshalText()
		var got State
		if err := got.UnmarshalText(b); err != nil || got != s {
			t.Fatalf("round trip %v: %v %v", s, got, err)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("SLEEPING")); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}
