package herd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"leviathan.ai/internal/observerproto"
	"leviathan.ai/internal/sim/catalogs"
	"leviathan.ai/internal/sim/creature"
	"leviathan.ai/internal/sim/island"
	"leviathan.ai/internal/sim/navigation"
	"leviathan.ai/internal/sim/world"
)

var (
	ErrUnknownCreature = errors.New("unknown creature")
	ErrPopulationCap   = errors.New("population cap reached")
	ErrTooClose        = errors.New("too close to another creature")
	ErrNoIsland        = errors.New("creature carries no island")
)

// World is the surface the herd needs beyond block and entity access.
type World interface {
	world.Access
	Category(x, z int) string
	SeaLevel() int
	SpawnEntity(kind string, pos mgl32.Vec3) world.EntityRef
}

type entry struct {
	c       *creature.Creature
	machine *creature.Machine
	rng     *rand.Rand
	// Tick of the next island spawn attempt while c has no structure.
	retryAt uint64
}

// Herd hosts every leviathan in one world. All methods except the request
// channels, CurrentTick and LatestFrame must be called from the goroutine
// running Run (or from a test driving StepOnce).
type Herd struct {
	cfg         Config
	creatureCfg creature.Config
	navCfg      navigation.Config
	paths       Pathfinding

	world  World
	cats   *catalogs.Catalogs
	engine *island.Engine

	root    zerolog.Logger
	log     zerolog.Logger
	debug   zerolog.Logger
	metrics *metrics

	creatures *orderedmap.OrderedMap[string, *entry]
	seq       int64
	tick      atomic.Uint64
	sinks     []TickSink

	// Run loop plumbing.
	stop          chan struct{}
	stopped       atomic.Bool
	damage        chan DamageInput
	board         chan BoardInput
	spawn         chan SpawnRequest
	remove        chan RemovalInput
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient
	latest        atomic.Pointer[observerproto.TickMsg]
}

func New(s Settings, w World, cats *catalogs.Catalogs, logger zerolog.Logger) (*Herd, error) {
	if w == nil || cats == nil {
		return nil, fmt.Errorf("herd: world and catalogs are required")
	}
	s.Herd.applyDefaults()
	s.Navigation.SeaLevel = w.SeaLevel()
	s.Navigation = s.Navigation.WithDefaults()
	s.Creature = s.Creature.WithDefaults()

	if s.Island.MeterProvider == nil {
		s.Island.MeterProvider = s.MeterProvider
	}
	engine, err := island.NewEngine(s.Island, w, cats, logger)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(s.MeterProvider)
	if err != nil {
		return nil, err
	}
	log := logger.With().Str("component", "herd").Logger()
	return &Herd{
		cfg:           s.Herd,
		creatureCfg:   s.Creature,
		navCfg:        s.Navigation,
		paths:         s.Pathfinding,
		world:         w,
		cats:          cats,
		engine:        engine,
		root:          logger,
		log:           log,
		debug:         log.Sample(&zerolog.BurstSampler{Burst: 20, Period: time.Second}),
		metrics:       m,
		creatures:     orderedmap.NewOrderedMap[string, *entry](),
		stop:          make(chan struct{}),
		damage:        make(chan DamageInput, 256),
		board:         make(chan BoardInput, 64),
		spawn:         make(chan SpawnRequest, 64),
		remove:        make(chan RemovalInput, 64),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
	}, nil
}

func (h *Herd) Config() Config         { return h.cfg }
func (h *Herd) Engine() *island.Engine { return h.engine }
func (h *Herd) CurrentTick() uint64    { return h.tick.Load() }
func (h *Herd) Len() int               { return h.creatures.Len() }

// AddSink registers a journal or index writer. Not safe once Run has started.
func (h *Herd) AddSink(s TickSink) { h.sinks = append(h.sinks, s) }

// IDs returns creature ids in tick order.
func (h *Herd) IDs() []string { return h.creatures.Keys() }

// Creature returns the live creature with id. The caller must not mutate it.
func (h *Herd) Creature(id string) (*creature.Creature, bool) {
	e, ok := h.creatures.Get(id)
	if !ok {
		return nil, false
	}
	return e.c, true
}

func (h *Herd) swimY() float32 { return float32(h.world.SeaLevel()) + h.cfg.SwimOffsetY }

func (h *Herd) categoryAt(p mgl32.Vec3) string {
	return h.world.Category(int(math.Floor(float64(p[0]))), int(math.Floor(float64(p[2]))))
}

// Spawn adds a creature at pos and tries to give it an island. An empty
// category uses the water category at pos. Island failures do not fail the
// spawn; the host retries every CaptureRetryTicks.
func (h *Herd) Spawn(pos mgl32.Vec3, category string) (string, error) {
	rec, err := h.spawnCreature(pos, category)
	return rec.ID, err
}

func (h *Herd) spawnCreature(pos mgl32.Vec3, category string) (SpawnRecord, error) {
	pos[1] = h.swimY()
	rec := SpawnRecord{Pos: pos, Category: category}
	if h.creatures.Len() >= h.cfg.PopulationCap {
		h.metrics.spawn("cap")
		return rec, fmt.Errorf("%d creatures: %w", h.creatures.Len(), ErrPopulationCap)
	}
	for el := h.creatures.Front(); el != nil; el = el.Next() {
		if d := el.Value.c.Pos.Sub(pos).Len(); d < h.cfg.MinSpawnDistance {
			h.metrics.spawn("too_close")
			return rec, fmt.Errorf("%.1f blocks from %s: %w", d, el.Key, ErrTooClose)
		}
	}
	if category == "" {
		category = h.categoryAt(pos)
		rec.Category = category
	}

	h.seq++
	id := fmt.Sprintf("L%d", h.seq)
	rng := rand.New(rand.NewSource(h.cfg.Seed ^ (h.seq * 0x5851F42D)))

	e := &entry{
		c:   &creature.Creature{ID: id, Pos: pos},
		rng: rng,
	}
	view := islandMask{World: h.world, own: &e.c.Structure}
	var paths navigation.Pathfinder
	if h.paths.Enabled {
		paths = navigation.GridPathfinder{
			World:    view,
			SeaLevel: h.world.SeaLevel(),
			Margin:   h.paths.Margin,
			Stride:   h.paths.Stride,
			MaxNodes: h.paths.MaxNodes,
		}
	}
	nav := navigation.NewController(h.navCfg, view, paths, h.root)
	e.machine = creature.NewMachine(h.creatureCfg, nav, rng, stateHooks{h}, h.root)
	e.machine.Init(e.c)
	h.creatures.Set(id, e)
	rec.ID = id

	if err := h.spawnIsland(e, category); err != nil {
		rec.Error = err.Error()
	} else {
		rec.Island = e.c.Structure.TemplateID()
	}
	h.metrics.spawn("ok")
	h.log.Info().
		Str("creature", id).
		Floats32("pos", pos[:]).
		Str("category", category).
		Str("island", rec.Island).
		Msg("creature spawned")
	return rec, nil
}

func (h *Herd) spawnIsland(e *entry, category string) error {
	err := h.engine.Spawn(&e.c.Structure, e.c.Pos, category, e.rng)
	if err != nil {
		e.retryAt = h.tick.Load() + uint64(h.cfg.CaptureRetryTicks)
		h.log.Warn().
			Err(err).
			Str("creature", e.c.ID).
			Str("category", category).
			Uint64("retry_at", e.retryAt).
			Msg("island spawn failed")
	}
	return err
}

// CreatureTick is what one creature did in one tick.
type CreatureTick struct {
	Transitions []creature.Transition
	// Nil when the structure did not move.
	Relocation *island.RelocationStats
}

// Tick advances one creature: state machine, then physics, then island
// relocation, then the island retry. It does not advance the herd tick.
func (h *Herd) Tick(id string) (CreatureTick, error) {
	e, ok := h.creatures.Get(id)
	if !ok {
		return CreatureTick{}, fmt.Errorf("%s: %w", id, ErrUnknownCreature)
	}
	return h.tickCreature(e), nil
}

func (h *Herd) tickCreature(e *entry) CreatureTick {
	c := e.c
	out := CreatureTick{Transitions: e.machine.Step(c)}

	c.Pos = c.Pos.Add(c.Vel)
	c.Pos[1] = h.swimY()

	switch {
	case c.Structure.Has():
		if st := h.engine.Relocate(&c.Structure, c.Pos); !st.Skipped {
			out.Relocation = &st
		}
	case h.tick.Load() >= e.retryAt:
		if h.spawnIsland(e, h.categoryAt(c.Pos)) == nil {
			h.log.Info().Str("creature", c.ID).Str("island", c.Structure.TemplateID()).Msg("island captured on retry")
		}
	}
	return out
}

// TriggerDamageResponse flags id for a damage response on its next tick.
// attacker may be nil.
func (h *Herd) TriggerDamageResponse(id string, attacker *mgl32.Vec3) error {
	e, ok := h.creatures.Get(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownCreature)
	}
	e.machine.Damage(e.c, attacker)
	return nil
}

// Board spawns an entity of kind standing on top of id's island and pins it
// as a passenger.
func (h *Herd) Board(id, kind string) (world.EntityRef, error) {
	e, ok := h.creatures.Get(id)
	if !ok {
		return world.EntityRef{}, fmt.Errorf("%s: %w", id, ErrUnknownCreature)
	}
	s := &e.c.Structure
	if !s.Has() {
		return world.EntityRef{}, fmt.Errorf("%s: %w", id, ErrNoIsland)
	}
	lo, hi := s.Box().Min(), s.Box().Max()
	pos := mgl32.Vec3{(lo[0] + hi[0]) / 2, hi[1], (lo[2] + hi[2]) / 2}
	ref := h.world.SpawnEntity(kind, pos)
	h.engine.Board(s, ref)
	h.log.Info().Str("creature", id).Str("kind", kind).Uint32("entity", ref.Index).Msg("passenger boarded")
	return ref, nil
}

// Despawn removes id administratively and clears its island.
func (h *Herd) Despawn(id string) error {
	_, err := h.removeCreature(id, CauseDespawned)
	return err
}

// Kill removes id as a death and clears its island.
func (h *Herd) Kill(id string) error {
	_, err := h.removeCreature(id, CauseKilled)
	return err
}

func (h *Herd) removeCreature(id, cause string) (RemovalRecord, error) {
	if cause == "" {
		cause = CauseDespawned
	}
	e, ok := h.creatures.Get(id)
	if !ok {
		return RemovalRecord{}, fmt.Errorf("%s: %w", id, ErrUnknownCreature)
	}
	cleared := h.engine.Remove(&e.c.Structure)
	e.machine.Navigation().Stop()
	h.creatures.Delete(id)
	h.log.Info().Str("creature", id).Str("cause", cause).Int("cleared", cleared).Msg("creature removed")
	return RemovalRecord{ID: id, Cause: cause, Cleared: cleared}, nil
}

// IsIsland reports which creature's island volume contains p, if any.
func (h *Herd) IsIsland(p mgl32.Vec3) (string, bool) {
	for el := h.creatures.Front(); el != nil; el = el.Next() {
		if h.engine.Contains(&el.Value.c.Structure, p) {
			return el.Key, true
		}
	}
	return "", false
}

// TickAll advances every creature once with no external inputs.
func (h *Herd) TickAll() TickLogEntry { return h.step(Inputs{}) }

// StepOnce applies in and advances the herd by a single tick using the same
// ordering as Run. It is the replay entry point.
func (h *Herd) StepOnce(in Inputs) (tick uint64, digest string) {
	le := h.step(in)
	return le.Tick, le.Digest
}

func (h *Herd) step(in Inputs) TickLogEntry {
	start := time.Now()
	now := h.tick.Load()
	le := TickLogEntry{Tick: now, Inputs: in}

	for _, r := range in.Despawns {
		rec, err := h.removeCreature(r.ID, r.Cause)
		if err != nil {
			h.log.Debug().Err(err).Msg("removal skipped")
			continue
		}
		le.Removed = append(le.Removed, rec)
	}
	for _, s := range in.Spawns {
		rec, err := h.spawnCreature(mgl32.Vec3(s.Pos), s.Category)
		if err != nil {
			rec.Error = err.Error()
			h.log.Info().Err(err).Floats32("pos", s.Pos[:]).Msg("spawn rejected")
		}
		le.Spawned = append(le.Spawned, rec)
	}
	for _, d := range in.Damage {
		var attacker *mgl32.Vec3
		if d.Attacker != nil {
			a := mgl32.Vec3(*d.Attacker)
			attacker = &a
		}
		if err := h.TriggerDamageResponse(d.ID, attacker); err != nil {
			h.log.Debug().Err(err).Msg("damage skipped")
		}
	}

	for _, b := range in.Boards {
		rec := BoardRecord{ID: b.ID, Kind: b.Kind}
		ref, err := h.Board(b.ID, b.Kind)
		if err != nil {
			rec.Error = err.Error()
		}
		rec.Entity = ref
		le.Boarded = append(le.Boarded, rec)
	}

	for el := h.creatures.Front(); el != nil; el = el.Next() {
		e := el.Value
		ct := h.tickCreature(e)
		for _, t := range ct.Transitions {
			le.Transitions = append(le.Transitions, TransitionRecord{ID: e.c.ID, From: t.From, To: t.To, Event: t.Event})
		}
		if ct.Relocation != nil {
			le.Relocations = append(le.Relocations, RelocationRecord{
				ID:     e.c.ID,
				Anchor: e.c.Structure.Anchor(),
				Stats:  *ct.Relocation,
			})
		}
	}

	le.Digest = h.Digest()
	h.tick.Store(now + 1)

	for _, s := range h.sinks {
		if err := s.WriteTick(le); err != nil {
			h.log.Warn().Err(err).Uint64("tick", now).Msg("tick sink write")
		}
	}
	h.metrics.tick(h.creatures.Len(), float64(time.Since(start).Microseconds())/1000)
	if h.cfg.Debug {
		h.debug.Debug().
			Uint64("tick", now).
			Int("creatures", h.creatures.Len()).
			Int("transitions", len(le.Transitions)).
			Str("digest", le.Digest).
			Msg("tick")
	}
	return le
}

// Digest hashes every creature's behavioural and kinematic state plus its
// island, in tick order.
func (h *Herd) Digest() string {
	d := xxh3.New()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	writeF32 := func(vs ...float32) {
		for _, v := range vs {
			writeU64(uint64(math.Float32bits(v)))
		}
	}
	for el := h.creatures.Front(); el != nil; el = el.Next() {
		c := el.Value.c
		_, _ = d.WriteString(c.ID)
		writeU64(uint64(c.State)<<8 | uint64(c.PrevState))
		writeU64(uint64(int64(c.StateTimer)))
		writeU64(uint64(int64(c.IdleRemaining)))
		writeF32(c.Pos[0], c.Pos[1], c.Pos[2], c.Vel[0], c.Vel[1], c.Vel[2], c.Yaw)
		writeU64(h.engine.Digest(&c.Structure))
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// PlanInitialSpawns places InitialCreatures evenly on a ring of SpawnRadius
// around the navigation home point.
func (h *Herd) PlanInitialSpawns() []SpawnInput {
	n := h.cfg.InitialCreatures
	out := make([]SpawnInput, 0, n)
	home := h.navCfg.Home
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		out = append(out, SpawnInput{Pos: [3]float32{
			home[0] + h.cfg.SpawnRadius*float32(math.Cos(a)),
			h.swimY(),
			home[2] + h.cfg.SpawnRadius*float32(math.Sin(a)),
		}})
	}
	return out
}

type stateHooks struct{ h *Herd }

func (s stateHooks) EnterState(id string, from, to creature.State) {
	if from == to {
		return
	}
	s.h.metrics.transition(to.String())
	if s.h.cfg.Debug {
		s.h.debug.Debug().Str("creature", id).Stringer("from", from).Stringer("to", to).Msg("state entered")
	}
}
