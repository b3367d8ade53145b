package island

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"leviathan.ai/internal/sim/catalogs"
	"leviathan.ai/internal/sim/world"
)

var (
	ErrNoTemplate      = errors.New("no island template")
	ErrEmptyFootprint  = errors.New("footprint holds no blocks")
	ErrAlreadyCaptured = errors.New("structure already captured")
)

// RelocationStats summarises one Relocate call.
type RelocationStats struct {
	Skipped    bool `json:"skipped,omitempty"`
	Moved      int  `json:"moved"`
	Failed     int  `json:"failed,omitempty"`
	Lost       int  `json:"lost,omitempty"`
	Passengers int  `json:"passengers"`
}

// Engine captures, relocates and removes structures against one world.
type Engine struct {
	cfg   Config
	world world.Access
	cats  *catalogs.Catalogs

	log   zerolog.Logger
	debug zerolog.Logger

	metrics *metrics
}

func NewEngine(cfg Config, w world.Access, cats *catalogs.Catalogs, logger zerolog.Logger) (*Engine, error) {
	cfg.applyDefaults()
	if w == nil || cats == nil {
		return nil, fmt.Errorf("island: world and catalogs are required")
	}
	m, err := newMetrics(cfg.MeterProvider)
	if err != nil {
		return nil, err
	}
	log := logger.With().Str("component", "island").Logger()
	return &Engine{
		cfg:     cfg,
		world:   w,
		cats:    cats,
		log:     log,
		debug:   log.Sample(&zerolog.BurstSampler{Burst: 20, Period: time.Second}),
		metrics: m,
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// SelectSizeClass draws a size class using the weights for category.
func (e *Engine) SelectSizeClass(category string, rng *rand.Rand) string {
	weights := e.cfg.weightsFor(category)
	total := 0
	for _, c := range catalogs.SizeClasses {
		if w := weights[c]; w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return catalogs.SizeSmall
	}
	r := rng.Intn(total)
	for _, c := range catalogs.SizeClasses {
		w := weights[c]
		if w <= 0 {
			continue
		}
		if r < w {
			return c
		}
		r -= w
	}
	return catalogs.SizeSmall
}

// Spawn places a template matching category at anchor and captures it into s.
func (e *Engine) Spawn(s *Structure, anchor mgl32.Vec3, category string, rng *rand.Rand) error {
	if s.has {
		return ErrAlreadyCaptured
	}
	class := e.SelectSizeClass(category, rng)
	ids := e.cats.Islands.Candidates(class, category)
	if len(ids) == 0 {
		return fmt.Errorf("size %s category %s: %w", class, category, ErrNoTemplate)
	}
	tpl := e.cats.Islands.ByID[ids[rng.Intn(len(ids))]]

	base := cube.PosFromVec3(anchor)
	for _, tb := range tpl.Blocks {
		idx, ok := e.cats.Blocks.Index[tb.Block]
		if !ok {
			continue
		}
		p := base.Add(cube.Pos{tb.Pos[0], tb.Pos[1], tb.Pos[2]})
		if err := e.world.SetBlock(p, world.Block(idx)); err != nil {
			e.log.Warn().Err(err).Str("template", tpl.ID).Msg("place island block")
		}
	}

	lo := base.Add(cube.Pos{tpl.AABB[0][0], tpl.AABB[0][1], tpl.AABB[0][2]})
	hi := base.Add(cube.Pos{tpl.AABB[1][0], tpl.AABB[1][1], tpl.AABB[1][2]})
	if err := e.Capture(s, anchor, lo, hi); err != nil {
		return fmt.Errorf("capture %s: %w", tpl.ID, err)
	}
	s.templateID = tpl.ID
	s.sizeClass = class
	s.category = category
	e.log.Info().
		Str("template", tpl.ID).
		Str("size", class).
		Str("category", category).
		Int("blocks", len(s.offsets)).
		Msg("island spawned")
	return nil
}

// Capture scans the inclusive cell range [lo, hi] and records every non-empty
// cell relative to anchor's cell.
func (e *Engine) Capture(s *Structure, anchor mgl32.Vec3, lo, hi cube.Pos) error {
	if s.has {
		return ErrAlreadyCaptured
	}
	base := cube.PosFromVec3(anchor)
	blocks := map[cube.Pos]world.Block{}
	for x := lo.X(); x <= hi.X(); x++ {
		for y := lo.Y(); y <= hi.Y(); y++ {
			for z := lo.Z(); z <= hi.Z(); z++ {
				p := cube.Pos{x, y, z}
				b := e.world.Block(p)
				if world.IsEmpty(e.world, p, b) {
					continue
				}
				blocks[cube.Pos{x - base.X(), y - base.Y(), z - base.Z()}] = b
			}
		}
	}
	if len(blocks) == 0 {
		return ErrEmptyFootprint
	}

	offsets := make([]cube.Pos, 0, len(blocks))
	for off := range blocks {
		offsets = append(offsets, off)
	}
	sortPositions(offsets)
	minOff, maxOff := offsets[0], offsets[0]
	for _, off := range offsets[1:] {
		for i := 0; i < 3; i++ {
			minOff[i] = min(minOff[i], off[i])
			maxOff[i] = max(maxOff[i], off[i])
		}
	}

	*s = Structure{
		has:        true,
		anchor:     anchor,
		blocks:     blocks,
		offsets:    offsets,
		minOff:     minOff,
		maxOff:     maxOff,
		passengers: orderedmap.NewOrderedMap[world.EntityRef, bool](),
		stale:      map[cube.Pos]cube.Pos{},
		missing:    map[cube.Pos]struct{}{},
	}
	s.recomputeBox()
	return nil
}

type move struct {
	off     cube.Pos
	from    cube.Pos
	hasFrom bool
	to      cube.Pos
	block   world.Block
	pinned  bool // clearing from failed; the block stays there
}

// Relocate moves s so that its anchor is pos. Riding entities are translated
// by the same delta. Blocks are moved in two phases (clear every source, then
// write every target) so offsets whose old and new cells overlap never
// overwrite each other. A failed write leaves that block at its old cell and
// the next relocation moves it from there.
func (e *Engine) Relocate(s *Structure, pos mgl32.Vec3) RelocationStats {
	var st RelocationStats
	if !s.has {
		st.Skipped = true
		return st
	}
	delta := pos.Sub(s.anchor)
	if delta.Len() <= e.cfg.MoveEpsilon {
		st.Skipped = true
		st.Passengers = s.passengers.Len()
		return st
	}

	e.refreshPassengers(s)
	for el := s.passengers.Front(); el != nil; el = el.Next() {
		p, ok := e.world.Position(el.Key)
		if !ok {
			continue
		}
		if err := e.world.Teleport(el.Key, p.Add(delta)); err != nil && !errors.Is(err, world.ErrDeadEntity) {
			e.log.Warn().Err(err).Msg("translate passenger")
		}
	}

	oldCell := s.AnchorCell()
	newCell := cube.PosFromVec3(pos)
	if oldCell != newCell {
		st.Moved, st.Failed, st.Lost = e.moveBlocks(s, newCell)
	}

	s.anchor = pos
	s.recomputeBox()
	e.prunePassengers(s)
	st.Passengers = s.passengers.Len()

	e.metrics.record(st)
	if e.cfg.Debug {
		e.debug.Debug().
			Floats32("anchor", pos[:]).
			Int("moved", st.Moved).
			Int("failed", st.Failed).
			Int("passengers", st.Passengers).
			Msg("relocated")
	}
	return st
}

func (e *Engine) moveBlocks(s *Structure, newCell cube.Pos) (moved, failed, lost int) {
	moves := make([]move, 0, len(s.offsets))
	for _, off := range s.offsets {
		m := move{off: off, to: newCell.Add(off), block: s.blocks[off]}
		if from, ok := s.cellOf(off); ok {
			m.from, m.hasFrom = from, true
			if b := e.world.Block(from); !world.IsEmpty(e.world, from, b) {
				m.block = b
			}
		}
		moves = append(moves, m)
	}

	// Phase 1: clear sources.
	for i := range moves {
		m := &moves[i]
		if !m.hasFrom || m.from == m.to {
			continue
		}
		if err := e.world.SetBlock(m.from, world.EmptyAt(e.world, m.from)); err != nil {
			m.pinned = true
			failed++
			e.log.Warn().Err(err).Ints("cell", m.from[:]).Msg("clear island block")
		}
	}

	// Phase 2: write targets.
	written := make(map[cube.Pos]struct{}, len(moves))
	var restore []*move
	for i := range moves {
		m := &moves[i]
		if m.pinned {
			s.stale[m.off] = m.from
			continue
		}
		if m.hasFrom && m.from == m.to {
			delete(s.stale, m.off)
			written[m.to] = struct{}{}
			continue
		}
		if err := e.world.SetBlock(m.to, m.block); err != nil {
			failed++
			e.log.Warn().Err(err).Ints("cell", m.to[:]).Msg("write island block")
			restore = append(restore, m)
			continue
		}
		written[m.to] = struct{}{}
		delete(s.stale, m.off)
		delete(s.missing, m.off)
		moved++
	}

	// Phase 3: put failed blocks back where they were, unless another offset
	// now occupies that cell.
	for _, m := range restore {
		if !m.hasFrom {
			continue // was already missing
		}
		if _, taken := written[m.from]; !taken {
			if err := e.world.SetBlock(m.from, m.block); err == nil {
				s.stale[m.off] = m.from
				continue
			}
		}
		delete(s.stale, m.off)
		s.missing[m.off] = struct{}{}
		lost++
		e.log.Warn().Ints("offset", m.off[:]).Msg("island block lost")
	}

	// A pinned block overwritten by another offset's write is gone.
	for _, m := range moves {
		if !m.pinned {
			continue
		}
		if _, taken := written[m.from]; taken {
			delete(s.stale, m.off)
			s.missing[m.off] = struct{}{}
			lost++
		}
	}
	return moved, failed, lost
}

// refreshPassengers picks up entities inside the riding volume and drops
// live ones that have walked off it. Boarded entities are never dropped here.
func (e *Engine) refreshPassengers(s *Structure) {
	box := s.ridingBox(e.cfg.RideHeight)
	found := e.world.EntitiesInVolume(box, nil)
	inside := make(map[world.EntityRef]struct{}, len(found))
	for _, ref := range found {
		inside[ref] = struct{}{}
		if _, ok := s.passengers.Get(ref); !ok {
			s.passengers.Set(ref, false)
		}
	}
	for el := s.passengers.Front(); el != nil; {
		next := el.Next()
		if _, ok := inside[el.Key]; !ok && !el.Value && e.world.Alive(el.Key) {
			s.passengers.Delete(el.Key)
		}
		el = next
	}
}

func (e *Engine) prunePassengers(s *Structure) {
	for _, ref := range s.passengers.Keys() {
		if !e.world.Alive(ref) {
			s.passengers.Delete(ref)
		}
	}
}

// Board makes ref ride s on every relocation wherever it stands, until it
// dies or s is removed.
func (e *Engine) Board(s *Structure, ref world.EntityRef) bool {
	if !s.has || !e.world.Alive(ref) {
		return false
	}
	s.passengers.Set(ref, true)
	return true
}

// Contains reports whether p lies inside the structure's bounding volume.
func (e *Engine) Contains(s *Structure, p mgl32.Vec3) bool {
	return s.has && world.BoxContains(s.box, p)
}

// Remove clears every occupied cell and resets s. It returns the number of
// cells cleared; removing an empty structure is a no-op.
func (e *Engine) Remove(s *Structure) int {
	if !s.has {
		return 0
	}
	cleared := 0
	for _, off := range s.offsets {
		p, ok := s.cellOf(off)
		if !ok {
			continue
		}
		if world.IsEmpty(e.world, p, e.world.Block(p)) {
			continue
		}
		if err := e.world.SetBlock(p, world.EmptyAt(e.world, p)); err != nil {
			e.log.Warn().Err(err).Ints("cell", p[:]).Msg("remove island block")
			continue
		}
		cleared++
	}
	*s = Structure{}
	return cleared
}

// Footprint returns the absolute cells currently holding the structure's
// blocks, sorted.
func (e *Engine) Footprint(s *Structure) []cube.Pos {
	if !s.has {
		return nil
	}
	out := make([]cube.Pos, 0, len(s.offsets))
	for _, off := range s.offsets {
		if p, ok := s.cellOf(off); ok {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out
}

// Digest hashes the anchor cell and the offset/block/cell triples of s.
func (e *Engine) Digest(s *Structure) uint64 {
	if !s.has {
		return 0
	}
	h := xxh3.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		_, _ = h.Write(buf[:])
	}
	a := s.AnchorCell()
	writeInt(a.X())
	writeInt(a.Y())
	writeInt(a.Z())
	for _, off := range s.offsets {
		writeInt(off.X())
		writeInt(off.Y())
		writeInt(off.Z())
		writeInt(int(s.blocks[off]))
		if p, ok := s.cellOf(off); ok {
			writeInt(p.X())
			writeInt(p.Y())
			writeInt(p.Z())
		} else {
			writeInt(-1)
		}
	}
	return h.Sum64()
}

func sortPositions(ps []cube.Pos) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
}
