package island

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"leviathan.ai/internal/sim/catalogs"
	"leviathan.ai/internal/sim/world"
)

type testEnv struct {
	world  *world.World
	engine *Engine
	cats   *catalogs.Catalogs
	sand   world.Block
	log    world.Block
}

func newEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	cats, err := catalogs.New(
		[]catalogs.BlockDef{
			{ID: "AIR"},
			{ID: "WATER", Fluid: true},
			{ID: "SAND", Solid: true},
			{ID: "STONE", Solid: true},
			{ID: "LOG", Solid: true},
		},
		[]catalogs.IslandTemplate{
			{
				ID:        "raft",
				SizeClass: catalogs.SizeSmall,
				AABB:      [2][3]int{{0, 1, 0}, {2, 2, 0}},
				Blocks: []catalogs.TemplateBlock{
					{Pos: [3]int{0, 1, 0}, Block: "SAND"},
					{Pos: [3]int{1, 1, 0}, Block: "SAND"},
					{Pos: [3]int{2, 1, 0}, Block: "SAND"},
					{Pos: [3]int{1, 2, 0}, Block: "LOG"},
				},
			},
			{
				ID:         "tower",
				SizeClass:  catalogs.SizeLarge,
				Categories: []string{"DEEP_OCEAN"},
				AABB:       [2][3]int{{0, 1, 0}, {0, 3, 0}},
				Blocks: []catalogs.TemplateBlock{
					{Pos: [3]int{0, 1, 0}, Block: "STONE"},
					{Pos: [3]int{0, 2, 0}, Block: "STONE"},
					{Pos: [3]int{0, 3, 0}, Block: "STONE"},
				},
			},
		},
	)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	w, err := world.New(world.WorldConfig{Seed: 7, SeaLevel: 62}, cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if cfg.SizeWeights == nil {
		cfg.SizeWeights = map[string]SizeWeights{
			DefaultCategory: {catalogs.SizeSmall: 1},
			"DEEP_OCEAN":    {catalogs.SizeLarge: 1},
		}
	}
	e, err := NewEngine(cfg, w, cats, zerolog.Nop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &testEnv{
		world:  w,
		engine: e,
		cats:   cats,
		sand:   world.Block(cats.Blocks.Index["SAND"]),
		log:    world.Block(cats.Blocks.Index["LOG"]),
	}
}

var anchor = mgl32.Vec3{8.5, 62, 8.5}

func (env *testEnv) spawnRaft(t *testing.T) *Structure {
	t.Helper()
	var s Structure
	if err := env.engine.Spawn(&s, anchor, "OCEAN", rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if s.TemplateID() != "raft" {
		t.Fatalf("template = %q", s.TemplateID())
	}
	return &s
}

// countIn counts cells holding b in a slab around the test area.
func (env *testEnv) countIn(b world.Block) int {
	n := 0
	for x := 0; x < 32; x++ {
		for y := 63; y < 68; y++ {
			for z := 0; z < 16; z++ {
				if env.world.Block(cube.Pos{x, y, z}) == b {
					n++
				}
			}
		}
	}
	return n
}

// assertAt checks that every offset of s is in the world at the anchor's cell.
func (env *testEnv) assertAt(t *testing.T, s *Structure) {
	t.Helper()
	base := s.AnchorCell()
	for _, off := range s.Offsets() {
		want, _ := s.BlockAt(off)
		p := base.Add(off)
		if got := env.world.Block(p); got != want {
			t.Fatalf("cell %v = %d, want %d", p, got, want)
		}
	}
}

func TestSpawnCapturesTemplate(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)

	if !s.Has() || s.BlockCount() != 4 {
		t.Fatalf("has=%v blocks=%d", s.Has(), s.BlockCount())
	}
	want := []cube.Pos{{8, 63, 8}, {9, 63, 8}, {9, 64, 8}, {10, 63, 8}}
	got := env.engine.Footprint(s)
	if len(got) != len(want) {
		t.Fatalf("footprint = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("footprint[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if !env.engine.Contains(s, mgl32.Vec3{9.5, 63.5, 8.5}) {
		t.Fatalf("expected point inside island")
	}
	if !env.engine.Contains(s, mgl32.Vec3{11, 65, 9}) {
		t.Fatalf("box max corner should be inclusive")
	}
	if env.engine.Contains(s, mgl32.Vec3{20, 63, 8}) {
		t.Fatalf("far point reported inside")
	}
}

func TestSpawnPicksCategoryTemplate(t *testing.T) {
	env := newEnv(t, Config{})
	var s Structure
	if err := env.engine.Spawn(&s, anchor, "DEEP_OCEAN", rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if s.TemplateID() != "tower" || s.SizeClass() != catalogs.SizeLarge {
		t.Fatalf("template=%q size=%q", s.TemplateID(), s.SizeClass())
	}
	if err := env.engine.Spawn(&s, anchor, "DEEP_OCEAN", rand.New(rand.NewSource(1))); !errors.Is(err, ErrAlreadyCaptured) {
		t.Fatalf("second spawn err = %v", err)
	}
}

func TestSpawnWithoutTemplate(t *testing.T) {
	env := newEnv(t, Config{SizeWeights: map[string]SizeWeights{
		DefaultCategory: {catalogs.SizeMedium: 1},
	}})
	var s Structure
	err := env.engine.Spawn(&s, anchor, "OCEAN", rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("err = %v, want ErrNoTemplate", err)
	}
	if s.Has() {
		t.Fatalf("structure captured without template")
	}
}

func TestCaptureEmptyFootprint(t *testing.T) {
	env := newEnv(t, Config{})
	var s Structure
	err := env.engine.Capture(&s, anchor, cube.Pos{0, 80, 0}, cube.Pos{3, 82, 3})
	if !errors.Is(err, ErrEmptyFootprint) {
		t.Fatalf("err = %v", err)
	}
}

func TestSelectSizeClassWeights(t *testing.T) {
	env := newEnv(t, Config{SizeWeights: map[string]SizeWeights{
		DefaultCategory: {catalogs.SizeSmall: 1, catalogs.SizeMedium: 1},
		"DEEP_OCEAN":    {catalogs.SizeLarge: 1},
	}})
	rng := rand.New(rand.NewSource(3))
	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		seen[env.engine.SelectSizeClass("OCEAN", rng)]++
		if c := env.engine.SelectSizeClass("deep_ocean", rng); c != catalogs.SizeLarge {
			t.Fatalf("deep ocean class = %q", c)
		}
	}
	if seen[catalogs.SizeLarge] != 0 {
		t.Fatalf("zero-weight class drawn %d times", seen[catalogs.SizeLarge])
	}
	if seen[catalogs.SizeSmall] == 0 || seen[catalogs.SizeMedium] == 0 {
		t.Fatalf("weighted draw never picked a class: %v", seen)
	}
}

func TestRelocateMovesEveryBlockByDelta(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)
	before := env.engine.Digest(s)

	st := env.engine.Relocate(s, anchor.Add(mgl32.Vec3{3, 0, -2}))
	if st.Skipped || st.Moved != 4 || st.Failed != 0 {
		t.Fatalf("stats = %+v", st)
	}
	env.assertAt(t, s)
	for _, old := range []cube.Pos{{8, 63, 8}, {9, 63, 8}, {10, 63, 8}, {9, 64, 8}} {
		if b := env.world.Block(old); b != world.Air {
			t.Fatalf("old cell %v still holds %d", old, b)
		}
	}
	if env.engine.Digest(s) == before {
		t.Fatalf("digest unchanged after move")
	}
}

func TestRelocateOverlappingCellsNoSelfOverwrite(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)

	env.engine.Relocate(s, anchor.Add(mgl32.Vec3{1, 0, 0}))
	env.assertAt(t, s)
	if n := env.countIn(env.sand); n != 3 {
		t.Fatalf("sand count = %d, want 3", n)
	}
	if n := env.countIn(env.log); n != 1 {
		t.Fatalf("log count = %d, want 1", n)
	}
	if b := env.world.Block(cube.Pos{8, 63, 8}); b != world.Air {
		t.Fatalf("trailing cell = %d", b)
	}
}

func TestRelocateSubCellAndEpsilon(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)

	if st := env.engine.Relocate(s, anchor.Add(mgl32.Vec3{0.0001, 0, 0})); !st.Skipped {
		t.Fatalf("sub-epsilon move not skipped: %+v", st)
	}
	st := env.engine.Relocate(s, anchor.Add(mgl32.Vec3{0.3, 0, 0}))
	if st.Skipped || st.Moved != 0 {
		t.Fatalf("sub-cell move stats = %+v", st)
	}
	if s.Anchor() != anchor.Add(mgl32.Vec3{0.3, 0, 0}) {
		t.Fatalf("anchor = %v", s.Anchor())
	}
	env.assertAt(t, s)
}

func TestRelocateTranslatesPassengers(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)

	rider := env.world.SpawnEntity("player", mgl32.Vec3{9.5, 64, 8.5})
	bystander := env.world.SpawnEntity("player", mgl32.Vec3{50, 64, 50})

	delta := mgl32.Vec3{2, 0, 1}
	st := env.engine.Relocate(s, anchor.Add(delta))
	if st.Passengers != 1 {
		t.Fatalf("passengers = %d", st.Passengers)
	}
	if p, _ := env.world.Position(rider); p != (mgl32.Vec3{11.5, 64, 9.5}) {
		t.Fatalf("rider at %v", p)
	}
	if p, _ := env.world.Position(bystander); p != (mgl32.Vec3{50, 64, 50}) {
		t.Fatalf("bystander moved to %v", p)
	}

	env.world.DespawnEntity(rider)
	st = env.engine.Relocate(s, anchor.Add(delta).Add(mgl32.Vec3{1, 0, 0}))
	if st.Passengers != 0 || len(s.Passengers()) != 0 {
		t.Fatalf("dead passenger not pruned: %+v", st)
	}
}

func TestBoardedPassengerRidesFromAnywhere(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)

	swimmer := env.world.SpawnEntity("player", mgl32.Vec3{50, 64, 50})
	if !env.engine.Board(s, swimmer) {
		t.Fatalf("Board returned false for a live entity")
	}
	st := env.engine.Relocate(s, anchor.Add(mgl32.Vec3{2, 0, 1}))
	if st.Passengers != 1 {
		t.Fatalf("passengers = %d", st.Passengers)
	}
	if p, _ := env.world.Position(swimmer); p != (mgl32.Vec3{52, 64, 51}) {
		t.Fatalf("boarded entity at %v", p)
	}

	env.world.DespawnEntity(swimmer)
	if env.engine.Board(s, swimmer) {
		t.Fatalf("Board accepted a dead entity")
	}
	st = env.engine.Relocate(s, anchor.Add(mgl32.Vec3{3, 0, 1}))
	if st.Passengers != 0 {
		t.Fatalf("dead boarded entity kept: %+v", st)
	}

	var empty Structure
	other := env.world.SpawnEntity("player", mgl32.Vec3{1, 64, 1})
	if env.engine.Board(&empty, other) {
		t.Fatalf("Board onto an uncaptured structure")
	}
}

func TestOccupiesFollowsStaleCells(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)
	if !s.Occupies(cube.Pos{9, 64, 8}) || s.Occupies(cube.Pos{9, 65, 8}) {
		t.Fatalf("Occupies disagrees with the spawned footprint")
	}

	env.world.Protect(cube.Pos{13, 63, 8})
	env.engine.Relocate(s, anchor.Add(mgl32.Vec3{5, 0, 0}))
	for _, p := range env.engine.Footprint(s) {
		if !s.Occupies(p) {
			t.Fatalf("footprint cell %v not occupied", p)
		}
	}
	if !s.Occupies(cube.Pos{8, 63, 8}) {
		t.Fatalf("stale cell not reported")
	}
	if s.Occupies(cube.Pos{13, 63, 8}) {
		t.Fatalf("unwritten target reported occupied")
	}
}

func TestRelocateWriteFailureLeavesOldBlockThenHeals(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)

	blocked := cube.Pos{13, 63, 8}
	env.world.Protect(blocked)
	st := env.engine.Relocate(s, anchor.Add(mgl32.Vec3{5, 0, 0}))
	if st.Failed != 1 || st.Lost != 0 || st.Moved != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if b := env.world.Block(cube.Pos{8, 63, 8}); b != env.sand {
		t.Fatalf("failed block not left at old cell: %d", b)
	}
	if b := env.world.Block(blocked); b != world.Air {
		t.Fatalf("blocked cell written: %d", b)
	}
	if env.countIn(env.sand) != 3 || env.countIn(env.log) != 1 {
		t.Fatalf("blocks duplicated or lost")
	}
	if s.StaleCount() != 1 {
		t.Fatalf("stale = %d", s.StaleCount())
	}

	env.world.Unprotect(blocked)
	env.engine.Relocate(s, anchor.Add(mgl32.Vec3{6, 0, 0}))
	env.assertAt(t, s)
	if s.StaleCount() != 0 {
		t.Fatalf("stale after heal = %d", s.StaleCount())
	}
	if b := env.world.Block(cube.Pos{8, 63, 8}); b != world.Air {
		t.Fatalf("stale cell not cleared: %d", b)
	}
	if env.countIn(env.sand) != 3 {
		t.Fatalf("sand count after heal = %d", env.countIn(env.sand))
	}
}

func TestRelocateClearFailurePinsBlock(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)

	pinned := cube.Pos{9, 64, 8}
	env.world.Protect(pinned)
	st := env.engine.Relocate(s, anchor.Add(mgl32.Vec3{5, 0, 0}))
	if st.Failed != 1 || st.Moved != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if b := env.world.Block(pinned); b != env.log {
		t.Fatalf("pinned cell = %d", b)
	}
	if env.countIn(env.log) != 1 {
		t.Fatalf("log duplicated: %d", env.countIn(env.log))
	}
}

func TestRelocateIntoUnloadedChunk(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)

	env.world.Chunks().Unload(world.ChunkKey{CX: 1, CZ: 0})
	st := env.engine.Relocate(s, anchor.Add(mgl32.Vec3{16, 0, 0}))
	if st.Failed != 4 || st.Lost != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if env.countIn(env.sand) != 3 || env.countIn(env.log) != 1 {
		t.Fatalf("blocks lost when target chunk was unloaded")
	}

	env.world.Chunks().Load(world.ChunkKey{CX: 1, CZ: 0})
	env.engine.Relocate(s, anchor.Add(mgl32.Vec3{17, 0, 0}))
	env.assertAt(t, s)
}

func TestRemoveIsIdempotent(t *testing.T) {
	env := newEnv(t, Config{})
	s := env.spawnRaft(t)
	env.engine.Relocate(s, anchor.Add(mgl32.Vec3{2, 0, 0}))

	if n := env.engine.Remove(s); n != 4 {
		t.Fatalf("cleared = %d", n)
	}
	if s.Has() || s.BlockCount() != 0 || len(s.Passengers()) != 0 {
		t.Fatalf("structure not reset")
	}
	if env.countIn(env.sand) != 0 || env.countIn(env.log) != 0 {
		t.Fatalf("blocks remain after removal")
	}
	if n := env.engine.Remove(s); n != 0 {
		t.Fatalf("second remove cleared %d", n)
	}
	if env.engine.Contains(s, mgl32.Vec3{10.5, 63.5, 8.5}) {
		t.Fatalf("removed structure still contains points")
	}
}

func TestDigestDeterministic(t *testing.T) {
	run := func() uint64 {
		env := newEnv(t, Config{})
		s := env.spawnRaft(t)
		env.engine.Relocate(s, anchor.Add(mgl32.Vec3{4, 0, 1}))
		return env.engine.Digest(s)
	}
	if a, b := run(), run(); a != b {
		t.Fatalf("digests differ: %x vs %x", a, b)
	}
}
