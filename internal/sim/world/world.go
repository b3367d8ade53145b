package world

import (
	"fmt"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"

	"leviathan.ai/internal/sim/catalogs"
)

// World is the host-side ocean: chunked voxels plus an entity arena.
// All state must be accessed only from the herd loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs

	gen      Generator
	chunks   *ChunkStore
	entities *EntityArena

	// Cells no one but their owner may write (claims, other systems).
	protected map[cube.Pos]bool
}

var _ Access = (*World)(nil)

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	cfg.applyDefaults()
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	water, ok := cats.Blocks.Index["WATER"]
	if !ok {
		return nil, fmt.Errorf("world: block palette missing WATER")
	}
	sand, ok := cats.Blocks.Index["SAND"]
	if !ok {
		return nil, fmt.Errorf("world: block palette missing SAND")
	}
	stone, ok := cats.Blocks.Index["STONE"]
	if !ok {
		return nil, fmt.Errorf("world: block palette missing STONE")
	}
	gen := Generator{
		Seed:          cfg.Seed,
		BoundaryR:     cfg.BoundaryR,
		SeaLevel:      cfg.SeaLevel,
		MaxDepth:      cfg.MaxDepth,
		MinDepth:      cfg.MinDepth,
		BasinSize:     cfg.BasinSize,
		ShoalPermille: cfg.ShoalPermille,
		ShoalSize:     cfg.ShoalSize,
		Water:         Block(water),
		Sand:          Block(sand),
		Stone:         Block(stone),
	}
	return &World{
		cfg:       cfg,
		catalogs:  cats,
		gen:       gen,
		chunks:    NewChunkStore(gen, cfg.Height),
		entities:  NewEntityArena(cfg.EntityCapacity),
		protected: map[cube.Pos]bool{},
	}, nil
}

func (w *World) Config() WorldConfig          { return w.cfg }
func (w *World) SeaLevel() int                { return w.cfg.SeaLevel }
func (w *World) Chunks() *ChunkStore          { return w.chunks }
func (w *World) EntityArena() *EntityArena    { return w.entities }
func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

func (w *World) Block(pos cube.Pos) Block { return w.chunks.GetBlock(pos) }

func (w *World) SetBlock(pos cube.Pos, b Block) error {
	if w.protected[pos] {
		return fmt.Errorf("set block %v: %w", pos, ErrBlocked)
	}
	if err := w.chunks.SetBlock(pos, b); err != nil {
		return fmt.Errorf("set block %v: %w", pos, err)
	}
	return nil
}

func (w *World) IsWater(pos cube.Pos) bool { return w.chunks.GetBlock(pos) == w.gen.Water }

// EmptyAt is WATER at or below sea level and AIR above it.
func (w *World) EmptyAt(pos cube.Pos) Block {
	if pos.Y() <= w.cfg.SeaLevel {
		return w.gen.Water
	}
	return Air
}

func (w *World) EntitiesInVolume(box cube.BBox, pred func(EntityRef) bool) []EntityRef {
	return w.entities.InVolume(box, pred)
}

func (w *World) Position(ref EntityRef) (mgl32.Vec3, bool) { return w.entities.Position(ref) }

func (w *World) Teleport(ref EntityRef, pos mgl32.Vec3) error { return w.entities.Teleport(ref, pos) }

func (w *World) Alive(ref EntityRef) bool { return w.entities.Alive(ref) }

func (w *World) SpawnEntity(kind string, pos mgl32.Vec3) EntityRef {
	return w.entities.Spawn(kind, pos)
}

func (w *World) DespawnEntity(ref EntityRef) bool { return w.entities.Despawn(ref) }

func (w *World) Protect(pos cube.Pos)   { w.protected[pos] = true }
func (w *World) Unprotect(pos cube.Pos) { delete(w.protected, pos) }

// Category classifies the water column at (x,z) for island selection.
func (w *World) Category(x, z int) string {
	depth := w.cfg.SeaLevel - w.gen.SeabedY(x, z)
	switch {
	case depth <= 0:
		return "SHOAL"
	case depth >= 24:
		return "DEEP_OCEAN"
	default:
		return "OCEAN"
	}
}

// BlockName resolves a palette id, for logs and observers.
func (w *World) BlockName(b Block) string {
	if int(b) < len(w.catalogs.Blocks.Palette) {
		return w.catalogs.Blocks.Palette[b]
	}
	return fmt.Sprintf("BLOCK_%d", b)
}
