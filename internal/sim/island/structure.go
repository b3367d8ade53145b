package island

import (
	"github.com/elliotchance/orderedmap/v2"
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"

	"leviathan.ai/internal/sim/world"
)

// Structure is the captured island a creature carries. Offsets are relative to
// the anchor's cell and never change after capture.
//
// A Structure is owned by exactly one creature and driven by one Engine.
type Structure struct {
	has    bool
	anchor mgl32.Vec3

	blocks  map[cube.Pos]world.Block
	offsets []cube.Pos // sorted, stable iteration order
	minOff  cube.Pos
	maxOff  cube.Pos
	box     cube.BBox

	// Value is true for entities boarded explicitly; those ride wherever
	// they stand until they die.
	passengers *orderedmap.OrderedMap[world.EntityRef, bool]

	// Offsets whose block could not be moved and still sits at the given cell.
	stale map[cube.Pos]cube.Pos
	// Offsets whose block is currently not in the world at all.
	missing map[cube.Pos]struct{}

	templateID string
	sizeClass  string
	category   string
}

func (s *Structure) Has() bool           { return s.has }
func (s *Structure) Anchor() mgl32.Vec3  { return s.anchor }
func (s *Structure) Box() cube.BBox      { return s.box }
func (s *Structure) BlockCount() int     { return len(s.offsets) }
func (s *Structure) TemplateID() string  { return s.templateID }
func (s *Structure) SizeClass() string   { return s.sizeClass }
func (s *Structure) Category() string    { return s.category }
func (s *Structure) StaleCount() int     { return len(s.stale) }
func (s *Structure) MissingCount() int   { return len(s.missing) }
func (s *Structure) Offsets() []cube.Pos { return append([]cube.Pos(nil), s.offsets...) }
func (s *Structure) BlockAt(off cube.Pos) (world.Block, bool) {
	b, ok := s.blocks[off]
	return b, ok
}

// Passengers returns riding entities in the order they boarded.
func (s *Structure) Passengers() []world.EntityRef {
	if s.passengers == nil {
		return nil
	}
	return s.passengers.Keys()
}

func (s *Structure) AnchorCell() cube.Pos { return cube.PosFromVec3(s.anchor) }

// Occupies reports whether p currently holds one of the structure's blocks.
func (s *Structure) Occupies(p cube.Pos) bool {
	if !s.has {
		return false
	}
	for _, at := range s.stale {
		if at == p {
			return true
		}
	}
	off := p.Sub(s.AnchorCell())
	if _, ok := s.blocks[off]; !ok {
		return false
	}
	at, ok := s.cellOf(off)
	return ok && at == p
}

// cellOf is the cell that currently holds offset off, and false when the
// offset's block is missing from the world.
func (s *Structure) cellOf(off cube.Pos) (cube.Pos, bool) {
	if _, gone := s.missing[off]; gone {
		return cube.Pos{}, false
	}
	if p, ok := s.stale[off]; ok {
		return p, true
	}
	return s.AnchorCell().Add(off), true
}

func (s *Structure) recomputeBox() {
	a := s.AnchorCell()
	lo := a.Add(s.minOff)
	hi := a.Add(s.maxOff)
	s.box = cube.Box(
		float32(lo.X()), float32(lo.Y()), float32(lo.Z()),
		float32(hi.X()+1), float32(hi.Y()+1), float32(hi.Z()+1),
	)
}

func (s *Structure) ridingBox(rideHeight float32) cube.BBox {
	lo, hi := s.box.Min(), s.box.Max()
	return cube.Box(lo[0], lo[1], lo[2], hi[0], hi[1]+rideHeight, hi[2])
}
