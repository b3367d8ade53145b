package world

import (
	"errors"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
)

// Block is a palette index. Index 0 is always AIR.
type Block uint16

const Air Block = 0

var (
	ErrChunkNotLoaded = errors.New("chunk not loaded")
	ErrBlocked        = errors.New("position blocked")
	ErrOutOfBounds    = errors.New("position out of bounds")
	ErrDeadEntity     = errors.New("entity not alive")
)

// EntityRef is a generation-checked handle into the entity arena. A handle
// whose generation no longer matches its slot refers to a despawned entity.
type EntityRef struct {
	Index uint32 `json:"index"`
	Gen   uint32 `json:"gen"`
}

// Query is the block/entity lookup surface the simulation core consumes.
type Query interface {
	Block(pos cube.Pos) Block
	SetBlock(pos cube.Pos, b Block) error
	EntitiesInVolume(box cube.BBox, pred func(EntityRef) bool) []EntityRef
	IsWater(pos cube.Pos) bool
}

// Entities moves and inspects entities by handle.
type Entities interface {
	Position(ref EntityRef) (mgl32.Vec3, bool)
	Teleport(ref EntityRef, pos mgl32.Vec3) error
	Alive(ref EntityRef) bool
}

// Access is the full world surface required by the island engine.
type Access interface {
	Query
	Entities
}

// Ambient is implemented by worlds whose "empty" cell depends on position
// (water below sea level, air above).
type Ambient interface {
	EmptyAt(pos cube.Pos) Block
}

// EmptyAt returns the block a cleared cell should hold in q.
func EmptyAt(q Query, pos cube.Pos) Block {
	if a, ok := q.(Ambient); ok {
		return a.EmptyAt(pos)
	}
	return Air
}

// IsEmpty reports whether b counts as empty space at pos.
func IsEmpty(q Query, pos cube.Pos, b Block) bool {
	return b == Air || b == EmptyAt(q, pos)
}
