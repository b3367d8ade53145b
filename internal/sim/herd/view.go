package herd

import (
	"github.com/ethaniccc/float32-cube/cube"

	"leviathan.ai/internal/sim/island"
	"leviathan.ai/internal/sim/world"
)

// islandMask is the world as one creature's navigation sees it: cells held
// by its own structure read as the ambient block (water at or below sea
// level) so the creature never steers around the island it carries.
type islandMask struct {
	World
	own *island.Structure
}

func (m islandMask) Block(p cube.Pos) world.Block {
	if m.own.Occupies(p) {
		return m.EmptyAt(p)
	}
	return m.World.Block(p)
}

func (m islandMask) IsWater(p cube.Pos) bool {
	if m.own.Occupies(p) {
		return p.Y() <= m.SeaLevel()
	}
	return m.World.IsWater(p)
}

func (m islandMask) EmptyAt(p cube.Pos) world.Block { return world.EmptyAt(m.World, p) }
