package world

import "leviathan.ai/internal/sim/world/logic/mathx"

// Generator produces a seeded ocean: stone floor, sand seabed, water up to
// SeaLevel, and occasional sandbank shoals that break the surface.
type Generator struct {
	Seed      int64
	BoundaryR int // blocks

	SeaLevel      int
	MaxDepth      int // deepest seabed below SeaLevel
	MinDepth      int // shallowest non-shoal seabed below SeaLevel
	BasinSize     int // noise lattice cell size for seabed depth
	ShoalPermille int
	ShoalSize     int

	// Palette ids for core blocks.
	Water Block
	Sand  Block
	Stone Block
}

// SeabedY returns the top seabed block y at column (x,z).
func (g Generator) SeabedY(x, z int) int {
	if g.ShoalPermille > 0 && g.ShoalSize > 0 {
		n := mathx.ValueNoise2(g.Seed+77, x, z, g.ShoalSize)
		if n*1000 < float64(g.ShoalPermille) {
			// Shoal: sand up to two blocks above the waterline at its core.
			rise := int((1 - n*1000/float64(g.ShoalPermille)) * float64(g.MinDepth+2))
			return g.SeaLevel - g.MinDepth + rise
		}
	}
	n := mathx.ValueNoise2(g.Seed, x, z, g.BasinSize)
	depth := g.MinDepth + int(n*float64(g.MaxDepth-g.MinDepth))
	return g.SeaLevel - depth
}

func (g Generator) fill(ch *Chunk) {
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			wx := ch.CX*ChunkSize + x
			wz := ch.CZ*ChunkSize + z
			bed := mathx.ClampInt(g.SeabedY(wx, wz), 0, ch.Height-1)
			for y := 0; y < ch.Height; y++ {
				var b Block
				switch {
				case y < bed:
					b = g.Stone
				case y == bed:
					b = g.Sand
				case y <= g.SeaLevel:
					b = g.Water
				default:
					b = Air
				}
				if b != Air {
					ch.Blocks[ch.index(x, y, z)] = b
				}
			}
		}
	}
}
