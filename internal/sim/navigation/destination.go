package navigation

import (
	"github.com/chewxy/math32"
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"

	"leviathan.ai/internal/sim/world"
)

// WaterDepth counts contiguous water cells downward from seaLevel at column
// (x,z), stopping at depthCap.
func WaterDepth(q world.Query, x, z, seaLevel, depthCap int) int {
	n := 0
	for y := seaLevel; y >= 0 && n < depthCap; y-- {
		if !q.IsWater(cube.Pos{x, y, z}) {
			break
		}
		n++
	}
	return n
}

func (c *Controller) depthAt(p mgl32.Vec3) int {
	cell := cube.PosFromVec3(p)
	return WaterDepth(c.world, cell.X(), cell.Z(), c.cfg.SeaLevel, c.cfg.DepthCap)
}

// compassDir returns the i-th of n evenly spaced horizontal unit vectors,
// starting at +X and turning toward +Z.
func compassDir(i, n int) mgl32.Vec3 {
	a := 2 * math32.Pi * float32(i) / float32(n)
	return mgl32.Vec3{math32.Cos(a), 0, math32.Sin(a)}
}

type candidate struct {
	dir   mgl32.Vec3
	dest  mgl32.Vec3
	depth int
}

func (c *Controller) sample(pos mgl32.Vec3) []candidate {
	out := make([]candidate, 0, c.cfg.DestinationSamples)
	for i := 0; i < c.cfg.DestinationSamples; i++ {
		dir := compassDir(i, c.cfg.DestinationSamples)
		dest := pos.Add(dir.Mul(c.cfg.DestinationDistance))
		dest[1] = pos[1]
		out = append(out, candidate{dir: dir, dest: dest, depth: c.depthAt(dest)})
	}
	return out
}

// SelectDestination picks the deepest sampled direction (first sampled wins
// ties). ok is false when no direction reaches MinWaterDepth; the returned
// destination then points away from Home.
func (c *Controller) SelectDestination(pos mgl32.Vec3) (dest mgl32.Vec3, ok bool) {
	return c.selectDeepest(pos, nil)
}

// selectDeepest is SelectDestination with an optional exclusion filter.
func (c *Controller) selectDeepest(pos mgl32.Vec3, skip func(candidate) bool) (mgl32.Vec3, bool) {
	best := -1
	var bestDest mgl32.Vec3
	for _, cand := range c.sample(pos) {
		if skip != nil && skip(cand) {
			continue
		}
		if cand.depth < c.cfg.MinWaterDepth {
			continue
		}
		if cand.depth > best {
			best = cand.depth
			bestDest = cand.dest
		}
	}
	if best >= 0 {
		return bestDest, true
	}
	return c.awayFrom(pos, c.cfg.Home), false
}

// alternativeDestination looks for a qualified destination that is not near
// the current one.
func (c *Controller) alternativeDestination(pos, current mgl32.Vec3) (mgl32.Vec3, bool) {
	minSep := c.cfg.DestinationDistance / 2
	return c.selectDeepest(pos, func(cand candidate) bool {
		return horizontalDist(cand.dest, current) < minSep
	})
}

// EscapeDestination scores every sampled direction by water depth plus a bias
// for heading away from attacker. Without a qualified direction it flees
// directly away from the attacker, or from the world origin when no attacker
// is known.
func (c *Controller) EscapeDestination(pos mgl32.Vec3, attacker *mgl32.Vec3) mgl32.Vec3 {
	origin := mgl32.Vec3{}
	if attacker != nil {
		origin = *attacker
	}
	away := horizontalDir(pos.Sub(origin))

	bestScore := float32(-math32.MaxFloat32)
	found := false
	var bestDest mgl32.Vec3
	for _, cand := range c.sample(pos) {
		if cand.depth < c.cfg.MinWaterDepth {
			continue
		}
		score := float32(cand.depth)
		if away != (mgl32.Vec3{}) {
			score += c.cfg.EscapeBias * float32(c.cfg.DepthCap) * cand.dir.Dot(away)
		}
		if score > bestScore {
			bestScore = score
			bestDest = cand.dest
			found = true
		}
	}
	if found {
		return bestDest
	}
	return c.awayFrom(pos, origin)
}

// awayFrom is the deterministic fallback: DestinationDistance directly away
// from ref, or along +X when pos coincides with ref.
func (c *Controller) awayFrom(pos, ref mgl32.Vec3) mgl32.Vec3 {
	dir := horizontalDir(pos.Sub(ref))
	if dir == (mgl32.Vec3{}) {
		dir = mgl32.Vec3{1, 0, 0}
	}
	dest := pos.Add(dir.Mul(c.cfg.DestinationDistance))
	dest[1] = pos[1]
	return dest
}

func horizontalDir(v mgl32.Vec3) mgl32.Vec3 {
	v[1] = 0
	l := v.Len()
	if l < 1e-6 {
		return mgl32.Vec3{}
	}
	return v.Mul(1 / l)
}

func horizontalDist(a, b mgl32.Vec3) float32 {
	d := a.Sub(b)
	d[1] = 0
	return d.Len()
}
