package navigation

import (
	"errors"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"

	"leviathan.ai/internal/sim/world"
)

var ErrNoPath = errors.New("no path")

// Pathfinder is the external path service. Implementations return waypoints
// from (exclusive) toward to (inclusive).
type Pathfinder interface {
	FindPath(from, to mgl32.Vec3) ([]mgl32.Vec3, error)
}

type cell struct {
	X int
	Z int
}

var cellDirs = [4]cell{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

// GridPathfinder searches sea-level water cells breadth-first inside the
// rectangle spanned by the endpoints, grown by Margin on every side.
// Neighbor order is fixed so the result is deterministic.
type GridPathfinder struct {
	World    world.Query
	SeaLevel int
	Margin   int // cells added around the endpoint rectangle
	Stride   int // emit one waypoint every Stride cells
	MaxNodes int // visited-cell budget
}

func (p GridPathfinder) passable(c cell) bool {
	return p.World.IsWater(cube.Pos{c.X, p.SeaLevel, c.Z})
}

func (p GridPathfinder) withDefaults() GridPathfinder {
	if p.Margin <= 0 {
		p.Margin = 16
	}
	if p.Stride <= 0 {
		p.Stride = 8
	}
	if p.MaxNodes <= 0 {
		p.MaxNodes = 1 << 15
	}
	return p
}

func (p GridPathfinder) FindPath(from, to mgl32.Vec3) ([]mgl32.Vec3, error) {
	p = p.withDefaults()
	fp, tp := cube.PosFromVec3(from), cube.PosFromVec3(to)
	start := cell{X: fp.X(), Z: fp.Z()}
	target := cell{X: tp.X(), Z: tp.Z()}
	if !p.passable(target) {
		return nil, ErrNoPath
	}
	if start == target {
		return []mgl32.Vec3{to}, nil
	}

	minX, maxX := min(start.X, target.X)-p.Margin, max(start.X, target.X)+p.Margin
	minZ, maxZ := min(start.Z, target.Z)-p.Margin, max(start.Z, target.Z)+p.Margin
	inBounds := func(c cell) bool {
		return c.X >= minX && c.X <= maxX && c.Z >= minZ && c.Z <= maxZ
	}

	parent := make(map[cell]cell, 1024)
	parent[start] = start
	queue := []cell{start}
	found := false
	for head := 0; head < len(queue) && !found; head++ {
		cur := queue[head]
		for _, d := range cellDirs {
			np := cell{X: cur.X + d.X, Z: cur.Z + d.Z}
			if _, seen := parent[np]; seen || !inBounds(np) || !p.passable(np) {
				continue
			}
			parent[np] = cur
			if np == target {
				found = true
				break
			}
			if len(parent) >= p.MaxNodes {
				return nil, ErrNoPath
			}
			queue = append(queue, np)
		}
	}
	if !found {
		return nil, ErrNoPath
	}

	var cells []cell
	for c := target; c != start; c = parent[c] {
		cells = append(cells, c)
	}
	// cells runs target -> start; walk it backwards.
	out := make([]mgl32.Vec3, 0, len(cells)/p.Stride+1)
	for i, steps := len(cells)-1, 1; i > 0; i, steps = i-1, steps+1 {
		if steps%p.Stride == 0 {
			c := cells[i]
			out = append(out, mgl32.Vec3{float32(c.X) + 0.5, from[1], float32(c.Z) + 0.5})
		}
	}
	out = append(out, to)
	return out, nil
}
