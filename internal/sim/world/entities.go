package world

import (
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
)

type entitySlot struct {
	gen   uint32
	alive bool
	kind  string
	pos   mgl32.Vec3
}

// EntityArena stores entities in reusable slots. Despawning bumps the slot's
// generation so stale handles stop resolving.
type EntityArena struct {
	slots []entitySlot
	free  []uint32
}

func NewEntityArena(capacity int) *EntityArena {
	return &EntityArena{slots: make([]entitySlot, 0, capacity)}
}

func (a *EntityArena) Spawn(kind string, pos mgl32.Vec3) EntityRef {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.alive = true
		s.kind = kind
		s.pos = pos
		return EntityRef{Index: idx, Gen: s.gen}
	}
	a.slots = append(a.slots, entitySlot{gen: 1, alive: true, kind: kind, pos: pos})
	return EntityRef{Index: uint32(len(a.slots) - 1), Gen: 1}
}

func (a *EntityArena) slot(ref EntityRef) *entitySlot {
	if int(ref.Index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[ref.Index]
	if !s.alive || s.gen != ref.Gen {
		return nil
	}
	return s
}

func (a *EntityArena) Despawn(ref EntityRef) bool {
	s := a.slot(ref)
	if s == nil {
		return false
	}
	s.alive = false
	s.gen++
	s.kind = ""
	a.free = append(a.free, ref.Index)
	return true
}

func (a *EntityArena) Alive(ref EntityRef) bool { return a.slot(ref) != nil }

func (a *EntityArena) Kind(ref EntityRef) string {
	if s := a.slot(ref); s != nil {
		return s.kind
	}
	return ""
}

func (a *EntityArena) Position(ref EntityRef) (mgl32.Vec3, bool) {
	s := a.slot(ref)
	if s == nil {
		return mgl32.Vec3{}, false
	}
	return s.pos, true
}

func (a *EntityArena) Teleport(ref EntityRef, pos mgl32.Vec3) error {
	s := a.slot(ref)
	if s == nil {
		return ErrDeadEntity
	}
	s.pos = pos
	return nil
}

// InVolume returns live entities whose position lies inside box (inclusive),
// in slot order.
func (a *EntityArena) InVolume(box cube.BBox, pred func(EntityRef) bool) []EntityRef {
	var out []EntityRef
	for i := range a.slots {
		s := &a.slots[i]
		if !s.alive || !BoxContains(box, s.pos) {
			continue
		}
		ref := EntityRef{Index: uint32(i), Gen: s.gen}
		if pred != nil && !pred(ref) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func (a *EntityArena) Count() int { return len(a.slots) - len(a.free) }

// BoxContains is an inclusive point-in-box test.
func BoxContains(box cube.BBox, p mgl32.Vec3) bool {
	lo, hi := box.Min(), box.Max()
	return p[0] >= lo[0] && p[0] <= hi[0] &&
		p[1] >= lo[1] && p[1] <= hi[1] &&
		p[2] >= lo[2] && p[2] <= hi[2]
}
