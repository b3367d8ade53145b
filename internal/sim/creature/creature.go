package creature

import (
	"github.com/go-gl/mathgl/mgl32"

	"leviathan.ai/internal/sim/island"
)

// Creature is the behavioural and kinematic state of one leviathan. It owns
// its island by value; the island only learns the creature's position when it
// is relocated.
type Creature struct {
	ID string

	Pos mgl32.Vec3
	Vel mgl32.Vec3
	Yaw float32

	State         State
	PrevState     State
	StateTimer    int
	IdleRemaining int

	Target    mgl32.Vec3
	HasTarget bool

	LastAttacker mgl32.Vec3
	HasAttacker  bool

	pendingDamage bool

	Structure island.Structure
}

func (c *Creature) PendingDamage() bool { return c.pendingDamage }

// Attacker returns the last attacker position, or nil if none is known.
func (c *Creature) Attacker() *mgl32.Vec3 {
	if !c.HasAttacker {
		return nil
	}
	a := c.LastAttacker
	return &a
}
