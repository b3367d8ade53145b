package navigation

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Heading returns the horizontal unit vector for yaw in degrees
// (0 faces +Z, -90 faces +X).
func Heading(yaw float32) mgl32.Vec3 {
	r := mgl32.DegToRad(yaw)
	return mgl32.Vec3{-math32.Sin(r), 0, math32.Cos(r)}
}

// YawOf is the inverse of Heading for a horizontal direction.
func YawOf(dir mgl32.Vec3) float32 {
	return WrapDegrees(mgl32.RadToDeg(math32.Atan2(-dir[0], dir[2])))
}

// WrapDegrees maps d into (-180, 180].
func WrapDegrees(d float32) float32 {
	d = math32.Mod(d, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// TurnToward rotates cur toward target by at most maxStep degrees, taking the
// short way round.
func TurnToward(cur, target, maxStep float32) float32 {
	diff := WrapDegrees(target - cur)
	if diff > maxStep {
		diff = maxStep
	} else if diff < -maxStep {
		diff = -maxStep
	}
	return WrapDegrees(cur + diff)
}

// Brake decays velocity toward rest with the steering mixing ratio.
func (c *Controller) Brake(vel mgl32.Vec3) mgl32.Vec3 {
	vel = vel.Mul(c.cfg.SteerRetain)
	if vel.Len() < 1e-4 {
		return mgl32.Vec3{}
	}
	return vel
}

// steer blends vel toward target at speed and turns yaw toward it.
func (c *Controller) steer(pos, vel mgl32.Vec3, yaw float32, target mgl32.Vec3, speed float32) (mgl32.Vec3, float32) {
	dir := horizontalDir(target.Sub(pos))
	if dir == (mgl32.Vec3{}) {
		return c.Brake(vel), yaw
	}

	if c.depthAt(pos) < c.cfg.MinWaterDepth {
		speed *= c.cfg.ShallowSpeedFactor
	}
	if Heading(yaw).Dot(dir) < c.cfg.HeadingDotThreshold {
		speed *= c.cfg.HeadingPenalty
	}

	retain := c.cfg.SteerRetain
	next := vel.Mul(retain).Add(dir.Mul(speed * (1 - retain)))
	next[1] = 0
	if l := next.Len(); l > speed {
		next = next.Mul(speed / l)
	}
	return next, TurnToward(yaw, YawOf(dir), c.cfg.MaxTurnDegrees)
}
