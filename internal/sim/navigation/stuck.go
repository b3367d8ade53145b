package navigation

import "github.com/go-gl/mathgl/mgl32"

// stuckTracker accumulates consecutive check windows in which the creature
// moved less than StuckEpsilon.
type stuckTracker struct {
	checkPos   mgl32.Vec3
	sinceCheck int
	stuckTicks int
	retried    bool
}

func (s *stuckTracker) reset(pos mgl32.Vec3) {
	*s = stuckTracker{checkPos: pos}
}

// observe advances one tick and reports whether the stuck threshold is reached.
func (s *stuckTracker) observe(pos mgl32.Vec3, cfg *Config) bool {
	s.sinceCheck++
	if s.sinceCheck < cfg.StuckCheckTicks {
		return false
	}
	if horizontalDist(pos, s.checkPos) < cfg.StuckEpsilon {
		s.stuckTicks += s.sinceCheck
	} else {
		s.stuckTicks = 0
		s.retried = false
	}
	s.checkPos = pos
	s.sinceCheck = 0
	return s.stuckTicks >= cfg.StuckThresholdTicks
}
