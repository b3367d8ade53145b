package herd

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// SpawnRequest asks the herd loop to spawn at the next tick boundary. Resp,
// if set, receives the outcome once the tick has applied it.
type SpawnRequest struct {
	Input SpawnInput
	Resp  chan SpawnRecord
}

// Run drives the herd at TickRateHz until ctx is done or Stop is called.
// Requests arriving between ticks are applied together at the next tick
// boundary in arrival order per kind.
func (h *Herd) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(h.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer h.closeObservers()

	var pending Inputs
	var pendingResp []chan SpawnRecord

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stop:
			return nil
		case d := <-h.damage:
			pending.Damage = append(pending.Damage, d)
		case b := <-h.board:
			pending.Boards = append(pending.Boards, b)
		case req := <-h.spawn:
			pending.Spawns = append(pending.Spawns, req.Input)
			pendingResp = append(pendingResp, req.Resp)
		case r := <-h.remove:
			pending.Despawns = append(pending.Despawns, r)
		case req := <-h.observerJoin:
			h.handleObserverJoin(req)
		case req := <-h.observerSub:
			h.handleObserverSubscribe(req)
		case id := <-h.observerLeave:
			h.handleObserverLeave(id)
		case <-ticker.C:
			le := h.step(pending)
			for i, resp := range pendingResp {
				if resp == nil || i >= len(le.Spawned) {
					continue
				}
				select {
				case resp <- le.Spawned[i]:
				default:
				}
			}
			h.stepObservers(le)
			pending = Inputs{}
			pendingResp = pendingResp[:0]
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (h *Herd) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		close(h.stop)
	}
}

// RequestDamage queues a damage response. It reports false when the queue is
// full.
func (h *Herd) RequestDamage(id string, attacker *mgl32.Vec3) bool {
	in := DamageInput{ID: id}
	if attacker != nil {
		a := [3]float32(*attacker)
		in.Attacker = &a
	}
	select {
	case h.damage <- in:
		return true
	default:
		return false
	}
}

// RequestSpawn queues a spawn. resp must be buffered or drained promptly.
func (h *Herd) RequestSpawn(in SpawnInput, resp chan SpawnRecord) bool {
	select {
	case h.spawn <- SpawnRequest{Input: in, Resp: resp}:
		return true
	default:
		return false
	}
}

// RequestBoard queues a passenger for id's island.
func (h *Herd) RequestBoard(id, kind string) bool {
	select {
	case h.board <- BoardInput{ID: id, Kind: kind}:
		return true
	default:
		return false
	}
}

// RequestRemoval queues a despawn or kill.
func (h *Herd) RequestRemoval(id, cause string) bool {
	select {
	case h.remove <- RemovalInput{ID: id, Cause: cause}:
		return true
	default:
		return false
	}
}

func (h *Herd) ObserverJoin() chan<- ObserverJoinRequest           { return h.observerJoin }
func (h *Herd) ObserverSubscribe() chan<- ObserverSubscribeRequest { return h.observerSub }
func (h *Herd) ObserverLeave() chan<- string                       { return h.observerLeave }
