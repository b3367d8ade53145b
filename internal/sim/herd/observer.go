package herd

import (
	"encoding/json"
	"strings"

	"leviathan.ai/internal/observerproto"
)

// ObserverJoinRequest registers a read-only observer session that receives
// one TICK frame per tick on TickOut. The herd loop closes TickOut when the
// session leaves or the loop exits.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	FocusID    string
	Footprints bool
}

// ObserverSubscribeRequest updates an existing observer session.
type ObserverSubscribeRequest struct {
	SessionID string

	FocusID    string
	Footprints bool
}

type observerClient struct {
	id      string
	tickOut chan []byte

	focusID    string
	footprints bool
}

func (h *Herd) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := h.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	h.observers[req.SessionID] = &observerClient{
		id:         req.SessionID,
		tickOut:    req.TickOut,
		focusID:    strings.TrimSpace(req.FocusID),
		footprints: req.Footprints,
	}
	h.log.Debug().Str("session", req.SessionID).Msg("observer joined")
}

func (h *Herd) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := h.observers[req.SessionID]
	if c == nil {
		return
	}
	c.focusID = strings.TrimSpace(req.FocusID)
	c.footprints = req.Footprints
}

func (h *Herd) handleObserverLeave(sessionID string) {
	c := h.observers[sessionID]
	if c == nil {
		return
	}
	delete(h.observers, sessionID)
	close(c.tickOut)
	h.log.Debug().Str("session", sessionID).Msg("observer left")
}

func (h *Herd) closeObservers() {
	for id, c := range h.observers {
		close(c.tickOut)
		delete(h.observers, id)
	}
}

// Snapshot captures every creature for observers, in tick order.
func (h *Herd) Snapshot(footprints bool) []observerproto.CreatureState {
	out := make([]observerproto.CreatureState, 0, h.creatures.Len())
	for el := h.creatures.Front(); el != nil; el = el.Next() {
		out = append(out, h.creatureState(el.Value, footprints))
	}
	return out
}

func (h *Herd) creatureState(e *entry, footprints bool) observerproto.CreatureState {
	c := e.c
	cs := observerproto.CreatureState{
		ID:         c.ID,
		State:      c.State.String(),
		StateTimer: c.StateTimer,
		Pos:        c.Pos,
		Vel:        c.Vel,
		Yaw:        c.Yaw,
		Escaping:   e.machine.Navigation().Escaping(),
	}
	if c.HasTarget {
		t := [3]float32(c.Target)
		cs.Target = &t
	}
	s := &c.Structure
	if !s.Has() {
		return cs
	}
	box := s.Box()
	is := &observerproto.IslandState{
		Template:   s.TemplateID(),
		SizeClass:  s.SizeClass(),
		Category:   s.Category(),
		Blocks:     s.BlockCount(),
		Missing:    s.MissingCount(),
		Passengers: len(s.Passengers()),
		Min:        box.Min(),
		Max:        box.Max(),
	}
	if footprints {
		for _, p := range h.engine.Footprint(s) {
			is.Footprint = append(is.Footprint, [3]int(p))
		}
	}
	cs.Island = is
	return cs
}

// LatestFrame returns the most recent TICK frame, or nil before the first
// tick. Safe from any goroutine.
func (h *Herd) LatestFrame() *observerproto.TickMsg { return h.latest.Load() }

func (h *Herd) frame(le TickLogEntry, creatures []observerproto.CreatureState) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            le.Tick,
		Digest:          le.Digest,
		Creatures:       creatures,
	}
	for _, s := range le.Spawned {
		msg.Spawned = append(msg.Spawned, observerproto.SpawnInfo{ID: s.ID, Pos: s.Pos, Island: s.Island, Error: s.Error})
	}
	for _, r := range le.Removed {
		msg.Removed = append(msg.Removed, observerproto.RemovalInfo{ID: r.ID, Cause: r.Cause})
	}
	for _, t := range le.Transitions {
		msg.Transitions = append(msg.Transitions, observerproto.TransitionInfo{
			ID:    t.ID,
			From:  t.From.String(),
			To:    t.To.String(),
			Event: t.Event.String(),
		})
	}
	return msg
}

func (h *Herd) stepObservers(le TickLogEntry) {
	base := h.frame(le, h.Snapshot(false))
	h.latest.Store(&base)
	if len(h.observers) == 0 {
		return
	}

	var plain, withCells []byte
	for _, c := range h.observers {
		if c.focusID != "" {
			msg := base
			msg.Creatures = nil
			if e, ok := h.creatures.Get(c.focusID); ok {
				msg.Creatures = []observerproto.CreatureState{h.creatureState(e, c.footprints)}
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			sendLatest(c.tickOut, b)
			continue
		}
		if c.footprints {
			if withCells == nil {
				b, err := json.Marshal(h.frame(le, h.Snapshot(true)))
				if err != nil {
					continue
				}
				withCells = b
			}
			sendLatest(c.tickOut, withCells)
			continue
		}
		if plain == nil {
			b, err := json.Marshal(base)
			if err != nil {
				continue
			}
			plain = b
		}
		sendLatest(c.tickOut, plain)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
