package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"leviathan.ai/internal/observerproto"
	"leviathan.ai/internal/sim/herd"
	"leviathan.ai/internal/sim/world"
)

// herdControl is the part of *herd.Herd the admin endpoints drive. Every
// method is safe to call off the herd goroutine.
type herdControl interface {
	CurrentTick() uint64
	LatestFrame() *observerproto.TickMsg
	RequestDamage(id string, attacker *mgl32.Vec3) bool
	RequestSpawn(in herd.SpawnInput, resp chan herd.SpawnRecord) bool
	RequestRemoval(id, cause string) bool
	RequestBoard(id, kind string) bool
}

type admin struct {
	herd herdControl
	log  zerolog.Logger
	// How long spawn waits for the herd to apply the request.
	spawnWait time.Duration
}

func (a *admin) allow(rw http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// POST /admin/v1/damage?id=L1[&x=&y=&z=]
func (a *admin) damage(rw http.ResponseWriter, r *http.Request) {
	if !a.allow(rw, r, http.MethodPost) {
		return
	}
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("id"))
	if id == "" {
		http.Error(rw, "missing id", http.StatusBadRequest)
		return
	}
	var attacker *mgl32.Vec3
	if q.Has("x") || q.Has("y") || q.Has("z") {
		v, err := parseVec3(q.Get("x"), q.Get("y"), q.Get("z"))
		if err != nil {
			http.Error(rw, "bad attacker position", http.StatusBadRequest)
			return
		}
		attacker = &v
	}
	if !a.herd.RequestDamage(id, attacker) {
		http.Error(rw, "herd busy", http.StatusServiceUnavailable)
		return
	}
	a.log.Info().Str("creature", id).Bool("attacker", attacker != nil).Msg("damage queued")
	writeJSON(rw, http.StatusAccepted, map[string]any{"queued": true, "tick": a.herd.CurrentTick()})
}

type spawnBody struct {
	Pos      [3]float32 `json:"pos"`
	Category string     `json:"category,omitempty"`
}

// POST /admin/v1/spawn {"pos":[x,y,z],"category":"OCEAN"}
func (a *admin) spawn(rw http.ResponseWriter, r *http.Request) {
	if !a.allow(rw, r, http.MethodPost) {
		return
	}
	var body spawnBody
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&body); err != nil {
		http.Error(rw, "bad json", http.StatusBadRequest)
		return
	}
	resp := make(chan herd.SpawnRecord, 1)
	if !a.herd.RequestSpawn(herd.SpawnInput{Pos: body.Pos, Category: strings.ToUpper(strings.TrimSpace(body.Category))}, resp) {
		http.Error(rw, "herd busy", http.StatusServiceUnavailable)
		return
	}
	wait := a.spawnWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	select {
	case rec := <-resp:
		status := http.StatusCreated
		if rec.ID == "" {
			status = http.StatusConflict
		}
		writeJSON(rw, status, rec)
	case <-time.After(wait):
		http.Error(rw, "spawn timed out", http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}

// POST /admin/v1/remove?id=L1[&cause=killed]
func (a *admin) remove(rw http.ResponseWriter, r *http.Request) {
	if !a.allow(rw, r, http.MethodPost) {
		return
	}
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("id"))
	if id == "" {
		http.Error(rw, "missing id", http.StatusBadRequest)
		return
	}
	cause := strings.ToLower(strings.TrimSpace(q.Get("cause")))
	switch cause {
	case "":
		cause = herd.CauseDespawned
	case herd.CauseDespawned, herd.CauseKilled:
	default:
		http.Error(rw, "bad cause", http.StatusBadRequest)
		return
	}
	if !a.herd.RequestRemoval(id, cause) {
		http.Error(rw, "herd busy", http.StatusServiceUnavailable)
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]any{"queued": true, "cause": cause})
}

// POST /admin/v1/board?id=L1[&kind=player]
func (a *admin) board(rw http.ResponseWriter, r *http.Request) {
	if !a.allow(rw, r, http.MethodPost) {
		return
	}
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("id"))
	if id == "" {
		http.Error(rw, "missing id", http.StatusBadRequest)
		return
	}
	kind := strings.ToLower(strings.TrimSpace(q.Get("kind")))
	if kind == "" {
		kind = "player"
	}
	if !a.herd.RequestBoard(id, kind) {
		http.Error(rw, "herd busy", http.StatusServiceUnavailable)
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]any{"queued": true, "kind": kind})
}

// GET /admin/v1/island?x=&y=&z= answers from the latest published frame.
func (a *admin) island(rw http.ResponseWriter, r *http.Request) {
	if !a.allow(rw, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	p, err := parseVec3(q.Get("x"), q.Get("y"), q.Get("z"))
	if err != nil {
		http.Error(rw, "bad position", http.StatusBadRequest)
		return
	}
	out := map[string]any{"island": false}
	if f := a.herd.LatestFrame(); f != nil {
		out["tick"] = f.Tick
		for _, c := range f.Creatures {
			if c.Island == nil {
				continue
			}
			lo, hi := c.Island.Min, c.Island.Max
			if !world.BoxContains(cube.Box(lo[0], lo[1], lo[2], hi[0], hi[1], hi[2]), p) {
				continue
			}
			out["island"] = true
			out["creature"] = c.ID
			out["template"] = c.Island.Template
			break
		}
	}
	writeJSON(rw, http.StatusOK, out)
}

func parseVec3(xs, ys, zs string) (mgl32.Vec3, error) {
	var v mgl32.Vec3
	for i, s := range []string{xs, ys, zs} {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return mgl32.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return v, nil
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
