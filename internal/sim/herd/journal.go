package herd

import (
	"leviathan.ai/internal/sim/creature"
	"leviathan.ai/internal/sim/island"
	"leviathan.ai/internal/sim/world"
)

// TickSink receives one entry per completed tick. Implementations must not
// block the herd loop.
type TickSink interface {
	WriteTick(entry TickLogEntry) error
}

// Inputs are the external requests applied at the start of a tick, in the
// order despawns, spawns, damage, boards. Replaying the same Inputs against the same
// seed reproduces the same digests.
type Inputs struct {
	Despawns []RemovalInput `json:"despawns,omitempty"`
	Spawns   []SpawnInput   `json:"spawns,omitempty"`
	Damage   []DamageInput  `json:"damage,omitempty"`
	Boards   []BoardInput   `json:"boards,omitempty"`
}

func (in Inputs) Empty() bool {
	return len(in.Despawns) == 0 && len(in.Spawns) == 0 && len(in.Damage) == 0 && len(in.Boards) == 0
}

type SpawnInput struct {
	Pos [3]float32 `json:"pos"`
	// Empty means the water category at Pos.
	Category string `json:"category,omitempty"`
}

type DamageInput struct {
	ID       string      `json:"id"`
	Attacker *[3]float32 `json:"attacker,omitempty"`
}

// BoardInput puts a new entity of Kind on top of creature ID's island.
type BoardInput struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type RemovalInput struct {
	ID    string `json:"id"`
	Cause string `json:"cause"`
}

const (
	CauseDespawned = "despawned"
	CauseKilled    = "killed"
)

type TickLogEntry struct {
	Tick        uint64             `json:"tick"`
	Inputs      Inputs             `json:"inputs"`
	Spawned     []SpawnRecord      `json:"spawned,omitempty"`
	Removed     []RemovalRecord    `json:"removed,omitempty"`
	Boarded     []BoardRecord      `json:"boarded,omitempty"`
	Transitions []TransitionRecord `json:"transitions,omitempty"`
	Relocations []RelocationRecord `json:"relocations,omitempty"`
	Digest      string             `json:"digest"`
}

type SpawnRecord struct {
	ID       string     `json:"id"`
	Pos      [3]float32 `json:"pos"`
	Category string     `json:"category"`
	Island   string     `json:"island,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type RemovalRecord struct {
	ID      string `json:"id"`
	Cause   string `json:"cause"`
	Cleared int    `json:"cleared"`
}

type BoardRecord struct {
	ID     string          `json:"id"`
	Kind   string          `json:"kind"`
	Entity world.EntityRef `json:"entity"`
	Error  string          `json:"error,omitempty"`
}

type TransitionRecord struct {
	ID    string         `json:"id"`
	From  creature.State `json:"from"`
	To    creature.State `json:"to"`
	Event creature.Event `json:"event"`
}

type RelocationRecord struct {
	ID     string                 `json:"id"`
	Anchor [3]float32             `json:"anchor"`
	Stats  island.RelocationStats `json:"stats"`
}
