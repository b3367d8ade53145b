package log

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"leviathan.ai/internal/sim/creature"
	"leviathan.ai/internal/sim/herd"
	"leviathan.ai/internal/sim/island"
)

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := OpenJournal(dir, 0)

	attacker := [3]float32{4, 62, -4}
	entries := []herd.TickLogEntry{
		{
			Tick: 0,
			Inputs: herd.Inputs{
				Spawns: []herd.SpawnInput{{Pos: [3]float32{0, 61, 0}, Category: "OCEAN"}},
			},
			Spawned: []herd.SpawnRecord{{ID: "L1", Pos: [3]float32{0, 61, 0}, Category: "OCEAN", Island: "sandbar"}},
			Digest:  "00000000000000aa",
		},
		{
			Tick:   1,
			Inputs: herd.Inputs{Damage: []herd.DamageInput{{ID: "L1", Attacker: &attacker}}},
			Transitions: []herd.TransitionRecord{
				{ID: "L1", From: creature.Idle, To: creature.Damaged, Event: creature.EventDamaged},
			},
			Relocations: []herd.RelocationRecord{
				{ID: "L1", Anchor: [3]float32{0.2, 61, 0}, Stats: island.RelocationStats{Moved: 12, Passengers: 1}},
			},
			Digest: "00000000000000bb",
		},
	}
	for _, e := range entries {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListTickFiles(dir)
	if err != nil {
		t.Fatalf("ListTickFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}

	var got []herd.TickLogEntry
	if err := ReadTicks(files[0], func(e herd.TickLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d", len(got))
	}
	if got[0].Spawned[0].Island != "sandbar" || got[1].Digest != "00000000000000bb" {
		t.Fatalf("entries = %+v", got)
	}
	if tr := got[1].Transitions[0]; tr.From != creature.Idle || tr.To != creature.Damaged || tr.Event != creature.EventDamaged {
		t.Fatalf("transition = %+v", tr)
	}
	if a := got[1].Inputs.Damage[0].Attacker; a == nil || *a != attacker {
		t.Fatalf("attacker = %v", a)
	}
	if got[1].Relocations[0].Stats.Moved != 12 {
		t.Fatalf("relocation = %+v", got[1].Relocations[0])
	}

	n := 0
	if err := ReadTicks(files[0], func(herd.TickLogEntry) error {
		n++
		return ErrStop
	}); err != nil || n != 1 {
		t.Fatalf("early stop: n=%d err=%v", n, err)
	}
}

func readAll(t *testing.T, dir string) []herd.TickLogEntry {
	t.Helper()
	files, err := ListTickFiles(dir)
	if err != nil {
		t.Fatalf("ListTickFiles: %v", err)
	}
	var out []herd.TickLogEntry
	for _, f := range files {
		if err := ReadTicks(f, func(e herd.TickLogEntry) error {
			out = append(out, e)
			return nil
		}); err != nil {
			t.Fatalf("ReadTicks %s: %v", filepath.Base(f), err)
		}
	}
	return out
}

func TestJournalReadableWhileOpen(t *testing.T) {
	dir := t.TempDir()
	j := OpenJournal(dir, 2)
	defer j.Close()

	for tick := uint64(0); tick < 5; tick++ {
		if err := j.WriteTick(herd.TickLogEntry{Tick: tick, Digest: "d"}); err != nil {
			t.Fatalf("WriteTick %d: %v", tick, err)
		}
		got := readAll(t, dir)
		if len(got) != int(tick)+1 {
			t.Fatalf("after tick %d read %d entries", tick, len(got))
		}
		for i, e := range got {
			if e.Tick != uint64(i) {
				t.Fatalf("entry %d has tick %d", i, e.Tick)
			}
		}
	}

	files, _ := ListTickFiles(dir)
	if len(files) != 3 {
		t.Fatalf("segments = %v", files)
	}
	if !strings.HasSuffix(files[2], "-000000000004.jsonl.zst") {
		t.Fatalf("last segment = %s", filepath.Base(files[2]))
	}
}

func TestJournalRestartSortsAfterPreviousRun(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	for run := 0; run < 2; run++ {
		j := OpenJournal(dir, 0)
		j.now = func() time.Time { return start.Add(time.Duration(run) * time.Minute) }
		for tick := uint64(0); tick < 3; tick++ {
			if err := j.WriteTick(herd.TickLogEntry{Tick: tick, Digest: string(rune('a' + run))}); err != nil {
				t.Fatalf("WriteTick: %v", err)
			}
		}
		if err := j.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	got := readAll(t, dir)
	if len(got) != 6 {
		t.Fatalf("entries = %d", len(got))
	}
	if got[0].Digest != "a" || got[3].Digest != "b" || got[3].Tick != 0 {
		t.Fatalf("runs out of order: %+v", got)
	}
}
