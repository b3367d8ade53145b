package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"leviathan.ai/internal/sim/herd"
)

// DefaultRotateTicks is one hour at 20 Hz.
const DefaultRotateTicks = 72000

// Journal writes the tick log as zstd-compressed JSON lines. A new segment
// starts every RotateTicks ticks and on every process start. Each entry is
// flushed as a complete zstd block, so readers see it while the segment is
// still open and a crash loses at most the entry being written.
//
// Segment names are events-<run start UTC>-<first tick>.jsonl.zst; sorting
// them by name gives write order across restarts.
//
// Journal implements herd.TickSink.
type Journal struct {
	dir         string
	rotateTicks uint64
	now         func() time.Time

	mu       sync.Mutex
	run      string
	segStart uint64
	f        *os.File
	enc      *zstd.Encoder
}

func OpenJournal(dir string, rotateTicks uint64) *Journal {
	if rotateTicks == 0 {
		rotateTicks = DefaultRotateTicks
	}
	return &Journal{dir: dir, rotateTicks: rotateTicks, now: time.Now}
}

func (j *Journal) WriteTick(e herd.TickLogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.enc == nil || e.Tick < j.segStart || e.Tick-j.segStart >= j.rotateTicks {
		if err := j.rotateLocked(e.Tick); err != nil {
			return err
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("tick %d: %w", e.Tick, err)
	}
	b = append(b, '\n')
	if _, err := j.enc.Write(b); err != nil {
		return err
	}
	return j.enc.Flush()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *Journal) rotateLocked(tick uint64) error {
	if err := j.closeLocked(); err != nil {
		return err
	}
	if j.run == "" {
		j.run = j.now().UTC().Format("20060102T150405Z")
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(j.dir, fmt.Sprintf("events-%s-%012d.jsonl.zst", j.run, tick))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f, j.enc, j.segStart = f, enc, tick
	return nil
}

func (j *Journal) closeLocked() error {
	var err error
	if j.enc != nil {
		err = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		if cerr := j.f.Close(); err == nil {
			err = cerr
		}
		j.f = nil
	}
	return err
}
