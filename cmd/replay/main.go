package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"leviathan.ai/internal/logging"
	persistlog "leviathan.ai/internal/persistence/log"
	"leviathan.ai/internal/sim/catalogs"
	"leviathan.ai/internal/sim/herd"
	"leviathan.ai/internal/sim/tuning"
	"leviathan.ai/internal/sim/world"
)

var errRestart = errors.New("journal restarts")

func main() {
	var (
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "seed the recorded server ran with, if it overrode tuning")
		toTick     = flag.Uint64("to_tick", 0, "stop after this tick (inclusive, optional)")
		logLevel   = flag.String("log_level", "WARN", "log level for the replayed herd")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	logger, closeLog, err := logging.New(logging.Options{Level: *logLevel, Name: "replay"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer closeLog()

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if errors.Is(err, os.ErrNotExist) {
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	settings := herd.FromTuning(tune)
	w, err := world.New(settings.World, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	h, err := herd.New(settings, w, cats, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "herd:", err)
		os.Exit(1)
	}

	files, err := persistlog.ListTickFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events-*.jsonl.zst in", *eventsDir)
		os.Exit(1)
	}

	var verified uint64
	stopped := false
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(e herd.TickLogEntry) error {
			if e.Tick < h.CurrentTick() {
				return errRestart
			}
			if e.Tick != h.CurrentTick() {
				return fmt.Errorf("%s: gap: want tick %d, got %d", filepath.Base(path), h.CurrentTick(), e.Tick)
			}
			tick, digest := h.StepOnce(e.Inputs)
			if digest != e.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got %s want %s", tick, digest, e.Digest)
			}
			verified++
			if *toTick != 0 && tick >= *toTick {
				return persistlog.ErrStop
			}
			return nil
		})
		if errors.Is(err, errRestart) {
			fmt.Printf("journal restarts at tick 0 in %s; stopping\n", filepath.Base(path))
			stopped = true
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if *toTick != 0 && h.CurrentTick() > *toTick {
			stopped = true
			break
		}
	}

	if verified == 0 {
		fmt.Fprintln(os.Stderr, "no ticks verified")
		os.Exit(1)
	}
	fmt.Printf("OK: verified %d ticks (0..%d) creatures=%d digest=%s stopped_early=%v\n",
		verified, h.CurrentTick()-1, h.Len(), h.Digest(), stopped)
}
