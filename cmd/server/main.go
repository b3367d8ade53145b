package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"leviathan.ai/internal/logging"
	"leviathan.ai/internal/observerproto"
	"leviathan.ai/internal/persistence/indexdb"
	persistlog "leviathan.ai/internal/persistence/log"
	"leviathan.ai/internal/sim/catalogs"
	"leviathan.ai/internal/sim/creature"
	"leviathan.ai/internal/sim/herd"
	"leviathan.ai/internal/sim/tuning"
	"leviathan.ai/internal/sim/world"
	"leviathan.ai/internal/telemetry"
	"leviathan.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "override the tuning seed (0 keeps it)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick index")
		logLevel   = flag.String("log_level", "INFO", "DEBUG, INFO, WARN, ERROR or TRACE")
		logDir     = flag.String("log_dir", "", "also write logs to this directory")
	)
	flag.Parse()

	logger, closeLog, err := logging.New(logging.Options{Level: *logLevel, Dir: *logDir, Name: "server"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer closeLog()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal().Err(err).Str("path", tp).Msg("load tuning")
		}
		logger.Warn().Str("path", tp).Msg("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalogs")
	}

	tel := telemetry.New("leviathan_")
	tel.InstallGlobal()
	defer tel.Shutdown(context.Background())

	settings := herd.FromTuning(tune)
	settings.MeterProvider = tel.MeterProvider()
	w, err := world.New(settings.World, cats)
	if err != nil {
		logger.Fatal().Err(err).Msg("world")
	}
	h, err := herd.New(settings, w, cats, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("herd")
	}

	worldDir := filepath.Join(*dataDir, "worlds", w.Config().ID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("data dir")
	}
	journal := persistlog.OpenJournal(filepath.Join(worldDir, "events"), uint64(h.Config().TickRateHz)*3600)
	defer journal.Close()
	h.AddSink(journal)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "index.db"))
		if err != nil {
			logger.Fatal().Err(err).Msg("open index")
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Warn().Err(err).Msg("index: upsert catalogs")
		}
		h.AddSink(idx)
	}

	// Initial spawns go through the request queue so the first journal entry
	// records them and replay reproduces them.
	for _, in := range h.PlanInitialSpawns() {
		if !h.RequestSpawn(in, nil) {
			logger.Warn().Floats32("pos", in.Pos[:]).Msg("initial spawn queue full")
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	herdDone := make(chan struct{})
	go func() {
		defer close(herdDone)
		if err := h.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("herd stopped")
		}
	}()

	params := observerproto.WorldParams{
		TickRateHz:    h.Config().TickRateHz,
		Height:        w.Config().Height,
		Seed:          w.Config().Seed,
		BoundaryR:     w.Config().BoundaryR,
		SeaLevel:      w.SeaLevel(),
		PopulationCap: h.Config().PopulationCap,
	}
	obsSrv := observer.NewServer(h, w.Config().ID, params, cats.Blocks.Palette, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(h, w.Config().ID, idx, tel, logger))

	if envBool("LEVIATHAN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		a := &admin{herd: h, log: logger.With().Str("component", "admin").Logger()}
		mux.HandleFunc("/admin/v1/damage", a.damage)
		mux.HandleFunc("/admin/v1/spawn", a.spawn)
		mux.HandleFunc("/admin/v1/remove", a.remove)
		mux.HandleFunc("/admin/v1/island", a.island)
		mux.HandleFunc("/admin/v1/board", a.board)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Info().Msg("admin endpoints disabled (LEVIATHAN_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("LEVIATHAN_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().
		Str("addr", *addr).
		Str("world", w.Config().ID).
		Int64("seed", w.Config().Seed).
		Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("ListenAndServe")
		cancel()
	}
	<-herdDone
}

func metricsHandler(h *herd.Herd, worldID string, idx *indexdb.SQLiteIndex, tel *telemetry.Provider, logger zerolog.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP leviathan_herd_tick Current herd tick.\n")
		fmt.Fprintf(rw, "# TYPE leviathan_herd_tick gauge\n")
		fmt.Fprintf(rw, "leviathan_herd_tick{world=%q} %d\n", worldID, h.CurrentTick())

		f := h.LatestFrame()
		if f != nil {
			byState := map[string]int{}
			islands := 0
			for _, c := range f.Creatures {
				byState[c.State]++
				if c.Island != nil {
					islands++
				}
			}
			fmt.Fprintf(rw, "# HELP leviathan_creatures Live creatures by state.\n")
			fmt.Fprintf(rw, "# TYPE leviathan_creatures gauge\n")
			for _, st := range creature.AllStates {
				fmt.Fprintf(rw, "leviathan_creatures{world=%q,state=%q} %d\n", worldID, st.String(), byState[st.String()])
			}
			fmt.Fprintf(rw, "# HELP leviathan_islands Creatures carrying an island.\n")
			fmt.Fprintf(rw, "# TYPE leviathan_islands gauge\n")
			fmt.Fprintf(rw, "leviathan_islands{world=%q} %d\n", worldID, islands)
		}

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP leviathan_index_queue_depth SQLite index backlog.\n")
			fmt.Fprintf(rw, "# TYPE leviathan_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "leviathan_index_queue_depth{world=%q} %d\n", worldID, st.QueueDepth)
			fmt.Fprintf(rw, "# HELP leviathan_index_dropped_total Index writes dropped under load.\n")
			fmt.Fprintf(rw, "# TYPE leviathan_index_dropped_total counter\n")
			fmt.Fprintf(rw, "leviathan_index_dropped_total{world=%q} %d\n", worldID, st.QueueDroppedTotal)
		}

		if err := tel.WritePrometheus(r.Context(), rw, attribute.String("world", worldID)); err != nil {
			logger.Warn().Err(err).Msg("metrics export")
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
