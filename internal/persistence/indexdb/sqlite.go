package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"leviathan.ai/internal/sim/catalogs"
	"leviathan.ai/internal/sim/herd"
	"leviathan.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable read model of the tick journal. It implements
// herd.TickSink; writes are queued and applied by one goroutine.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick    atomic.Uint64
	dropRemoval atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqRemoval
)

type req struct {
	kind reqKind

	tick    herd.TickLogEntry
	removal removalRow
}

type removalRow struct {
	Tick    uint64
	ID      string
	Cause   string
	Cleared int
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropRemovalTotal  uint64 `json:"drop_removal_total"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			spawns INTEGER NOT NULL,
			removals INTEGER NOT NULL,
			damage INTEGER NOT NULL,
			transitions INTEGER NOT NULL,
			relocations INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS spawns (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			creature_id TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			category TEXT NOT NULL,
			island TEXT,
			error TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS removals (
			tick INTEGER NOT NULL,
			creature_id TEXT NOT NULL,
			cause TEXT NOT NULL,
			cleared INTEGER NOT NULL,
			PRIMARY KEY (tick, creature_id)
		);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			creature_id TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			event TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_creature_tick ON transitions(creature_id, tick);`,
		`CREATE TABLE IF NOT EXISTS relocations (
			tick INTEGER NOT NULL,
			creature_id TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			moved INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			lost INTEGER NOT NULL,
			passengers INTEGER NOT NULL,
			PRIMARY KEY (tick, creature_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_relocations_failed ON relocations(failed, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	st := Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropTickTotal:    s.dropTick.Load(),
		DropRemovalTotal: s.dropRemoval.Load(),
	}
	st.QueueDroppedTotal = st.DropTickTotal + st.DropRemovalTotal
	return st
}

func (s *SQLiteIndex) WriteTick(entry herd.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

// RecordRemoval indexes a removal that happened outside the tick loop, e.g.
// at shutdown.
func (s *SQLiteIndex) RecordRemoval(tick uint64, rec herd.RemovalRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	r := removalRow{Tick: tick, ID: rec.ID, Cause: rec.Cause, Cleared: rec.Cleared}
	select {
	case s.ch <- req{kind: reqRemoval, removal: r}:
	default:
		s.dropRemoval.Add(1)
	}
}

// UpsertCatalogs stores the block palette, island templates and the applied
// tuning so the index is self-describing.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil && len(b) > 0 {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	{
		tpls := make([]catalogs.IslandTemplate, 0, len(cats.Islands.ByID))
		for _, t := range cats.Islands.ByID {
			tpls = append(tpls, t)
		}
		sort.Slice(tpls, func(i, j int) bool { return tpls[i].ID < tpls[j].ID })
		if b, _ := json.Marshal(tpls); len(b) > 0 {
			rows = append(rows, kv{name: "islands", digest: cats.Islands.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,spawns,removals,damage,transitions,relocations,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSpawn, _ := s.db.Prepare(`INSERT OR REPLACE INTO spawns(tick,seq,creature_id,x,y,z,category,island,error) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertRemoval, _ := s.db.Prepare(`INSERT OR REPLACE INTO removals(tick,creature_id,cause,cleared) VALUES(?,?,?,?)`)
	insertTransition, _ := s.db.Prepare(`INSERT OR REPLACE INTO transitions(tick,seq,creature_id,from_state,to_state,event) VALUES(?,?,?,?,?,?)`)
	insertRelocation, _ := s.db.Prepare(`INSERT OR REPLACE INTO relocations(tick,creature_id,x,y,z,moved,failed,lost,passengers) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertSpawn, insertRemoval, insertTransition, insertRelocation} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			tick := int64(e.Tick)
			b, _ := json.Marshal(e)
			if !exec(insertTick, tick, e.Digest, len(e.Spawned), len(e.Removed), len(e.Inputs.Damage),
				len(e.Transitions), len(e.Relocations), string(b)) {
				continue
			}
			for i, sp := range e.Spawned {
				if !exec(insertSpawn, tick, i, sp.ID, sp.Pos[0], sp.Pos[1], sp.Pos[2], sp.Category, sp.Island, sp.Error) {
					break
				}
			}
			for _, rm := range e.Removed {
				if !exec(insertRemoval, tick, rm.ID, rm.Cause, rm.Cleared) {
					break
				}
			}
			for i, t := range e.Transitions {
				if !exec(insertTransition, tick, i, t.ID, t.From.String(), t.To.String(), t.Event.String()) {
					break
				}
			}
			for _, rl := range e.Relocations {
				if !exec(insertRelocation, tick, rl.ID, rl.Anchor[0], rl.Anchor[1], rl.Anchor[2],
					rl.Stats.Moved, rl.Stats.Failed, rl.Stats.Lost, rl.Stats.Passengers) {
					break
				}
			}

		case reqRemoval:
			rm := r.removal
			exec(insertRemoval, int64(rm.Tick), rm.ID, rm.Cause, rm.Cleared)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
