package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/locks"
	"github.com/skillmeat/skillmeat/internal/memory"
	"github.com/skillmeat/skillmeat/internal/orchestrator"
	"github.com/skillmeat/skillmeat/internal/snapshot"
	"github.com/skillmeat/skillmeat/internal/storage/sqlite"
	"github.com/skillmeat/skillmeat/internal/types"
)

// app bundles the open store and the orchestrator wired on top of it.
// Every command that touches state opens one and closes it on the way out.
type app struct {
	store *sqlite.SQLiteStorage
	orch  *orchestrator.Orchestrator
	ops   *events.OpsLog
	unsub func()
}

// openApp opens the database and wires the snapshot store, lock director,
// event bus, and operations log into an orchestrator.
func openApp(ctx context.Context) (*app, error) {
	path := config.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &types.FilesystemError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}

	st, err := sqlite.New(ctx, path)
	if err != nil {
		return nil, err
	}

	director, err := locks.NewDirector(config.LocksDir())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	snaps := snapshot.NewStore(config.SnapshotsDir(), st)
	bus := events.NewBus()
	ops := events.OpenOpsLog(config.OpsLogPath(), events.OpsLogOptions{
		MaxSizeMB:  config.GetInt("log.max_size_mb"),
		MaxBackups: config.GetInt("log.max_backups"),
		MaxAgeDays: config.GetInt("log.max_age_days"),
	})
	unsub := bus.Subscribe(ops.Handler())

	var llm *memory.LLMClassifier
	if config.GetBool("memory.llm.enabled") {
		llm, err = memory.NewLLMClassifier(config.GetString("memory.llm.api_key"), config.GetString("memory.llm.model"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: LLM classification disabled: %v\n", err)
			llm = nil
		}
	}
	extractor := memory.NewExtractor(st, memory.Options{
		DedupThreshold: config.GetFloat64("memory.dedup_threshold"),
		LLM:            llm,
	})

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:     st,
		Snapshots: snaps,
		Locks:     director,
		Bus:       bus,
		Extractor: extractor,
		Identity:  config.GetIdentity(identityFlag),
	})
	if err != nil {
		unsub()
		_ = ops.Close()
		_ = st.Close()
		return nil, err
	}

	return &app{store: st, orch: orch, ops: ops, unsub: unsub}, nil
}

func (a *app) Close() {
	a.unsub()
	_ = a.ops.Close()
	_ = a.store.Close()
}

// mustApp opens the app or exits. Commands that have an offline fallback
// (status, doctor) call openApp themselves.
func mustApp(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		FatalErr(err)
	}
	return a
}

// mustCollection resolves --collection or the active collection, nudging
// toward init when neither exists yet.
func mustCollection(ctx context.Context, a *app) *types.Collection {
	var col *types.Collection
	var err error
	if collectionName != "" {
		col, err = a.store.GetCollectionByName(ctx, collectionName)
	} else {
		col, err = a.store.GetActiveCollection(ctx)
	}
	if err != nil {
		if types.IsNotFound(err) && collectionName == "" {
			FatalErrorRespectJSON("no active collection. Run 'skillmeat init' first")
		}
		FatalErr(err)
	}
	return col
}
