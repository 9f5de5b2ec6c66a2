package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/greymass/statehistory/internal/config"
	"github.com/greymass/statehistory/internal/historylog"
	"github.com/greymass/statehistory/internal/logger"
	"github.com/greymass/statehistory/internal/session"
)

var Version = "dev"

var logCategories = []string{
	"startup", "historylog", "statecapture", "session", "shutdown",
}

func main() {
	config.CheckVersion(Version)

	cfg := &Config{}
	if err := config.Load(cfg, os.Args[1:]); err != nil {
		logger.Fatal("config error: %v", err)
	}

	logger.RegisterCategories(logCategories...)
	if cfg.Debug {
		logger.SetMinLevel(logger.LevelDebug)
	}
	if len(cfg.LogFilter) > 0 {
		logger.SetCategoryFilter(cfg.LogFilter)
	}
	if cfg.LogFile != "" {
		if err := logger.SetLogFile(cfg.LogFile); err != nil {
			logger.Fatal("failed to open log file %s: %v", cfg.LogFile, err)
		}
		defer logger.Close()
	}

	logger.Printf("startup", "statehistory %s starting...", Version)

	// A capture-time log write failure escalates through enforce.ENFORCE
	// (a panic) rather than an ordinary error; this recovers it once at
	// the top so the process exits with a clear message instead of a
	// bare stack trace.
	defer func() {
		if r := recover(); r != nil {
			logger.Fatal("fatal invariant violation, exiting: %v", r)
		}
	}()

	if cfg.DeleteData {
		logger.Printf("startup", "delete-state-history set, removing %s", cfg.DataDir)
		if err := os.RemoveAll(cfg.DataDir); err != nil {
			logger.Fatal("failed to remove state-history dir: %v", err)
		}
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("failed to create state-history dir: %v", err)
	}

	blockStateLog, err := historylog.Open(
		filepath.Join(cfg.DataDir, "block_state_history.log"),
		filepath.Join(cfg.DataDir, "block_state_history.index"),
	)
	if err != nil {
		logger.Fatal("failed to open block_state_history log: %v", err)
	}
	defer blockStateLog.Close()

	traceLog, err := historylog.Open(
		filepath.Join(cfg.DataDir, "trace_history.log"),
		filepath.Join(cfg.DataDir, "trace_history.index"),
	)
	if err != nil {
		logger.Fatal("failed to open trace_history log: %v", err)
	}
	defer traceLog.Close()

	chainStateLog, err := historylog.Open(
		filepath.Join(cfg.DataDir, "chain_state_history.log"),
		filepath.Join(cfg.DataDir, "chain_state_history.index"),
	)
	if err != nil {
		logger.Fatal("failed to open chain_state_history log: %v", err)
	}
	defer chainStateLog.Close()

	begin, end := chainStateLog.Range()
	logger.Printf("startup", "state-history dir: %s (chain-state range [%d, %d))", cfg.DataDir, begin, end)

	chainEngine := standaloneChainEngine{}

	// A real deployment embeds this process inside the node and routes
	// its on_applied_transaction/on_accepted_block notifications into a
	// statecapture.Capture built over these same three logs and the
	// node's own UndoDatabase; this standalone binary only serves reads,
	// since the chain engine that would drive capture is an external
	// collaborator out of scope for this service (spec.md §1).
	handler := &session.LogHandler{
		Chain:         chainEngine,
		BlockStateLog: blockStateLog,
		TraceLog:      traceLog,
		ChainStateLog: chainStateLog,
	}
	srv := session.NewServer(handler)
	if err := srv.Listen(cfg.Endpoint); err != nil {
		logger.Fatal("failed to listen on %s: %v", cfg.Endpoint, err)
	}
	logger.Printf("startup", "session server listening on %s", cfg.Endpoint)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	logger.Printf("shutdown", "received shutdown signal, closing sessions and listener")
	if err := srv.Close(); err != nil {
		logger.Warning("shutdown error: %v", err)
	}
}
