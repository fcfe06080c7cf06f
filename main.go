package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"terminal-core/internal/api"
	"terminal-core/internal/events"
	"terminal-core/internal/monitor"
	"terminal-core/internal/pool"
	"terminal-core/internal/registry"
	"terminal-core/internal/scheduler"
	"terminal-core/internal/terminal"
	"terminal-core/internal/trading"
	"terminal-core/pkg/bridge"
	"terminal-core/pkg/config"
	"terminal-core/pkg/db"
)

var buildVersion = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("terminal-core %s starting (port=%s tick=%s dry_run=%v)",
		buildVersion, cfg.Port, cfg.TickInterval, cfg.DryRun)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	metrics := monitor.NewMetrics()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	// Worker account registry (config file). Missing file means a
	// legacy-only deployment; invalid file is a hard error.
	fileStore, err := trading.NewFileStore(cfg.AccountsFile)
	if err != nil {
		if !errors.Is(err, trading.ErrConfigNotFound) {
			log.Fatalf("accounts file invalid: %v", err)
		}
		log.Printf("accounts file %s not found, no worker accounts configured", cfg.AccountsFile)
		fileStore = trading.EmptyFileStore()
	}
	dbStore := trading.NewDBStore(database)

	connect := bridgeConnector(cfg)
	poolMgr := pool.NewManager(cfg.TerminalsDir, cfg.StopTimeout, connect, fileStore, bus)

	workerPass := trading.NewPass(fileStore, database, bus, metrics, cfg.DryRun)
	sessionPass := trading.NewPass(dbStore, database, bus, metrics, cfg.DryRun)

	sources := []registry.Source{
		registry.NewSessionSource(database),
		registry.NewWorkerSource(poolMgr),
	}
	runners := map[registry.Namespace]scheduler.PassFunc{
		registry.NamespaceWorker:  workerRunner(poolMgr, workerPass),
		registry.NamespaceSession: sessionRunner(cfg, database, connect, sessionPass),
	}

	sched := scheduler.New(cfg.TickInterval, cfg.CycleHistory, sources, runners, bus, metrics)
	sched.Start(ctx)

	// Bring configured workers up. Failures are logged, not fatal: the
	// operator can retry through the API once the bridge is reachable.
	for _, id := range fileStore.AccountIDs() {
		if _, err := poolMgr.Start(ctx, id); err != nil {
			log.Printf("worker %s autostart failed: %v", id, err)
		}
	}

	server := api.NewServer(bus, database, poolMgr, sched, metrics, api.SystemMeta{
		DryRun:       cfg.DryRun,
		BridgeAddr:   cfg.BridgeAddr,
		TerminalsDir: cfg.TerminalsDir,
		Version:      buildVersion,
	}, cfg.JWTSecret)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.StopTimeout+5*time.Second)
	defer shutdownCancel()
	poolMgr.StopAll(shutdownCtx)
}

// bridgeConnector builds the Connector used for every terminal session, both
// pool workers and per-pass legacy attachments.
func bridgeConnector(cfg *config.Config) terminal.Connector {
	return func(ctx context.Context, isolationPath string, creds bridge.Credentials) (terminal.Session, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()

		client, err := bridge.Dial(dialCtx, cfg.BridgeAddr, bridge.Options{
			RateLimit:   cfg.BridgeRateLimit,
			Burst:       cfg.BridgeBurst,
			CallTimeout: cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		if _, err := client.Connect(dialCtx, isolationPath, creds); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	}
}

// workerRunner executes a pass on a pooled worker. The pass slot on the
// handle is what lets pool.Stop wait for an in-flight pass before closing.
func workerRunner(poolMgr *pool.Manager, pass *trading.Pass) scheduler.PassFunc {
	return func(ctx context.Context, ref registry.AccountRef) error {
		h, err := poolMgr.Get(ref.Key)
		if err != nil {
			return err
		}
		if !h.TryBeginPass() {
			return scheduler.ErrAccountBusy
		}
		defer h.EndPass()

		sess, err := h.Connection().Session()
		if err != nil {
			return err
		}
		return pass.Run(ctx, ref, sess)
	}
}

// sessionRunner executes a pass for a legacy session. The terminal was
// authenticated by the legacy desktop app; connecting with an empty password
// attaches to it rather than opening a new login.
func sessionRunner(cfg *config.Config, database *db.Database, connect terminal.Connector, pass *trading.Pass) scheduler.PassFunc {
	return func(ctx context.Context, ref registry.AccountRef) error {
		login, err := strconv.ParseInt(ref.Key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session login %q: %w", ref.Key, err)
		}
		row, err := database.GetSession(ctx, login)
		if err != nil {
			return fmt.Errorf("load session %d: %w", login, err)
		}
		if row == nil {
			return fmt.Errorf("session %d not registered", login)
		}

		sess, err := connect(ctx, pool.IsolationPath(cfg.TerminalsDir, ref.String()), bridge.Credentials{
			Login:  login,
			Server: row.Server,
		})
		if err != nil {
			return fmt.Errorf("attach session %d: %w", login, err)
		}
		defer sess.Close()

		return pass.Run(ctx, ref, sess)
	}
}
