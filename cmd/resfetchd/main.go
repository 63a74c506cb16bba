package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/elsanchez/resfetch/internal/config"
	"github.com/elsanchez/resfetch/internal/cookies"
	"github.com/elsanchez/resfetch/internal/daemon"
	"github.com/elsanchez/resfetch/internal/engine"
	"github.com/elsanchez/resfetch/internal/fetcher"
	"github.com/elsanchez/resfetch/internal/repository/sqlite"
	"github.com/elsanchez/resfetch/pkg/client"
)

const (
	version = "0.1.0"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	log.Info(fmt.Sprintf("resfetchd v%s starting...", version))

	if err := run(cfg, log); err != nil {
		log.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Crear directorios
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	log.Info("directories ready", "data", cfg.DataDir, "output", cfg.OutputDir, "cookies", cfg.CookiesDir)

	// Inicializar base de datos
	db, err := sqlite.NewDatabase(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()
	log.Info("✓ Database initialized")

	// Pipeline de descubrimiento y descarga
	opts, err := cfg.EngineOptions(log)
	if err != nil {
		return err
	}
	factory := fetcher.NewFactory(cfg.FetcherOptions())
	creds := cookies.NewAccountCredentials(db.AccountRepo, log)
	pipeline := engine.NewPipeline(factory, nil, creds, opts)
	log.Info("✓ Pipeline initialized", "templates", len(cfg.Probe.Templates), "mode", cfg.Probe.Mode)

	// Crear queue manager
	queueMgr := daemon.NewQueueManager(db.SubmissionRepo, pipeline, engine.NewLogObserver(log), cfg.Workers, log)
	queueMgr.Start()
	defer queueMgr.Stop()
	log.Info(fmt.Sprintf("✓ Queue manager started (%d workers)", cfg.Workers))

	// Crear servidor
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = client.GetDefaultSocketPath()
	}
	handlers := daemon.NewHandlers(db.SubmissionRepo, queueMgr)
	server := daemon.NewServer(socketPath, handlers, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer server.Stop()

	log.Info("✓ Server started", "socket", socketPath)
	log.Info("resfetchd is ready")

	// Esperar señal de terminación
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal", "signal", sig.String())
	log.Info("shutting down gracefully...")
	return nil
}
