package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/elsanchez/resfetch/internal/config"
	"github.com/elsanchez/resfetch/internal/cookies"
	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/engine"
	"github.com/elsanchez/resfetch/internal/fetcher"
	"github.com/elsanchez/resfetch/internal/repository/sqlite"
)

const (
	version = "0.1.0"
)

// Códigos de salida
const (
	exitOK       = 0
	exitFailed   = 1
	exitConfig   = 2
	exitCanceled = 130
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitConfig)
	}

	args := os.Args[2:]
	var code int

	switch os.Args[1] {
	case "run":
		code = handleRun(args)
	case "discover":
		code = handleDiscover(args)
	case "add":
		code = handleAdd(args)
	case "status":
		code = handleStatus(args)
	case "list":
		code = handleList(args)
	case "stats":
		code = handleStats(args)
	case "report":
		code = handleReport(args)
	case "cookies":
		code = handleCookies(args)
	case "config":
		code = handleConfig(args)
	case "version", "--version":
		fmt.Printf("resfetch v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		// Una URL como primer argumento equivale a "run"
		if len(os.Args[1]) > 4 && os.Args[1][:4] == "http" {
			code = handleRun(os.Args[1:])
		} else {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
			printUsage()
			code = exitConfig
		}
	}

	os.Exit(code)
}

func printUsage() {
	fmt.Println(`resfetch v` + version + `: resource discovery and retrieval

Usage: resfetch <command> [flags] [args]

Commands:
  run <page-url...>        Discover and download in-process (log or TUI progress)
  discover <page-url...>   Report every candidate without downloading
  add <page-url...>        Queue targets in the resfetchd daemon
  status <id>              Show a queued target and its report
  list                     List recent queued targets
  stats                    Show daemon queue statistics
  report <run-id>          Show the aggregated report of a queued run
  cookies <subcommand>     Manage per-domain cookie accounts
  config                   Print the effective configuration
  version                  Show version
  help                     Show this help

Target flags (run, discover, add):
  --base-url <url>         Base URL for templates when no page URL is given
  --param key=value        Identifier for templates (repeatable)
  --id <id>                Target ID (default: derived)
  --title <title>          File name hint
  --targets <file.yaml>    Read a list of targets

Run flags:
  --progress auto|tui|log  Progress output (default: auto, TUI on a terminal)
  --workers <n>            Concurrent targets
  --out <dir>              Destination directory
  --mode single|enumerate  Stop at the first hit or try every template
  --template <tpl>         Endpoint template (repeatable, replaces config)
  --no-accounts            Do not use stored cookie accounts

Common flags:
  --config <path>          Config file (default: ` + config.DefaultPath() + `)
  -v                       Debug logging

Cookies:
  cookies import <file> [--domain d] [--name n] [--activate] [--force]
  cookies browser <domain> [--browser chrome] [--name n] [--activate]
  cookies validate [domain] [--http]
  cookies list [domain]
  cookies use <domain> <name>

Examples:
  resfetch run "https://example.com/play?_id=0123456789abcdef"
  resfetch run --base-url https://example.com --param file_id=42 --template /api/file/{file_id}/audio
  resfetch discover --mode enumerate https://example.com/article/1
  resfetch add --targets batch.yaml
  resfetch cookies import ~/cookies.txt --domain example.com --activate`)
}

// commonFlags son los flags que aceptan todos los subcomandos
type commonFlags struct {
	configPath string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file path")
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
}

// load lee la configuración y construye el logger. Con toFile el log se
// escribe en DataDir/resfetch.log en lugar de stderr.
func (c *commonFlags) load(toFile bool) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if c.verbose {
		cfg.LogLevel = "debug"
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	var out io.Writer = os.Stderr
	closer := func() {}
	if toFile {
		logFile := filepath.Join(cfg.DataDir, "resfetch.log")
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = func() { f.Close() }
	}

	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return cfg, log, closer, nil
}

// newPipeline arma el pipeline del motor. Con useAccounts abre la base de
// datos para leer las cookies de la cuenta activa de cada dominio.
func newPipeline(cfg *config.Config, log *slog.Logger, useAccounts bool) (*engine.Pipeline, func(), error) {
	opts, err := cfg.EngineOptions(log)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {}
	var creds engine.CredentialSource
	if useAccounts {
		db, err := sqlite.NewDatabase(cfg.DataDir)
		if err != nil {
			log.Warn("account store unavailable, running without cookies", "error", err)
		} else {
			creds = cookies.NewAccountCredentials(db.AccountRepo, log)
			closer = func() { db.Close() }
		}
	}

	factory := fetcher.NewFactory(cfg.FetcherOptions())
	return engine.NewPipeline(factory, nil, creds, opts), closer, nil
}

// signalContext se cancela con SIGINT o SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// fail imprime el error y retorna el código de salida que le corresponde
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if domain.IsConfigError(err) {
		return exitConfig
	}
	return exitFailed
}

// parseFlags parsea flags permitiendo argumentos posicionales intercalados
func parseFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func handleConfig(args []string) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if _, err := parseFlags(fs, args); err != nil {
		return exitConfig
	}

	cfg, err := config.Load(common.configPath)
	if err != nil {
		return fail(err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		return fail(err)
	}
	os.Stdout.Write(data)
	return exitOK
}
