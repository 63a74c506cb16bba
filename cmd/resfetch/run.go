package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/elsanchez/resfetch/internal/config"
	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/engine"
	"github.com/elsanchez/resfetch/internal/tui/progress"
)

// runFlags son los ajustes de una ejecución en proceso
type runFlags struct {
	common     commonFlags
	targets    targetFlags
	progress   string
	workers    int
	out        string
	mode       string
	templates  multiFlag
	noAccounts bool
}

func (r *runFlags) register(fs *flag.FlagSet) {
	r.common.register(fs)
	r.targets.register(fs)
	fs.StringVar(&r.progress, "progress", "auto", "progress output: auto, tui or log")
	fs.IntVar(&r.workers, "workers", 0, "concurrent targets")
	fs.StringVar(&r.out, "out", "", "destination directory")
	fs.StringVar(&r.mode, "mode", "", "probe mode: single or enumerate")
	fs.Var(&r.templates, "template", "endpoint template (repeatable)")
	fs.BoolVar(&r.noAccounts, "no-accounts", false, "do not use stored cookie accounts")
}

// apply sobrescribe la configuración con los flags y la revalida
func (r *runFlags) apply(cfg *config.Config) error {
	if r.workers > 0 {
		cfg.Workers = r.workers
	}
	if r.out != "" {
		cfg.OutputDir = r.out
	}
	if r.mode != "" {
		cfg.Probe.Mode = r.mode
	}
	if len(r.templates) > 0 {
		cfg.Probe.Templates = append([]string(nil), r.templates...)
	}
	return cfg.Validate()
}

// useTUI decide la salida de progreso según el flag y la terminal
func (r *runFlags) useTUI() (bool, error) {
	switch r.progress {
	case "tui":
		return true, nil
	case "log":
		return false, nil
	case "auto", "":
		fd := os.Stdout.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd), nil
	default:
		return false, domain.NewError(domain.KindConfig, "progress", "", fmt.Errorf("%q is not auto, tui or log", r.progress))
	}
}

func handleRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var rf runFlags
	rf.register(fs)
	pageURLs, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}

	tui, err := rf.useTUI()
	if err != nil {
		return fail(err)
	}
	cfg, log, closeLog, err := rf.common.load(tui)
	if err != nil {
		return fail(err)
	}
	defer closeLog()

	if err := rf.apply(cfg); err != nil {
		return fail(err)
	}
	specs, err := rf.targets.build(pageURLs)
	if err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fail(fmt.Errorf("create output directory: %w", err))
	}

	pipeline, closeDB, err := newPipeline(cfg, log, !rf.noAccounts)
	if err != nil {
		return fail(err)
	}
	defer closeDB()

	ctx, cancel := signalContext()
	defer cancel()

	keys := engine.TargetKeys(specs)
	var results map[string]domain.TaskResult
	if tui {
		results, err = runWithTUI(ctx, cancel, pipeline, log, specs, keys, cfg.Workers)
		if err != nil {
			return fail(err)
		}
	} else {
		coordinator := engine.NewCoordinator(pipeline, engine.NewLogObserver(log), log)
		results = coordinator.RunAll(ctx, specs, cfg.Workers)
	}

	printSummary(keys, results)

	if ctx.Err() != nil {
		return exitCanceled
	}
	for _, res := range results {
		if !res.Outcome.IsSuccess() {
			return exitFailed
		}
	}
	return exitOK
}

// runWithTUI ejecuta el coordinador en segundo plano mientras bubbletea
// dibuja el progreso. Salir de la TUI cancela la ejecución.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, processor engine.Processor, log *slog.Logger, specs []domain.TargetSpec, keys []string, workers int) (map[string]domain.TaskResult, error) {
	program := tea.NewProgram(progress.NewModel(keys, cancel), tea.WithContext(ctx))
	coordinator := engine.NewCoordinator(processor, progress.NewObserver(program), log)

	done := make(chan map[string]domain.TaskResult, 1)
	go func() {
		results := coordinator.RunAll(ctx, specs, workers)
		done <- results
		program.Send(progress.RunFinished(results))
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-done
		return nil, fmt.Errorf("progress view: %w", err)
	}
	// La TUI pudo cerrarse antes que el coordinador
	cancel()
	return <-done, nil
}

func printSummary(keys []string, results map[string]domain.TaskResult) {
	fmt.Println()
	counts := make(map[domain.Outcome]int)
	for _, key := range keys {
		res, ok := results[key]
		if !ok {
			continue
		}
		counts[res.Outcome]++

		switch {
		case res.Outcome.IsSuccess():
			fmt.Printf("✓ %s  %s  %s\n", key, res.Outcome, res.Download.FinalPath)
		case res.Error != "":
			fmt.Printf("✗ %s  %s  %s\n", key, res.Outcome, res.Error)
		case res.Download.Error != "":
			fmt.Printf("✗ %s  %s  %s\n", key, res.Outcome, res.Download.Error)
		default:
			fmt.Printf("✗ %s  %s  %d templates tried, %d candidates\n", key, res.Outcome,
				res.Discovery.TemplatesTried(), len(res.Discovery.Candidates))
		}
	}

	outcomes := make([]string, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	fmt.Printf("\n%d targets:", len(results))
	for _, o := range outcomes {
		fmt.Printf(" %s=%d", o, counts[domain.Outcome(o)])
	}
	fmt.Println()
}

func handleDiscover(args []string) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	var rf runFlags
	rf.register(fs)
	pageURLs, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}

	// discover reporta todos los candidatos salvo que se pida otro modo
	if rf.mode == "" {
		rf.mode = "enumerate"
	}

	cfg, log, closeLog, err := rf.common.load(false)
	if err != nil {
		return fail(err)
	}
	defer closeLog()
	if err := rf.apply(cfg); err != nil {
		return fail(err)
	}
	specs, err := rf.targets.build(pageURLs)
	if err != nil {
		return fail(err)
	}

	pipeline, closeDB, err := newPipeline(cfg, log, !rf.noAccounts)
	if err != nil {
		return fail(err)
	}
	defer closeDB()

	ctx, cancel := signalContext()
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	code := exitOK
	for _, spec := range specs {
		res, err := pipeline.Discover(ctx, spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			code = exitFailed
			continue
		}
		if err := enc.Encode(res); err != nil {
			return fail(err)
		}
		if len(res.Candidates) == 0 {
			code = exitFailed
		}
	}
	if ctx.Err() != nil {
		return exitCanceled
	}
	return code
}
