package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/elsanchez/resfetch/internal/config"
	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/pkg/client"
)

// newClient crea el cliente del daemon con el socket de la configuración
func newClient(common commonFlags) (*client.Client, error) {
	cfg, err := config.Load(common.configPath)
	if err != nil {
		return nil, err
	}
	return client.NewClient(cfg.SocketPath), nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func handleAdd(args []string) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	var common commonFlags
	var tf targetFlags
	common.register(fs)
	tf.register(fs)
	pageURLs, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}

	specs, err := tf.build(pageURLs)
	if err != nil {
		return fail(err)
	}
	c, err := newClient(common)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := requestContext()
	defer cancel()
	result, err := c.Add(ctx, specs, nil)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("✓ Queued %d targets (run %s)\n", result.Count, result.RunID)
	for _, id := range result.IDs {
		fmt.Printf("  #%d\n", id)
	}
	fmt.Printf("\nUse 'resfetch report %s' to follow the run\n", result.RunID)
	return exitOK
}

func handleStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	var common commonFlags
	var asJSON bool
	common.register(fs)
	fs.BoolVar(&asJSON, "json", false, "print the full report as JSON")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: resfetch status <id> [--json]")
		return exitConfig
	}
	id, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid id %q\n", rest[0])
		return exitConfig
	}

	c, err := newClient(common)
	if err != nil {
		return fail(err)
	}
	ctx, cancel := requestContext()
	defer cancel()

	sub, err := c.Status(ctx, id)
	if err != nil {
		return fail(err)
	}
	if asJSON {
		return printJSON(sub)
	}

	fmt.Printf("ID:      %d\n", sub.ID)
	fmt.Printf("Run:     %s\n", sub.RunID)
	fmt.Printf("Target:  %s\n", describeTarget(sub.Target))
	fmt.Printf("Status:  %s\n", sub.Status)
	if sub.Outcome != "" {
		fmt.Printf("Outcome: %s\n", sub.Outcome)
	}
	if sub.OutputPath != "" {
		fmt.Printf("Output:  %s\n", sub.OutputPath)
	}
	if sub.Error != "" {
		fmt.Printf("Error:   %s\n", sub.Error)
	}
	fmt.Printf("Created: %s\n", sub.CreatedAt.Format(time.DateTime))
	if sub.CompletedAt != nil {
		fmt.Printf("Done:    %s\n", sub.CompletedAt.Format(time.DateTime))
	}
	if sub.Report != nil {
		fmt.Printf("Probes:  %d templates tried, %d candidates\n",
			sub.Report.Discovery.TemplatesTried(), len(sub.Report.Discovery.Candidates))
	}
	return exitOK
}

func handleList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var common commonFlags
	var limit int
	var runID string
	common.register(fs)
	fs.IntVar(&limit, "limit", 20, "maximum number of entries")
	fs.StringVar(&runID, "run", "", "only the targets of this run")
	if _, err := parseFlags(fs, args); err != nil {
		return exitConfig
	}

	c, err := newClient(common)
	if err != nil {
		return fail(err)
	}
	ctx, cancel := requestContext()
	defer cancel()

	subs, err := c.List(ctx, limit, runID)
	if err != nil {
		return fail(err)
	}
	if len(subs) == 0 {
		fmt.Println("No queued targets")
		return exitOK
	}

	for _, s := range subs {
		state := string(s.Status)
		if s.Outcome != "" {
			state = string(s.Outcome)
		}
		fmt.Printf("%5d  %-13s  %s\n", s.ID, state, describeTarget(s.Target))
	}
	return exitOK
}

func handleStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if _, err := parseFlags(fs, args); err != nil {
		return exitConfig
	}

	c, err := newClient(common)
	if err != nil {
		return fail(err)
	}
	ctx, cancel := requestContext()
	defer cancel()

	stats, err := c.Stats(ctx)
	if err != nil {
		return fail(err)
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-24s %d\n", k, stats[k])
	}
	return exitOK
}

func handleReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	var common commonFlags
	var asJSON bool
	common.register(fs)
	fs.BoolVar(&asJSON, "json", false, "print the report as JSON")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: resfetch report <run-id> [--json]")
		return exitConfig
	}

	c, err := newClient(common)
	if err != nil {
		return fail(err)
	}
	ctx, cancel := requestContext()
	defer cancel()

	report, err := c.Report(ctx, rest[0])
	if err != nil {
		return fail(err)
	}
	if asJSON {
		return printJSON(report)
	}

	keys := make([]string, 0, len(report.Results))
	for k := range report.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("Run %s\n", report.RunID)
	if report.Pending > 0 {
		fmt.Printf("%d targets still queued\n", report.Pending)
	}
	printSummary(keys, report.Results)
	return exitOK
}

func describeTarget(spec domain.TargetSpec) string {
	switch {
	case spec.ID != "" && spec.PageURL != "":
		return spec.ID + "  " + spec.PageURL
	case spec.PageURL != "":
		return spec.PageURL
	case spec.ID != "":
		return spec.ID
	default:
		return spec.BaseURL
	}
}

func printJSON(v interface{}) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(err)
	}
	return exitOK
}
