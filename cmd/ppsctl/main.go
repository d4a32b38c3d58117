// Command ppsctl is the thin operational CLI (§6): drains, health checks and
// the dedup admin op; exit 0 on success, 1 on any per-record failure within a batch (with a
// summary line on stderr), 2 on unrecoverable configuration error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/crystallize"
	"github.com/JDHayesBC/Awareness-sub005/internal/embedclient"
	"github.com/JDHayesBC/Awareness-sub005/internal/entityenv"
	"github.com/JDHayesBC/Awareness-sub005/internal/health"
	"github.com/JDHayesBC/Awareness-sub005/internal/ingestctl"
	"github.com/JDHayesBC/Awareness-sub005/internal/inventory"
	"github.com/JDHayesBC/Awareness-sub005/internal/llmclient"
	"github.com/JDHayesBC/Awareness-sub005/internal/logging"
	"github.com/JDHayesBC/Awareness-sub005/internal/texture"
	"github.com/pterm/pterm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ppsctl <health|drain|dedup> [flags]")
		os.Exit(2)
	}

	cfg, err := entityenv.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	logging.Init(cfg.ClaudeHome, cfg.LogLevel)

	cap, err := capture.Open(cfg.CapturePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	defer cap.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "health":
		runHealth(ctx, cfg, cap)
	case "drain":
		fs := flag.NewFlagSet("drain", flag.ExitOnError)
		count := fs.Int("batches", 1, "number of ingestion batches to drain")
		_ = fs.Parse(os.Args[2:])
		runDrain(ctx, cfg, cap, *count)
	case "dedup":
		fs := flag.NewFlagSet("dedup", flag.ExitOnError)
		name := fs.String("name", "", "entity name to check for duplicates (required)")
		dryRun := fs.Bool("dry-run", true, "report the merge plan without mutating the graph")
		_ = fs.Parse(os.Args[2:])
		runDedup(ctx, cfg, *name, *dryRun)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", os.Args[1])
		os.Exit(2)
	}
}

func runHealth(ctx context.Context, cfg *entityenv.Config, cap *capture.Store) {
	crystal, err := crystallize.Open(cap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	inv, err := inventory.Open(cap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	agg := &health.Aggregator{L1: cap, L4: crystal, L5: inv}
	if cfg.GraphDSN != "" {
		embed := optionalEmbed(cfg)
		llm := optionalLLM(cfg)
		if tex, err := texture.Open(ctx, cfg.GraphDSN, embed, llm, cfg.EmbeddingsDimensions); err == nil {
			defer tex.Close()
			agg.L3 = tex
		}
	}

	report := agg.Check(ctx)
	if report.Status == "healthy" {
		pterm.Success.Printf("status=%s\n", report.Status)
	} else {
		pterm.Error.Printf("status=%s\n", report.Status)
	}
	for name, l := range report.Layers {
		line := fmt.Sprintf("  %s ok=%v configured=%v detail=%q last_op_ms=%.2f", name, l.OK, l.Configured, l.Detail, l.LastOpMS)
		if l.OK {
			pterm.Info.Println(line)
		} else {
			pterm.Warning.Println(line)
		}
	}
	if report.Status != "healthy" {
		os.Exit(1)
	}
}

func runDrain(ctx context.Context, cfg *entityenv.Config, cap *capture.Store, batches int) {
	if cfg.GraphDSN == "" {
		fmt.Fprintln(os.Stderr, "config error: PPS_GRAPH_DSN is required for drain")
		os.Exit(2)
	}
	tex, err := texture.Open(ctx, cfg.GraphDSN, optionalEmbed(cfg), optionalLLM(cfg), cfg.EmbeddingsDimensions)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	defer tex.Close()

	controller := ingestctl.New(cap, tex, ingestctl.Config{})
	before, _ := tex.IngestionStats(ctx)
	failures := 0
	for i := 0; i < batches; i++ {
		if err := controller.RunOnce(ctx); err != nil {
			pterm.Error.Printf("batch %d failed: %v\n", i, err)
			failures++
		} else {
			pterm.Success.Printf("batch %d drained\n", i)
		}
	}
	after, _ := tex.IngestionStats(ctx)
	recordFailures := after.CountByStatus[texture.BatchPartial] + after.CountByStatus[texture.BatchFailed] -
		before.CountByStatus[texture.BatchPartial] - before.CountByStatus[texture.BatchFailed]
	if failures > 0 || recordFailures > 0 {
		fmt.Fprintf(os.Stderr, "drain completed with %d/%d batch failures, %d batches with per-record failures\n", failures, batches, recordFailures)
		os.Exit(1)
	}
}

func runDedup(ctx context.Context, cfg *entityenv.Config, name string, dryRun bool) {
	if name == "" {
		fmt.Fprintln(os.Stderr, "config error: -name is required")
		os.Exit(2)
	}
	if cfg.GraphDSN == "" {
		fmt.Fprintln(os.Stderr, "config error: PPS_GRAPH_DSN is required for dedup")
		os.Exit(2)
	}
	tex, err := texture.Open(ctx, cfg.GraphDSN, optionalEmbed(cfg), optionalLLM(cfg), cfg.EmbeddingsDimensions)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	defer tex.Close()

	plan, err := tex.Dedup(ctx, name, dryRun)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dedup failed:", err)
		os.Exit(1)
	}
	fmt.Printf("canonical=%s duplicates=%v edges_reparented=%d dry_run=%v\n",
		plan.CanonicalUUID, plan.DuplicateUUIDs, plan.EdgesReparented, dryRun)
}

func optionalEmbed(cfg *entityenv.Config) *embedclient.Client {
	if cfg.EmbeddingsHost == "" {
		return nil
	}
	return embedclient.New(cfg.EmbeddingsHost, cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel, cfg.EmbeddingsDimensions)
}

func optionalLLM(cfg *entityenv.Config) *llmclient.Client {
	if cfg.CompletionsHost == "" {
		return nil
	}
	return llmclient.New(cfg.CompletionsHost, cfg.CompletionsAPIKey, cfg.CompletionsModel)
}
