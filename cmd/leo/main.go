package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/oaf-platform/leo/internal/config"
	"github.com/oaf-platform/leo/internal/discovery"
	"github.com/oaf-platform/leo/internal/llm"
	"github.com/oaf-platform/leo/internal/observability"
	"github.com/oaf-platform/leo/internal/orchestrator"
	"github.com/oaf-platform/leo/internal/prefs"
	"github.com/oaf-platform/leo/internal/scoring"
	"github.com/oaf-platform/leo/internal/truth"
	"github.com/oaf-platform/leo/internal/vectorstore"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "leo",
	Short: "Adaptive personalization and pattern-discovery engine",
	Long: `Leo personalizes marketplace search and continuously discovers
behavioral patterns from content and feedback.

It talks to a local vector store for similarity search and a local or
hosted LLM for result organization and truth extraction. All LLM and
personalization features degrade gracefully when those services are
unavailable.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// app is the wired subsystem a command operates on.
type app struct {
	cfg          config.Config
	orchestrator *orchestrator.Orchestrator
	telemetry    *observability.Manager
}

// buildApp wires the full stack from configuration. Commands call this
// lazily so that, for example, --help never needs a reachable store.
func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store := vectorstore.NewHTTPStore(cfg.VectorStoreURL, 0)

	var base llm.Client
	switch cfg.LLM.Provider {
	case "anthropic":
		base, err = llm.NewAnthropicClient("")
		if err != nil {
			return nil, err
		}
	default:
		base = llm.NewOllamaClient(cfg.LLM.Endpoint, cfg.LLM.Timeout.Std())
	}
	client := llm.NewGuard(base, llm.GuardConfig{
		MaxConcurrent:  cfg.LLM.MaxConcurrent,
		RatePerSecond:  cfg.LLM.RatePerSecond,
		DefaultTimeout: cfg.LLM.Timeout.Std(),
	})

	var telemetry *observability.Manager
	if cfg.Telemetry.Enabled {
		db, err := observability.Open(cfg.Telemetry.DBPath)
		if err != nil {
			// Telemetry is never worth failing startup over.
			slog.Warn("telemetry disabled", "error", err)
		} else {
			telemetry = observability.NewManager(db, 0, 0)
		}
	}

	truths := truth.NewStore(store)
	seen := truth.NewSeenSet(0)
	validity := truth.NewValidityCache(0)

	discoveryCfg, err := discovery.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	discoveryCfg.Model = cfg.LLM.Model

	extractor := truth.NewExtractor(client, truths, seen, truth.ExtractorConfig{Model: cfg.LLM.Model})

	var recorder discovery.Recorder
	if telemetry != nil {
		recorder = telemetry
	}
	scheduler, err := discovery.NewScheduler(discovery.Deps{
		Store:     store,
		Truths:    truths,
		Extractor: extractor,
		Validator: truth.NewValidator(client, validity, truth.ValidatorConfig{
			Model:             cfg.LLM.Model,
			MaxTruthAge:       discoveryCfg.MaxTruthAge,
			ValidityThreshold: discoveryCfg.ValidityThreshold,
		}),
		Miner:    truth.NewMiner(client, truths, truth.MinerConfig{Model: cfg.LLM.Model}),
		Seen:     seen,
		Validity: validity,
		Recorder: recorder,
	}, discoveryCfg)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:     store,
		Client:    client,
		Resolver:  prefs.NewResolver(store, prefs.Config{}),
		Engine:    scoring.NewEngine(scoring.DefaultWeights()),
		Extractor: extractor,
		Truths:    truths,
		Scheduler: scheduler,
	}, orchestrator.Config{
		Model:           cfg.LLM.Model,
		SearchLimit:     cfg.QueryLimit,
		MinCategorySize: cfg.MinCategorySize,
		OrganizeTimeout: cfg.LLM.Timeout.Std(),
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, orchestrator: orch, telemetry: telemetry}, nil
}

func (a *app) close() {
	if a.telemetry != nil {
		a.telemetry.Close()
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "leo.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
