package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oaf-platform/leo/internal/orchestrator"
	"github.com/oaf-platform/leo/internal/repl"
	"github.com/oaf-platform/leo/internal/types"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive shell",
	Long: `Start an interactive shell for exercising the engine: run queries,
switch the active user, rate results, and control background discovery.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		r, err := repl.New(&repl.Config{
			Engine:  replEngine{a.orchestrator},
			Printer: printResults,
		})
		if err != nil {
			return err
		}
		return r.Run(context.Background())
	},
}

// replEngine adapts the orchestrator to the shell's engine interface.
type replEngine struct {
	orch *orchestrator.Orchestrator
}

func (e replEngine) HandleQuery(ctx context.Context, req types.QueryRequest) (*types.OrganizedResults, error) {
	return e.orch.HandleQuery(ctx, req)
}

func (e replEngine) RecordFeedback(ctx context.Context, fb types.Feedback) (repl.Result, error) {
	result, err := e.orch.RecordFeedback(ctx, fb)
	return repl.Result{TruthsExtracted: result.TruthsExtracted}, err
}

func (e replEngine) Health(ctx context.Context) types.HealthReport {
	return e.orch.Health(ctx)
}

func (e replEngine) StartDiscovery(ctx context.Context) repl.StartResult {
	result := e.orch.StartDiscovery(ctx)
	return repl.StartResult{Started: result.Started, Message: result.Message}
}

func (e replEngine) StopDiscovery() {
	e.orch.StopDiscovery()
}

func (e replEngine) DiscoveryState() string {
	return string(e.orch.DiscoveryStatus().State)
}

func init() {
	rootCmd.AddCommand(replCmd)
}
