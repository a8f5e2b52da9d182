package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oaf-platform/leo/internal/discovery"
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Run and inspect the background pattern-discovery scheduler",
}

var discoveryStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the discovery scheduler in the foreground",
	Long: `Start the four discovery loops (content crawl, truth validation,
meta-truth mining, resource monitor) and run until interrupted.

The scheduler pauses itself under host resource pressure and resumes
automatically when load drops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result := a.orchestrator.StartDiscovery(ctx)
		if !result.Started {
			return fmt.Errorf("%s", result.Message)
		}
		fmt.Println(result.Message)

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nshutting down...")
				a.orchestrator.StopDiscovery()
				return nil
			case <-ticker.C:
				snap := a.orchestrator.DiscoveryStatus()
				fmt.Printf("[%s] state=%s extracted=%d validated=%d meta=%d cpu=%.0f%% mem=%.0f%%\n",
					time.Now().Format("15:04:05"), snap.State,
					snap.Stats.TruthsExtracted, snap.Stats.TruthsValidated,
					snap.Stats.MetaTruthsStored,
					snap.Resources.CPUPercent, snap.Resources.MemoryPercent)
			}
		}
	},
}

var discoveryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler state and counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		printDiscoveryStatus(a.orchestrator.DiscoveryStatus())
		return nil
	},
}

func printDiscoveryStatus(snap discovery.Snapshot) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	stateColor := gray
	switch snap.State {
	case discovery.StateRunning:
		stateColor = green
	case discovery.StatePaused:
		stateColor = yellow
	case discovery.StateEmergencyStopped:
		stateColor = red
	}

	fmt.Printf("\n%s\n\n", cyan("=== Discovery Status ==="))
	fmt.Printf("  State:    %s\n", stateColor(string(snap.State)))
	if snap.PauseReason != "" {
		fmt.Printf("  Reason:   %s\n", snap.PauseReason)
	}
	if !snap.StartedAt.IsZero() {
		fmt.Printf("  Started:  %s\n", snap.StartedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Printf("  %s\n", yellow("Counters:"))
	fmt.Printf("    Crawl ticks:         %d\n", snap.Stats.CrawlTicks)
	fmt.Printf("    Documents processed: %d\n", snap.Stats.DocumentsProcessed)
	fmt.Printf("    Truths extracted:    %d\n", snap.Stats.TruthsExtracted)
	fmt.Printf("    Truths validated:    %d\n", snap.Stats.TruthsValidated)
	fmt.Printf("    Meta-truths stored:  %d\n", snap.Stats.MetaTruthsStored)
	fmt.Printf("    Tracked documents:   %d\n", snap.Stats.TrackedDocuments)
	fmt.Println()
	fmt.Printf("  %s\n", yellow("Resources:"))
	fmt.Printf("    CPU:        %.1f%%\n", snap.Resources.CPUPercent)
	fmt.Printf("    Memory:     %.1f%%\n", snap.Resources.MemoryPercent)
	fmt.Printf("    Throttle:   %.2fx\n", snap.Resources.ThrottleMultiplier)
	fmt.Printf("    Pauses:     %d\n", snap.Resources.PauseCount)
	fmt.Printf("    Emergencies: %d\n", snap.Resources.EmergencyCount)
	fmt.Println()
}

func init() {
	discoveryCmd.AddCommand(discoveryStartCmd)
	discoveryCmd.AddCommand(discoveryStatusCmd)
	rootCmd.AddCommand(discoveryCmd)
}
