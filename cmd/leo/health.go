package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check store and LLM reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		report := a.orchestrator.Health(context.Background())

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		check := func(ok bool) string {
			if ok {
				return green("✓")
			}
			return red("✗")
		}

		fmt.Printf("\n%s\n\n", cyan("=== Leo Health ==="))
		fmt.Printf("  %s vector store (%s)\n", check(report.VectorStoreOK), a.cfg.VectorStoreURL)
		fmt.Printf("  %s llm (%s)\n", check(report.LLMOk), a.cfg.LLM.Provider)
		fmt.Println()
		fmt.Printf("  %s\n", gray("Truth collections:"))
		for _, c := range report.Collections {
			if c.Reachable {
				fmt.Printf("  %s %-20s %d truths\n", check(true), c.Collection, c.Count)
			} else {
				fmt.Printf("  %s %-20s %s\n", check(false), c.Collection, gray(c.Error))
			}
		}
		fmt.Println()

		if !report.VectorStoreOK {
			return fmt.Errorf("vector store unreachable")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
