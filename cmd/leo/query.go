package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oaf-platform/leo/internal/types"
)

var (
	queryUser       string
	queryCategories []string
	queryLimit      int
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a personalized search",
	Long: `Run a similarity search across the content collections, ranked by
the requesting user's preference profile and organized into categories.

Anonymous queries (no --user) are ranked against platform-wide trends.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.orchestrator.HandleQuery(context.Background(), types.QueryRequest{
			Text:       args[0],
			UserID:     queryUser,
			Categories: queryCategories,
			Limit:      queryLimit,
		})
		if err != nil {
			return err
		}

		printResults(results)
		return nil
	},
}

func printResults(results *types.OrganizedResults) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	mode := "global trends"
	if results.Personalized {
		mode = fmt.Sprintf("personalized (confidence %.2f)", results.Confidence)
	}
	fmt.Printf("\n%s  %s\n", cyan("=== Results ==="), gray(mode+", organized by "+results.Organizer))

	for _, cat := range results.Categories {
		fmt.Printf("\n%s\n", yellow(cat.Name))
		for _, item := range cat.Items {
			title := item.Hit.Item.Title
			if title == "" {
				title = item.Hit.ID
			}
			switch {
			case item.Backfill:
				fmt.Printf("  %s %s %s\n", gray("·"), title, gray("(suggested)"))
			default:
				fmt.Printf("  %s %s %s\n", green("●"), title,
					gray(fmt.Sprintf("score %.3f", item.FinalScore)))
			}
		}
	}
	fmt.Println()
}

func init() {
	queryCmd.Flags().StringVarP(&queryUser, "user", "u", "", "user id for personalization")
	queryCmd.Flags().StringSliceVarP(&queryCategories, "category", "c", nil,
		"categories to search (products, artists, promoters, articles, events, all)")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "max items per category")
	rootCmd.AddCommand(queryCmd)
}
