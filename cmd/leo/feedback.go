package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oaf-platform/leo/internal/types"
)

var (
	feedbackUser     string
	feedbackQuery    string
	feedbackResponse string
	feedbackRating   int
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record a rating for a past query/response pair",
	Long: `Record explicit user feedback. The feedback is persisted and run
through truth extraction so low ratings can surface preference patterns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		result, err := a.orchestrator.RecordFeedback(context.Background(), types.Feedback{
			UserID:   feedbackUser,
			Query:    feedbackQuery,
			Response: feedbackResponse,
			Rating:   feedbackRating,
		})
		if err != nil {
			return err
		}

		fmt.Printf("feedback recorded, %d truth(s) extracted\n", result.TruthsExtracted)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().StringVarP(&feedbackUser, "user", "u", "", "user id")
	feedbackCmd.Flags().StringVarP(&feedbackQuery, "query", "q", "", "the original query text")
	feedbackCmd.Flags().StringVarP(&feedbackResponse, "response", "r", "", "summary of what was shown")
	feedbackCmd.Flags().IntVar(&feedbackRating, "rating", 0, "rating 1-5")
	feedbackCmd.MarkFlagRequired("query")
	feedbackCmd.MarkFlagRequired("rating")
	rootCmd.AddCommand(feedbackCmd)
}
