package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"codescope/internal/model"
)

var feedbackFormat string

var feedbackCmd = &cobra.Command{
	Use:   "feedback <session-id> <candidate-id> <relevant|irrelevant>",
	Short: "Record whether a recommended unit was relevant",
	Long: `Appends a relevance judgement to a session's feedback log. The log is
append-only; judging the same candidate again adds a new entry and the
latest one wins at refinement time.`,
	Args: cobra.ExactArgs(3),
	Run:  runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) {
	signal, err := model.ParseFeedbackSignal(args[2])
	if err != nil {
		fatalf("Error: %v", err)
	}

	svc := mustGetService()
	defer svc.Close()

	sess, err := svc.SubmitFeedback(args[0], args[1], signal)
	if err != nil {
		fatalf("Error submitting feedback: %v", err)
	}

	printResult(sess, feedbackFormat, func() {
		fmt.Printf("Recorded %s for %s (session %s, %d entries)\n",
			signal, args[1], sess.ID, len(sess.Feedback))
	})
}
