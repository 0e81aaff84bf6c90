package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var refineFormat string

var refineCmd = &cobra.Command{
	Use:   "refine <session-id> [adjusted query...]",
	Short: "Derive a new ranking from a session and its feedback",
	Long: `Re-runs retrieval for a session, damping candidates its feedback log
marked irrelevant and boosting those marked relevant. The original
session is kept unchanged; the result is a new session linked to it.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runRefine,
}

func init() {
	refineCmd.Flags().StringVar(&refineFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(refineCmd)
}

func runRefine(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()
	ctx, cancel := newContext()
	defer cancel()

	adjusted := strings.Join(args[1:], " ")
	sess, err := svc.Refine(ctx, args[0], adjusted)
	if err != nil {
		fatalf("Error refining session: %v", err)
	}

	printResult(sess, refineFormat, func() { printSession(sess) })
}
