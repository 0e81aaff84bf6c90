package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codescope/internal/ranking"
)

var (
	recommendFormat string
	recommendLimit  int
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <repository-id> <query...>",
	Short: "Rank code units by relevance to a task description",
	Args:  cobra.MinimumNArgs(2),
	Run:   runRecommend,
}

func init() {
	recommendCmd.Flags().StringVar(&recommendFormat, "format", "human", "Output format (json, human)")
	recommendCmd.Flags().IntVar(&recommendLimit, "limit", 10, "Maximum number of results")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()
	ctx, cancel := newContext()
	defer cancel()

	query := strings.Join(args[1:], " ")
	sess, err := svc.Recommend(ctx, args[0], query, recommendLimit)
	if err != nil {
		fatalf("Error running recommendation: %v", err)
	}

	printResult(sess, recommendFormat, func() { printSession(sess) })
}

func printSession(sess *ranking.Session) {
	fmt.Printf("session %s", sess.ID)
	if sess.ParentID != "" {
		fmt.Printf(" (refined from %s)", sess.ParentID)
	}
	fmt.Printf("  index v%d", sess.IndexVersion)
	if sess.StaleIndex {
		fmt.Print("  [stale index]")
	}
	fmt.Println()

	for i, c := range sess.Candidates {
		name := c.Name
		if name == "" {
			name = c.Path
		}
		fmt.Printf("%2d. %.3f  %-8s %s  (%s)\n", i+1, c.FusedScore, c.Kind, name, c.Path)
		for _, r := range c.Reasons {
			fmt.Printf("       - %s\n", r)
		}
	}
}
