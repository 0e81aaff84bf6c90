package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	impactFormat string
	impactDepth  int
)

var impactCmd = &cobra.Command{
	Use:   "impact <repository-id> <changed-file...>",
	Short: "Estimate which units depend on a set of changed files",
	Args:  cobra.MinimumNArgs(2),
	Run:   runImpact,
}

func init() {
	impactCmd.Flags().StringVar(&impactFormat, "format", "human", "Output format (json, human)")
	impactCmd.Flags().IntVar(&impactDepth, "depth", 3, "Maximum dependency distance to report")
	rootCmd.AddCommand(impactCmd)
}

func runImpact(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()

	report, err := svc.AnalyzeImpact(args[0], args[1:], impactDepth)
	if err != nil {
		fatalf("Error analyzing impact: %v", err)
	}

	printResult(report, impactFormat, func() {
		fmt.Printf("%d changed units, %d impacted (depth %d)\n",
			report.ChangedUnits, len(report.Impacted), report.MaxDepth)
		if report.StaleIndex {
			fmt.Println("warning: index is stale, results may be outdated")
		}
		for _, u := range report.Impacted {
			name := u.Name
			if name == "" {
				name = u.Path
			}
			fmt.Printf("  %-6s d=%d  %-8s %s  (%s)\n", u.Risk, u.Distance, u.Kind, name, u.Path)
		}
	})
}
