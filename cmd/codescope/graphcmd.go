package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"codescope/internal/model"
)

var (
	graphFormat    string
	graphDirection string
	graphDepth     int
)

var graphCmd = &cobra.Command{
	Use:   "graph <repository-id> <unit-id>",
	Short: "Extract the dependency subgraph around a unit",
	Args:  cobra.ExactArgs(2),
	Run:   runGraph,
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles <repository-id>",
	Short: "List dependency cycles in a repository",
	Args:  cobra.ExactArgs(1),
	Run:   runCycles,
}

func init() {
	graphCmd.Flags().StringVar(&graphFormat, "format", "human", "Output format (json, yaml, human)")
	graphCmd.Flags().StringVar(&graphDirection, "direction", "both", "Edge direction to follow (in, out, both)")
	graphCmd.Flags().IntVar(&graphDepth, "depth", 2, "Maximum traversal depth")
	rootCmd.AddCommand(graphCmd)

	cyclesCmd.Flags().StringVar(&graphFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(cyclesCmd)
}

func runGraph(cmd *cobra.Command, args []string) {
	dir, err := model.ParseDirection(graphDirection)
	if err != nil {
		fatalf("Error: %v", err)
	}

	svc := mustGetService()
	defer svc.Close()

	sub, err := svc.GetDependencyGraph(args[0], args[1], dir, graphDepth)
	if err != nil {
		fatalf("Error extracting graph: %v", err)
	}

	// YAML output is handy for piping into other graph tooling.
	if graphFormat == "yaml" {
		out, err := yaml.Marshal(sub)
		if err != nil {
			fatalf("Error formatting output: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	printResult(sub, graphFormat, func() {
		fmt.Printf("subgraph of %s (%s, depth %d): %d units, %d edges\n",
			sub.Origin, sub.Direction, sub.MaxDepth, len(sub.Units), len(sub.Edges))
		for _, e := range sub.Edges {
			fmt.Printf("  %s -[%s]-> %s\n", e.From, e.Kind, e.To)
		}
	})
}

func runCycles(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()

	cycles, err := svc.DetectCycles(args[0])
	if err != nil {
		fatalf("Error detecting cycles: %v", err)
	}

	printResult(cycles, graphFormat, func() {
		if len(cycles) == 0 {
			fmt.Println("No dependency cycles")
			return
		}
		for i, c := range cycles {
			fmt.Printf("%3d. %s\n", i+1, strings.Join(c.UnitIDs, " -> "))
		}
	})
}
