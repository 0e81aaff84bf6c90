package main

import (
	"codescope/internal/version"

	"github.com/spf13/cobra"
)

var (
	// rootFlag is the CLI --root flag value, the directory holding
	// .codescope state. Defaults to the working directory.
	rootFlag string
)

var rootCmd = &cobra.Command{
	Use:   "codescope",
	Short: "codescope - code relevance engine",
	Long: `codescope indexes repositories into a dependency graph and a semantic
vector index, then answers "which code matters for this task" queries by
fusing semantic similarity with graph proximity.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("codescope version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "",
		"Directory holding .codescope state (default: working directory)")
}
