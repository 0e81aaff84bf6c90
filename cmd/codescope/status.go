package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status [repository-id]",
	Short: "Show repository index status",
	Long:  "Without arguments, lists every registered repository. With an id, shows that repository's index state and version.",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()

	if len(args) == 1 {
		repo, err := svc.GetIndexStatus(args[0])
		if err != nil {
			fatalf("Error getting status: %v", err)
		}
		printResult(repo, statusFormat, func() {
			fmt.Printf("%s (%s)\n", repo.Name, repo.ID)
			fmt.Printf("  root:    %s\n", repo.Root)
			fmt.Printf("  state:   %s\n", repo.State)
			fmt.Printf("  version: %d\n", repo.IndexVersion)
			if repo.LastError != "" {
				fmt.Printf("  error:   %s\n", repo.LastError)
			}
		})
		return
	}

	repos := svc.ListRepositories()
	printResult(repos, statusFormat, func() {
		if len(repos) == 0 {
			fmt.Println("No repositories registered")
			return
		}
		for _, repo := range repos {
			fmt.Printf("%-14s v%-3d %s  %s\n", repo.State, repo.IndexVersion, repo.ID, repo.Name)
		}
	})
}
