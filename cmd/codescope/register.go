package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	registerName   string
	registerFormat string
)

var registerCmd = &cobra.Command{
	Use:   "register <path>",
	Short: "Register a repository for indexing",
	Args:  cobra.ExactArgs(1),
	Run:   runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "Display name (default: directory name)")
	registerCmd.Flags().StringVar(&registerFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()

	repo, err := svc.RegisterRepository(args[0], registerName)
	if err != nil {
		fatalf("Error registering repository: %v", err)
	}

	printResult(repo, registerFormat, func() {
		fmt.Printf("Registered %s\n", repo.Name)
		fmt.Printf("  id:    %s\n", repo.ID)
		fmt.Printf("  root:  %s\n", repo.Root)
		fmt.Printf("  state: %s\n", repo.State)
	})
}
