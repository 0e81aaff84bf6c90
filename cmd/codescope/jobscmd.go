package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsFormat string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List background jobs from this process",
	Run:   runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()

	jobList := svc.ListJobs()
	printResult(jobList, jobsFormat, func() {
		if len(jobList) == 0 {
			fmt.Println("No jobs")
			return
		}
		for _, j := range jobList {
			fmt.Printf("%-10s %3d%%  %-18s %s\n", j.Status, j.Progress, j.Type, j.ID)
		}
	})
}
