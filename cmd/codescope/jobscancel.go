package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	Run:   runJobsCancel,
}

func init() {
	jobsCmd.AddCommand(jobsCancelCmd)
}

func runJobsCancel(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()

	if err := svc.CancelJob(args[0]); err != nil {
		fatalf("Error cancelling job: %v", err)
	}
	fmt.Printf("Cancellation requested for job %s\n", args[0])
}
