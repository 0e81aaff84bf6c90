package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"codescope/internal/coordinator"
	"codescope/internal/jobs"
	"codescope/internal/service"
)

var (
	indexFormat string
	indexSCIP   string
)

var indexCmd = &cobra.Command{
	Use:   "index <repository-id>",
	Short: "Run a full indexing pass over a repository",
	Long: `Parses every supported source file into structural units, builds the
dependency graph and vector index, and bumps the repository's index
version on completion. With --scip, loads a prebuilt SCIP index file
instead of parsing source.`,
	Args: cobra.ExactArgs(1),
	Run:  runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexFormat, "format", "human", "Output format (json, human)")
	indexCmd.Flags().StringVar(&indexSCIP, "scip", "", "Path to a SCIP index file to import")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()

	repoID := args[0]

	// A manifest can pin a SCIP index to the repository; an explicit
	// --scip flag wins over it.
	if indexSCIP == "" {
		if repo, err := svc.GetIndexStatus(repoID); err == nil {
			if m, err := coordinator.LoadManifest(repo.Root); err == nil && m != nil && m.SCIPIndex != "" {
				indexSCIP = filepath.Join(repo.Root, m.SCIPIndex)
			}
		}
	}

	var jobID string
	var err error
	if indexSCIP != "" {
		jobID, err = svc.ImportSCIP(repoID, indexSCIP)
	} else {
		jobID, err = svc.StartIndexing(repoID)
	}
	if err != nil {
		fatalf("Error starting indexing: %v", err)
	}

	job := waitForJob(svc, jobID)
	printResult(job, indexFormat, func() {
		fmt.Printf("Job %s: %s\n", job.ID, job.Status)
		fmt.Printf("  files indexed: %d (skipped %d, failed %d)\n",
			job.Stats.FilesIndexed, job.Stats.FilesSkipped, len(job.FailedFiles))
		fmt.Printf("  units: %d, edges: %d, cycles: %d\n",
			job.Stats.Units, job.Stats.Edges, job.Stats.Cycles)
		if job.Error != "" {
			fmt.Printf("  error: %s\n", job.Error)
		}
		for _, f := range job.FailedFiles {
			fmt.Printf("  failed: %s\n", f)
		}
	})
}

// waitForJob polls the in-process runner until the job reaches a
// terminal state.
func waitForJob(svc *service.Service, jobID string) *jobs.Job {
	for {
		job, err := svc.GetJob(jobID)
		if err != nil {
			fatalf("Error fetching job: %v", err)
		}
		if job.IsTerminal() {
			return job
		}
		time.Sleep(200 * time.Millisecond)
	}
}
