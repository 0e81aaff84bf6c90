package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <repository-id>",
	Short: "Export a compressed snapshot of a repository's index",
	Args:  cobra.ExactArgs(1),
	Run:   runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: <repository-id>.snapshot.zst)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	svc := mustGetService()
	defer svc.Close()

	out := exportOutput
	if out == "" {
		out = args[0] + ".snapshot.zst"
	}
	f, err := os.Create(out)
	if err != nil {
		fatalf("Error creating output file: %v", err)
	}
	defer f.Close()

	if err := svc.ExportSnapshot(args[0], f); err != nil {
		os.Remove(out)
		fatalf("Error exporting snapshot: %v", err)
	}
	fmt.Printf("Exported %s to %s\n", args[0], out)
}
