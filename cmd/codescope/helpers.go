package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"codescope/internal/service"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// mustGetService constructs the service or exits with an error.
func mustGetService() *service.Service {
	svc, err := service.New(service.Options{Root: rootFlag})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing codescope: %v\n", err)
		os.Exit(1)
	}
	return svc
}

// newContext returns the default command context with a generous
// deadline so stuck providers cannot hang the CLI forever.
func newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}

// printResult renders v as indented JSON when format is json,
// otherwise calls human to render a readable view.
func printResult(v interface{}, format string, human func()) {
	if OutputFormat(format) == FormatJSON {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}
	human()
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
