// Package main provides an end-to-end scenario runner for streamwatch. It
// boots the full stack against synthetic HLS origins with scriptable
// failures, then drives the recovery scenarios through the public HTTP API
// and SSE stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/angelstreet/streamwatch/internal/config"
	"github.com/angelstreet/streamwatch/internal/observability"
)

func main() {
	var (
		verbose    = flag.Bool("verbose", true, "Enable verbose output")
		timeout    = flag.Duration("timeout", DefaultTimeout, "Overall run timeout")
		serverLogs = flag.Bool("server-logs", false, "Print server logs to stderr")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// The harness log is noise unless something goes wrong; keep it off
	// unless asked for.
	logWriter := io.Writer(io.Discard)
	if *serverLogs {
		logWriter = os.Stderr
	}
	logger := observability.NewLoggerWithWriter(config.LoggingConfig{
		Level:  "debug",
		Format: "text",
	}, logWriter)

	harness, err := NewHarness(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start harness: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("streamwatch E2E Scenario Runner")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Base URL:   %s\n", harness.BaseURL())
	fmt.Printf("Devices:    %s\n", strings.Join(scenarioDevices, ", "))
	fmt.Printf("Timeout:    %v\n", *timeout)
	fmt.Println()

	runner := NewRunner(RunnerOptions{
		Harness: harness,
		Verbose: *verbose,
	})
	runErr := runner.Run(ctx)
	exitCode := runner.PrintSummary()
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", runErr)
		exitCode = 1
	}

	harness.Close()

	os.Stdout.Sync()
	os.Stderr.Sync()

	os.Exit(exitCode)
}
