//nolint:errcheck,wrapcheck // E2E test runner uses relaxed linting
package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Runner runs the scenario suite against a harness.
type Runner struct {
	harness      *Harness
	client       *APIClient
	sseCollector *SSECollector
	verbose      bool
	results      []TestResult
}

// RunnerOptions holds configuration for the scenario runner.
type RunnerOptions struct {
	Harness *Harness
	Verbose bool
}

// NewRunner creates a new scenario runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		harness:      opts.Harness,
		client:       NewAPIClient(opts.Harness.BaseURL()),
		sseCollector: NewSSECollector(opts.Harness.BaseURL()),
		verbose:      opts.Verbose,
	}
}

// log prints a message if verbose mode is enabled.
func (r *Runner) log(format string, args ...interface{}) {
	if r.verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// runTest executes a scenario and records the result.
func (r *Runner) runTest(name, info string, fn func(ctx context.Context) error) {
	start := time.Now()
	r.log("Running: %s", name)
	if info != "" {
		r.log("  [INFO] %s", info)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ScenarioTimeout)
	err := fn(ctx)
	cancel()
	elapsed := time.Since(start)

	result := TestResult{
		Name:    name,
		Passed:  err == nil,
		Elapsed: elapsed,
	}

	if err != nil {
		result.Message = err.Error()
		r.log("  FAILED: %s (%.2fs)", err.Error(), elapsed.Seconds())
	} else {
		result.Message = "OK"
		r.log("  PASSED (%.2fs)", elapsed.Seconds())
	}

	r.results = append(r.results, result)
}

// Run executes the full scenario suite.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.sseCollector.Start(ctx); err != nil {
		return fmt.Errorf("starting SSE collector: %w", err)
	}
	defer r.sseCollector.Stop()

	// Give the SSE connection time to establish
	time.Sleep(200 * time.Millisecond)

	r.runTest("health check", "server reports healthy", r.testHealth)
	r.runTest("version endpoint", "", r.testVersion)
	r.runTest("scenario A: recoverable error self-heals", "corrupt segments trigger soft recovery, fresh segments clear the error", r.scenarioRecoverableError)
	r.runTest("scenario B: segment drought marks stuck", "consecutive segment 404s exhaust the budget", r.scenarioStuck)
	r.runTest("scenario C: missing manifest is terminal", "manifest 404 ends the session with no retries", r.scenarioTerminal)
	r.runTest("scenario D: pause then resume keeps the stream", "resume with a loaded source does not rebuild the transport", r.scenarioPauseResume)
	r.runTest("scenario E: fatal errors escalate to native", "persistent playlist failures switch the transport kind", r.scenarioNativeEscalation)
	r.runTest("scenario F: visibility return restarts a stuck session", "hidden then visible clears stuck with one restart", r.scenarioVisibilityRestart)
	r.runTest("device conflict", "second session for a busy device is rejected", r.testDeviceBusy)
	r.runTest("session history", "persisted events are queryable after the fact", r.testHistory)

	return nil
}

// PrintSummary prints the results and returns the process exit code.
func (r *Runner) PrintSummary() int {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("Scenario Results")
	fmt.Println(strings.Repeat("=", 60))

	passed := 0
	failed := 0
	var totalTime time.Duration

	for _, result := range r.results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
			failed++
		} else {
			passed++
		}
		totalTime += result.Elapsed
		fmt.Printf("[%s] %s (%.2fs)\n", status, result.Name, result.Elapsed.Seconds())
		if !result.Passed {
			fmt.Printf("       Error: %s\n", result.Message)
		}
	}

	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Total: %d scenarios, %d passed, %d failed (%.2fs)\n",
		len(r.results), passed, failed, totalTime.Seconds())

	if r.verbose {
		r.sseCollector.PrintTimeline()
	}

	if failed > 0 {
		return 1
	}
	return 0
}
