// Benchmark tool for load-testing Kestrel quote computation.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/scenarios.csv -url http://localhost:8080
//
// This tool:
//   1. Reads answer scenarios from a CSV (header row names the answer fields;
//      an optional expected_grand_total column enables total verification)
//   2. Sends each scenario to Kestrel for quote computation
//   3. Optionally replays every scenario to verify deterministic totals
//   4. Reports latency, throughput, warning rates, and total mismatches
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Scenario is one answer set, optionally with an expected grand total.
type Scenario struct {
	Answers       map[string]any
	ExpectedTotal float64
	HasExpected   bool
}

// QuoteRequest is the Kestrel API request format.
type QuoteRequest struct {
	Answers map[string]any `json:"answers"`
}

// QuoteResponse is the subset of the Kestrel API response the benchmark reads.
type QuoteResponse struct {
	ID           string             `json:"id"`
	Totals       map[string]float64 `json:"totals"`
	MonthlyTotal float64            `json:"monthlyTotal"`
	OneTimeTotal float64            `json:"oneTimeTotal"`
	GrandTotal   float64            `json:"grandTotal"`
	Metadata     struct {
		RulesEvaluated int   `json:"rulesEvaluated"`
		Warnings       int   `json:"warnings"`
		EvalMs         int64 `json:"evalMs"`
	} `json:"metadata"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalWarnings  int64
	ZeroQuotes     int64

	TotalMatches    int64 // expected grand total matched
	TotalMismatches int64 // expected grand total did not match
	Nondeterminism  int64 // replay produced a different grand total

	ProcessingTimeMs int64
	ServerEvalMs     int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to scenario CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum scenarios to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	replay := flag.Bool("replay", false, "Replay each scenario to verify deterministic totals")
	verbose := flag.Bool("verbose", false, "Print each scenario result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/scenarios.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL BENCHMARK - Quote Computation              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Replay:      %v\n", *replay)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read scenarios
	fmt.Printf("\nReading scenarios from %s...\n", *csvPath)
	scenarios, err := readScenarioCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d scenarios\n", len(scenarios))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(scenarios, *baseURL, *tenantID, *workers, *replay, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readScenarioCSV parses scenarios. Every header column becomes an answer
// field; numeric cells become numbers, "true"/"false" become booleans, and
// the expected_grand_total column (if present) is held out for verification.
func readScenarioCSV(path string, limit int) ([]Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	expectedCol := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "expected_grand_total") {
			expectedCol = i
		}
	}

	var scenarios []Scenario

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		s := Scenario{Answers: make(map[string]any, len(header))}

		for i, cell := range record {
			if i >= len(header) {
				break
			}
			if i == expectedCol {
				if v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
					s.ExpectedTotal = v
					s.HasExpected = true
				}
				continue
			}
			s.Answers[strings.TrimSpace(header[i])] = parseCell(cell)
		}

		scenarios = append(scenarios, s)

		if limit > 0 && len(scenarios) >= limit {
			break
		}
	}

	return scenarios, nil
}

func parseCell(cell string) any {
	cell = strings.TrimSpace(cell)
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v
	}
	if strings.EqualFold(cell, "true") {
		return true
	}
	if strings.EqualFold(cell, "false") {
		return false
	}
	return cell
}

func runBenchmark(scenarios []Scenario, baseURL, tenantID string, numWorkers int, replay, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Scenario, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				result, err := computeQuote(client, baseURL, tenantID, s)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				atomic.AddInt64(&metrics.ServerEvalMs, result.Metadata.EvalMs)
				atomic.AddInt64(&metrics.TotalWarnings, int64(result.Metadata.Warnings))

				if result.GrandTotal == 0 {
					atomic.AddInt64(&metrics.ZeroQuotes, 1)
				}

				if s.HasExpected {
					if result.GrandTotal == s.ExpectedTotal {
						atomic.AddInt64(&metrics.TotalMatches, 1)
					} else {
						atomic.AddInt64(&metrics.TotalMismatches, 1)
						if verbose {
							fmt.Printf("MISMATCH: expected %.2f, got %.2f\n", s.ExpectedTotal, result.GrandTotal)
						}
					}
				}

				if replay {
					second, err := computeQuote(client, baseURL, tenantID, s)
					if err == nil && second.GrandTotal != result.GrandTotal {
						atomic.AddInt64(&metrics.Nondeterminism, 1)
						if verbose {
							fmt.Printf("NONDETERMINISTIC: %.2f then %.2f\n", result.GrandTotal, second.GrandTotal)
						}
					}
				}

				if verbose {
					fmt.Printf("✓ grand: $%10.2f | monthly: $%10.2f | one-time: $%10.2f | rules: %d | warnings: %d | %dms\n",
						result.GrandTotal,
						result.MonthlyTotal,
						result.OneTimeTotal,
						result.Metadata.RulesEvaluated,
						result.Metadata.Warnings,
						elapsed,
					)
				}
			}
		}()
	}

	for _, s := range scenarios {
		work <- s
	}
	close(work)

	wg.Wait()

	return metrics
}

func computeQuote(client *http.Client, baseURL, tenantID string, s Scenario) (*QuoteResponse, error) {
	body, err := json.Marshal(QuoteRequest{Answers: s.Answers})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/quote", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 SCENARIO STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Zero Quotes:      %d\n", m.ZeroQuotes)
	fmt.Printf("   Trace Warnings:   %d\n", m.TotalWarnings)

	if m.TotalMatches+m.TotalMismatches > 0 {
		fmt.Printf("\n🎯 TOTAL VERIFICATION\n")
		fmt.Printf("   Matches:     %d\n", m.TotalMatches)
		fmt.Printf("   Mismatches:  %d\n", m.TotalMismatches)
		accuracy := float64(m.TotalMatches) / float64(m.TotalMatches+m.TotalMismatches)
		fmt.Printf("   Accuracy:    %.4f\n", accuracy)
	}

	if m.Nondeterminism > 0 {
		fmt.Printf("\n⚠️  NONDETERMINISM DETECTED: %d replays produced different totals\n", m.Nondeterminism)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		avgEvalMs := float64(m.ServerEvalMs) / float64(m.TotalProcessed)
		qps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms (round trip)\n", avgMs)
		fmt.Printf("   Avg Eval Time:    %.2f ms (server side)\n", avgEvalMs)
		fmt.Printf("   Throughput:       %.2f quotes/sec\n", qps)
	}

	fmt.Println()
}
