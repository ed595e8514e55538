// Package main provides a performance benchmarking tool for the attendrisk engine.
// It generates synthetic terms of increasing size, evaluates each one several times
// per worker count, treating the first run as cold and averaging the rest as warm,
// and writes the timings to CSV for performance analysis and documentation.
//
// Usage: go run benchmark/main.go [output-dir]
//
//	output-dir: Directory for the CSV results (default: os.TempDir())
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/attendrisk/attendrisk/core"
	"github.com/attendrisk/attendrisk/schema"
)

// BenchmarkResult holds the timings of one term size and worker count.
type BenchmarkResult struct {
	Term     string
	Students int
	Sessions int
	Workers  int
	Events   int
	ColdTime string
	WarmTime string
}

// TermSize describes one synthetic term.
type TermSize struct {
	Name     string
	Students int
	Sessions int
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	OutputDir string
	Timeout   time.Duration
	Runs      int
	Workers   []int
	Terms     []TermSize
}

func main() {
	outputDir := os.TempDir()
	if len(os.Args) > 2 {
		fmt.Printf("Usage: %s [output-dir]\n", os.Args[0])
		os.Exit(1)
	}
	if len(os.Args) == 2 {
		outputDir = os.Args[1]
	}

	config := BenchmarkConfig{
		OutputDir: outputDir,
		Timeout:   2 * time.Minute,
		Runs:      4,
		Workers:   []int{1, 4, 14},
		Terms: []TermSize{
			{Name: "seminar", Students: 30, Sessions: 12},
			{Name: "course", Students: 300, Sessions: 40},
			{Name: "faculty", Students: 5000, Sessions: 60},
		},
	}

	results := runBenchmarks(config)

	if err := saveResults(config.OutputDir, results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// runBenchmarks evaluates every configured term with every worker count.
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d terms, %v timeout, workers %v, %d runs each\n",
		len(config.Terms), config.Timeout, config.Workers, config.Runs)

	for _, term := range config.Terms {
		data, cfg := generateTerm(term)
		fmt.Printf("Benchmarking %s (%d students, %d sessions, %d events)\n", term.Name, term.Students, term.Sessions, data.Len())
		for _, workers := range config.Workers {
			results = append(results, runBenchmarkSuite(config, term, workers, data, cfg))
		}
	}
	return results
}

// runBenchmarkSuite runs one term and worker count several times.
func runBenchmarkSuite(config BenchmarkConfig, term TermSize, workers int, data schema.TermData, cfg schema.EngineConfig) BenchmarkResult {
	engine := core.NewEngine(core.WithWorkers(workers))

	var times []float64
	for range config.Runs {
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		start := time.Now()
		result, err := engine.Evaluate(ctx, data, cfg)
		elapsed := time.Since(start)
		cancel()
		if err != nil || result.Summary.Cancelled {
			// Timeout or failure - don't add to times
			continue
		}
		times = append(times, elapsed.Seconds())
	}

	coldTime, warmTime := "TIMEOUT", "TIMEOUT"
	if len(times) > 0 {
		coldTime = fmt.Sprintf("%.3fs", times[0])
	}
	if len(times) > 1 {
		var sum float64
		for _, t := range times[1:] {
			sum += t
		}
		warmTime = fmt.Sprintf("%.3fs", sum/float64(len(times)-1))
	}
	fmt.Printf("  %2d workers: cold %s, warm average %s\n", workers, coldTime, warmTime)

	return BenchmarkResult{
		Term:     term.Name,
		Students: term.Students,
		Sessions: term.Sessions,
		Workers:  workers,
		Events:   data.Len(),
		ColdTime: coldTime,
		WarmTime: warmTime,
	}
}

// generateTerm builds a reproducible term where each student has a personal
// attendance rate, so the batch spans every risk label.
func generateTerm(term TermSize) (schema.TermData, schema.EngineConfig) {
	rng := rand.New(rand.NewPCG(uint64(term.Students), uint64(term.Sessions)))
	start := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)

	cfg := schema.DefaultEngineConfig()
	cfg.PlannedSessions = term.Sessions + term.Sessions/2
	for i := range term.Sessions {
		s := start.AddDate(0, 0, i)
		cfg.Sessions = append(cfg.Sessions, schema.SessionWindow{ID: "s" + strconv.Itoa(i+1), Start: s, End: s.Add(90 * time.Minute)})
	}

	var data schema.TermData
	for st := range term.Students {
		studentID := fmt.Sprintf("student-%05d", st)
		rate := 0.4 + 0.6*rng.Float64()
		for _, session := range cfg.Sessions {
			if rng.Float64() > rate {
				continue
			}
			arrival := session.Start.Add(time.Duration(rng.IntN(30)-5) * time.Minute)
			if rng.IntN(2) == 0 {
				data.Logs = append(data.Logs, schema.LogRecord{
					StudentID: studentID,
					SessionID: session.ID,
					Timestamp: arrival.Format(time.RFC3339),
					Uncertain: rng.IntN(10) == 0,
				})
			}
			data.Detections = append(data.Detections, schema.VisionDetection{
				FrameTimestamp:     arrival.Add(time.Minute).Format(time.RFC3339),
				StudentID:          studentID,
				DetectorConfidence: 0.3 + 0.7*rng.Float64(),
			})
		}
	}
	return data, cfg
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(outputDir string, results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("attendrisk_benchmark_%s.csv", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"term", "students", "sessions", "workers", "events", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range results {
		record := []string{
			r.Term,
			strconv.Itoa(r.Students),
			strconv.Itoa(r.Sessions),
			strconv.Itoa(r.Workers),
			strconv.Itoa(r.Events),
			r.ColdTime,
			r.WarmTime,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, r := range results {
		fmt.Printf("  %-8s %2d workers: Cold: %s, Warm: %s\n", r.Term, r.Workers, r.ColdTime, r.WarmTime)
	}
}
