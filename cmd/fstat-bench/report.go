package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// BenchmarkResult stores the results of a benchmark
type BenchmarkResult struct {
	BenchmarkType string
	FileSize      uint64
	IOSize        uint64
	Blocks        int
	Operations    int
	Duration      float64
	Throughput    float64
	Latency       float64 // µs per operation
	Resizes       int     // For concurrent benchmarks
	Errors        int
	ExportedBytes uint64 // For export benchmarks
	Timestamp     time.Time
}

var csvHeader = []string{
	"Timestamp", "BenchmarkType", "FileSize", "IOSize", "Blocks",
	"Operations", "Duration", "Throughput", "Latency", "Resizes",
	"Errors", "ExportedBytes",
}

// SaveResultCSV appends results to a CSV file, writing the header when the
// file is new.
func SaveResultCSV(results []BenchmarkResult, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	_, statErr := os.Stat(filename)
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if os.IsNotExist(statErr) {
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
	}

	for _, r := range results {
		record := []string{
			r.Timestamp.Format(time.RFC3339),
			r.BenchmarkType,
			strconv.FormatUint(r.FileSize, 10),
			strconv.FormatUint(r.IOSize, 10),
			strconv.Itoa(r.Blocks),
			strconv.Itoa(r.Operations),
			fmt.Sprintf("%.2f", r.Duration),
			fmt.Sprintf("%.2f", r.Throughput),
			fmt.Sprintf("%.3f", r.Latency),
			strconv.Itoa(r.Resizes),
			strconv.Itoa(r.Errors),
			strconv.FormatUint(r.ExportedBytes, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// LoadResultCSV loads benchmark results from a CSV file
func LoadResultCSV(filename string) ([]BenchmarkResult, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	// Skip header
	if len(records) <= 1 {
		return []BenchmarkResult{}, nil
	}
	records = records[1:]

	results := make([]BenchmarkResult, 0, len(records))
	for _, record := range records {
		if len(record) < len(csvHeader) {
			continue
		}

		timestamp, _ := time.Parse(time.RFC3339, record[0])
		fileSize, _ := strconv.ParseUint(record[2], 10, 64)
		ioSize, _ := strconv.ParseUint(record[3], 10, 64)
		blocks, _ := strconv.Atoi(record[4])
		operations, _ := strconv.Atoi(record[5])
		duration, _ := strconv.ParseFloat(record[6], 64)
		throughput, _ := strconv.ParseFloat(record[7], 64)
		latency, _ := strconv.ParseFloat(record[8], 64)
		resizes, _ := strconv.Atoi(record[9])
		errs, _ := strconv.Atoi(record[10])
		exported, _ := strconv.ParseUint(record[11], 10, 64)

		results = append(results, BenchmarkResult{
			Timestamp:     timestamp,
			BenchmarkType: record[1],
			FileSize:      fileSize,
			IOSize:        ioSize,
			Blocks:        blocks,
			Operations:    operations,
			Duration:      duration,
			Throughput:    throughput,
			Latency:       latency,
			Resizes:       resizes,
			Errors:        errs,
			ExportedBytes: exported,
		})
	}

	return results, nil
}

// PrintResultTable prints a formatted table of benchmark results
func PrintResultTable(w io.Writer, results []BenchmarkResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results to display")
		return
	}

	fmt.Fprintln(w, "+------------------+--------+----------+-------------+----------+-----------+")
	fmt.Fprintln(w, "| Benchmark Type   | Blocks | I/O Size | Throughput  | Latency  | Extra     |")
	fmt.Fprintln(w, "+------------------+--------+----------+-------------+----------+-----------+")

	for _, r := range results {
		extra := "-"
		switch {
		case r.ExportedBytes > 0:
			extra = humanize.IBytes(r.ExportedBytes)
		case r.Resizes > 0:
			extra = fmt.Sprintf("%d resizes", r.Resizes)
		}

		latencyUnit := "µs"
		latency := r.Latency
		if latency > 1000 {
			latencyUnit = "ms"
			latency /= 1000
		}

		fmt.Fprintf(w, "| %-16s | %6d | %8s | %11.0f | %6.2f%s | %9s |\n",
			r.BenchmarkType,
			r.Blocks,
			humanize.IBytes(r.IOSize),
			r.Throughput,
			latency, latencyUnit,
			extra)
	}
	fmt.Fprintln(w, "+------------------+--------+----------+-------------+----------+-----------+")
}
