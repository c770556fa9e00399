package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/KevoDB/filestats/pkg/filestats"
)

var (
	benchmarkType = flag.String("type", "all", "Benchmark to run (record, sequential-write, random-read, concurrent, export, or all)")
	duration      = flag.Duration("duration", 5*time.Second, "Duration of each benchmark")
	fileSize      = flag.String("file-size", "64MiB", "Size of the tracked file")
	ioSize        = flag.String("io-size", "4KiB", "Size of each read or write")
	rangeShift    = flag.Uint("range-shift", filestats.DefaultMinRangeShift, "Minimum block shift")
	rangeCount    = flag.Uint64("range-count", filestats.DefaultMaxRangeCount, "Maximum number of blocks")
	workers       = flag.Int("workers", runtime.GOMAXPROCS(0), "Goroutines recording in the concurrent benchmark")
	dataDir       = flag.String("data-dir", "./benchmark-data", "Directory for the benchmark file")
	cpuProfile    = flag.String("cpu-profile", "", "Write CPU profile to file")
	memProfile    = flag.String("mem-profile", "", "Write memory profile to file")
	resultsFile   = flag.String("results", "", "CSV file to append results to")
)

// benchOptions is the parsed form of the command line flags.
type benchOptions struct {
	duration   time.Duration
	fileSize   uint64
	ioSize     uint64
	rangeShift uint
	rangeCount uint64
	workers    int
	dataDir    string
}

func (o benchOptions) collector() *filestats.Collector {
	c := filestats.NewCollector(
		filestats.WithRangeShift(o.rangeShift),
		filestats.WithMaxRangeCount(o.rangeCount),
	)
	c.Activate(true)
	return c
}

func main() {
	flag.Parse()

	opts, err := parseOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if err := os.MkdirAll(opts.dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create benchmark directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Benchmark Report (%s)\n", time.Now().Format(time.RFC3339))
	fmt.Printf("File: %s, I/O: %s, Duration: %s, Geometry: shift %d / %d blocks\n",
		humanize.IBytes(opts.fileSize), humanize.IBytes(opts.ioSize), opts.duration, opts.rangeShift, opts.rangeCount)

	var results []BenchmarkResult
	for _, typ := range strings.Split(*benchmarkType, ",") {
		rs, err := runBenchmarks(strings.ToLower(strings.TrimSpace(typ)), opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Benchmark %s failed: %v\n", typ, err)
			os.Exit(1)
		}
		results = append(results, rs...)
	}

	PrintResultTable(os.Stdout, results)

	if *resultsFile != "" {
		if err := SaveResultCSV(results, *resultsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write results to file: %v\n", err)
		}
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
		} else {
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
			}
		}
	}
}

func parseOptions() (benchOptions, error) {
	size, err := humanize.ParseBytes(*fileSize)
	if err != nil {
		return benchOptions{}, fmt.Errorf("invalid -file-size: %w", err)
	}
	ioBytes, err := humanize.ParseBytes(*ioSize)
	if err != nil || ioBytes == 0 {
		return benchOptions{}, fmt.Errorf("invalid -io-size %q", *ioSize)
	}
	if *workers < 1 {
		return benchOptions{}, fmt.Errorf("-workers must be positive")
	}
	return benchOptions{
		duration:   *duration,
		fileSize:   size,
		ioSize:     ioBytes,
		rangeShift: *rangeShift,
		rangeCount: *rangeCount,
		workers:    *workers,
		dataDir:    *dataDir,
	}, nil
}

func runBenchmarks(typ string, opts benchOptions) ([]BenchmarkResult, error) {
	switch typ {
	case "record":
		return []BenchmarkResult{runRecordBenchmark(opts)}, nil
	case "sequential-write":
		r, err := runSequentialWriteBenchmark(opts)
		return []BenchmarkResult{r}, err
	case "random-read":
		r, err := runRandomReadBenchmark(opts)
		return []BenchmarkResult{r}, err
	case "concurrent":
		return []BenchmarkResult{runConcurrentBenchmark(opts)}, nil
	case "export":
		r, err := runExportBenchmark(opts)
		return []BenchmarkResult{r}, err
	case "all":
		var results []BenchmarkResult
		for _, t := range []string{"record", "sequential-write", "random-read", "concurrent", "export"} {
			rs, err := runBenchmarks(t, opts)
			if err != nil {
				return results, err
			}
			results = append(results, rs...)
		}
		return results, nil
	}
	return nil, fmt.Errorf("unknown benchmark type: %s", typ)
}

func newResult(typ string, opts benchOptions, ops int, elapsed time.Duration) BenchmarkResult {
	r := BenchmarkResult{
		BenchmarkType: typ,
		FileSize:      opts.fileSize,
		IOSize:        opts.ioSize,
		Operations:    ops,
		Duration:      elapsed.Seconds(),
		Timestamp:     time.Now(),
	}
	if ops > 0 && elapsed > 0 {
		r.Throughput = float64(ops) / elapsed.Seconds()
		r.Latency = float64(elapsed.Microseconds()) / float64(ops)
	}
	return r
}

// runRecordBenchmark measures the raw cost of recording events of every kind.
func runRecordBenchmark(opts benchOptions) BenchmarkResult {
	fmt.Println("Running Record Benchmark...")

	c := opts.collector()
	c.Resize(opts.fileSize)
	kinds := filestats.EventKinds()
	rng := rand.New(rand.NewSource(1))

	start := time.Now()
	deadline := start.Add(opts.duration)
	ops := 0
	for time.Now().Before(deadline) {
		for i := 0; i < 1000; i++ {
			off := uint64(rng.Int63n(int64(opts.fileSize) + 1))
			c.Record(kinds[ops%len(kinds)], off, opts.ioSize)
			ops++
		}
	}

	r := newResult("Record", opts, ops, time.Since(start))
	r.Blocks = c.BlockCount()
	return r
}

func openBenchFile(opts benchOptions, name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(opts.dataDir, name), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
}

// runSequentialWriteBenchmark appends to a fresh file, growing the
// collector as the file grows.
func runSequentialWriteBenchmark(opts benchOptions) (BenchmarkResult, error) {
	fmt.Println("Running Sequential Write Benchmark...")

	f, err := openBenchFile(opts, "sequential.dat")
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	tf := filestats.NewTrackedFile(f, 0, opts.collector())
	buf := make([]byte, opts.ioSize)

	start := time.Now()
	deadline := start.Add(opts.duration)
	ops := 0
	var off uint64
	for time.Now().Before(deadline) {
		if off+opts.ioSize > opts.fileSize {
			off = 0
		}
		if _, err := tf.WriteAt(buf, int64(off)); err != nil {
			return BenchmarkResult{}, fmt.Errorf("write at %d: %w", off, err)
		}
		off += opts.ioSize
		ops++
	}

	r := newResult("Sequential Write", opts, ops, time.Since(start))
	r.Blocks = tf.Collector().BlockCount()
	return r, nil
}

// runRandomReadBenchmark reads random offsets of a preallocated file.
func runRandomReadBenchmark(opts benchOptions) (BenchmarkResult, error) {
	fmt.Println("Running Random Read Benchmark...")

	f, err := openBenchFile(opts, "random.dat")
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := f.Truncate(int64(opts.fileSize)); err != nil {
		return BenchmarkResult{}, err
	}

	tf := filestats.NewTrackedFile(f, opts.fileSize, opts.collector())
	buf := make([]byte, opts.ioSize)
	rng := rand.New(rand.NewSource(2))
	span := int64(1)
	if opts.fileSize > opts.ioSize {
		span = int64(opts.fileSize - opts.ioSize)
	}

	start := time.Now()
	deadline := start.Add(opts.duration)
	ops := 0
	for time.Now().Before(deadline) {
		if _, err := tf.ReadAt(buf, rng.Int63n(span)); err != nil && !errors.Is(err, io.EOF) {
			return BenchmarkResult{}, err
		}
		ops++
	}

	r := newResult("Random Read", opts, ops, time.Since(start))
	r.Blocks = tf.Collector().BlockCount()
	return r, nil
}

// runConcurrentBenchmark records from several goroutines while the file
// keeps changing size and being exported.
func runConcurrentBenchmark(opts benchOptions) BenchmarkResult {
	fmt.Printf("Running Concurrent Benchmark (%d workers)...\n", opts.workers)

	c := opts.collector()
	c.Resize(opts.fileSize)

	var (
		ops          atomic.Int64
		resizes      int
		exportErrors int
		stop         atomic.Bool
		wg           sync.WaitGroup
	)

	start := time.Now()
	for w := 0; w < opts.workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			kinds := filestats.EventKinds()
			n := int64(0)
			for !stop.Load() {
				off := uint64(rng.Int63n(int64(opts.fileSize) + 1))
				c.Record(kinds[rng.Intn(len(kinds))], off, opts.ioSize)
				n++
			}
			ops.Add(n)
		}(int64(w))
	}

	deadline := start.Add(opts.duration)
	size := opts.fileSize
	for time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		size += opts.fileSize / 16
		c.Resize(size)
		resizes++
		if _, err := c.ExportStatistics(); err != nil {
			exportErrors++
		}
	}
	stop.Store(true)
	wg.Wait()

	r := newResult("Concurrent", opts, int(ops.Load()), time.Since(start))
	r.Blocks = c.BlockCount()
	r.Resizes = resizes
	r.Errors = exportErrors
	return r
}

// runExportBenchmark measures export throughput through a registry so
// buffers come from and return to the shared pool.
func runExportBenchmark(opts benchOptions) (BenchmarkResult, error) {
	fmt.Println("Running Export Benchmark...")

	registry := filestats.NewRegistry(filestats.WithCollectorOptions(
		filestats.WithRangeShift(opts.rangeShift),
		filestats.WithMaxRangeCount(opts.rangeCount),
	))
	defer registry.Close()

	c := registry.EnableCollector("bench", true)
	c.Resize(opts.fileSize)
	for off := uint64(0); off < opts.fileSize; off += c.BlockSize() {
		c.RecordFileWrite(off, 1)
	}

	start := time.Now()
	deadline := start.Add(opts.duration)
	ops := 0
	var exported uint64
	for time.Now().Before(deadline) {
		buf, _, err := registry.ExportStatistics("bench")
		if err != nil {
			return BenchmarkResult{}, err
		}
		exported += uint64(len(buf))
		registry.ReleaseExport(buf)
		ops++
	}

	r := newResult("Export", opts, ops, time.Since(start))
	r.Blocks = c.BlockCount()
	r.ExportedBytes = exported
	return r, nil
}
