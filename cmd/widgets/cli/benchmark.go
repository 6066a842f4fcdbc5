package cli

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/widgets/internal/store"
)

func newBenchmarkCmd() *cobra.Command {
	var (
		driver      string
		dsn         string
		duration    time.Duration
		concurrency int
		missEvery   int
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Benchmark API key authentication throughput",
		Long: `Run a load test of API key authentication against the configured database.
Workers repeatedly authenticate the currently active keys for the given duration.
No keys are issued or deactivated.`,
		Example: `  widgets benchmark --duration 30s --concurrency 50
  widgets benchmark --driver postgres --dsn "postgres://localhost/widgets" --miss-every 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(driver, dsn, duration, concurrency, missEvery)
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "Database driver (default database.driver)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Connection string (default database.dsn)")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "Test duration")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "Number of concurrent workers")
	cmd.Flags().IntVar(&missEvery, "miss-every", 0, "Present an unknown key every N requests (0 disables)")

	return cmd
}

// sanitizeDSN redacts passwords from DSN strings for display purposes.
func sanitizeDSN(dsn string) string {
	// Mask anything between "://" user:PASSWORD@ patterns
	if idx := strings.Index(dsn, "://"); idx != -1 {
		rest := dsn[idx+3:]
		if atIdx := strings.Index(rest, "@"); atIdx != -1 {
			if colonIdx := strings.Index(rest[:atIdx], ":"); colonIdx != -1 {
				return dsn[:idx+3] + rest[:colonIdx] + ":****@" + rest[atIdx+1:]
			}
		}
	}
	return dsn
}

// memStats captures a snapshot of memory statistics for reporting.
type memStats struct {
	HeapAlloc uint64
	Sys       uint64
}

func captureMemStats() memStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return memStats{HeapAlloc: m.HeapAlloc, Sys: m.Sys}
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// percentile returns the p-th percentile of sorted latencies.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// benchResult is the tally of one benchmark run.
type benchResult struct {
	valid     int64
	invalid   int64
	errors    int64
	latencies []time.Duration
}

// runAuthLoad authenticates keys from concurrency workers until ctx is done.
// Every missEvery-th request per worker uses a key that cannot exist.
func runAuthLoad(ctx context.Context, st *store.Store, keys []string, concurrency, missEvery int) *benchResult {
	var (
		valid, invalid, errs atomic.Int64
		latencies            = make([]time.Duration, 0, 100000)
		latencyMu            sync.Mutex
		wg                   sync.WaitGroup
	)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			local := make([]time.Duration, 0, 1024)
			for i := 0; ctx.Err() == nil; i++ {
				key := keys[(worker+i)%len(keys)]
				if missEvery > 0 && i%missEvery == missEvery-1 {
					key = fmt.Sprintf("benchmark-miss-%d-%d", worker, i)
				}

				start := time.Now()
				res, err := st.AuthenticateAPIKey(ctx, key)
				elapsed := time.Since(start)

				switch {
				case err != nil:
					if ctx.Err() == nil {
						errs.Add(1)
					}
					continue
				case res.Valid():
					valid.Add(1)
				default:
					invalid.Add(1)
				}
				local = append(local, elapsed)
			}
			latencyMu.Lock()
			latencies = append(latencies, local...)
			latencyMu.Unlock()
		}(w)
	}

	wg.Wait()
	return &benchResult{
		valid:     valid.Load(),
		invalid:   invalid.Load(),
		errors:    errs.Load(),
		latencies: latencies,
	}
}

func runBenchmark(driver, dsn string, duration time.Duration, concurrency, missEvery int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if driver != "" {
		cfg.Database.Driver = driver
	}
	if dsn != "" {
		cfg.Database.DSN = dsn
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Pool.MaxOpenConns < concurrency+5 {
		cfg.Database.Pool.MaxOpenConns = concurrency + 5
		cfg.Database.Pool.MaxIdleConns = concurrency
	}

	fmt.Println("widgets authentication benchmark")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Target: %s @ %s\n", cfg.Database.Driver, sanitizeDSN(cfg.Database.DSN))
	fmt.Printf("Duration: %s | Concurrency: %d\n", duration, concurrency)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	memBefore := captureMemStats()

	fmt.Print("Connecting... ")
	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Println("ok")

	active, err := st.ListAPIKeys(ctx, true)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}
	if len(active) == 0 {
		return fmt.Errorf("no active API keys to authenticate; issue one with 'widgets key issue'")
	}
	keys := make([]string, len(active))
	for i, k := range active {
		keys[i] = k.Key
	}
	fmt.Printf("Using %d active keys\n\n", len(keys))
	fmt.Println("Running benchmark...")
	fmt.Println()

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	start := time.Now()
	res := runAuthLoad(runCtx, st, keys, concurrency, missEvery)
	elapsed := time.Since(start)

	memAfter := captureMemStats()

	total := res.valid + res.invalid
	fmt.Println("Results")
	fmt.Println("-------")
	fmt.Printf("  Total lookups:  %d\n", total)
	fmt.Printf("  Valid:          %d\n", res.valid)
	fmt.Printf("  Invalid:        %d\n", res.invalid)
	fmt.Printf("  Errors:         %d\n", res.errors)
	fmt.Printf("  Lookups/sec:    %.1f\n", float64(total)/elapsed.Seconds())

	if len(res.latencies) > 0 {
		sort.Slice(res.latencies, func(i, j int) bool {
			return res.latencies[i] < res.latencies[j]
		})
		fmt.Printf("  Latency p50:    %s\n", percentile(res.latencies, 50))
		fmt.Printf("  Latency p95:    %s\n", percentile(res.latencies, 95))
		fmt.Printf("  Latency p99:    %s\n", percentile(res.latencies, 99))
		fmt.Printf("  Latency max:    %s\n", res.latencies[len(res.latencies)-1])
	}

	fmt.Println()
	fmt.Println("Memory")
	fmt.Println("------")
	fmt.Printf("  Heap before:    %s\n", formatBytes(memBefore.HeapAlloc))
	fmt.Printf("  Heap after:     %s\n", formatBytes(memAfter.HeapAlloc))
	fmt.Printf("  RSS (sys) before: %s\n", formatBytes(memBefore.Sys))
	fmt.Printf("  RSS (sys) after:  %s\n", formatBytes(memAfter.Sys))

	return nil
}
