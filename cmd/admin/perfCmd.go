package admin

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dDS/cmd/util"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the derivation engine",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads  = 10
	perfChainLength = 100
	perfIterations  = 1000
	perfSkip        = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. derive,fetch)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "chain-length"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("Length of the synthetic commit chain the benchmark derives"))
	key = "iterations"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per thread for the read benchmarks"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfChainLength = viper.GetInt("chain-length")
	perfIterations = viper.GetInt("iterations")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func shouldSkip(test string) bool {
	for _, s := range perfSkip {
		if strings.TrimSpace(s) == test {
			return true
		}
	}
	return false
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for the derivation engine")

	t, err := opType()
	if err != nil {
		return err
	}

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Type: %s\n", t)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Chain length: %d\n", perfChainLength)
	fmt.Printf("Iterations per thread: %d\n", perfIterations)
	fmt.Println()

	// The benchmark runs over its own synthetic chain so results do not
	// depend on the snapshot's shape
	chain, err := graph.AddChain(id.CommitId{}, perfChainLength)
	if err != nil {
		return fmt.Errorf("building benchmark chain: %w", err)
	}

	registry := metrics.NewRegistry()
	errCounter := metrics.GetOrRegisterCounter("errors", registry)

	fmt.Println("starting tests...")

	// derive: cold derivation, one commit at a time, oldest first
	if !shouldSkip("derive") {
		timer := metrics.GetOrRegisterTimer("derive", registry)
		for _, cid := range chain {
			start := time.Now()
			_, err := engine.Derive(cmd.Context(), cid, t)
			timer.UpdateSince(start)
			if err != nil {
				errCounter.Inc(1)
			}
		}
		printTimer("derive", timer)
	} else if err := deriveChain(cmd, chain, t); err != nil {
		// the read benchmarks need derived data even when derive is skipped
		return err
	}

	// fetch: parallel reads of already derived values
	if !shouldSkip("fetch") {
		timer := metrics.GetOrRegisterTimer("fetch", registry)
		runParallel(func(rng *rand.Rand) {
			cid := chain[rng.Intn(len(chain))]
			start := time.Now()
			_, ok, err := engine.Fetch(cmd.Context(), cid, t)
			timer.UpdateSince(start)
			if err != nil || !ok {
				errCounter.Inc(1)
			}
		})
		printTimer("fetch", timer)
	}

	// exists: parallel record lookups
	if !shouldSkip("exists") {
		timer := metrics.GetOrRegisterTimer("exists", registry)
		runParallel(func(rng *rand.Rand) {
			cid := chain[rng.Intn(len(chain))]
			start := time.Now()
			_, err := engine.Exists(cid, t)
			timer.UpdateSince(start)
			if err != nil {
				errCounter.Inc(1)
			}
		})
		printTimer("exists", timer)
	}

	fmt.Println()
	fmt.Printf("errors: %d\n", errCounter.Count())

	return nil
}

// deriveChain derives the whole chain without timing it
func deriveChain(cmd *cobra.Command, chain []id.CommitId, t id.DerivedDataType) error {
	if len(chain) == 0 {
		return nil
	}
	_, err := engine.Derive(cmd.Context(), chain[len(chain)-1], t)
	return err
}

// runParallel runs op on perfNumThreads goroutines, perfIterations times each
func runParallel(op func(rng *rand.Rand)) {
	var wg sync.WaitGroup
	for i := 0; i < perfNumThreads; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for j := 0; j < perfIterations; j++ {
				op(rng)
			}
		}(int64(i))
	}
	wg.Wait()
}

func printTimer(test string, timer metrics.Timer) {
	snapshot := timer.Snapshot()
	ps := snapshot.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-8s count=%d mean=%s p50=%s p95=%s p99=%s rate=%.1f/s\n",
		test,
		snapshot.Count(),
		time.Duration(int64(snapshot.Mean())),
		time.Duration(int64(ps[0])),
		time.Duration(int64(ps[1])),
		time.Duration(int64(ps[2])),
		snapshot.RateMean(),
	)
}
