package tree

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	cmdUtil "github.com/ValentinKolb/dTree/cmd/util"
	"github.com/ValentinKolb/dTree/lib/util"
	"github.com/ValentinKolb/dTree/rpc/client"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dTree servers",
		Long:    "Runs a set of benchmarks against the shard. Every benchmark uses its own key prefix and removes its keys afterwards.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__perf"
	perfValueSize  = 128
	perfNumThreads = 10
	perfOps        = 1000
	perfKeySpread  = 100
	perfSkip       = make([]string, 0)
)

// perfResult is the outcome of one benchmark
type perfResult struct {
	name      string
	timer     metrics.Timer
	errors    metrics.Counter
	duration  time.Duration
	perThread util.Stats // throughput of the threads in ops/sec
	skipped   bool
}

// benchmark is one operation executed by a thread. i counts the operations of the thread.
type benchmark struct {
	name    string
	prepare func(ctx context.Context, keys []string) error
	op      func(ctx context.Context, keys []string, thread, i int) error
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", cmdUtil.WrapString("Benchmarks to skip (comma separated, e.g. put,scan)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, cmdUtil.WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 1000, cmdUtil.WrapString("Operations per thread and benchmark"))
	key = "value-size"
	perfTestCmd.Flags().Int(key, 128, cmdUtil.WrapString("Size of the written values in bytes"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, cmdUtil.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", cmdUtil.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfValueSize = viper.GetInt("value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfOps = max(viper.GetInt("ops"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	config, err := cmdUtil.GetClientConfig()
	if err != nil {
		return err
	}

	fmt.Println("Performance testing tool for dTree servers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.ClientConfig.String())
	fmt.Printf("Threads: %d, Ops per thread: %d, Keys: %d, Value size: %d bytes\n",
		perfNumThreads, perfOps, perfKeySpread, perfValueSize)
	fmt.Println()

	value := make([]byte, perfValueSize)
	registry := metrics.NewRegistry()

	benchmarks := []benchmark{
		{
			name: "put",
			op: func(ctx context.Context, keys []string, _, i int) error {
				_, err := treeMap.Put(ctx, keys[i%len(keys)], value)
				return err
			},
		},
		{
			name:    "get",
			prepare: fill(value),
			op: func(ctx context.Context, keys []string, _, i int) error {
				_, _, err := treeMap.Get(ctx, keys[i%len(keys)])
				return err
			},
		},
		{
			// compare and swap loop, conflicts between threads are retried
			name:    "replace",
			prepare: fill(value),
			op: func(ctx context.Context, keys []string, thread, i int) error {
				key := keys[(thread+i)%len(keys)]
				for {
					current, _, err := treeMap.Get(ctx, key)
					if err != nil {
						return err
					}
					_, err = treeMap.Replace(ctx, key, value, current.Version)
					if !client.IsVersionMismatch(err) {
						return err
					}
				}
			},
		},
		{
			name:    "floor",
			prepare: fill(value),
			op: func(ctx context.Context, keys []string, _, i int) error {
				_, _, err := treeMap.FloorEntry(ctx, keys[i%len(keys)]+"~")
				return err
			},
		},
		{
			name:    "scan",
			prepare: fill(value),
			op: func(ctx context.Context, keys []string, _, _ int) error {
				return treeMap.ForEach(ctx, prefixRange(keys), false, func(client.Entry[string]) error { return nil })
			},
		},
		{
			name:    "iterate",
			prepare: fill(value),
			op: func(ctx context.Context, keys []string, _, _ int) error {
				cursor, err := treeMap.Iterate(ctx, prefixRange(keys))
				if err != nil {
					return err
				}
				for _, err := range cursor.Iterator(ctx, 50) {
					if err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			name:    "mixed",
			prepare: fill(value),
			op: func(ctx context.Context, keys []string, _, i int) error {
				key := keys[i%len(keys)]
				var err error
				switch i % 4 {
				case 0:
					_, err = treeMap.Put(ctx, key, value)
				case 1:
					_, _, err = treeMap.Get(ctx, key)
				case 2:
					_, _, err = treeMap.CeilingEntry(ctx, key)
				case 3:
					_, err = treeMap.ContainsKey(ctx, key)
				}
				return err
			},
		},
	}

	fmt.Println("starting tests...")
	results := make([]perfResult, 0, len(benchmarks))
	for _, b := range benchmarks {
		result := runBenchmark(ctx, registry, b)
		results = append(results, result)
		printResult(result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func runBenchmark(ctx context.Context, registry metrics.Registry, b benchmark) perfResult {
	result := perfResult{
		name:   b.name,
		timer:  metrics.GetOrRegisterTimer(b.name, registry),
		errors: metrics.GetOrRegisterCounter(b.name+".errors", registry),
	}
	if slices.Contains(perfSkip, b.name) {
		result.skipped = true
		return result
	}

	keys := getKeys(b.name)
	defer cleanup(ctx, b.name, keys)

	if b.prepare != nil {
		if err := b.prepare(ctx, keys); err != nil {
			Logger.Errorf("(%s) - failed to prepare keys: %v", b.name, err)
		}
	}

	throughput := make([]float64, perfNumThreads)
	var wg sync.WaitGroup
	start := time.Now()
	for thread := 0; thread < perfNumThreads; thread++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			threadStart := time.Now()
			for i := 0; i < perfOps; i++ {
				opStart := time.Now()
				if err := b.op(ctx, keys, thread, i); err != nil {
					result.errors.Inc(1)
					Logger.Debugf("(%s) - operation failed: %v", b.name, err)
				}
				result.timer.UpdateSince(opStart)
			}
			throughput[thread] = float64(perfOps) / time.Since(threadStart).Seconds()
		}()
	}
	wg.Wait()

	result.duration = time.Since(start)
	result.perThread = util.NewStats(throughput)
	return result
}

// fill writes every key once
func fill(value []byte) func(ctx context.Context, keys []string) error {
	return func(ctx context.Context, keys []string) error {
		for _, k := range keys {
			if _, err := treeMap.Put(ctx, k, value); err != nil {
				return err
			}
		}
		return nil
	}
}

// cleanup removes all keys of a benchmark with a single command
func cleanup(ctx context.Context, name string, keys []string) {
	if _, err := treeMap.Clear(ctx, prefixRange(keys)); err != nil {
		Logger.Errorf("(%s) - error removing keys: %v", name, err)
	}
}

// getKeys creates the keys of a benchmark, they share the prefix __perf/<name>/
func getKeys(name string) []string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s/%s/%06d", perfKeyPrefix, name, i)
	}
	return keys
}

// prefixRange is the range of all keys sharing the prefix of keys
func prefixRange(keys []string) client.KeyRange[string] {
	prefix := keys[0][:strings.LastIndexByte(keys[0], '/')]
	return client.Between(prefix+"/", true, prefix+"0", false)
}

// printResult prints the result of a benchmark in a formatted way
func printResult(r perfResult) {
	if r.skipped {
		fmt.Printf("%-10sskipped\n", r.name)
		return
	}
	t := r.timer.Snapshot()
	ps := t.Percentiles([]float64{0.5, 0.99})
	opsPerSec := float64(t.Count()) / r.duration.Seconds()

	fmt.Printf("%-10s%8.0f ops/sec  mean %-10s p50 %-10s p99 %-10s errors %d  thread fairness %.2f\n",
		r.name, opsPerSec,
		time.Duration(t.Mean()).Round(time.Microsecond),
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		r.errors.Count(), r.perThread.MinMaxRatio)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult, config client.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Ops", "OpsPerSec", "MeanNs", "P50Ns", "P99Ns", "MaxNs", "Errors",
		"ThreadStdDev", "ThreadMinMaxRatio", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ShardID", "Strategy", "Consistency",
		"Serializer", "Transport", "Threads", "ValueSize", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, r := range results {
		t := r.timer.Snapshot()
		ps := t.Percentiles([]float64{0.5, 0.99})
		opsPerSec := 0.0
		if r.duration > 0 {
			opsPerSec = float64(t.Count()) / r.duration.Seconds()
		}

		row := []string{
			r.name,
			strconv.FormatInt(t.Count(), 10),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", t.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(t.Max(), 10),
			strconv.FormatInt(r.errors.Count(), 10),
			fmt.Sprintf("%.2f", r.perThread.StdDeviation),
			fmt.Sprintf("%.2f", r.perThread.MinMaxRatio),
			strconv.FormatBool(r.skipped),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.FormatUint(config.ShardID, 10),
			config.Strategy.String(),
			viper.GetString("consistency"),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfValueSize),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.name, err)
		}
	}
	return nil
}
