// Command stress drives a running worker server with hash requests and
// reports throughput and latency.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"github.com/VanDung-dev/AgriDx-Engine/workers"
)

type stressConfig struct {
	Address     string
	Concurrency int
	Duration    time.Duration
	PayloadSize int
	Token       string
	ReportFile  string
}

type stressResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
}

type counters struct {
	total, success, failed, latencySum atomic.Int64
	minLatency, maxLatency             atomic.Int64
}

func main() {
	cfg := parseFlags()

	fmt.Println("=== AgriDx Worker Stress Test ===")
	fmt.Printf("Target:      %s\n", cfg.Address)
	fmt.Printf("Concurrency: %d callers\n", cfg.Concurrency)
	fmt.Printf("Duration:    %v\n", cfg.Duration)
	fmt.Printf("Payload:     %d bytes\n", cfg.PayloadSize)
	fmt.Println()

	client, err := workers.Dial(cfg.Address, workers.WithToken(cfg.Token))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Close()

	result := run(cfg, client)
	printResults(result)

	if cfg.ReportFile != "" {
		if err := saveReport(cfg, result); err != nil {
			fmt.Fprintln(os.Stderr, "failed to write report:", err)
			os.Exit(1)
		}
		fmt.Printf("Report saved to: %s\n", cfg.ReportFile)
	}
}

func parseFlags() stressConfig {
	var cfg stressConfig
	pflag.StringVar(&cfg.Address, "addr", "tcp://127.0.0.1:5560", "worker server endpoint")
	pflag.IntVarP(&cfg.Concurrency, "concurrency", "c", 10, "concurrent callers")
	pflag.DurationVarP(&cfg.Duration, "duration", "d", 30*time.Second, "test duration")
	pflag.IntVar(&cfg.PayloadSize, "size", 64*1024, "bytes hashed per request")
	pflag.StringVar(&cfg.Token, "token", os.Getenv(workers.TokenEnv), "worker token")
	pflag.StringVarP(&cfg.ReportFile, "output", "o", "", "JSON report file")
	pflag.Parse()
	return cfg
}

func run(cfg stressConfig, client *workers.Client) stressResult {
	payload := make([]byte, cfg.PayloadSize)
	_, _ = rand.Read(payload)
	want := workers.MD5Hex(payload)

	var c counters
	c.minLatency.Store(1<<63 - 1)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				callOnce(ctx, client, payload, want, &c)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	res := stressResult{
		TotalRequests:  c.total.Load(),
		SuccessfulReqs: c.success.Load(),
		FailedReqs:     c.failed.Load(),
		TotalDuration:  elapsed,
		MinLatency:     time.Duration(c.minLatency.Load()),
		MaxLatency:     time.Duration(c.maxLatency.Load()),
		RequestsPerSec: float64(c.total.Load()) / elapsed.Seconds(),
	}
	if res.SuccessfulReqs > 0 {
		res.AvgLatency = time.Duration(c.latencySum.Load() / res.SuccessfulReqs)
	} else {
		res.MinLatency = 0
	}
	return res
}

func callOnce(ctx context.Context, client *workers.Client, payload []byte, want string, c *counters) {
	start := time.Now()
	out, err := workers.CallAs[workers.HashRequest, workers.HashResponse](ctx, client, workers.KindHash,
		workers.HashRequest{Data: payload})
	lat := int64(time.Since(start))

	if ctx.Err() != nil {
		return
	}
	c.total.Add(1)
	if err != nil || out.MD5 != want {
		c.failed.Add(1)
		time.Sleep(10 * time.Millisecond)
		return
	}
	c.success.Add(1)
	c.latencySum.Add(lat)
	for {
		old := c.minLatency.Load()
		if lat >= old || c.minLatency.CompareAndSwap(old, lat) {
			break
		}
	}
	for {
		old := c.maxLatency.Load()
		if lat <= old || c.maxLatency.CompareAndSwap(old, lat) {
			break
		}
	}
}

func printResults(r stressResult) {
	pct := func(n int64) float64 {
		if r.TotalRequests == 0 {
			return 0
		}
		return float64(n) / float64(r.TotalRequests) * 100
	}
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", r.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d\n", r.TotalRequests)
	fmt.Printf("Successful:      %d (%.2f%%)\n", r.SuccessfulReqs, pct(r.SuccessfulReqs))
	fmt.Printf("Failed:          %d (%.2f%%)\n", r.FailedReqs, pct(r.FailedReqs))
	fmt.Printf("Requests/sec:    %.2f\n", r.RequestsPerSec)
	fmt.Printf("Avg Latency:     %v\n", r.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", r.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", r.MaxLatency.Round(time.Microsecond))
}

func saveReport(cfg stressConfig, r stressResult) error {
	report := map[string]any{
		"config": map[string]any{
			"address":      cfg.Address,
			"concurrency":  cfg.Concurrency,
			"duration":     cfg.Duration.String(),
			"payload_size": cfg.PayloadSize,
		},
		"results": map[string]any{
			"total_requests":   r.TotalRequests,
			"successful":       r.SuccessfulReqs,
			"failed":           r.FailedReqs,
			"requests_per_sec": r.RequestsPerSec,
			"avg_latency_ms":   float64(r.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(r.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(r.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cfg.ReportFile, data, 0o644)
}
