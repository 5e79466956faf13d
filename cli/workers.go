package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VanDung-dev/AgriDx-Engine/workers"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Run or call the image/PDF/hash processing workers",
}

var workersServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve worker requests on --worker-addr",
	Args:  cobra.NoArgs,
	RunE:  runWorkersServe,
}

var workersCallCmd = &cobra.Command{
	Use:   "call <kind> <payload.json>",
	Short: "Send a JSON payload to a worker and print the JSON reply",
	Long: `Send a JSON payload to a worker and print the JSON reply.

Kinds: hash, compress, annotate, report. Use "-" to read the payload from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: runWorkersCall,
}

func init() {
	workersServeCmd.Flags().Int("max-in-flight", 16, "maximum concurrently processed requests")
	workersCallCmd.Flags().Duration("timeout", time.Minute, "how long to wait for the reply")
	workersCmd.AddCommand(workersServeCmd, workersCallCmd)
}

func runWorkersServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := newApp(ctx, "workers")
	if err != nil {
		return err
	}
	defer a.Close()

	maxInFlight, _ := cmd.Flags().GetInt("max-in-flight")
	registry := workers.DefaultRegistry(
		workers.WithRegistryLogger(a.logger),
		workers.WithRegistryMetrics(a.metrics),
	)
	srv := workers.NewServer(a.cfg.WorkerAddr, registry,
		workers.WithServerLogger(a.logger),
		workers.WithAuthenticator(workers.NewAuthenticator(a.cfg.WorkerToken)),
		workers.WithMaxInFlight(maxInFlight),
	)

	a.logger.Info("workers starting", zap.Any("kinds", registry.Kinds()))
	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("workers: %w", err)
	}
	a.logger.Info("stopped cleanly")
	return nil
}

func runWorkersCall(cmd *cobra.Command, args []string) error {
	kind := workers.Kind(args[0])
	payload, err := readPayload(args[1])
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%s is not valid JSON", args[1])
	}

	a, err := newApp(cmd.Context(), "workers-call")
	if err != nil {
		return err
	}
	defer a.Close()

	wc, err := workers.Dial(a.cfg.WorkerAddr,
		workers.WithToken(a.cfg.WorkerToken),
		workers.WithClientLogger(a.logger),
	)
	if err != nil {
		return err
	}
	defer wc.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := wc.Call(ctx, kind, json.RawMessage(payload))
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", resp.Payload)
	return nil
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}
