package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VanDung-dev/AgriDx-Engine/rest"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <path>...",
	Short: "GET one or more backend paths through the response cache",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringArrayP("param", "p", nil, "query parameter key=value (repeatable, applied to every path)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, "fetch")
	if err != nil {
		return err
	}
	defer a.Close()

	pairs, _ := cmd.Flags().GetStringArray("param")
	params, err := parseParams(pairs)
	if err != nil {
		return err
	}

	client, err := a.restClient(ctx)
	if err != nil {
		return err
	}

	reqs := make([]rest.Request, len(args))
	for i, p := range args {
		reqs[i] = rest.Request{Path: p, Params: params}
	}
	results, err := client.FetchAll(ctx, reqs, a.cfg.Concurrency, progressPrinter(cmd, "fetched"))
	if err != nil {
		return err
	}

	failed := 0
	out := cmd.OutOrStdout()
	for _, r := range results {
		if !r.OK() {
			failed++
			a.logger.Error("fetch failed", zap.String("path", args[r.Index]), zap.Error(r.Err))
			continue
		}
		fmt.Fprintf(out, "%s\n", r.Value)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(results))
	}
	return nil
}

func progressPrinter(cmd *cobra.Command, verb string) func(completed, total int) {
	return func(completed, total int) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\r%s %d/%d", verb, completed, total)
		if completed == total {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
	}
}

func readFiles(paths []string) ([]rest.File, error) {
	files := make([]rest.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, rest.File{Name: p, Data: data})
	}
	return files, nil
}
