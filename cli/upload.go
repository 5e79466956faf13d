package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VanDung-dev/AgriDx-Engine/rest"
	"github.com/VanDung-dev/AgriDx-Engine/workers"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files with MD5 checksums, at most --concurrency at a time",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().String("to", "uploads", "backend path receiving the multipart upload")
	uploadCmd.Flags().String("field", "file", "multipart field name")
	uploadCmd.Flags().Bool("remote-hash", false, "compute checksums on the hash worker at --worker-addr")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, "upload")
	if err != nil {
		return err
	}
	defer a.Close()

	target, _ := cmd.Flags().GetString("to")
	field, _ := cmd.Flags().GetString("field")
	remote, _ := cmd.Flags().GetBool("remote-hash")

	files, err := readFiles(args)
	if err != nil {
		return err
	}
	for i := range files {
		files[i].Field = field
		files[i].Name = filepath.Base(files[i].Name)
	}

	var opts []rest.Option
	if remote {
		wc, err := workers.Dial(a.cfg.WorkerAddr,
			workers.WithToken(a.cfg.WorkerToken),
			workers.WithClientLogger(a.logger),
		)
		if err != nil {
			return err
		}
		defer wc.Close()
		opts = append(opts, rest.WithChecksummer(rest.WorkerChecksum(wc)))
	}

	client, err := a.restClient(ctx, opts...)
	if err != nil {
		return err
	}
	results, err := client.UploadFiles(ctx, target, files, a.cfg.Concurrency, progressPrinter(cmd, "uploaded"))
	if err != nil {
		return err
	}

	failed := 0
	out := cmd.OutOrStdout()
	for _, r := range results {
		if !r.OK() {
			failed++
			a.logger.Error("upload failed", zap.String("file", files[r.Index].Name), zap.Error(r.Err))
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", r.Value.MD5, r.Value.Name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(results))
	}
	return nil
}
