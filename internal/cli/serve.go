package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/jobsift/internal/mcpserver"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve jobsift as MCP tools over stdio",
	Long: `Serve exposes dataset analysis and batch jobs to an MCP client over
stdin/stdout. Tools: analyze_dataset, test_sample, process_range,
get_status, get_results, pause_job, resume_job, reprocess, list_jobs.

Jobs started through the server keep running in the background and are
checkpointed to the configured backend. Logs go to stderr.

Example client entry:
  {"command": "jobsift", "args": ["serve"]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.logger.Info("mcp server starting", "version", Version, "taxonomy", a.runner.TaxonomyVersion())
		return mcpserver.New(ctx, a.runner, a.logger, a.cfg.Batch.BatchSize).ServeStdio(Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
