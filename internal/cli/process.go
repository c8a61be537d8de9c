package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/jobsift/internal/export"
	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/pipeline"
	"github.com/ppiankov/jobsift/internal/worker"
)

var (
	fromRow    int
	toRow      int
	outputPath string
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Classify a row range of a dataset as a resumable batch job",
	Long: `Process runs title extraction and classification over rows --from..--to
(1-based, inclusive) of a CSV, TSV or XLSX dataset:
- Progress is checkpointed every batch (and at least every 1000 rows)
- Ctrl+C pauses the job after the current row; resume it with 'jobsift resume'
- --parallel splits the range into independent jobs run concurrently
- Completed jobs are exported to the output directory

Example:
  jobsift process postings.csv
  jobsift process postings.csv --from 1 --to 5000 --batch-size 250
  jobsift process postings.xlsx --text-column description --job-id-column id --parallel 4`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().IntVar(&fromRow, "from", 1, "first row to process (1-based)")
	processCmd.Flags().IntVar(&toRow, "to", 0, "last row to process (1-based, inclusive; default: last row)")
	processCmd.Flags().Int("batch-size", 0, "rows per checkpoint batch")
	processCmd.Flags().Int("parallel", 0, "split the range into this many concurrent jobs")
	processCmd.Flags().Float64("rate", 0, "max rows per second per job (0 = unlimited)")
	processCmd.Flags().String("text-column", "", "column holding posting text (default: suggested column)")
	processCmd.Flags().String("job-id-column", "", "optional column holding job identifiers")
	processCmd.Flags().StringVarP(&outputPath, "output", "o", "", "export file for a single job (default: <output.dir>/<job-id>.<format>)")
	processCmd.Flags().String("format", "", "export format: csv or xlsx")

	_ = viper.BindPFlag("batch.batch_size", processCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("batch.parallel_jobs", processCmd.Flags().Lookup("parallel"))
	_ = viper.BindPFlag("batch.max_rows_per_second", processCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("dataset.text_column", processCmd.Flags().Lookup("text-column"))
	_ = viper.BindPFlag("dataset.job_id_column", processCmd.Flags().Lookup("job-id-column"))
	_ = viper.BindPFlag("output.format", processCmd.Flags().Lookup("format"))
}

func runProcess(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	sel, err := openSelection(file, cfg.Dataset.TextColumn, cfg.Dataset.JobIDColumn)
	if err != nil {
		return err
	}

	if fromRow < 1 {
		return fmt.Errorf("--from must be at least 1, got %d", fromRow)
	}
	start, end := fromRow-1, sel.Len()-1
	if toRow > 0 {
		end = toRow - 1
	}

	spans := worker.SplitRange(start, end, cfg.Batch.ParallelJobs)
	if len(spans) == 0 {
		// Let the runner report the invalid range
		spans = []worker.Span{{Start: start, End: end}}
	}

	ref := sel.Ref()
	banner("Jobsift Batch Processing")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Text column:  %s\n", ref.TextColumn)
	fmt.Fprintf(os.Stderr, "  Rows:         %d-%d of %d\n", start+1, end+1, sel.Len())
	fmt.Fprintf(os.Stderr, "  Batch size:   %d\n", cfg.Batch.BatchSize)
	fmt.Fprintf(os.Stderr, "  Jobs:         %d\n", len(spans))
	fmt.Fprintf(os.Stderr, "  Taxonomy:     %s\n", a.runner.TaxonomyVersion())
	fmt.Fprintf(os.Stderr, "  Checkpoints:  %s\n", cfg.Checkpoint.Backend)
	fmt.Fprintf(os.Stderr, "\n")

	ids := make([]string, 0, len(spans))
	for _, span := range spans {
		id, err := a.runner.Start(ctx, sel, span.Start, span.End, cfg.Batch.BatchSize)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "⚙️  Job %s: rows %d-%d\n", id, span.Start+1, span.End+1)
		ids = append(ids, id)
	}
	fmt.Fprintf(os.Stderr, "\n")

	outcomes := worker.RunJobs(ctx, a.runner, ids, len(ids))
	return finishJobs(a, outcomes)
}

// finishJobs reports how each run ended and exports completed jobs
func finishJobs(a *app, outcomes []*worker.RunOutcome) error {
	var failed int
	var all []model.ProcessedRow

	for _, o := range outcomes {
		job, err := a.runner.Status(o.JobID)
		if err != nil {
			return err
		}

		switch {
		case o.Err != nil && !errors.Is(o.Err, context.Canceled):
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.JobID, o.Err)
			continue
		case job.Status == model.StatusPaused:
			fmt.Fprintf(os.Stderr, "⏸  %s paused after row %d (%d/%d rows)\n", o.JobID, job.LastCompletedRow+1, job.DoneRows(), job.TotalRows())
			fmt.Fprintf(os.Stderr, "   resume with: jobsift resume %s\n", o.JobID)
			continue
		}

		rows, err := a.runner.Results(o.JobID)
		if err != nil {
			return err
		}
		all = append(all, rows...)

		path, err := exportJob(a, o.JobID, rows, len(outcomes) == 1)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.JobID, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s completed (%d rows, %d failed) → %s\n", o.JobID, job.TotalRows(), job.FailedRows, path)
	}

	if len(all) > 0 {
		banner("Batch Complete")
		printSummary(pipeline.Summarize(all))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(outcomes))
	}
	return nil
}

func exportJob(a *app, jobID string, rows []model.ProcessedRow, single bool) (string, error) {
	format, err := export.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(a.cfg.Output.Dir, jobID+"."+string(format))
	if single && outputPath != "" {
		path = outputPath
		format = export.FormatFromPath(path, format)
	}

	if err := export.WriteFile(path, format, rows); err != nil {
		return "", err
	}
	return path, nil
}
