package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/jobsift/internal/batch"
	"github.com/ppiankov/jobsift/internal/dataset"
	"github.com/ppiankov/jobsift/internal/export"
	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/taxonomy"
	"github.com/ppiankov/jobsift/internal/worker"
)

var (
	resumeFile       string
	statusJSON       bool
	resultsOutput    string
	resultsFormat    string
	reprocessField   string
	reprocessMatch   string
	reprocessFrom    int
	reprocessTo      int
	reprocessWrite   bool
	reprocessTaxFile string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List batch jobs in the checkpoint store",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status and progress of a batch job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused or failed batch job",
	Long: `Resume continues a job from the row after its last checkpoint. Rows that
were already processed are never processed again. Resuming a completed job
does nothing.

The dataset is reopened from the path recorded when the job started; use
--file when it has moved.

Example:
  jobsift resume 0b6c1f2e-...
  jobsift resume 0b6c1f2e-... --file /data/postings.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var resultsCmd = &cobra.Command{
	Use:     "results <job-id>",
	Aliases: []string{"export"},
	Short:   "Export the processed rows of a job",
	Long: `Results writes the processed rows of a job as CSV or XLSX with the columns
row_id, job_id, extracted_job_title, job_category, general_category,
confidence, job_details, original_content and error, plus reprocessed_*
columns when the job was reprocessed without overwrite.

Example:
  jobsift results 0b6c1f2e-...              # CSV to stdout
  jobsift results 0b6c1f2e-... -o out.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <job-id>",
	Short: "Re-run classification over processed rows of a job",
	Long: `Reprocess runs the pipeline again over rows selected by a keyword or
regular expression ("re:<regex>") matched against the posting text or the
prior category.

Without --overwrite the new results are stored beside the original ones.
With --overwrite they replace them and every changed row gets an audit entry.

Example:
  jobsift reprocess 0b6c1f2e-... --match aircraft
  jobsift reprocess 0b6c1f2e-... --field category --match OTHER --overwrite --taxonomy-file v2.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(reprocessCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the job as JSON")

	resumeCmd.Flags().StringVar(&resumeFile, "file", "", "dataset path (default: path recorded in the job)")
	resumeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "export file when the job completes")

	resultsCmd.Flags().StringVarP(&resultsOutput, "output", "o", "-", "output file, - for stdout")
	resultsCmd.Flags().StringVar(&resultsFormat, "format", "", "csv or xlsx (default: from file extension)")

	reprocessCmd.Flags().StringVar(&reprocessField, "field", "raw_text", "field to match: raw_text or category")
	reprocessCmd.Flags().StringVar(&reprocessMatch, "match", "", "keyword or re:<regex>; empty matches every row")
	reprocessCmd.Flags().IntVar(&reprocessFrom, "from", 0, "first row (1-based; default: job start)")
	reprocessCmd.Flags().IntVar(&reprocessTo, "to", 0, "last row (1-based; default: job end)")
	reprocessCmd.Flags().BoolVar(&reprocessWrite, "overwrite", false, "replace prior results and audit changes")
	reprocessCmd.Flags().StringVar(&reprocessTaxFile, "taxonomy-file", "", "taxonomy to reprocess with (default: configured taxonomy)")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.store.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "No jobs found (checkpoint backend: %s)\n", a.cfg.Checkpoint.Backend)
		return nil
	}
	for _, id := range ids {
		if err := a.runner.Attach(ctx, id, nil); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", id, err)
		}
	}

	fmt.Printf("%-36s  %-9s  %-13s  %6s  %s\n", "JOB ID", "STATUS", "ROWS", "DONE", "DATASET")
	for _, job := range a.runner.Jobs() {
		fmt.Printf("%-36s  %-9s  %-13s  %5.1f%%  %s\n",
			job.JobID, job.Status,
			fmt.Sprintf("%d-%d", job.StartRow+1, job.EndRow+1),
			job.Progress()*100, job.Dataset.Source)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobID := args[0]
	if err := a.runner.Attach(ctx, jobID, nil); err != nil {
		return err
	}
	job, err := a.runner.Status(jobID)
	if err != nil {
		return err
	}

	if statusJSON {
		data, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Job:            %s\n", job.JobID)
	fmt.Printf("Status:         %s\n", job.Status)
	fmt.Printf("Rows:           %d-%d (1-based)\n", job.StartRow+1, job.EndRow+1)
	fmt.Printf("Progress:       %d/%d (%.1f%%)\n", job.DoneRows(), job.TotalRows(), job.Progress()*100)
	fmt.Printf("Failed rows:    %d\n", job.FailedRows)
	fmt.Printf("Batch size:     %d\n", job.BatchSize)
	if job.Dataset.Source != "" {
		fmt.Printf("Dataset:        %s (column %q)\n", job.Dataset.Source, job.Dataset.TextColumn)
	}
	if job.LastError != "" {
		fmt.Printf("Last error:     %s\n", job.LastError)
	}
	fmt.Printf("Updated:        %s\n", job.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobID := args[0]
	if err := a.runner.Attach(ctx, jobID, nil); err != nil {
		return err
	}
	job, err := a.runner.Status(jobID)
	if err != nil {
		return err
	}

	ref := job.Dataset
	if resumeFile != "" {
		ref.Source = resumeFile
	}
	if job.Status != model.StatusCompleted {
		sel, err := dataset.OpenRef(ref)
		if err != nil {
			return fmt.Errorf("reopen dataset: %w", err)
		}
		if err := a.runner.Attach(ctx, jobID, sel); err != nil {
			return err
		}
	}

	banner("Jobsift Resume")
	fmt.Fprintf(os.Stderr, "  Job:          %s\n", jobID)
	fmt.Fprintf(os.Stderr, "  Status:       %s\n", job.Status)
	fmt.Fprintf(os.Stderr, "  Next row:     %d of %d\n", job.LastCompletedRow+2, job.EndRow+1)
	fmt.Fprintf(os.Stderr, "\n")

	err = a.runner.Resume(ctx, jobID)
	return finishJobs(a, []*worker.RunOutcome{{JobID: jobID, Err: err}})
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobID := args[0]
	if err := a.runner.Attach(ctx, jobID, nil); err != nil {
		return err
	}
	rows, err := a.runner.Results(jobID)
	if err != nil {
		return err
	}

	format := export.FormatCSV
	if resultsFormat != "" {
		if format, err = export.ParseFormat(resultsFormat); err != nil {
			return err
		}
	} else if resultsOutput != "-" {
		format = export.FormatFromPath(resultsOutput, format)
	}

	if resultsOutput == "-" {
		if format == export.FormatXLSX {
			return export.WriteXLSX(os.Stdout, rows)
		}
		return export.WriteCSV(os.Stdout, rows)
	}

	if err := export.WriteFile(resultsOutput, format, rows); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %d rows to %s\n", len(rows), resultsOutput)
	return nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobID := args[0]
	if err := a.runner.Attach(ctx, jobID, nil); err != nil {
		return err
	}

	req := batch.ReprocessRequest{
		JobID:     jobID,
		Filter:    batch.Filter{Field: batch.FilterField(reprocessField), Pattern: reprocessMatch},
		Overwrite: reprocessWrite,
	}
	if reprocessFrom > 0 {
		from := reprocessFrom - 1
		req.StartRow = &from
	}
	if reprocessTo > 0 {
		to := reprocessTo - 1
		req.EndRow = &to
	}
	if reprocessTaxFile != "" {
		tax, err := taxonomy.Load(reprocessTaxFile)
		if err != nil {
			return err
		}
		req.Taxonomy = tax
	}

	report, err := a.runner.Reprocess(ctx, req)
	if err != nil {
		return err
	}

	banner("Reprocess Complete")
	fmt.Fprintf(os.Stderr, "  Job:          %s\n", report.JobID)
	fmt.Fprintf(os.Stderr, "  Taxonomy:     %s\n", report.TaxonomyVersion)
	fmt.Fprintf(os.Stderr, "  Matched:      %d rows\n", report.Matched)
	fmt.Fprintf(os.Stderr, "  Changed:      %d rows\n", report.Changed)
	if report.Overwrite {
		fmt.Fprintf(os.Stderr, "  Audited:      %d rows\n", report.Audited)
	} else {
		fmt.Fprintf(os.Stderr, "  Stored as reprocessed_* columns; originals unchanged\n")
	}
	fmt.Fprintf(os.Stderr, "\n")
	return nil
}
