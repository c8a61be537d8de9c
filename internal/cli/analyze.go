package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/jobsift/internal/dataset"
	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/pipeline"
)

var (
	analyzeJSON bool
	sampleRows  int
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Show the columns, size and sample rows of a dataset",
	Long: `Analyze reads a CSV, TSV or XLSX dataset and reports:
- Column names and row count
- The first 3 rows (cells truncated to 100 characters)
- The column most likely to hold posting text

Example:
  jobsift analyze postings.csv
  jobsift analyze postings.xlsx --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

// sampleCmd represents the sample command
var sampleCmd = &cobra.Command{
	Use:   "sample <file>",
	Short: "Classify the first rows of a dataset without creating a job",
	Long: `Sample runs title extraction and classification over the first rows of a
dataset and prints the results with a short summary. No job or checkpoint
is created.

Example:
  jobsift sample postings.csv
  jobsift sample postings.csv --rows 25 --text-column description`,
	Args: cobra.ExactArgs(1),
	RunE: runSample,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(sampleCmd)

	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the analysis as JSON")

	sampleCmd.Flags().IntVar(&sampleRows, "rows", 10, "number of rows to classify")
	sampleCmd.Flags().String("text-column", "", "column holding posting text (default: suggested column)")
	sampleCmd.Flags().String("job-id-column", "", "optional column holding job identifiers")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	tbl, err := dataset.Open(args[0])
	if err != nil {
		return err
	}
	a := dataset.Analyze(tbl)

	if analyzeJSON {
		data, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	banner("Jobsift Dataset Analysis")
	fmt.Fprintf(os.Stderr, "  File:         %s\n", a.Source)
	fmt.Fprintf(os.Stderr, "  Rows:         %d\n", a.RowCount)
	fmt.Fprintf(os.Stderr, "  Columns:      %d\n", len(a.Columns))
	fmt.Fprintf(os.Stderr, "  Text column:  %s (suggested)\n", a.SuggestedTextColumn)
	fmt.Fprintf(os.Stderr, "\n")

	fmt.Println("Columns:")
	for i, c := range a.Columns {
		fmt.Printf("  %2d. %s\n", i+1, c)
	}
	fmt.Println()
	for i, sample := range a.Samples {
		fmt.Printf("Row %d:\n", i+1)
		for _, c := range a.Columns {
			fmt.Printf("  %-20s %s\n", c+":", oneLine(sample[c]))
		}
		fmt.Println()
	}
	return nil
}

func runSample(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sel, err := openSelection(args[0], flagOr(cmd, "text-column", "dataset.text_column"), flagOr(cmd, "job-id-column", "dataset.job_id_column"))
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows := a.runner.Preview(sel, sampleRows)

	banner("Jobsift Sample")
	for _, row := range rows {
		printRow(row)
	}
	printSummary(pipeline.Summarize(rows))
	return nil
}

// openSelection loads a dataset and picks its text and job-id columns
func openSelection(path, textColumn, jobIDColumn string) (*dataset.Selection, error) {
	tbl, err := dataset.Open(path)
	if err != nil {
		return nil, err
	}
	return tbl.Select(textColumn, jobIDColumn)
}

// flagOr returns a local flag when set, otherwise the configured value
func flagOr(cmd *cobra.Command, flag, key string) string {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return f.Value.String()
	}
	return viper.GetString(key)
}

func banner(title string) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  %s\n", title)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func printRow(row model.ProcessedRow) {
	id := ""
	if row.JobID != "" {
		id = " [" + row.JobID + "]"
	}
	fmt.Printf("#%d%s %s\n", row.RowID+1, id, oneLine(truncateText(row.RawText, 80)))
	fmt.Printf("    title:    %s (%s, %.2f)\n", row.Extraction.Title, row.Extraction.MatchedRule, row.Extraction.Confidence)
	fmt.Printf("    category: %s / %s (%.4f)\n", row.Classification.Category, row.Classification.Precision, row.Classification.Confidence)
	if len(row.Context) > 0 {
		fmt.Printf("    details:  %s\n", strings.Join(row.Context, ", "))
	}
	if row.Failed() {
		fmt.Printf("    error:    %s\n", row.Error)
	}
}

func printSummary(s pipeline.Summary) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Rows:            %d\n", s.Total)
	fmt.Fprintf(os.Stderr, "  Failed:          %d\n", s.Failed)
	fmt.Fprintf(os.Stderr, "  Avg confidence:  %.3f\n", s.AverageConfidence)
	fmt.Fprintf(os.Stderr, "  High (>= 0.7):   %d\n", s.HighConfidence)
	fmt.Fprintf(os.Stderr, "  Low (< 0.5):     %d\n", s.LowConfidence)
	for i, c := range s.Categories {
		if i == 5 {
			fmt.Fprintf(os.Stderr, "  ... %d more categories\n", len(s.Categories)-5)
			break
		}
		fmt.Fprintf(os.Stderr, "    %-24s %d\n", c.Category, c.Count)
	}
	fmt.Fprintf(os.Stderr, "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
