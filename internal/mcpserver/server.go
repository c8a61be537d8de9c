package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ppiankov/jobsift/internal/batch"
	"github.com/ppiankov/jobsift/internal/dataset"
	"github.com/ppiankov/jobsift/internal/logging"
	"github.com/ppiankov/jobsift/internal/pipeline"
	"github.com/ppiankov/jobsift/internal/taxonomy"
)

const (
	defaultBatchSize  = 100
	defaultSampleRows = 10
	defaultPageSize   = 100
)

// Server exposes the batch runner as MCP tools
type Server struct {
	ctx       context.Context
	runner    *batch.Runner
	logger    *logging.Logger
	batchSize int
}

// New creates a tool server. Background runs started through it live as long as ctx.
func New(ctx context.Context, runner *batch.Runner, logger *logging.Logger, batchSize int) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Server{ctx: ctx, runner: runner, logger: logger, batchSize: batchSize}
}

// MCP builds the MCP server with every tool registered
func (s *Server) MCP(version string) *server.MCPServer {
	m := server.NewMCPServer("jobsift", version)

	s.register(m, "analyze_dataset", "Summarize a CSV/XLSX dataset: columns, row count, sample rows and a suggested text column",
		map[string]interface{}{
			"path": prop("string", "Path to the dataset file"),
		}, []string{"path"}, s.handleAnalyze)

	s.register(m, "test_sample", "Classify the first rows of a dataset without creating a job",
		map[string]interface{}{
			"path":          prop("string", "Path to the dataset file"),
			"text_column":   prop("string", "Column holding posting text (default: suggested column)"),
			"job_id_column": prop("string", "Optional column holding job identifiers"),
			"rows":          prop("integer", "Number of rows to classify (default: 10)"),
		}, []string{"path"}, s.handleSample)

	s.register(m, "process_range", "Start a batch job over rows [start_row, end_row] (0-based, inclusive) and run it in the background",
		map[string]interface{}{
			"path":          prop("string", "Path to the dataset file"),
			"text_column":   prop("string", "Column holding posting text (default: suggested column)"),
			"job_id_column": prop("string", "Optional column holding job identifiers"),
			"start_row":     prop("integer", "First row (0-based)"),
			"end_row":       prop("integer", "Last row (0-based, inclusive; default: last row)"),
			"batch_size":    prop("integer", "Rows per checkpoint batch"),
		}, []string{"path"}, s.handleProcessRange)

	s.register(m, "get_status", "Report a batch job's status and progress",
		map[string]interface{}{
			"job_id": prop("string", "Job ID"),
		}, []string{"job_id"}, s.handleStatus)

	s.register(m, "get_results", "Return processed rows of a job ordered by row ID",
		map[string]interface{}{
			"job_id": prop("string", "Job ID"),
			"offset": prop("integer", "Rows to skip (default: 0)"),
			"limit":  prop("integer", "Maximum rows to return (default: 100)"),
		}, []string{"job_id"}, s.handleResults)

	s.register(m, "pause_job", "Ask a running job to stop after the current row",
		map[string]interface{}{
			"job_id": prop("string", "Job ID"),
		}, []string{"job_id"}, s.handlePause)

	s.register(m, "resume_job", "Resume a paused or failed job in the background",
		map[string]interface{}{
			"job_id": prop("string", "Job ID"),
		}, []string{"job_id"}, s.handleResume)

	s.register(m, "reprocess", "Re-run classification over previously processed rows of a job",
		map[string]interface{}{
			"job_id":        prop("string", "Job ID"),
			"field":         prop("string", "Filter field: raw_text or category (default: raw_text)"),
			"pattern":       prop("string", "Case-insensitive keyword, or re:<regex>; empty matches all rows"),
			"overwrite":     prop("boolean", "Replace prior results and record an audit entry per changed row"),
			"start_row":     prop("integer", "Optional first row inside the job"),
			"end_row":       prop("integer", "Optional last row inside the job"),
			"taxonomy_path": prop("string", "Optional taxonomy file to reprocess with"),
		}, []string{"job_id"}, s.handleReprocess)

	s.register(m, "list_jobs", "List jobs known to this server", map[string]interface{}{}, nil, s.handleListJobs)

	return m
}

// ServeStdio serves the tools over stdin/stdout until the client disconnects
func (s *Server) ServeStdio(version string) error {
	return server.ServeStdio(s.MCP(version))
}

type handler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

func (s *Server) register(m *server.MCPServer, name, description string, props map[string]interface{}, required []string, h handler) {
	tool := mcp.NewTool(name, mcp.WithDescription(description))
	tool.InputSchema = mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}

	m.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			if request.Params.Arguments != nil {
				return mcp.NewToolResultError("invalid arguments format"), nil
			}
			args = map[string]interface{}{}
		}
		s.logger.Debug("tool call", "tool", name)
		return h(ctx, args)
	})
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func (s *Server) handleAnalyze(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path := stringArg(args, "path")
	if path == "" {
		return mcp.NewToolResultError("missing required field: path"), nil
	}
	tbl, err := dataset.Open(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read dataset: %v", err)), nil
	}
	return jsonResult(dataset.Analyze(tbl))
}

func (s *Server) handleSample(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	sel, errResult := s.selection(args)
	if errResult != nil {
		return errResult, nil
	}
	n := intArg(args, "rows", defaultSampleRows)
	rows := s.runner.Preview(sel, n)
	return jsonResult(map[string]interface{}{
		"rows":    rows,
		"summary": pipeline.Summarize(rows),
	})
}

func (s *Server) handleProcessRange(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	sel, errResult := s.selection(args)
	if errResult != nil {
		return errResult, nil
	}

	start := intArg(args, "start_row", 0)
	end := intArg(args, "end_row", sel.Len()-1)
	size := intArg(args, "batch_size", s.batchSize)

	jobID, err := s.runner.ProcessRange(s.ctx, sel, start, end, size)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start job: %v", err)), nil
	}
	s.logger.Info("job started from tool", "job_id", jobID, "start_row", start, "end_row", end)
	return jsonResult(map[string]interface{}{"job_id": jobID, "start_row": start, "end_row": end, "batch_size": size})
}

func (s *Server) handleStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	jobID, errResult := s.job(ctx, args)
	if errResult != nil {
		return errResult, nil
	}
	job, err := s.runner.Status(jobID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"job":       job,
		"done_rows": job.DoneRows(),
		"progress":  job.Progress(),
	})
}

func (s *Server) handleResults(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	jobID, errResult := s.job(ctx, args)
	if errResult != nil {
		return errResult, nil
	}
	rows, err := s.runner.Results(jobID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	offset := intArg(args, "offset", 0)
	limit := intArg(args, "limit", defaultPageSize)
	if offset < 0 {
		offset = 0
	}
	if offset > len(rows) {
		offset = len(rows)
	}
	page := rows[offset:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}

	return jsonResult(map[string]interface{}{
		"job_id":  jobID,
		"total":   len(rows),
		"offset":  offset,
		"rows":    page,
		"summary": pipeline.Summarize(rows),
	})
}

func (s *Server) handlePause(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	jobID, errResult := s.job(ctx, args)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.runner.Pause(jobID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pause requested for job %s", jobID)), nil
}

func (s *Server) handleResume(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	jobID, errResult := s.job(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	job, err := s.runner.Status(jobID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if job.Dataset.Source != "" {
		sel, err := dataset.OpenRef(job.Dataset)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to reopen dataset: %v", err)), nil
		}
		if err := s.runner.Attach(ctx, jobID, sel); err != nil && !batch.IsBusy(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	if err := s.runner.RunAsync(s.ctx, jobID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resume job: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Job %s resumed from row %d", jobID, job.LastCompletedRow+1)), nil
}

func (s *Server) handleReprocess(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	jobID, errResult := s.job(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	req := batch.ReprocessRequest{
		JobID: jobID,
		Filter: batch.Filter{
			Field:   batch.FilterField(stringArg(args, "field")),
			Pattern: stringArg(args, "pattern"),
		},
		Overwrite: boolArg(args, "overwrite"),
	}
	if v, ok := optionalInt(args, "start_row"); ok {
		req.StartRow = &v
	}
	if v, ok := optionalInt(args, "end_row"); ok {
		req.EndRow = &v
	}
	if path := stringArg(args, "taxonomy_path"); path != "" {
		tax, err := taxonomy.Load(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.Taxonomy = tax
	}

	report, err := s.runner.Reprocess(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reprocess: %v", err)), nil
	}
	return jsonResult(report)
}

func (s *Server) handleListJobs(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{"jobs": s.runner.Jobs()})
}

// selection opens the dataset named by the path/text_column/job_id_column arguments
func (s *Server) selection(args map[string]interface{}) (*dataset.Selection, *mcp.CallToolResult) {
	path := stringArg(args, "path")
	if path == "" {
		return nil, mcp.NewToolResultError("missing required field: path")
	}
	tbl, err := dataset.Open(path)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to read dataset: %v", err))
	}
	sel, err := tbl.Select(stringArg(args, "text_column"), stringArg(args, "job_id_column"))
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return sel, nil
}

// job reads job_id and makes sure the runner knows the job, loading it from the store if needed
func (s *Server) job(ctx context.Context, args map[string]interface{}) (string, *mcp.CallToolResult) {
	jobID := stringArg(args, "job_id")
	if jobID == "" {
		return "", mcp.NewToolResultError("missing required field: job_id")
	}
	if err := s.runner.Attach(ctx, jobID, nil); err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	return jobID, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// intArg reads a JSON number; MCP clients send integers as float64
func intArg(args map[string]interface{}, key string, fallback int) int {
	if v, ok := optionalInt(args, key); ok {
		return v
	}
	return fallback
}

func optionalInt(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}
