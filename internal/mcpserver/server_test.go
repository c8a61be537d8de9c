package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ppiankov/jobsift/internal/batch"
	"github.com/ppiankov/jobsift/internal/checkpoint"
	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/taxonomy"
)

const postingsCSV = `id,text
J-1,"76 CHANDLER, AZ AIRCRAFT PARTS jobs"
J-2,Airport jobs available now
J-3,Customer satisfaction guaranteed - HVAC Technician wanted
J-4,12 Welder jobs
J-5,"Healthcare jobs. Apply to: Registered Nurse, LPN"
`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tax, err := taxonomy.Default()
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	runner := batch.NewRunner(tax, checkpoint.NewMemoryStore())

	path := filepath.Join(t.TempDir(), "postings.csv")
	if err := os.WriteFile(path, []byte(postingsCSV), 0644); err != nil {
		t.Fatal(err)
	}
	return New(context.Background(), runner, nil, 2), path
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("expected content")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", c)
	}
	return ""
}

func decode(t *testing.T, res *mcp.CallToolResult, v interface{}) {
	t.Helper()
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), v); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestAnalyze(t *testing.T) {
	s, path := newTestServer(t)

	res, _ := s.handleAnalyze(context.Background(), map[string]interface{}{"path": path})
	var got struct {
		Columns             []string `json:"columns"`
		RowCount            int      `json:"row_count"`
		SuggestedTextColumn string   `json:"suggested_text_column"`
	}
	decode(t, res, &got)

	if got.RowCount != 5 || got.SuggestedTextColumn != "text" {
		t.Errorf("unexpected analysis %+v", got)
	}

	res, _ = s.handleAnalyze(context.Background(), map[string]interface{}{})
	if !res.IsError {
		t.Error("expected error without path")
	}
}

func TestSample(t *testing.T) {
	s, path := newTestServer(t)

	res, _ := s.handleSample(context.Background(), map[string]interface{}{
		"path": path, "job_id_column": "id", "rows": float64(3),
	})
	var got struct {
		Rows    []model.ProcessedRow `json:"rows"`
		Summary struct {
			Total int `json:"total"`
		} `json:"summary"`
	}
	decode(t, res, &got)

	if len(got.Rows) != 3 || got.Summary.Total != 3 {
		t.Fatalf("expected 3 sampled rows, got %d", len(got.Rows))
	}
	if got.Rows[0].JobID != "J-1" || got.Rows[0].Classification.Category != "Aviation Mechanic" {
		t.Errorf("unexpected first row %+v", got.Rows[0])
	}
	if len(s.runner.Jobs()) != 0 {
		t.Error("sample must not create jobs")
	}
}

func TestProcessRangeStatusResults(t *testing.T) {
	s, path := newTestServer(t)
	ctx := context.Background()

	res, _ := s.handleProcessRange(ctx, map[string]interface{}{"path": path, "text_column": "text"})
	var started struct {
		JobID  string `json:"job_id"`
		EndRow int    `json:"end_row"`
	}
	decode(t, res, &started)
	if started.JobID == "" || started.EndRow != 4 {
		t.Fatalf("unexpected start response %+v", started)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.runner.Wait(waitCtx, started.JobID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	res, _ = s.handleStatus(ctx, map[string]interface{}{"job_id": started.JobID})
	var status struct {
		Job      model.BatchJob `json:"job"`
		Progress float64        `json:"progress"`
	}
	decode(t, res, &status)
	if status.Job.Status != model.StatusCompleted || status.Progress != 1 {
		t.Errorf("expected completed job, got %+v", status)
	}

	res, _ = s.handleResults(ctx, map[string]interface{}{"job_id": started.JobID, "offset": float64(1), "limit": float64(2)})
	var results struct {
		Total int                  `json:"total"`
		Rows  []model.ProcessedRow `json:"rows"`
	}
	decode(t, res, &results)
	if results.Total != 5 || len(results.Rows) != 2 || results.Rows[0].RowID != 1 {
		t.Errorf("unexpected page: total=%d rows=%d", results.Total, len(results.Rows))
	}

	res, _ = s.handleReprocess(ctx, map[string]interface{}{
		"job_id": started.JobID, "pattern": "aircraft", "overwrite": true,
	})
	var report batch.ReprocessReport
	decode(t, res, &report)
	if report.Matched != 1 || report.Changed != 0 {
		t.Errorf("expected one unchanged match, got %+v", report)
	}

	res, _ = s.handlePause(ctx, map[string]interface{}{"job_id": started.JobID})
	if res.IsError {
		t.Errorf("expected pause of completed job to succeed, got %s", resultText(t, res))
	}

	res, _ = s.handleListJobs(ctx, nil)
	if !strings.Contains(resultText(t, res), started.JobID) {
		t.Error("expected job in listing")
	}
}

func TestUnknownJob(t *testing.T) {
	s, _ := newTestServer(t)
	for _, h := range []handler{s.handleStatus, s.handleResults, s.handlePause, s.handleResume, s.handleReprocess} {
		res, _ := h(context.Background(), map[string]interface{}{"job_id": "missing"})
		if !res.IsError {
			t.Error("expected error for unknown job")
		}
		res, _ = h(context.Background(), map[string]interface{}{})
		if !res.IsError {
			t.Error("expected error without job_id")
		}
	}
}

func TestProcessRange_BadRange(t *testing.T) {
	s, path := newTestServer(t)
	res, _ := s.handleProcessRange(context.Background(), map[string]interface{}{
		"path": path, "start_row": float64(4), "end_row": float64(2),
	})
	if !res.IsError || !strings.Contains(resultText(t, res), "invalid row range") {
		t.Errorf("expected range error, got %s", resultText(t, res))
	}
}

func TestMCP_RegistersTools(t *testing.T) {
	s, _ := newTestServer(t)
	if s.MCP("test") == nil {
		t.Fatal("expected server")
	}
}
