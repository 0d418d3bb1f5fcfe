// Package file reads executions from a JSON export and spans from an
// OpenTelemetry JSON-lines span export.
package file

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/crimson-sun/faultline/internal/connector"
	"github.com/crimson-sun/faultline/internal/connector/memory"
	"github.com/crimson-sun/faultline/internal/model"
)

func init() {
	connector.Register("file", func(cfg connector.Config) (connector.Source, error) {
		return Open(cfg.ExecutionsPath, cfg.SpansPath)
	})
}

// executionJSON is one entry of the executions export.
type executionJSON struct {
	ExecutionID  string          `json:"execution_id"`
	RunID        string          `json:"run_id"`
	CaseID       string          `json:"case_id"`
	TestName     string          `json:"test_name"`
	FilePath     string          `json:"file_path"`
	Status       string          `json:"status"`
	DurationMS   float64         `json:"duration_ms"`
	TraceID      string          `json:"trace_id"`
	ErrorMessage string          `json:"error_message"`
	Assertions   []assertionJSON `json:"assertions"`
}

type assertionJSON struct {
	ExpressionRepr json.RawMessage `json:"expression_repr"`
	Passed         bool            `json:"passed"`
	ErrorMessage   string          `json:"error_message"`
}

// Open loads both exports into memory. spansPath may be empty, in which
// case every trace is empty.
func Open(executionsPath, spansPath string) (*memory.Source, error) {
	src := memory.New()

	data, err := os.ReadFile(executionsPath)
	if err != nil {
		return nil, fmt.Errorf("read executions: %w", err)
	}
	var execs []executionJSON
	if err := json.Unmarshal(data, &execs); err != nil {
		return nil, &model.SerializationError{Path: executionsPath, Err: err}
	}

	var nextID int64
	for _, e := range execs {
		rec := model.ExecutionRecord{
			CaseID:       e.CaseID,
			ExecutionID:  e.ExecutionID,
			RunID:        e.RunID,
			TestName:     e.TestName,
			TestModule:   e.FilePath,
			Status:       model.Status(strings.ToLower(e.Status)),
			Duration:     time.Duration(e.DurationMS * float64(time.Millisecond)),
			TraceID:      model.NewTraceRef(e.TraceID),
			ErrorMessage: e.ErrorMessage,
		}
		if rec.ExecutionID == "" {
			rec.ExecutionID = e.RunID + "/" + e.CaseID
		}
		as := make([]model.AssertionRecord, 0, len(e.Assertions))
		for _, a := range e.Assertions {
			nextID++
			as = append(as, connector.DecodeAssertion(nextID, reprString(a.ExpressionRepr), a.Passed, a.ErrorMessage))
		}
		src.AddExecution(rec, as...)
	}

	if spansPath == "" {
		return src, nil
	}
	if err := loadSpans(src, spansPath); err != nil {
		return nil, err
	}
	return src, nil
}

// reprString accepts the repr either as a JSON object or as a string
// holding the serialized object or bare expression text.
func reprString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func loadSpans(src *memory.Source, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read spans: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		span, err := connector.DecodeSpan([]byte(text))
		if err != nil {
			slog.Debug("skipping malformed span", "path", path, "line", line, "error", err)
			continue
		}
		src.AddSpans(span.TraceID, span)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan spans: %w", err)
	}
	return nil
}
