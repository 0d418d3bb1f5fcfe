// Package sqlite reads executions, assertions and spans from the test
// runner's SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crimson-sun/faultline/internal/connector"
	"github.com/crimson-sun/faultline/internal/model"
)

func init() {
	connector.Register("sqlite", func(cfg connector.Config) (connector.Source, error) {
		return Open(cfg.DBPath)
	})
}

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// Source implements connector.Source over a runner database. It only reads.
type Source struct {
	db *sql.DB
}

// Open opens the database at path. A missing file is an error; the
// database is never created here.
func Open(path string) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open runner database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Source{db: db}, nil
}

// Close closes the database connection.
func (s *Source) Close() error {
	return s.db.Close()
}

const executionColumns = `te.execution_id, te.run_id, te.case_id, te.test_name, te.file_path,
	te.status, te.duration_ms, te.trace_id, te.error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (model.ExecutionRecord, error) {
	var (
		execID, runID, caseID, name, file, status, traceID, errMsg sql.NullString
		durationMS                                                 sql.NullFloat64
	)
	if err := row.Scan(&execID, &runID, &caseID, &name, &file, &status, &durationMS, &traceID, &errMsg); err != nil {
		return model.ExecutionRecord{}, err
	}
	rec := model.ExecutionRecord{
		CaseID:       nullStr(caseID),
		ExecutionID:  nullStr(execID),
		RunID:        nullStr(runID),
		TestName:     nullStr(name),
		TestModule:   nullStr(file),
		Status:       model.Status(strings.ToLower(nullStr(status))),
		TraceID:      model.NewTraceRef(nullStr(traceID)),
		ErrorMessage: nullStr(errMsg),
	}
	if durationMS.Valid {
		rec.Duration = time.Duration(durationMS.Float64 * float64(time.Millisecond))
	}
	return rec, nil
}

// FailedExecutions returns failed and errored executions of runIDs, ordered
// by case id. With no run ids the most recent run is used.
func (s *Source) FailedExecutions(ctx context.Context, runIDs []string) ([]model.ExecutionRecord, error) {
	if len(runIDs) == 0 {
		var latest string
		err := s.db.QueryRowContext(ctx, "SELECT run_id FROM runs ORDER BY start_time DESC LIMIT 1").Scan(&latest)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("latest run: %w", err)
		}
		runIDs = []string{latest}
	}

	args := make([]any, len(runIDs))
	for i, id := range runIDs {
		args[i] = id
	}
	q := `SELECT ` + executionColumns + `
		FROM test_executions te
		WHERE te.run_id IN (` + placeholders(len(runIDs)) + `)
		  AND lower(te.status) IN ('failed', 'error')
		ORDER BY te.case_id, te.execution_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed executions: %w", err)
	}
	defer rows.Close()

	var out []model.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Execution returns the most recent execution of caseID.
func (s *Source) Execution(ctx context.Context, caseID string) (model.ExecutionRecord, error) {
	q := `SELECT ` + executionColumns + `
		FROM test_executions te
		LEFT JOIN runs r ON te.run_id = r.run_id
		WHERE te.case_id = ?
		ORDER BY r.start_time DESC, te.execution_id DESC
		LIMIT 1`
	rec, err := scanExecution(s.db.QueryRowContext(ctx, q, caseID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExecutionRecord{}, &model.NotFoundError{Kind: "execution", ID: caseID}
	}
	if err != nil {
		return model.ExecutionRecord{}, fmt.Errorf("query execution %s: %w", caseID, err)
	}
	return rec, nil
}

// Assertions returns the assertions of an execution in evaluation order.
func (s *Source) Assertions(ctx context.Context, executionID string) ([]model.AssertionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expression_repr, passed, error_message
		FROM assertions
		WHERE test_execution_id = ?
		ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query assertions: %w", err)
	}
	defer rows.Close()

	var out []model.AssertionRecord
	for rows.Next() {
		var (
			id           int64
			repr, errMsg sql.NullString
			passed       sql.NullBool
		)
		if err := rows.Scan(&id, &repr, &passed, &errMsg); err != nil {
			return nil, fmt.Errorf("scan assertion: %w", err)
		}
		out = append(out, connector.DecodeAssertion(id, nullStr(repr), passed.Valid && passed.Bool, nullStr(errMsg)))
	}
	return out, rows.Err()
}

// Spans returns the spans of traceID ordered by start time. The id is
// matched with and without its 0x prefix. Rows whose JSON does not decode
// are skipped.
func (s *Source) Spans(ctx context.Context, traceID string) ([]model.SpanRecord, error) {
	variants := connector.TraceIDVariants(traceID)
	rows, err := s.db.QueryContext(ctx, `
		SELECT span_json
		FROM trace_spans
		WHERE trace_id IN (?, ?)
		ORDER BY start_time_ns, span_id`, variants[0], variants[1])
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var out []model.SpanRecord
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		span, err := connector.DecodeSpan([]byte(nullStr(raw)))
		if err != nil {
			slog.Debug("skipping malformed span", "trace_id", traceID, "error", err)
			continue
		}
		out = append(out, span)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
