package sqlite

// Schema is the subset of the runner's database that faultline reads.
// The runner owns the database; Schema exists to build fixtures.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	start_time TEXT
);

CREATE TABLE IF NOT EXISTS test_executions (
	execution_id  TEXT PRIMARY KEY,
	run_id        TEXT,
	case_id       TEXT,
	test_name     TEXT,
	file_path     TEXT,
	status        TEXT,
	duration_ms   REAL,
	trace_id      TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_test_executions_case ON test_executions(case_id);
CREATE INDEX IF NOT EXISTS idx_test_executions_run ON test_executions(run_id);

CREATE TABLE IF NOT EXISTS assertions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	test_execution_id TEXT,
	expression_repr   TEXT,
	passed            INTEGER,
	error_message     TEXT
);
CREATE INDEX IF NOT EXISTS idx_assertions_execution ON assertions(test_execution_id);

CREATE TABLE IF NOT EXISTS trace_spans (
	trace_id      TEXT,
	span_id       TEXT,
	start_time_ns INTEGER,
	span_json     TEXT
);
CREATE INDEX IF NOT EXISTS idx_trace_spans_trace ON trace_spans(trace_id);
`
