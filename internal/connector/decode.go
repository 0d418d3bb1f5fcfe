package connector

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/crimson-sun/faultline/internal/model"
)

// spanJSON is the OpenTelemetry SDK's JSON span export. The parent id sits
// at the top level in current exporters and under context in older ones.
type spanJSON struct {
	Name    string `json:"name"`
	Context struct {
		TraceID  string `json:"trace_id"`
		SpanID   string `json:"span_id"`
		ParentID string `json:"parent_id"`
	} `json:"context"`
	ParentID   *string        `json:"parent_id"`
	StartTime  string         `json:"start_time"`
	EndTime    string         `json:"end_time"`
	Attributes map[string]any `json:"attributes"`
	Status     struct {
		StatusCode  string `json:"status_code"`
		Description string `json:"description"`
	} `json:"status"`
}

// DecodeSpan parses one exported span.
func DecodeSpan(data []byte) (model.SpanRecord, error) {
	var sj spanJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return model.SpanRecord{}, fmt.Errorf("decode span: %w", err)
	}
	if sj.Context.SpanID == "" {
		return model.SpanRecord{}, fmt.Errorf("decode span %q: missing span_id", sj.Name)
	}

	parent := sj.Context.ParentID
	if sj.ParentID != nil {
		parent = *sj.ParentID
	}
	span := model.SpanRecord{
		SpanID:        sj.Context.SpanID,
		ParentID:      parent,
		TraceID:       sj.Context.TraceID,
		Name:          sj.Name,
		Start:         parseTime(sj.StartTime),
		End:           parseTime(sj.EndTime),
		Attributes:    sj.Attributes,
		StatusCode:    sj.Status.StatusCode,
		StatusMessage: sj.Status.Description,
	}
	if span.Attributes == nil {
		span.Attributes = map[string]any{}
	}
	return span, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// exprRepr is the runner's serialized assertion expression.
type exprRepr struct {
	Expr         string         `json:"expr"`
	LinesAbove   string         `json:"lines_above"`
	LinesBelow   string         `json:"lines_below"`
	ResolvedArgs map[string]any `json:"resolved_args"`
}

// DecodeAssertion builds an AssertionRecord from a stored expression repr.
// Older runners stored the bare expression text instead of JSON; that form
// is accepted as the expression.
func DecodeAssertion(id int64, repr string, passed bool, errMsg string) model.AssertionRecord {
	a := model.AssertionRecord{ID: id, Passed: passed, ErrorMessage: errMsg}
	if repr == "" {
		return a
	}
	var er exprRepr
	if err := json.Unmarshal([]byte(repr), &er); err != nil {
		a.Expression = repr
		return a
	}
	a.Expression = er.Expr
	a.LinesAbove = er.LinesAbove
	a.LinesBelow = er.LinesBelow
	if len(er.ResolvedArgs) > 0 {
		a.ResolvedArgs = make(map[string]string, len(er.ResolvedArgs))
		for k, v := range er.ResolvedArgs {
			a.ResolvedArgs[k] = stringify(v)
		}
	}
	return a
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "None"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
