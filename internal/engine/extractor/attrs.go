package extractor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/crimson-sun/faultline/internal/model"
)

// Attribute keys read from spans.
const (
	attrCompletion     = "gen_ai.completion.0.content"
	attrSystem         = "gen_ai.system"
	attrPromptPrefix   = "gen_ai.prompt."
	attrValidation     = "validation_success"
	attrNeedsTools     = "route.needs_tools"
	attrNeedsRetrieval = "route.needs_retrieval"
	attrRouteTools     = "route.tools"
	attrRetrieval      = "retrieval.num_results"
	attrToolInput      = "tool.input"
	attrToolResult     = "tool.result"
	attrQuery          = "input.query"
	attrUserMessage    = "input.user_message"
	attrItinerary      = "output.itinerary"
	attrMessage        = "output.message"
)

// shortResponse is the completion length below which a response counts as
// empty.
const shortResponse = 50

// toolName returns the tool a span invokes, from names like
// "travelops.tool.flights" or "tool.weather".
func toolName(spanName string) (string, bool) {
	if strings.HasPrefix(spanName, "tool.") {
		return spanName[len("tool."):], true
	}
	if i := strings.Index(spanName, ".tool."); i >= 0 {
		return spanName[i+len(".tool."):], true
	}
	return "", false
}

func anomalyFlags(t *trace) model.AnomalyFlags {
	var f model.AnomalyFlags
	for _, s := range t.spans {
		a := s.Attributes
		if v, ok := a[attrValidation].(bool); ok && !v {
			f.ValidationFailure = true
		}
		if v, ok := a[attrCompletion]; ok {
			content, _ := v.(string)
			if len(content) < shortResponse {
				f.EmptyResponse = true
			}
		}
		if _, ok := a[attrNeedsTools]; ok {
			f.RoutingDecision = true
		}
		if _, ok := a[attrNeedsRetrieval]; ok {
			f.RoutingDecision = true
		}
		if _, ok := a[attrRetrieval]; ok {
			f.Retrieval = true
		}
		if _, ok := toolName(s.Name); ok {
			f.ToolCalls = true
		}
		if strings.EqualFold(s.StatusCode, "ERROR") {
			f.SpanError = true
		}
	}
	return f
}

type message struct {
	idx     int
	role    string
	content any
}

// inputs collects what the system under test received. Later spans in
// traversal order overwrite earlier ones.
func inputs(t *trace) map[string]any {
	out := map[string]any{}
	toolInputs := map[string]any{}
	msgs := map[int]message{}

	for _, i := range t.order() {
		s := t.spans[i]
		a := s.Attributes
		for k, v := range a {
			if !strings.HasPrefix(k, attrPromptPrefix) || !strings.HasSuffix(k, ".content") {
				continue
			}
			idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(k, attrPromptPrefix), ".content"))
			if err != nil {
				continue
			}
			role, ok := a[fmt.Sprintf("%s%d.role", attrPromptPrefix, idx)].(string)
			if !ok {
				role = "unknown"
			}
			msgs[idx] = message{idx: idx, role: role, content: v}
		}
		copyAttr(out, "system_message", a, attrSystem)
		copyAttr(out, "needs_retrieval", a, attrNeedsRetrieval)
		copyAttr(out, "needs_tools", a, attrNeedsTools)
		copyAttr(out, "tools_selected", a, attrRouteTools)
		copyAttr(out, "query", a, attrQuery)
		copyAttr(out, "user_message", a, attrUserMessage)
		if tool, ok := toolName(s.Name); ok {
			copyAttr(toolInputs, tool, a, attrToolInput)
		}
	}

	if len(toolInputs) > 0 {
		out["tool_inputs"] = toolInputs
	}
	if len(msgs) > 0 {
		ordered := make([]message, 0, len(msgs))
		for _, m := range msgs {
			ordered = append(ordered, m)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].idx < ordered[j].idx })
		list := make([]any, len(ordered))
		for i, m := range ordered {
			list[i] = map[string]any{"role": m.role, "content": m.content}
		}
		out["messages"] = list
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// actualOutput collects what the system under test produced.
func actualOutput(t *trace) map[string]any {
	out := map[string]any{}
	toolResults := map[string]any{}
	for _, i := range t.order() {
		s := t.spans[i]
		copyAttr(out, "llm_response", s.Attributes, attrCompletion)
		copyAttr(out, "itinerary", s.Attributes, attrItinerary)
		copyAttr(out, "message", s.Attributes, attrMessage)
		if tool, ok := toolName(s.Name); ok {
			copyAttr(toolResults, tool, s.Attributes, attrToolResult)
		}
	}
	if len(toolResults) > 0 {
		out["tool_results"] = toolResults
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// expectedOutput collects reference data: expected.* and reference.* span
// attributes plus resolved assertion arguments whose name mentions
// "expected".
func expectedOutput(t *trace, failed []model.AssertionRecord) map[string]any {
	out := map[string]any{}
	for _, i := range t.order() {
		for k, v := range t.spans[i].Attributes {
			for _, p := range []string{"expected.", "reference."} {
				if strings.HasPrefix(k, p) {
					out[strings.TrimPrefix(k, p)] = v
				}
			}
		}
	}
	for _, a := range failed {
		for name, v := range a.ResolvedArgs {
			if strings.Contains(strings.ToLower(name), "expected") {
				out[name] = v
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// codeLocations returns the distinct (file, line, function) triples seen in
// component spans, in traversal order. Spans without a code.function use
// their name.
func codeLocations(t *trace, skip []string) []model.CodeLocation {
	var out []model.CodeLocation
	seen := map[string]bool{}
	for _, i := range t.order() {
		s := t.spans[i]
		if hasAnyPrefix(s.Name, skip) {
			continue
		}
		file, _ := s.Attributes[string(semconv.CodeFilepathKey)].(string)
		line := toInt(s.Attributes[string(semconv.CodeLineNumberKey)])
		fn, _ := s.Attributes[string(semconv.CodeFunctionKey)].(string)
		if file == "" && s.Name == "" {
			continue
		}
		if fn == "" {
			fn = s.Name
		}
		where := file
		if where == "" {
			where = s.Name
		}
		key := fmt.Sprintf("%s:%d:%s", where, line, fn)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.CodeLocation{Component: s.Name, FilePath: file, LineNo: line, Function: fn})
	}
	return out
}

func copyAttr(dst map[string]any, as string, attrs map[string]any, key string) {
	if v, ok := attrs[key]; ok {
		dst[as] = v
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
