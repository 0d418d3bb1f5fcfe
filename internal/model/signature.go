package model

import (
	"encoding/json"
	"maps"
	"slices"
	"sort"
)

// FailureSignature is the two-section record produced once per failed
// execution. Clustering holds only generalized text; FixContext keeps the
// literals.
type FailureSignature struct {
	CaseID     string            `json:"case_id"`
	TestName   string            `json:"test_name"`
	TestModule string            `json:"test_module,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	Clustering ClusteringSection `json:"clustering"`
	FixContext FixContext        `json:"fix_context"`
}

// ClusteringSection is the generalized view fed to embedding.
type ClusteringSection struct {
	ErrorType            string       `json:"error_type"`
	AssertionExpressions []string     `json:"assertion_expressions"`
	AssertionBlocks      []string     `json:"assertion_blocks"`
	ExecutionFlow        []string     `json:"execution_flow"`
	AnomalyFlags         AnomalyFlags `json:"anomaly_flags"`
}

// Strings returns every string in the section, for leak checks.
func (c ClusteringSection) Strings() []string {
	out := []string{c.ErrorType}
	out = append(out, c.AssertionExpressions...)
	out = append(out, c.AssertionBlocks...)
	return append(out, c.ExecutionFlow...)
}

// AnomalyFlags are behavioral signals derived from span attributes.
type AnomalyFlags struct {
	ValidationFailure bool `json:"has_validation_failure"`
	EmptyResponse     bool `json:"has_empty_response"`
	RoutingDecision   bool `json:"has_routing_decision"`
	Retrieval         bool `json:"has_retrieval"`
	ToolCalls         bool `json:"has_tool_calls"`
	SpanError         bool `json:"has_span_error"`
}

// Names returns the human-readable names of the set flags in a fixed order.
func (f AnomalyFlags) Names() []string {
	var names []string
	for _, fl := range []struct {
		set  bool
		name string
	}{
		{f.ValidationFailure, "validation failure"},
		{f.EmptyResponse, "empty response"},
		{f.RoutingDecision, "routing decision"},
		{f.Retrieval, "retrieval"},
		{f.ToolCalls, "tool calls"},
		{f.SpanError, "span error"},
	} {
		if fl.set {
			names = append(names, fl.name)
		}
	}
	return names
}

// FixContext is the literal view handed to fix generation.
type FixContext struct {
	ErrorMessage     string            `json:"error_message"`
	FailedAssertions []AssertionDetail `json:"failed_assertions"`
	Assertions       []string          `json:"assertions"`
	Inputs           map[string]any    `json:"input,omitempty"`
	ExpectedOutput   map[string]any    `json:"expected_output,omitempty"`
	ActualOutput     map[string]any    `json:"output,omitempty"`
	CodeLocations    []CodeLocation    `json:"code_locations"`
}

// AssertionDetail is a failed assertion with its literal values.
type AssertionDetail struct {
	Expression   string            `json:"expression"`
	Error        string            `json:"error,omitempty"`
	ResolvedArgs map[string]string `json:"resolved_args,omitempty"`
	Pretty       string            `json:"pretty"`
}

// CodeLocation is a (file, line, function) triple observed in a span.
type CodeLocation struct {
	Component string `json:"component"`
	FilePath  string `json:"filepath,omitempty"`
	LineNo    int    `json:"lineno,omitempty"`
	Function  string `json:"function"`
}

// Clone returns a deep copy of s.
func (s FailureSignature) Clone() FailureSignature {
	c := s.Clustering
	c.AssertionExpressions = slices.Clone(c.AssertionExpressions)
	c.AssertionBlocks = slices.Clone(c.AssertionBlocks)
	c.ExecutionFlow = slices.Clone(c.ExecutionFlow)
	s.Clustering = c

	f := s.FixContext
	f.FailedAssertions = slices.Clone(f.FailedAssertions)
	for i := range f.FailedAssertions {
		f.FailedAssertions[i].ResolvedArgs = maps.Clone(f.FailedAssertions[i].ResolvedArgs)
	}
	f.Assertions = slices.Clone(f.Assertions)
	f.Inputs = cloneAny(f.Inputs)
	f.ExpectedOutput = cloneAny(f.ExpectedOutput)
	f.ActualOutput = cloneAny(f.ActualOutput)
	f.CodeLocations = slices.Clone(f.CodeLocations)
	s.FixContext = f
	return s
}

// cloneAny copies m, recursing into nested maps and slices decoded from JSON.
func cloneAny(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneAny(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Collection is an ordered, immutable list of signatures, sorted by case id.
type Collection struct {
	sigs []FailureSignature
}

// NewCollection deep-copies sigs and orders them by ascending case id.
func NewCollection(sigs []FailureSignature) *Collection {
	cp := make([]FailureSignature, len(sigs))
	for i, s := range sigs {
		cp[i] = s.Clone()
	}
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].CaseID < cp[j].CaseID })
	return &Collection{sigs: cp}
}

// Len returns the number of signatures.
func (c *Collection) Len() int { return len(c.sigs) }

// At returns a copy of the i-th signature.
func (c *Collection) At(i int) FailureSignature { return c.sigs[i].Clone() }

// Signatures returns a deep copy of the ordered signatures.
func (c *Collection) Signatures() []FailureSignature {
	cp := make([]FailureSignature, len(c.sigs))
	for i, s := range c.sigs {
		cp[i] = s.Clone()
	}
	return cp
}

// Lookup returns the signature for caseID.
func (c *Collection) Lookup(caseID string) (FailureSignature, bool) {
	i := sort.Search(len(c.sigs), func(i int) bool { return c.sigs[i].CaseID >= caseID })
	if i < len(c.sigs) && c.sigs[i].CaseID == caseID {
		return c.sigs[i].Clone(), true
	}
	return FailureSignature{}, false
}

// MarshalJSON encodes the collection as a JSON array.
func (c *Collection) MarshalJSON() ([]byte, error) {
	if c.sigs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.sigs)
}

// UnmarshalJSON decodes a JSON array of signatures.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var sigs []FailureSignature
	if err := json.Unmarshal(data, &sigs); err != nil {
		return err
	}
	*c = *NewCollection(sigs)
	return nil
}
