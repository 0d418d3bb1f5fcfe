package faultline

// Failure is one failed test execution to be clustered.
// This is the stable public type; internal signatures may evolve
// independently.
type Failure struct {
	CaseID     string   `json:"case_id"`
	TestName   string   `json:"test_name,omitempty"`
	Error      string   `json:"error"`                // literal error message; generalized before use
	Assertions []string `json:"assertions,omitempty"` // failed assertion expressions
	Flow       []string `json:"flow,omitempty"`       // components traversed, in order
}

// Result is the outcome of clustering a batch of failures.
type Result struct {
	Clusters   []Cluster `json:"clusters"`   // largest first
	Noise      []string  `json:"noise"`      // case ids in no cluster
	Silhouette *float64  `json:"silhouette"` // nil with fewer than two clusters
	Coherence  *float64  `json:"coherence"`  // nil with no clusters
}

// Cluster is a group of failures that likely share one cause.
type Cluster struct {
	Label          int      `json:"label"`
	Members        []string `json:"members"`
	ErrorTypes     []string `json:"error_types"` // generalized, most frequent first
	Coherent       bool     `json:"coherent"`
	Representative string   `json:"representative"`
}
