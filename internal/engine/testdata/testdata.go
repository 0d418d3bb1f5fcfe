package testdata

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed corpus.json
var corpusJSON []byte

// CorpusEntry is a raw failure message with its expected generalization.
// Entries sharing a Shape describe the same underlying failure.
type CorpusEntry struct {
	Raw         string `json:"raw"`
	Generalized string `json:"generalized"`
	Shape       string `json:"shape"`
	Description string `json:"description"`
}

// LoadCorpus parses the embedded corpus.json and returns all entries.
func LoadCorpus() ([]CorpusEntry, error) {
	var entries []CorpusEntry
	if err := json.Unmarshal(corpusJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus.json: %w", err)
	}
	return entries, nil
}

// Shapes returns the corpus grouped by shape, preserving corpus order.
func Shapes(entries []CorpusEntry) map[string][]CorpusEntry {
	out := make(map[string][]CorpusEntry)
	for _, e := range entries {
		out[e.Shape] = append(out[e.Shape], e)
	}
	return out
}
