package generalize

import (
	"strings"
	"testing"

	"github.com/crimson-sun/faultline/internal/engine/testdata"
)

func TestGeneralize_Corpus(t *testing.T) {
	entries, err := testdata.LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	for _, e := range entries {
		t.Run(e.Description, func(t *testing.T) {
			got := Generalize(e.Raw)
			if got != e.Generalized {
				t.Errorf("Generalize(%q)\n got: %q\nwant: %q", e.Raw, got, e.Generalized)
			}
		})
	}
}

func TestGeneralize_Idempotent(t *testing.T) {
	entries, err := testdata.LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	inputs := []string{
		"",
		"plain text without literals",
		"x[0] == [[1, 2], [3]] and {'a': {'b': 1}}",
		"5'abc' then '' and \"\"",
		"version 1.2.3 at 2024-01-01 10:00:00",
	}
	for _, e := range entries {
		inputs = append(inputs, e.Raw)
	}
	for _, in := range inputs {
		once := Generalize(in)
		twice := Generalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once: %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestGeneralize_LeakFree(t *testing.T) {
	entries, err := testdata.LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	for _, e := range entries {
		if leaks := Leaks(Generalize(e.Raw)); len(leaks) > 0 {
			t.Errorf("Generalize(%q) leaks %v", e.Raw, leaks)
		}
	}
}

func TestGeneralize_Deterministic(t *testing.T) {
	in := "Expected {'city': 'Paris', 'nights': 3} on 2024-06-01 at 09:00, got ['Rome']"
	want := Generalize(in)
	for i := 0; i < 50; i++ {
		if got := Generalize(in); got != want {
			t.Fatalf("run %d: %q != %q", i, got, want)
		}
	}
}

func TestGeneralize_MissingFieldExample(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Missing field 'destination'", "Missing field '[VALUE]'"},
		{"'destination' in response", "'[VALUE]' in response"},
	}
	for _, tt := range tests {
		if got := Generalize(tt.in); got != tt.want {
			t.Errorf("Generalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGeneralize_PrettyBlock(t *testing.T) {
	block := strings.Join([]string{
		"Assertion Failed!",
		"Error message: Missing field 'destination'",
		"│  result = agent.run(\"Plan 3 days in Rome\")",
		">  'destination' in result",
		"╰─ where:",
		"     result = {'origin': 'SFO', 'days': 3}",
	}, "\n")
	want := strings.Join([]string{
		"Assertion Failed!",
		"Error message: Missing field '[VALUE]'",
		"│  result = agent.run(\"[VALUE]\")",
		">  '[VALUE]' in result",
		"╰─ where:",
		"     result = [MAP]",
	}, "\n")
	if got := Generalize(block); got != want {
		t.Errorf("Generalize(block)\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestGeneralize_NestedLists(t *testing.T) {
	if got := Generalize("got [[1, 2], [3]]"); got != "got [LIST]" {
		t.Errorf("nested list = %q", got)
	}
	if got := Generalize("got {'a': {'b': [1]}}"); got != "got [MAP]" {
		t.Errorf("nested map = %q", got)
	}
}

func TestGeneralize_WordIdentifiers(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Booking BK12345 not found", "Booking [ID] not found"},
		{"order ORD-88213 was cancelled", "order [ID] was cancelled"},
		{"user_42 has no itinerary", "[ID] has no itinerary"},
		{"req abc123def failed", "req [ID] failed"},
		// Below the threshold: names, not values.
		{"gpt4 returned var_2", "gpt4 returned var_2"},
		{"model gpt4o answered", "model gpt4o answered"},
		{"slot a12 empty", "slot a12 empty"},
	}
	for _, tt := range tests {
		if got := Generalize(tt.in); got != tt.want {
			t.Errorf("Generalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if leaks := Leaks(tt.want); len(leaks) > 0 {
			t.Errorf("Leaks(%q) = %v", tt.want, leaks)
		}
	}
}

func TestLeaks_WordIdentifier(t *testing.T) {
	leaks := Leaks("Booking BK12345 not found")
	if len(leaks) != 1 || leaks[0].Rule != "wordid" || leaks[0].Literal != "BK12345" {
		t.Errorf("Leaks = %v", leaks)
	}
}

func TestGeneralize_LongHexNeedsLetter(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"timestamp 1700000000000", "timestamp [NUMBER]"},
		{"commit 3f2a9c81b7e04d", "commit [ID]"},
		{"short cafe12", "short cafe12"},
	}
	for _, tt := range tests {
		if got := Generalize(tt.in); got != tt.want {
			t.Errorf("Generalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLeaks(t *testing.T) {
	leaks := Leaks("Expected 3 got '[VALUE]' on 2024-01-01")
	var rules []string
	for _, l := range leaks {
		rules = append(rules, l.Rule+"="+l.Literal)
	}
	got := strings.Join(rules, ",")
	if !strings.Contains(got, "isodate=2024-01-01") || !strings.Contains(got, "number=3") {
		t.Errorf("Leaks = %s", got)
	}
	if strings.Contains(got, "[VALUE]") {
		t.Errorf("placeholder reported as leak: %s", got)
	}
}

func TestAll(t *testing.T) {
	if All(nil) != nil {
		t.Error("All(nil) should be nil")
	}
	got := All([]string{"a 1", "b"})
	if len(got) != 2 || got[0] != "a [NUMBER]" || got[1] != "b" {
		t.Errorf("All = %v", got)
	}
}
