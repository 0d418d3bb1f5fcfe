package stdout

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/crimson-sun/faultline/internal/output"
)

func TestWriteCompact(t *testing.T) {
	var buf bytes.Buffer
	o := NewWriter(&buf, false)
	if err := o.Write(context.Background(), output.Artifact{Value: map[string]int{"n": 1}}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "{\"n\":1}\n" {
		t.Errorf("got %q", got)
	}
}

func TestWritePretty(t *testing.T) {
	var buf bytes.Buffer
	o := NewWriter(&buf, true)
	o.Write(context.Background(), output.Artifact{Value: map[string]int{"n": 1}})
	if !strings.Contains(buf.String(), "\n  \"n\": 1") {
		t.Errorf("expected indented output, got %q", buf.String())
	}
}

func TestWriteUnencodable(t *testing.T) {
	o := NewWriter(&bytes.Buffer{}, false)
	if err := o.Write(context.Background(), output.Artifact{Value: make(chan int)}); err == nil {
		t.Error("expected error for channel value")
	}
}
