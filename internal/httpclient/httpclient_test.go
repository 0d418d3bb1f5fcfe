package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/crimson-sun/faultline/internal/model"
)

func TestPostJSON_Success(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"name":"faultline","version":1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	var dest struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}
	err := c.PostJSON(context.Background(), "/info", map[string]string{"q": "x"}, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Name != "faultline" || dest.Version != 1 {
		t.Fatalf("unexpected result: %+v", dest)
	}
	if gotBody["q"] != "x" {
		t.Fatalf("request body = %v", gotBody)
	}
}

func TestPostJSON_BearerAuthAndHeaders(t *testing.T) {
	var gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token-123", WithHeader("X-Api-Key", "k"))
	if err := c.PostJSON(context.Background(), "/", struct{}{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-token-123" {
		t.Fatalf("expected 'Bearer secret-token-123', got %q", gotAuth)
	}
	if gotKey != "k" {
		t.Fatalf("expected X-Api-Key header, got %q", gotKey)
	}
}

func TestPostJSON_NoTokenNoAuth(t *testing.T) {
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
	}))
	defer srv.Close()

	if err := New(srv.URL, "").PostJSON(context.Background(), "/", 1, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasAuth {
		t.Fatal("expected no Authorization header")
	}
}

func TestPostJSON_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	err := New(srv.URL, "tok").PostJSON(context.Background(), "/", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 429 || len(apiErr.Body) != 512 {
		t.Fatalf("unexpected APIError: status=%d len=%d", apiErr.StatusCode, len(apiErr.Body))
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Fatalf("RetryAfter = %v", apiErr.RetryAfter)
	}
	if !apiErr.Temporary() {
		t.Fatal("429 should be temporary")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"server error", &APIError{StatusCode: 503}, true},
		{"bad request", &APIError{StatusCode: 400}, false},
		{"unauthorized", &APIError{StatusCode: 401}, false},
		{"network", &url.Error{Op: "Post", URL: "http://x", Err: syscall.ECONNREFUSED}, true},
		{"reset while reading", fmt.Errorf("read response: %w", syscall.ECONNRESET), true},
		{"truncated body", fmt.Errorf("read response: %w", io.ErrUnexpectedEOF), true},
		{"decode", fmt.Errorf("decode response: %w", errors.New("invalid character")), false},
		{"encode", fmt.Errorf("encode request: %w", errors.New("unsupported type")), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("embed", tt.err)
			var te *model.TransientError
			if got := errors.As(err, &te); got != tt.transient {
				t.Fatalf("Classify(%v) transient = %v, want %v", tt.err, got, tt.transient)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Fatalf("Classify lost the cause: %v", err)
			}
		})
	}
}

func TestClassify_KeepsRetryAfter(t *testing.T) {
	err := Classify("embed", &APIError{StatusCode: 429, RetryAfter: 3 * time.Second})
	var te *model.TransientError
	if !errors.As(err, &te) || te.RetryAfter != 3*time.Second {
		t.Fatalf("expected RetryAfter 3s, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("2"); got != 2*time.Second {
		t.Errorf("seconds: %v", got)
	}
	if got := ParseRetryAfter("0"); got != 0 {
		t.Errorf("zero: %v", got)
	}
	if got := ParseRetryAfter("soon"); got != 0 {
		t.Errorf("garbage: %v", got)
	}
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if got := ParseRetryAfter(future); got <= 0 || got > time.Hour {
		t.Errorf("date: %v", got)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt    int
		retryAfter time.Duration
		want       time.Duration
	}{
		{1, 0, time.Second},
		{2, 0, 2 * time.Second},
		{3, 0, 4 * time.Second},
		{10, 0, maxBackoff},
		{1, 5 * time.Second, 5 * time.Second},
		{1, time.Hour, maxBackoff},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, tt.retryAfter); got != tt.want {
			t.Errorf("Backoff(%d, %v) = %v, want %v", tt.attempt, tt.retryAfter, got, tt.want)
		}
	}
}

func TestPostJSON_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(srv.URL, "tok").PostJSON(ctx, "/", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
