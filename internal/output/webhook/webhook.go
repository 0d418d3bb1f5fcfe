package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crimson-sun/faultline/internal/httpclient"
	"github.com/crimson-sun/faultline/internal/output"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
)

// Payload is the JSON body POSTed for each artifact.
type Payload struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Artifact any    `json:"artifact"`
}

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) {
		for k, v := range h {
			o.clientOpts = append(o.clientOpts, httpclient.WithHeader(k, v))
		}
	}
}

// WithToken sends a Bearer token with every POST.
func WithToken(token string) Option {
	return func(o *Output) { o.token = token }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.timeout = d }
}

// WithBackoff replaces the retry delay function. Default: httpclient.Backoff.
func WithBackoff(f func(attempt int, retryAfter time.Duration) time.Duration) Option {
	return func(o *Output) { o.backoff = f }
}

// Output POSTs each artifact to an HTTP endpoint as a JSON Payload.
// Retries on 429 and 5xx with exponential backoff.
type Output struct {
	client     *httpclient.Client
	clientOpts []httpclient.Option
	token      string
	timeout    time.Duration
	backoff    func(int, time.Duration) time.Duration
}

// New creates a webhook output targeting the given URL.
func New(url string, opts ...Option) *Output {
	o := &Output{
		timeout: defaultTimeout,
		backoff: httpclient.Backoff,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.client = httpclient.New(url, o.token, append(o.clientOpts, httpclient.WithTimeout(o.timeout))...)
	return o
}

// Write sends the artifact, retrying temporary failures up to maxRetries.
func (o *Output) Write(ctx context.Context, a output.Artifact) error {
	body := Payload{Kind: a.Kind, Name: a.Name, Artifact: a.Value}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			var retryAfter time.Duration
			var apiErr *httpclient.APIError
			if errors.As(lastErr, &apiErr) {
				retryAfter = apiErr.RetryAfter
			}
			select {
			case <-time.After(o.backoff(attempt, retryAfter)):
			case <-ctx.Done():
				return fmt.Errorf("webhook: %w", ctx.Err())
			}
		}

		err := o.client.PostJSON(ctx, "", body, nil)
		if err == nil {
			return nil
		}
		lastErr = err

		// Only retry on rate limiting and server errors.
		var apiErr *httpclient.APIError
		if !errors.As(err, &apiErr) || !apiErr.Temporary() {
			return fmt.Errorf("webhook: %w", err)
		}
	}
	return fmt.Errorf("webhook: %w", lastErr)
}

// Close is a no-op; Write does not buffer.
func (o *Output) Close() error {
	return nil
}
