// Package fetcher downloads raw feed documents over HTTP(S).
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "amlwatch/pkg/domain-errors"
)

// HTTPFetcher retrieves feed content with a bounded timeout. It does not
// interpret the payload and never retries; a failed fetch is fatal to the
// run and the next scheduled trigger tries again.
type HTTPFetcher struct {
	client *http.Client
}

// Option configures the HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient overrides the underlying HTTP client, mainly for tests.
func WithClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithTimeout sets the per-fetch timeout on the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.client.Timeout = timeout
	}
}

// New constructs an HTTPFetcher.
func New(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads the document at url. Non-2xx responses and network
// failures surface as transport errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "build feed request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "fetch feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, dErrors.Wrap(
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url),
			dErrors.CodeTransport, "fetch feed",
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "read feed body")
	}
	return body, nil
}
