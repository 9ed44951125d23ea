package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tripplanner/internal/domain"
	"tripplanner/internal/retry"
)

const maxResponseBytes = 10 << 20

// NewHTTPClient returns the client shared by the upstream gateways.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

// do sends one request and reads the whole body.
func do(ctx context.Context, client *http.Client, method, endpoint string, header http.Header, payload any) (response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return response{}, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return response{}, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, body: raw}, nil
}

func statusError(provider string, r response) *domain.Error {
	return domain.Upstream(provider, r.status, fmt.Errorf("status %d: %s", r.status, snippet(r.body)))
}

func decodeError(provider string, err error) error {
	return retry.Permanent(domain.Upstream(provider, 0, fmt.Errorf("malformed response: %w", err)))
}

// classify wraps non-retryable upstream failures. Transport errors, 429 and
// 5xx stay retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	de, ok := err.(*domain.Error)
	if !ok {
		return err
	}
	if de.StatusCode == 0 || de.StatusCode == http.StatusTooManyRequests || de.StatusCode >= 500 {
		return err
	}
	return retry.Permanent(err)
}

func snippet(b []byte) string {
	const n = 512
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
