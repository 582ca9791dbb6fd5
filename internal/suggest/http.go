package suggest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// APIError is a non-2xx response from a provider.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.Status, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// transport holds what both provider clients share.
type transport struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

func newTransport(baseURL string) transport {
	return transport{
		baseURL:    baseURL,
		client:     &http.Client{},
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// post sends body to baseURL, retrying rate limits and server errors with
// exponential backoff. decodeErr turns an error body into a message.
func (t *transport) post(ctx context.Context, provider string, body []byte, header http.Header, decodeErr func([]byte) string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retryDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header = header.Clone()
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{Provider: provider, Status: resp.StatusCode, Message: decodeErr(respBody)}
			if apiErr.Retryable() {
				lastErr = apiErr
				continue
			}
			return nil, apiErr
		}
		return respBody, nil
	}
	return nil, lastErr
}
