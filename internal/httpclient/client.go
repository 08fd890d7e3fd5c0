package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Doer is the subset of http.Client the helpers need.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PostJSON sends a JSON request and decodes the JSON response into out.
// Non-2xx responses come back as *UpstreamError with the body attached.
func PostJSON(ctx context.Context, client Doer, url string, headers map[string]string, body, out any) error {
	req, err := newJSONRequest(ctx, url, headers, body)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstream(resp, url)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// LineFunc receives one non-empty line of a streamed response body.
type LineFunc func(line string) error

// PostStream sends a JSON request and feeds each line of the SSE response to
// process. It returns when the body ends, the context is cancelled, or
// process returns an error.
func PostStream(ctx context.Context, client Doer, url string, headers map[string]string, body any, process LineFunc) error {
	req, err := newJSONRequest(ctx, url, headers, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("stream request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstream(resp, url)
	}

	scanner := bufio.NewScanner(resp.Body)
	// SSE data lines can exceed bufio's 64K default when a chunk carries a
	// large delta
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := process(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func newJSONRequest(ctx context.Context, url string, headers map[string]string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func upstream(resp *http.Response, url string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return &UpstreamError{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        url,
	}
}
