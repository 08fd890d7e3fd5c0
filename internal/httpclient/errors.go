package httpclient

import "fmt"

// UpstreamError is a non-2xx response from an upstream provider, with the
// body retained for diagnostics.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d from %s", e.StatusCode, e.URL)
}

// Transient reports whether the status class is worth retrying: server-side
// failures and rate limiting. 4xx auth and validation failures are terminal.
func (e *UpstreamError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 408
}
