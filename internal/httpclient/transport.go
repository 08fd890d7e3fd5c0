package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// connRetries is the transport-level reconnection budget. This layer only
// re-dials dropped connections; application-level retry and failover live in
// the dispatcher, and keeping the two apart avoids compounding retry storms.
const connRetries = 1

// New returns a pooled HTTP client suitable for long-lived provider handles.
// There is no overall client timeout: non-streaming calls are bounded by the
// caller's context, and a whole-request timeout would kill healthy streams.
// headerTimeout bounds how long the upstream may take to start responding.
func New(headerTimeout time.Duration) *http.Client {
	base := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
	return &http.Client{
		Transport: &retryTransport{base: base},
	}
}

// retryTransport redials on connection-level failures where no response was
// received. Request bodies built from byte buffers are replayable via
// GetBody.
type retryTransport struct {
	base http.RoundTripper
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for attempt := 0; attempt < connRetries && err != nil && retriableDial(req, err); attempt++ {
		var body io.ReadCloser
		if req.GetBody != nil {
			body, err = req.GetBody()
			if err != nil {
				return nil, err
			}
		}
		clone := req.Clone(req.Context())
		clone.Body = body
		resp, err = t.base.RoundTrip(clone)
	}
	return resp, err
}

func retriableDial(req *http.Request, err error) bool {
	if req.Context().Err() != nil {
		return false
	}
	if req.Body != nil && req.GetBody == nil {
		// body already consumed and not replayable
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
