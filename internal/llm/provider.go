package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nulzo/llm-gateway/pkg/api"
)

// Family is the closed set of upstream API shapes the gateway speaks. It is
// resolved once when configuration is loaded and never re-derived per call.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGemini    Family = "gemini"
)

// Classify picks the family for a model from its endpoint and upstream model
// name. Anything not recognizably Anthropic or Gemini defaults to the
// OpenAI-compatible shape, which most aggregators speak.
func Classify(endpoint, model string) Family {
	probe := strings.ToLower(endpoint + " " + model)
	switch {
	case strings.Contains(probe, "anthropic") || strings.Contains(probe, "claude"):
		return FamilyAnthropic
	case strings.Contains(probe, "gemini") || strings.Contains(probe, "generativelanguage"):
		return FamilyGemini
	default:
		return FamilyOpenAI
	}
}

// CheckEndpoint validates that an endpoint is an absolute http(s) URL.
// Adapters call it during construction so a malformed endpoint fails there,
// not on the first request.
func CheckEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("malformed endpoint %q: %w", endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("malformed endpoint %q", endpoint)
	}
	return nil
}

// ClientConfig carries everything an adapter needs to build one client
// handle. The secret is already resolved; adapters never see credential
// references.
type ClientConfig struct {
	Name          string // invocable model name, for logging
	Model         string // upstream model identifier
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxTokens     int
	Temperature   float64
	StreamWorkers int // bounded drain pool size, Gemini only
}

// Provider is one client handle: family-tagged, long-lived, safe for
// concurrent use, and never mutated after construction.
type Provider interface {
	Name() string
	Family() Family

	// Chat performs one non-streaming call and returns the full response.
	Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error)

	// Stream performs one streaming call. The returned channel is closed on
	// natural exhaustion; a terminal failure arrives as a final StreamResult
	// with Err set.
	Stream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error)
}
