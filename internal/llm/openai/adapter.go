package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nulzo/llm-gateway/internal/httpclient"
	"github.com/nulzo/llm-gateway/internal/llm"
	"github.com/nulzo/llm-gateway/pkg/api"
)

func init() {
	llm.Register(llm.FamilyOpenAI, NewAdapter)
}

// Adapter speaks the OpenAI chat-completions shape, which is also the
// gateway's unified shape, so no payload translation is needed beyond
// forcing the stream flag.
type Adapter struct {
	cfg    llm.ClientConfig
	client *http.Client
}

func NewAdapter(cfg llm.ClientConfig) (llm.Provider, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	if err := llm.CheckEndpoint(cfg.Endpoint); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:    cfg,
		client: httpclient.New(cfg.Timeout),
	}, nil
}

func (a *Adapter) Name() string       { return a.cfg.Name }
func (a *Adapter) Family() llm.Family { return llm.FamilyOpenAI }

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + a.cfg.APIKey,
	}
}

func (a *Adapter) url() string {
	return fmt.Sprintf("%s/chat/completions", strings.TrimRight(a.cfg.Endpoint, "/"))
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	reqClone := *req
	reqClone.Stream = false
	reqClone.StreamOptions = nil

	var resp api.ChatResponse
	if err := httpclient.PostJSON(ctx, a.client, a.url(), a.headers(), &reqClone, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *Adapter) Stream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error) {
	reqClone := *req
	reqClone.Stream = true
	reqClone.StreamOptions = &api.StreamOptions{IncludeUsage: true}

	ch := make(chan api.StreamResult)
	go func() {
		defer close(ch)

		err := httpclient.PostStream(ctx, a.client, a.url(), a.headers(), &reqClone, func(line string) error {
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok || data == "[DONE]" {
				return nil
			}

			var chunk api.ChatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// malformed keep-alive frames are not worth killing the
				// stream for
				return nil
			}

			select {
			case ch <- api.StreamResult{Response: &chunk}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case ch <- api.StreamResult{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
