package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/llm-gateway/internal/httpclient"
	"github.com/nulzo/llm-gateway/internal/llm"
	"github.com/nulzo/llm-gateway/pkg/api"
)

const apiVersion = "2023-06-01"

func init() {
	llm.Register(llm.FamilyAnthropic, NewAdapter)
}

type Adapter struct {
	cfg    llm.ClientConfig
	client *http.Client
}

func NewAdapter(cfg llm.ClientConfig) (llm.Provider, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
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
func (a *Adapter) Family() llm.Family { return llm.FamilyAnthropic }

// Anthropic messages API wire shapes.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireResponse struct {
	ID         string        `json:"id"`
	Model      string        `json:"model"`
	Content    []wireContent `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      wireUsage     `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireEvent struct {
	Type  string     `json:"type"`
	Delta *wireDelta `json:"delta,omitempty"`
	Usage *wireUsage `json:"usage,omitempty"`
}

type wireDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toWire translates the unified request: system messages fold into the
// dedicated system field, everything else keeps its role.
func toWire(req *api.ChatRequest) wireRequest {
	wr := wireRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	if wr.MaxTokens == 0 {
		wr.MaxTokens = 4096
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == string(api.System) {
			system = append(system, m.Content)
			continue
		}
		wr.Messages = append(wr.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	wr.System = strings.Join(system, "\n")
	return wr
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": apiVersion,
	}
}

func (a *Adapter) url() string {
	return fmt.Sprintf("%s/messages", strings.TrimRight(a.cfg.Endpoint, "/"))
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	wr := toWire(req)
	wr.Stream = false

	var resp wireResponse
	if err := httpclient.PostJSON(ctx, a.client, a.url(), a.headers(), wr, &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	return &api.ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []api.Choice{{
			Message: &api.ChatMessage{
				Role:    string(api.Assistant),
				Content: text.String(),
			},
			FinishReason: resp.StopReason,
		}},
		Usage: &api.ResponseUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func (a *Adapter) Stream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error) {
	wr := toWire(req)
	wr.Stream = true

	ch := make(chan api.StreamResult)
	go func() {
		defer close(ch)

		err := httpclient.PostStream(ctx, a.client, a.url(), a.headers(), wr, func(line string) error {
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				return nil
			}

			var event wireEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				return nil
			}

			// Only content deltas carry text; every other event type
			// (message_start, ping, content_block_start, ...) is dropped.
			var chunk *api.ChatResponse
			switch event.Type {
			case "content_block_delta":
				if event.Delta != nil && event.Delta.Type == "text_delta" {
					chunk = &api.ChatResponse{
						Object: "chat.completion.chunk",
						Choices: []api.Choice{{
							Delta: &api.ChatMessage{Content: event.Delta.Text},
						}},
					}
				}
			case "message_stop":
				chunk = &api.ChatResponse{
					Object: "chat.completion.chunk",
					Choices: []api.Choice{{
						Delta:        &api.ChatMessage{},
						FinishReason: "stop",
					}},
				}
			}
			if chunk == nil {
				return nil
			}

			select {
			case ch <- api.StreamResult{Response: chunk}:
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
