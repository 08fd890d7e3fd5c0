package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nulzo/llm-gateway/internal/httpclient"
	"github.com/nulzo/llm-gateway/internal/llm"
	"github.com/nulzo/llm-gateway/pkg/api"
)

func init() {
	llm.Register(llm.FamilyGemini, NewAdapter)
}

type Adapter struct {
	cfg    llm.ClientConfig
	client *http.Client

	poolOnce sync.Once
	pool     *drainPool
}

func NewAdapter(cfg llm.ClientConfig) (llm.Provider, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if err := llm.CheckEndpoint(cfg.Endpoint); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:    cfg,
		client: httpclient.New(cfg.Timeout),
	}, nil
}

// workers starts the drain pool on first streaming use. Handles that only
// ever serve Chat, the one-shot failover handles in particular, must not
// pin idle workers for their whole lifetime.
func (a *Adapter) workers() *drainPool {
	a.poolOnce.Do(func() {
		a.pool = newDrainPool(a.cfg.StreamWorkers)
	})
	return a.pool
}

func (a *Adapter) Name() string       { return a.cfg.Name }
func (a *Adapter) Family() llm.Family { return llm.FamilyGemini }

// Gemini generateContent wire shapes.
type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
}

// toWire maps roles onto Gemini's user/model pair and hoists system
// messages into systemInstruction.
func toWire(req *api.ChatRequest) geminiRequest {
	gr := geminiRequest{}
	for _, m := range req.Messages {
		switch m.Role {
		case string(api.System):
			if gr.SystemInstruction == nil {
				gr.SystemInstruction = &geminiContent{}
			}
			gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, geminiPart{Text: m.Content})
		case string(api.Assistant):
			gr.Contents = append(gr.Contents, geminiContent{
				Role:  string(api.ModelAssistant),
				Parts: []geminiPart{{Text: m.Content}},
			})
		default:
			gr.Contents = append(gr.Contents, geminiContent{
				Role:  string(api.User),
				Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		gr.GenerationConfig = &generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}
	return gr
}

// candidateText extracts the text of the first candidate: all parts joined,
// falling back to the first part when only one exists. Streamed chunks
// normally carry exactly one part.
func candidateText(resp *geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	parts := resp.Candidates[0].Content.Parts
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0].Text
	default:
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.Text)
		}
		return b.String()
	}
}

func (a *Adapter) url(verb, query string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s%s",
		strings.TrimRight(a.cfg.Endpoint, "/"), a.cfg.Model, verb, a.cfg.APIKey, query)
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	wr := toWire(req)

	var resp geminiResponse
	if err := httpclient.PostJSON(ctx, a.client, a.url("generateContent", ""), nil, wr, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	out := &api.ChatResponse{
		ID:      fmt.Sprintf("gemini-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []api.Choice{{
			Message: &api.ChatMessage{
				Role:    string(api.Assistant),
				Content: candidateText(&resp),
			},
			FinishReason: strings.ToLower(resp.Candidates[0].FinishReason),
		}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &api.ResponseUsage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return out, nil
}

// Stream hands the synchronous SSE read loop to the bounded drain pool so a
// slow upstream never blocks the caller's goroutine, and converts any error
// or panic inside the drain into the channel's terminal error.
func (a *Adapter) Stream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error) {
	wr := toWire(req)
	url := a.url("streamGenerateContent", "&alt=sse")

	ch := make(chan api.StreamResult)
	job := func() error {
		defer close(ch)
		err := safely(func() error {
			return a.drain(ctx, url, wr, ch)
		})
		if err != nil {
			select {
			case ch <- api.StreamResult{Err: err}:
			case <-ctx.Done():
			}
		}
		return err
	}

	if err := a.workers().submit(ctx, job); err != nil {
		close(ch)
		return nil, err
	}
	return ch, nil
}

func (a *Adapter) drain(ctx context.Context, url string, wr geminiRequest, ch chan<- api.StreamResult) error {
	return httpclient.PostStream(ctx, a.client, url, nil, wr, func(line string) error {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			return nil
		}

		var resp geminiResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			return nil
		}

		text := candidateText(&resp)
		if text == "" {
			return nil
		}

		chunk := &api.ChatResponse{
			Object: "chat.completion.chunk",
			Model:  a.cfg.Model,
			Choices: []api.Choice{{
				Delta: &api.ChatMessage{Content: text},
			}},
		}
		select {
		case ch <- api.StreamResult{Response: chunk}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
