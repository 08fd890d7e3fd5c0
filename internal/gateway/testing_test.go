package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/llm-gateway/internal/analytics"
	"github.com/nulzo/llm-gateway/internal/config"
	"github.com/nulzo/llm-gateway/internal/credentials"
	"github.com/nulzo/llm-gateway/internal/llm"
	"github.com/nulzo/llm-gateway/internal/store/model"
	"github.com/nulzo/llm-gateway/pkg/api"
)

// fakeProvider scripts adapter behavior per test.
type fakeProvider struct {
	name   string
	chat   func(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error)
	stream func(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error)
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) Family() llm.Family { return llm.FamilyOpenAI }

func (f *fakeProvider) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	return f.chat(ctx, req)
}

func (f *fakeProvider) Stream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error) {
	return f.stream(ctx, req)
}

func textResponse(text string) *api.ChatResponse {
	return &api.ChatResponse{
		ID: "resp-1",
		Choices: []api.Choice{{
			Message:      &api.ChatMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
	}
}

func deltaChunk(text string) *api.ChatResponse {
	return &api.ChatResponse{
		Choices: []api.Choice{{Delta: &api.ChatMessage{Content: text}}},
	}
}

// fakeIngestor collects attempt records synchronously.
type fakeIngestor struct {
	mu      sync.Mutex
	records []*model.Attempt
}

func (f *fakeIngestor) Record(a *model.Attempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, a)
}

func (f *fakeIngestor) Start(ctx context.Context) {}
func (f *fakeIngestor) Stop()                     {}

func (f *fakeIngestor) byClass(class string) []*model.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Attempt
	for _, a := range f.records {
		if a.EndpointClass == class {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeIngestor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func testModels() map[string]config.ModelConfig {
	return map[string]config.ModelConfig{
		"gpt4": {
			Model:      "gpt-4o",
			Endpoint:   "https://primary.example/v1",
			Credential: "openai",
			MaxTokens:  256,
			Timeout:    time.Second,
			Enabled:    true,
			Family:     llm.FamilyOpenAI,
		},
	}
}

func testResolver() *credentials.Resolver {
	return credentials.NewResolver(func(name string) (string, bool) {
		secrets := map[string]string{
			"OPENAI_API_KEY": "sk-primary",
			"BACKUP_API_KEY": "sk-backup",
		}
		v, ok := secrets[name]
		return v, ok
	})
}

func newTestDispatcher(models map[string]config.ModelConfig, factory factoryFunc, ing *fakeIngestor) *Dispatcher {
	pool := NewClientPool(models, testResolver(), zap.NewNop())
	pool.factory = factory

	var ingestor analytics.Ingestor
	if ing != nil {
		ingestor = ing
	}
	d := NewDispatcher(pool, ingestor, zap.NewNop())
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}
