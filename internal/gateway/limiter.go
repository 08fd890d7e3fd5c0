package gateway

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nulzo/llm-gateway/internal/config"
)

// modelLimiters applies the optional per-model upstream rate limit. Models
// without an RPS setting pass through untouched.
type modelLimiters struct {
	models map[string]config.ModelConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newModelLimiters(models map[string]config.ModelConfig) *modelLimiters {
	return &modelLimiters{
		models:   models,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *modelLimiters) wait(ctx context.Context, name string) error {
	cfg, ok := l.models[name]
	if !ok || cfg.RPS <= 0 {
		return nil
	}

	l.mu.Lock()
	limiter, ok := l.limiters[name]
	if !ok {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
		l.limiters[name] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}
