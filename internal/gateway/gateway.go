package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/nulzo/llm-gateway/internal/analytics"
	"github.com/nulzo/llm-gateway/internal/config"
	"github.com/nulzo/llm-gateway/internal/credentials"
	"github.com/nulzo/llm-gateway/pkg/api"

	// adapter registration
	_ "github.com/nulzo/llm-gateway/internal/llm/anthropic"
	_ "github.com/nulzo/llm-gateway/internal/llm/google"
	_ "github.com/nulzo/llm-gateway/internal/llm/openai"
)

// Service is the gateway's single entry point, consumed in-process by the
// embedding program.
type Service interface {
	// Chat runs one non-streaming invocation and returns the full text.
	Chat(ctx context.Context, req *api.DispatchRequest) (string, error)

	// Stream runs one streaming invocation and returns the fragment
	// sequence to consume.
	Stream(ctx context.Context, req *api.DispatchRequest) (*api.FragmentSequence, error)
}

// New wires a gateway from resolved configuration. Models whose primary
// credential does not resolve are logged and stay out of the active set;
// the others remain available, so one broken credential never takes the
// gateway down. ingestor may be nil when attempt persistence is not wanted.
func New(cfg *config.Config, resolver *credentials.Resolver, ingestor analytics.Ingestor, logger *zap.Logger) Service {
	announce(cfg.Models, resolver, logger)
	pool := NewClientPool(cfg.Models, resolver, logger)
	return NewDispatcher(pool, ingestor, logger)
}

func announce(models map[string]config.ModelConfig, resolver *credentials.Resolver, logger *zap.Logger) {
	active := 0
	for name, m := range models {
		if !m.Enabled {
			logger.Info("Model disabled", zap.String("model", name))
			continue
		}
		if _, ok := resolver.Resolve(m.Credential); !ok {
			logger.Warn("Model excluded, credential does not resolve",
				zap.String("model", name),
				zap.String("credential", m.Credential),
			)
			continue
		}
		logger.Info("Model available",
			zap.String("model", name),
			zap.String("family", string(m.Family)),
			zap.Int("backups", len(m.BackupEndpoints)),
		)
		active++
	}
	if active == 0 {
		logger.Warn("No models available, every invocation will fail")
	}
}
