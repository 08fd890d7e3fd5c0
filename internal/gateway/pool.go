package gateway

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nulzo/llm-gateway/internal/config"
	"github.com/nulzo/llm-gateway/internal/credentials"
	"github.com/nulzo/llm-gateway/internal/llm"
	"github.com/nulzo/llm-gateway/pkg/api"
)

// factoryFunc is the construction seam: production resolves the registered
// family factory, tests count constructions.
type factoryFunc func(family llm.Family, cfg llm.ClientConfig) (llm.Provider, error)

func defaultFactory(family llm.Family, cfg llm.ClientConfig) (llm.Provider, error) {
	f, err := llm.Get(family)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// ClientPool owns every client handle. Handles are built lazily on first
// use, cached for the process lifetime, and never mutated after
// publication; the cache map is the only shared mutable state in the
// gateway.
type ClientPool struct {
	models   map[string]config.ModelConfig
	resolver *credentials.Resolver
	logger   *zap.Logger
	factory  factoryFunc

	group   singleflight.Group
	mu      sync.RWMutex
	clients map[string]llm.Provider
}

func NewClientPool(models map[string]config.ModelConfig, resolver *credentials.Resolver, logger *zap.Logger) *ClientPool {
	return &ClientPool{
		models:   models,
		resolver: resolver,
		logger:   logger,
		factory:  defaultFactory,
		clients:  make(map[string]llm.Provider),
	}
}

// Config returns the immutable configuration of one model.
func (p *ClientPool) Config(name string) (config.ModelConfig, bool) {
	cfg, ok := p.models[name]
	return cfg, ok
}

// GetOrCreate returns the cached handle for name, constructing it on first
// use. Concurrent first calls for the same name share one construction;
// contention on one name never blocks another. A construction failure is
// not cached, so a later call may try again.
func (p *ClientPool) GetOrCreate(name string) (llm.Provider, error) {
	p.mu.RLock()
	client, ok := p.clients[name]
	p.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := p.group.Do(name, func() (any, error) {
		// a losing concurrent caller may arrive after the winner published
		p.mu.RLock()
		client, ok := p.clients[name]
		p.mu.RUnlock()
		if ok {
			return client, nil
		}

		cfg, ok := p.models[name]
		if !ok || !cfg.Enabled {
			return nil, api.E(api.KindModelUnavailable, name, nil)
		}

		secret, ok := p.resolver.Resolve(cfg.Credential)
		if !ok {
			p.logger.Warn("Primary credential does not resolve",
				zap.String("model", name),
				zap.String("credential", cfg.Credential),
			)
			return nil, api.E(api.KindModelUnavailable, name,
				fmt.Errorf("credential %q does not resolve", cfg.Credential))
		}

		built, err := p.factory(cfg.Family, clientConfig(name, &cfg, cfg.Endpoint, secret))
		if err != nil {
			p.logger.Error("Client construction failed",
				zap.String("model", name),
				zap.Error(err),
			)
			return nil, api.E(api.KindAdapterInitFailed, name, err)
		}

		p.mu.Lock()
		p.clients[name] = built
		p.mu.Unlock()

		p.logger.Info("Client handle constructed",
			zap.String("model", name),
			zap.String("family", string(cfg.Family)),
		)
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(llm.Provider), nil
}

// CreateBackup builds a one-shot, uncached handle for one failover index.
// An index past either backup list, or a backup credential that does not
// resolve, means the failover chain has ended.
func (p *ClientPool) CreateBackup(name string, index int) (llm.Provider, error) {
	cfg, ok := p.models[name]
	if !ok || !cfg.Enabled {
		return nil, api.E(api.KindModelUnavailable, name, nil)
	}

	endpoint, ref, ok := cfg.Backup(index)
	if !ok {
		return nil, api.E(api.KindNoBackupAvailable, name, nil)
	}

	secret, ok := p.resolver.Resolve(ref)
	if !ok {
		p.logger.Warn("Backup credential does not resolve",
			zap.String("model", name),
			zap.Int("backup_index", index),
			zap.String("credential", ref),
		)
		return nil, api.E(api.KindNoBackupAvailable, name,
			fmt.Errorf("backup credential %q does not resolve", ref))
	}

	built, err := p.factory(cfg.Family, clientConfig(name, &cfg, endpoint, secret))
	if err != nil {
		p.logger.Error("Backup client construction failed",
			zap.String("model", name),
			zap.Int("backup_index", index),
			zap.Error(err),
		)
		return nil, api.E(api.KindAdapterInitFailed, name, err)
	}
	return built, nil
}

func clientConfig(name string, cfg *config.ModelConfig, endpoint, secret string) llm.ClientConfig {
	return llm.ClientConfig{
		Name:          name,
		Model:         cfg.Model,
		Endpoint:      endpoint,
		APIKey:        secret,
		Timeout:       cfg.Timeout,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		StreamWorkers: cfg.StreamWorkers,
	}
}
