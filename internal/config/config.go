package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nulzo/llm-gateway/internal/llm"
	"github.com/nulzo/llm-gateway/internal/platform/logger"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxTokens     = 2048
	defaultStreamWorkers = 10
)

type Config struct {
	Gateway GatewayConfig          `mapstructure:"gateway"`
	Models  map[string]ModelConfig `mapstructure:"models"`
}

type GatewayConfig struct {
	// StreamWorkers bounds the drain pool used for synchronous upstream
	// iterators.
	StreamWorkers int             `mapstructure:"stream_workers"`
	Analytics     AnalyticsConfig `mapstructure:"analytics"`
}

type AnalyticsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// ModelConfig describes one invocable model. The map key in Config.Models is
// the invocable name; Model is the provider-side identifier. Entries are
// immutable once loaded; a reload replaces the whole map.
type ModelConfig struct {
	Model    string `mapstructure:"model" validate:"required"`
	Endpoint string `mapstructure:"endpoint" validate:"required,url"`

	// BackupEndpoints and BackupCredentials are index-aligned. An index past
	// the end of either list means "no backup available".
	BackupEndpoints   []string `mapstructure:"backup_endpoints" validate:"dive,url"`
	BackupCredentials []string `mapstructure:"backup_credentials"`

	// Credential is a reference resolved through the credential resolver,
	// never the secret itself.
	Credential string `mapstructure:"credential" validate:"required"`

	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Enabled     bool          `mapstructure:"enabled"`

	// RPS/Burst enable per-model upstream rate limiting when RPS > 0.
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`

	// Derived at load time, never re-derived per call.
	Family        llm.Family `mapstructure:"-"`
	StreamWorkers int        `mapstructure:"-"`
}

// Backup returns the endpoint/credential pair for one failover index. ok is
// false when the index is past either list, which callers treat as the end
// of the failover chain rather than an error.
func (m *ModelConfig) Backup(i int) (endpoint, credential string, ok bool) {
	if i < 0 || i >= len(m.BackupEndpoints) || i >= len(m.BackupCredentials) {
		return "", "", false
	}
	return m.BackupEndpoints[i], m.BackupCredentials[i], true
}

// Load reads gateway.yaml (plus environment) and returns the validated,
// classified configuration. Structurally invalid model entries are disabled
// and logged rather than failing the load, so one bad entry cannot take the
// whole gateway down.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("gateway")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("gateway.stream_workers", defaultStreamWorkers)
	v.SetDefault("gateway.analytics.enabled", false)
	v.SetDefault("gateway.analytics.dsn", "file:attempts.db?cache=shared&mode=rwc")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Gateway.StreamWorkers <= 0 {
		c.Gateway.StreamWorkers = defaultStreamWorkers
	}

	validate := validator.New()
	for name, m := range c.Models {
		if m.Timeout <= 0 {
			m.Timeout = defaultTimeout
		}
		if m.MaxTokens <= 0 {
			m.MaxTokens = defaultMaxTokens
		}
		m.StreamWorkers = c.Gateway.StreamWorkers
		m.Family = llm.Classify(m.Endpoint, m.Model)

		if err := validate.Struct(&m); err != nil {
			logger.Warn("Disabling invalid model config",
				zap.String("model", name),
				zap.Error(err),
			)
			m.Enabled = false
		}

		c.Models[name] = m
	}
}
