package embedding

import (
	"fmt"
	"time"

	"ragvault/config"
	"ragvault/internal/port"
)

// New builds the configured embedder. dimension is the store's vector width.
func New(cfg config.EmbeddingConfig, dimension int) (port.Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	switch cfg.Provider {
	case "openai":
		if cfg.BaseURL != "" {
			return NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, dimension, timeout)
		}
		return NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, dimension, timeout)
	case "deepseek":
		return NewDeepSeekEmbedder(cfg.APIKeyEnv, cfg.Model, dimension, timeout)
	case "jina":
		return NewJinaEmbedder(cfg.APIKeyEnv, cfg.Model, dimension, timeout)
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL, dimension, timeout), nil
	case "hash":
		return NewHashEmbedder(dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
