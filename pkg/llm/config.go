package llm

import (
	"fmt"
	"strings"

	"github.com/ibtisamdev/reva-sub001/pkg/config"
)

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	APIURL      string
	MaxTokens   int
	Temperature float64
}

// LoadConfig reads the primary LLM settings from LLM_* variables.
func LoadConfig() Config {
	return loadConfig("LLM", Config{Provider: "openai"})
}

// LoadPrefixedConfig reads <PREFIX>_PROVIDER etc., falling back to the
// corresponding LLM_* value for anything unset.
func LoadPrefixedConfig(prefix string) Config {
	return loadConfig(prefix, LoadConfig())
}

func loadConfig(prefix string, fallback Config) Config {
	return Config{
		Provider:  config.GetEnv(prefix+"_PROVIDER", fallback.Provider),
		Model:     config.GetEnv(prefix+"_MODEL", fallback.Model),
		APIKey:    config.GetEnv(prefix+"_API_KEY", fallback.APIKey),
		APIURL:    config.GetEnv(prefix+"_API_URL", fallback.APIURL),
		MaxTokens: config.GetEnvInt(prefix+"_MAX_TOKENS", fallback.MaxTokens),
	}
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
