// Package config loads the assistant service configuration from the
// environment.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/ibtisamdev/reva-sub001/pkg/config"
	"github.com/ibtisamdev/reva-sub001/pkg/llm"
)

type Config struct {
	Port         string
	ServiceToken string

	DatabaseURL string

	LLM        llm.Config
	Classifier llm.Config
	Embedding  llm.Config

	CommerceMCPURL       string
	CommerceServiceToken string
	ToolAllowlist        []string

	KnowledgeTopK     int
	KnowledgeCacheTTL time.Duration

	RedisAddrs    []string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	AuditTopic   string

	TurnTimeout       time.Duration
	ClassifierTimeout time.Duration
	ToolTimeout       time.Duration
	ToolMaxParallel   int
	ToolMaxRetries    int
	MaxHistory        int
}

func LoadConfig() Config {
	return Config{
		Port:         config.GetEnv("PORT", "18030"),
		ServiceToken: config.GetEnv("SERVICE_TOKEN", ""),

		DatabaseURL: config.GetEnv("DATABASE_URL", ""),

		LLM:        llm.LoadConfig(),
		Classifier: llm.LoadPrefixedConfig("CLASSIFIER_LLM"),
		Embedding:  llm.LoadPrefixedConfig("EMBEDDING"),

		CommerceMCPURL:       config.GetEnv("COMMERCE_MCP_URL", ""),
		CommerceServiceToken: config.GetEnv("COMMERCE_SERVICE_TOKEN", ""),
		ToolAllowlist:        config.GetEnvList("COMMERCE_TOOL_ALLOWLIST"),

		KnowledgeTopK:     config.GetEnvInt("KNOWLEDGE_TOP_K", 5),
		KnowledgeCacheTTL: config.GetEnvDuration("KNOWLEDGE_CACHE_TTL", 2*time.Minute),

		RedisAddrs:    config.GetEnvList("REDIS_ADDRS"),
		RedisPassword: config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),

		KafkaBrokers: config.GetEnvList("KAFKA_BROKERS"),
		AuditTopic:   config.GetEnv("AUDIT_KAFKA_TOPIC", "assistant.turns"),

		TurnTimeout:       config.GetEnvDuration("TURN_TIMEOUT", 60*time.Second),
		ClassifierTimeout: config.GetEnvDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
		ToolTimeout:       config.GetEnvDuration("TOOL_TIMEOUT", 15*time.Second),
		ToolMaxParallel:   config.GetEnvInt("TOOL_MAX_PARALLEL", 3),
		ToolMaxRetries:    config.GetEnvInt("TOOL_MAX_RETRIES", 2),
		MaxHistory:        config.GetEnvInt("MAX_HISTORY_MESSAGES", 20),
	}
}

// Validate rejects values the service cannot run with. Optional
// integrations left empty are not errors.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.KnowledgeTopK <= 0 {
		errs = append(errs, errors.New("KNOWLEDGE_TOP_K must be positive"))
	}
	if c.ToolMaxParallel <= 0 {
		errs = append(errs, errors.New("TOOL_MAX_PARALLEL must be positive"))
	}
	if c.ToolMaxRetries < 0 {
		errs = append(errs, errors.New("TOOL_MAX_RETRIES must not be negative"))
	}
	if c.MaxHistory <= 0 {
		errs = append(errs, errors.New("MAX_HISTORY_MESSAGES must be positive"))
	}
	if c.DatabaseURL != "" && c.Embedding.Model == "" {
		errs = append(errs, errors.New("EMBEDDING_MODEL or LLM_MODEL is required when DATABASE_URL is set"))
	}
	return errors.Join(errs...)
}

// KnowledgeEnabled reports whether the vector knowledge index is configured.
func (c Config) KnowledgeEnabled() bool { return c.DatabaseURL != "" }

// ResponderEnabled reports whether replies are written by a model.
func (c Config) ResponderEnabled() bool { return c.LLM.Model != "" }

// ClassifierEnabled reports whether intent classification uses a model.
// Without one the keyword classifier is used.
func (c Config) ClassifierEnabled() bool { return c.Classifier.Model != "" }
