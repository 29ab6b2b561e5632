package llm

import (
	"context"
	"strings"
)

const defaultOllamaURL = "http://localhost:11434/v1"

// OllamaProvider talks to Ollama's OpenAI-compatible endpoint.
type OllamaProvider struct {
	openai *OpenAIProvider
}

func NewOllamaProvider(cfg Config) *OllamaProvider {
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = defaultOllamaURL
	}
	return &OllamaProvider{openai: NewOpenAIProvider(cfg)}
}

func (p *OllamaProvider) Complete(ctx context.Context, messages []Message) (Stream, error) {
	return p.openai.Complete(ctx, messages)
}
