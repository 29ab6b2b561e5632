package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type EmbeddingClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type EmbeddingProvider struct {
	client   *http.Client
	apiKey   string
	apiURL   string
	model    string
	provider string
}

func NewEmbeddingClient(cfg Config) (*EmbeddingProvider, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		if provider == "ollama" {
			apiURL = "http://localhost:11434"
		} else {
			apiURL = "https://api.openai.com/v1"
		}
	}
	return &EmbeddingProvider{
		client:   &http.Client{Timeout: 30 * time.Second},
		apiKey:   cfg.APIKey,
		apiURL:   apiURL,
		model:    cfg.Model,
		provider: provider,
	}, nil
}

func (p *EmbeddingProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inputs are required")
	}
	switch p.provider {
	case "ollama":
		vectors := make([][]float32, 0, len(inputs))
		for _, input := range inputs {
			var resp struct {
				Embedding []float32 `json:"embedding"`
			}
			body := map[string]string{"model": p.model, "prompt": input}
			if err := p.post(ctx, p.apiURL+"/api/embeddings", body, &resp); err != nil {
				return nil, fmt.Errorf("ollama embed: %w", err)
			}
			vectors = append(vectors, resp.Embedding)
		}
		return vectors, nil
	case "openai", "":
		var resp struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		body := map[string]any{"model": p.model, "input": inputs}
		if err := p.post(ctx, p.apiURL+"/embeddings", body, &resp); err != nil {
			return nil, fmt.Errorf("openai embed: %w", err)
		}
		if len(resp.Data) != len(inputs) {
			return nil, fmt.Errorf("openai embed: unexpected embeddings count: %d", len(resp.Data))
		}
		vectors := make([][]float32, 0, len(resp.Data))
		for _, entry := range resp.Data {
			vectors = append(vectors, entry.Embedding)
		}
		return vectors, nil
	default:
		return nil, fmt.Errorf("embedding provider %q is not supported", p.provider)
	}
}

func (p *EmbeddingProvider) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := doWithRetry(ctx, p.client, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, fmt.Errorf("create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
