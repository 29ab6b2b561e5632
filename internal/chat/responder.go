package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ibtisamdev/reva-sub001/internal/citation"
	"github.com/ibtisamdev/reva-sub001/internal/conversation"
	"github.com/ibtisamdev/reva-sub001/pkg/llm"
)

// ResponseRequest is everything a Responder may use to write a reply.
type ResponseRequest struct {
	Node        Node
	StoreName   string
	History     []conversation.Message
	Latest      string
	Context     string
	ToolOutputs []ToolOutcome
}

// Responder writes the natural-language reply for a handler.
type Responder interface {
	Respond(ctx context.Context, req ResponseRequest) (string, error)
}

// LLMResponder streams a completion and collects it.
type LLMResponder struct {
	llm llm.Provider
}

func NewLLMResponder(provider llm.Provider) *LLMResponder {
	return &LLMResponder{llm: provider}
}

func (r *LLMResponder) Respond(ctx context.Context, req ResponseRequest) (string, error) {
	if r == nil || r.llm == nil {
		return "", errors.New("responder llm is not configured")
	}
	start := time.Now()
	text, err := llm.CollectText(ctx, r.llm, buildResponseMessages(req))
	llmDuration.WithLabelValues("respond").Observe(time.Since(start).Seconds())
	if err != nil {
		llmCallsTotal.WithLabelValues("respond", "error").Inc()
		return "", fmt.Errorf("respond: %w", err)
	}
	llmCallsTotal.WithLabelValues("respond", "success").Inc()
	return text, nil
}

func buildResponseMessages(req ResponseRequest) []llm.Message {
	var system strings.Builder
	system.WriteString(systemPrompt(req.Node, req.StoreName))

	if req.Context != "" && req.Context != citation.NoContext {
		if block := guardUntrustedContext("Knowledge base excerpts", req.Context, maxContextTokens); block != "" {
			system.WriteString("\n\n")
			system.WriteString(block)
		}
	}
	for _, out := range req.ToolOutputs {
		content := out.Output
		if out.Err != nil {
			content = fmt.Sprintf("The tool call failed: %v", out.Err)
		}
		if block := guardUntrustedContext("Tool result: "+out.Name, content, maxToolOutputTokens); block != "" {
			system.WriteString("\n\n")
			system.WriteString(block)
		}
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system.String()})
	for _, m := range req.History {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: req.Latest})
}
