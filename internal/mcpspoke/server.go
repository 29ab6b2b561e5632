// Package mcpspoke exposes the assistant engine as MCP tools so other
// agents can run turns and query a store's knowledge base.
package mcpspoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ibtisamdev/reva-sub001/internal/chat"
	"github.com/ibtisamdev/reva-sub001/internal/citation"
	"github.com/ibtisamdev/reva-sub001/internal/knowledge"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
	"github.com/ibtisamdev/reva-sub001/pkg/version"
)

const (
	defaultSearchLimit = 5
	defaultTurnTimeout = 60 * time.Second
	maxSearchLimit     = 20
)

// Config configures the spoke MCP server. Tools whose dependency is nil
// report themselves unavailable.
type Config struct {
	Runner      chat.TurnRunner
	Index       knowledge.Index
	Logger      logging.Logger
	SearchLimit int
	// TurnTimeout bounds each ask_assistant turn, matching the HTTP surface.
	TurnTimeout time.Duration
}

func NewServer(cfg Config) *mcp.Server {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "reva-assistant",
		Version: version.Version,
	}, nil)

	registerSearchKnowledge(srv, cfg)
	registerAskAssistant(srv, cfg)
	return srv
}

// NewHandler serves the spoke over stateless streamable HTTP.
func NewHandler(cfg Config) http.Handler {
	srv := NewServer(cfg)
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return srv },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
}

// --- search_knowledge ---

type searchKnowledgeInput struct {
	StoreID string `json:"store_id" jsonschema:"required" jsonschema_description:"Store whose knowledge base is searched"`
	Query   string `json:"query" jsonschema:"required" jsonschema_description:"Search query"`
	Limit   int    `json:"limit,omitempty" jsonschema_description:"Maximum number of passages to consider (default 5)"`
}

type searchKnowledgeResponse struct {
	Query   string                     `json:"query"`
	Sources []citation.SourceReference `json:"sources"`
	Context string                     `json:"context"`
}

func registerSearchKnowledge(srv *mcp.Server, cfg Config) {
	mcp.AddTool(srv,
		&mcp.Tool{
			Name:        "search_knowledge",
			Description: "Search a store's knowledge base and return deduplicated citations plus numbered context blocks.",
		},
		func(ctx context.Context, _ *mcp.CallToolRequest, args searchKnowledgeInput) (*mcp.CallToolResult, any, error) {
			return handleSearchKnowledge(ctx, args, cfg)
		},
	)
}

func handleSearchKnowledge(ctx context.Context, args searchKnowledgeInput, cfg Config) (*mcp.CallToolResult, any, error) {
	if cfg.Index == nil {
		return spokeError("knowledge search unavailable")
	}
	storeID := strings.TrimSpace(args.StoreID)
	if storeID == "" {
		return spokeError("store_id is required")
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return spokeError("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = cfg.SearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	start := time.Now()
	chunks, err := cfg.Index.Query(ctx, storeID, query, limit)
	spokeDuration.WithLabelValues("search_knowledge").Observe(time.Since(start).Seconds())
	if err != nil {
		spokeCallsTotal.WithLabelValues("search_knowledge", "error").Inc()
		if cfg.Logger != nil {
			cfg.Logger.WithError(err).WithField("store_id", storeID).Warn("Spoke knowledge search failed")
		}
		return spokeError(fmt.Sprintf("knowledge search failed: %v", err))
	}
	spokeCallsTotal.WithLabelValues("search_knowledge", "success").Inc()

	return spokeSuccess(searchKnowledgeResponse{
		Query:   query,
		Sources: citation.SourcesFromChunks(chunks, true),
		Context: citation.FormatContext(chunks),
	})
}

// --- ask_assistant ---

type askAssistantInput struct {
	StoreID         string `json:"store_id" jsonschema:"required" jsonschema_description:"Store the shopper is talking to"`
	StoreName       string `json:"store_name,omitempty" jsonschema_description:"Display name of the store"`
	Message         string `json:"message" jsonschema:"required" jsonschema_description:"The shopper's message"`
	HasOrderTools   bool   `json:"has_order_tools,omitempty" jsonschema_description:"Allow order lookups for this store"`
	HasProductTools bool   `json:"has_product_tools,omitempty" jsonschema_description:"Allow product search for this store"`
}

type askAssistantResponse struct {
	Reply      string                     `json:"reply"`
	Intent     string                     `json:"intent"`
	Confidence float64                    `json:"confidence"`
	Node       string                     `json:"node"`
	Sources    []citation.SourceReference `json:"sources"`
	ToolsUsed  []string                   `json:"tools_used"`
}

func registerAskAssistant(srv *mcp.Server, cfg Config) {
	mcp.AddTool(srv,
		&mcp.Tool{
			Name:        "ask_assistant",
			Description: "Run one shopping-assistant turn for a store: classify the message, route it, call store tools if allowed and answer with citations.",
		},
		func(ctx context.Context, _ *mcp.CallToolRequest, args askAssistantInput) (*mcp.CallToolResult, any, error) {
			return handleAskAssistant(ctx, args, cfg)
		},
	)
}

func handleAskAssistant(ctx context.Context, args askAssistantInput, cfg Config) (*mcp.CallToolResult, any, error) {
	if cfg.Runner == nil {
		return spokeError("assistant unavailable")
	}
	if strings.TrimSpace(args.StoreID) == "" {
		return spokeError("store_id is required")
	}
	message := strings.TrimSpace(args.Message)
	if message == "" {
		return spokeError("message is required")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TurnTimeout)
	defer cancel()

	start := time.Now()
	result, err := cfg.Runner.Run(ctx, chat.TurnRequest{
		StoreID:         args.StoreID,
		StoreName:       args.StoreName,
		Message:         message,
		HasOrderTools:   args.HasOrderTools,
		HasProductTools: args.HasProductTools,
	})
	spokeDuration.WithLabelValues("ask_assistant").Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, chat.ErrTurnAborted) {
		spokeCallsTotal.WithLabelValues("ask_assistant", "error").Inc()
		if cfg.Logger != nil {
			cfg.Logger.WithError(err).WithField("store_id", args.StoreID).Warn("ask_assistant failed")
		}
		return spokeError(fmt.Sprintf("assistant error: %v", err))
	}
	status := "success"
	if err != nil {
		status = "aborted"
	}
	spokeCallsTotal.WithLabelValues("ask_assistant", status).Inc()

	return spokeSuccess(askAssistantResponse{
		Reply:      result.Reply,
		Intent:     string(result.Intent),
		Confidence: result.Confidence,
		Node:       result.Node.String(),
		Sources:    result.Sources,
		ToolsUsed:  result.ToolsUsed,
	})
}

// --- helpers ---

func spokeError(message string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}, nil, nil
}

func spokeSuccess(result any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return spokeError(fmt.Sprintf("failed to format result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, result, nil
}
