package mcpspoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ibtisamdev/reva-sub001/internal/chat"
	"github.com/ibtisamdev/reva-sub001/internal/knowledge"
)

type fakeIndex struct {
	chunks []knowledge.Chunk
	err    error

	mu      sync.Mutex
	storeID string
	topK    int
}

func (f *fakeIndex) Query(_ context.Context, storeID, _ string, topK int) ([]knowledge.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeID = storeID
	f.topK = topK
	return f.chunks, f.err
}

func spokeTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewHandler(cfg))
	t.Cleanup(ts.Close)
	return ts
}

func spokeClient(t *testing.T, url string) *mcp.ClientSession {
	t.Helper()
	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: url}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func extractText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSpoke_ListTools(t *testing.T) {
	session := spokeClient(t, spokeTestServer(t, Config{}).URL)

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	if !names["search_knowledge"] || !names["ask_assistant"] || len(result.Tools) != 2 {
		t.Fatalf("unexpected tools: %v", names)
	}
}

func TestSpoke_SearchKnowledge(t *testing.T) {
	index := &fakeIndex{chunks: []knowledge.Chunk{
		{ChunkID: "c1", ArticleID: "a1", ArticleTitle: "Returns", Content: "Returns within 30 days.", Score: 0.9},
		{ChunkID: "c2", ArticleID: "a1", ArticleTitle: "Returns", Content: "Refunds take 5 days.", Score: 0.8},
	}}
	session := spokeClient(t, spokeTestServer(t, Config{Index: index}).URL)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_knowledge",
		Arguments: map[string]any{"store_id": "store-1", "query": "returns", "limit": 50},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result.Content)
	}

	var resp searchKnowledgeResponse
	if err := json.Unmarshal([]byte(extractText(result)), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ChunkID != "c1" {
		t.Fatalf("expected one deduplicated source, got %+v", resp.Sources)
	}
	if resp.Context != "[1] Source: Returns\nReturns within 30 days.\n\n[2] Source: Returns\nRefunds take 5 days." {
		t.Fatalf("unexpected context %q", resp.Context)
	}
	index.mu.Lock()
	defer index.mu.Unlock()
	if index.storeID != "store-1" || index.topK != maxSearchLimit {
		t.Fatalf("index queried with %q/%d", index.storeID, index.topK)
	}
}

func TestSpoke_SearchKnowledgeFailure(t *testing.T) {
	session := spokeClient(t, spokeTestServer(t, Config{Index: &fakeIndex{err: errors.New("db down")}}).URL)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_knowledge",
		Arguments: map[string]any{"store_id": "store-1", "query": "returns"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestSpoke_AskAssistant(t *testing.T) {
	executor, err := chat.NewExecutor(chat.ExecutorConfig{
		Classifier: chat.NewIntentClassifier(chat.ClassifierConfig{Capability: chat.KeywordClassifier{}}),
		Index: &fakeIndex{chunks: []knowledge.Chunk{
			{ChunkID: "c1", ArticleID: "a1", ArticleTitle: "Returns", Content: "Returns within 30 days."},
		}},
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	session := spokeClient(t, spokeTestServer(t, Config{Runner: executor}).URL)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "ask_assistant",
		Arguments: map[string]any{
			"store_id":   "store-1",
			"store_name": "Acme",
			"message":    "What is your return policy?",
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result.Content)
	}

	var resp askAssistantResponse
	if err := json.Unmarshal([]byte(extractText(result)), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Intent != "faq_support" || resp.Node != "support" {
		t.Fatalf("unexpected routing %s -> %s", resp.Intent, resp.Node)
	}
	if resp.Reply == "" || len(resp.Sources) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSpoke_AskAssistantUnavailable(t *testing.T) {
	session := spokeClient(t, spokeTestServer(t, Config{}).URL)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "ask_assistant",
		Arguments: map[string]any{"store_id": "store-1", "message": "hi"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error when no runner is configured")
	}
}

type slowRunner struct {
	mu          sync.Mutex
	hadDeadline bool
}

func (r *slowRunner) Run(ctx context.Context, _ chat.TurnRequest) (chat.TurnResult, error) {
	_, ok := ctx.Deadline()
	r.mu.Lock()
	r.hadDeadline = ok
	r.mu.Unlock()
	<-ctx.Done()
	return chat.TurnResult{
		Reply:  chat.AbortedReply,
		Intent: chat.IntentSmallTalk,
		Node:   chat.NodeGeneral,
	}, fmt.Errorf("%w: %w", chat.ErrTurnAborted, ctx.Err())
}

func TestSpoke_AskAssistantAppliesTurnTimeout(t *testing.T) {
	runner := &slowRunner{}
	session := spokeClient(t, spokeTestServer(t, Config{Runner: runner, TurnTimeout: 50 * time.Millisecond}).URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ask_assistant",
		Arguments: map[string]any{"store_id": "store-1", "message": "where is my order?"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("aborted turn should still succeed: %+v", result.Content)
	}

	runner.mu.Lock()
	hadDeadline := runner.hadDeadline
	runner.mu.Unlock()
	if !hadDeadline {
		t.Fatal("expected the turn context to carry a deadline")
	}

	var resp askAssistantResponse
	if err := json.Unmarshal([]byte(extractText(result)), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Reply != chat.AbortedReply || resp.Node != "general" {
		t.Fatalf("unexpected aborted response %+v", resp)
	}
}
