// Package mcpclient calls the commerce backend's MCP tools on behalf of
// a turn.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ibtisamdev/reva-sub001/internal/tenant"
	"github.com/ibtisamdev/reva-sub001/internal/tools"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

// StoreHeader carries the tenant scope on every request.
const StoreHeader = "X-Store-ID"

// CommerceClient implements tools.Invoker over a commerce MCP server.
type CommerceClient struct {
	client  *mcp.Client
	session *mcp.ClientSession
	logger  logging.Logger

	mu        sync.RWMutex
	toolIndex map[string]struct{}
	allowlist map[string]struct{}
}

type Config struct {
	URL          string
	ServiceToken string
	// ToolAllowlist restricts which remote tools are exposed. Empty means
	// the known commerce tools.
	ToolAllowlist []string
	Logger        logging.Logger
}

func New(ctx context.Context, cfg Config) (*CommerceClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("mcpclient: URL is required")
	}

	allow := cfg.ToolAllowlist
	if len(allow) == 0 {
		allow = []string{tools.SearchProducts, tools.ProductRecommendations, tools.OrderStatus}
	}
	allowlist := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		allowlist[name] = struct{}{}
	}

	transport := &mcp.StreamableClientTransport{
		Endpoint: cfg.URL,
		HTTPClient: &http.Client{
			Transport: &scopeTransport{
				base:         http.DefaultTransport,
				serviceToken: cfg.ServiceToken,
			},
		},
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "reva", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect to commerce MCP: %w", err)
	}

	cc := &CommerceClient{
		client:    client,
		session:   session,
		logger:    cfg.Logger,
		allowlist: allowlist,
	}
	if err := cc.Refresh(ctx); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("mcpclient: discover tools: %w", err)
	}
	return cc, nil
}

func (cc *CommerceClient) HasTool(name string) bool {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	_, ok := cc.toolIndex[name]
	return ok
}

// Tools lists the exposed tool names.
func (cc *CommerceClient) Tools() []string {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	names := make([]string, 0, len(cc.toolIndex))
	for name := range cc.toolIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool invokes a remote tool. A result flagged as an error by the tool
// is returned as tools.ErrRejected.
func (cc *CommerceClient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	if !cc.HasTool(name) {
		return "", fmt.Errorf("%w: %s", tools.ErrUnavailable, name)
	}
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("%w: unmarshal arguments for %s: %v", tools.ErrRejected, name, err)
		}
	}

	result, err := cc.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("mcpclient: call %s: %w", name, err)
	}
	if result.IsError {
		if text := extractTextContent(result); text != "" {
			return "", fmt.Errorf("%w: %s: %s", tools.ErrRejected, name, text)
		}
		return "", fmt.Errorf("%w: %s", tools.ErrRejected, name)
	}
	return extractTextContent(result), nil
}

// Refresh re-reads the remote tool list.
func (cc *CommerceClient) Refresh(ctx context.Context) error {
	result, err := cc.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}
	index := make(map[string]struct{}, len(result.Tools))
	for _, t := range result.Tools {
		if _, ok := cc.allowlist[t.Name]; !ok {
			continue
		}
		index[t.Name] = struct{}{}
	}

	cc.mu.Lock()
	cc.toolIndex = index
	cc.mu.Unlock()

	if cc.logger != nil {
		cc.logger.WithField("count", len(index)).Info("Discovered commerce MCP tools")
	}
	return nil
}

// Ping checks the session is alive.
func (cc *CommerceClient) Ping(ctx context.Context) error {
	return cc.session.Ping(ctx, nil)
}

func (cc *CommerceClient) Close() error {
	if cc.session != nil {
		return cc.session.Close()
	}
	return nil
}

// extractTextContent joins all TextContent entries from a CallToolResult.
func extractTextContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// scopeTransport stamps the service token and the store id found on the
// request context.
type scopeTransport struct {
	base         http.RoundTripper
	serviceToken string
}

func (t *scopeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.serviceToken)
	}
	if storeID := tenant.GetStoreID(req.Context()); storeID != "" {
		req.Header.Set(StoreHeader, storeID)
	}
	return t.base.RoundTrip(req)
}
