package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/ibtisamdev/reva-sub001/internal/conversation"
	"github.com/ibtisamdev/reva-sub001/internal/tools"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

const (
	recommendationLimit = 5
	fallbackSnippets    = 2
)

// nodeHandlers holds the terminal handlers. Each takes its view, tools and
// retrieval as arguments and returns the reply and sources; the executor
// attaches the tool records.
type nodeHandlers struct {
	responder Responder
	logger    logging.Logger
}

func (h *nodeHandlers) handle(ctx context.Context, node Node, view conversation.View, box *ToolBox, r Retrieval) conversation.Delta {
	switch node {
	case NodeSearch:
		return h.search(ctx, view, box, r)
	case NodeRecommend:
		return h.recommend(ctx, view, box, r)
	case NodeSupport:
		return h.support(ctx, view, box, r)
	case NodeClarify:
		return h.clarify(view)
	default:
		return h.general(ctx, view, r)
	}
}

func (h *nodeHandlers) search(ctx context.Context, view conversation.View, box *ToolBox, r Retrieval) conversation.Delta {
	var outcomes []ToolOutcome
	if box.Has(tools.SearchProducts) {
		outcomes = box.Invoke(ctx, ToolRequest{
			Name: tools.SearchProducts,
			Args: map[string]any{"query": view.Latest},
		})
	}
	reply := h.compose(ctx, NodeSearch, view, r, outcomes, func() string {
		if out, ok := firstSuccess(outcomes); ok {
			return fmt.Sprintf("Here's what I found at %s:\n%s", storeLabel(view.Scope.StoreName), out.Output)
		}
		return contextFallback(r, productSearchHint(outcomes))
	})
	return conversation.Delta{Reply: reply, Sources: r.Sources}
}

func (h *nodeHandlers) recommend(ctx context.Context, view conversation.View, box *ToolBox, r Retrieval) conversation.Delta {
	var reqs []ToolRequest
	if box.Has(tools.ProductRecommendations) {
		reqs = append(reqs, ToolRequest{
			Name: tools.ProductRecommendations,
			Args: map[string]any{"query": view.Latest, "limit": recommendationLimit},
		})
	}
	if box.Has(tools.SearchProducts) {
		reqs = append(reqs, ToolRequest{
			Name: tools.SearchProducts,
			Args: map[string]any{"query": view.Latest},
		})
	}
	outcomes := box.Invoke(ctx, reqs...)
	reply := h.compose(ctx, NodeRecommend, view, r, outcomes, func() string {
		var parts []string
		for _, out := range outcomes {
			if out.Err == nil && strings.TrimSpace(out.Output) != "" {
				parts = append(parts, out.Output)
			}
		}
		if len(parts) > 0 {
			return "Here are some picks you might like:\n" + strings.Join(parts, "\n\n")
		}
		return contextFallback(r, productSearchHint(outcomes))
	})
	return conversation.Delta{Reply: reply, Sources: r.Sources}
}

// support serves order_status, faq_support and complaint alike. The order
// tool is called only when it is available and an order number is known.
func (h *nodeHandlers) support(ctx context.Context, view conversation.View, box *ToolBox, r Retrieval) conversation.Delta {
	var outcomes []ToolOutcome
	orderID, hasOrderID := findOrderID(view)
	if hasOrderID && box.Has(tools.OrderStatus) {
		outcomes = box.Invoke(ctx, ToolRequest{
			Name: tools.OrderStatus,
			Args: map[string]any{"order_id": orderID},
		})
	}
	reply := h.compose(ctx, NodeSupport, view, r, outcomes, func() string {
		prefix := ""
		if Intent(view.Intent) == IntentComplaint {
			prefix = "I'm sorry for the trouble. "
		}
		if len(outcomes) > 0 {
			out := outcomes[0]
			if out.Err == nil {
				return fmt.Sprintf("%sHere's the latest on order %s:\n%s", prefix, orderID, out.Output)
			}
			return fmt.Sprintf("%sI couldn't look up order %s right now. Please try again in a moment.", prefix, orderID)
		}
		if Intent(view.Intent) == IntentOrderStatus && !hasOrderID && box.Has(tools.OrderStatus) {
			return prefix + "Could you share your order number (for example #1001)? I'll look it up for you."
		}
		return prefix + contextFallback(r, "I don't have that information yet. Please contact the store's support team and they'll be glad to help.")
	})
	return conversation.Delta{Reply: reply, Sources: r.Sources}
}

func (h *nodeHandlers) general(ctx context.Context, view conversation.View, r Retrieval) conversation.Delta {
	reply := h.compose(ctx, NodeGeneral, view, r, nil, func() string {
		if !r.Empty() {
			return contextFallback(r, "")
		}
		return fmt.Sprintf("Hi! I'm the assistant for %s. I can help you find products, check on an order or answer questions about the store.", storeLabel(view.Scope.StoreName))
	})
	return conversation.Delta{Reply: reply, Sources: r.Sources}
}

// clarify asks one question. It never calls tools or the responder.
func (h *nodeHandlers) clarify(view conversation.View) conversation.Delta {
	return conversation.Delta{Reply: clarifyReply(view.Scope.StoreName)}
}

func clarifyReply(storeName string) string {
	return fmt.Sprintf("I want to make sure I help with the right thing at %s. Are you looking for a product, checking on an order, or asking about a store policy?", storeLabel(storeName))
}

// compose asks the responder for a reply and falls back to a template when
// it is absent, fails or returns nothing.
func (h *nodeHandlers) compose(ctx context.Context, node Node, view conversation.View, r Retrieval, outcomes []ToolOutcome, fallback func() string) string {
	if h.responder != nil && ctx.Err() == nil {
		text, err := h.responder.Respond(ctx, ResponseRequest{
			Node:        node,
			StoreName:   view.Scope.StoreName,
			History:     view.History,
			Latest:      view.Latest,
			Context:     r.Context,
			ToolOutputs: outcomes,
		})
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		if h.logger != nil {
			h.logger.WithError(err).WithFields(logging.Fields{
				"node":     node.String(),
				"store_id": view.Scope.StoreID,
			}).Warn("Responder unavailable; using fallback reply")
		}
	}
	return fallback()
}

func firstSuccess(outcomes []ToolOutcome) (ToolOutcome, bool) {
	for _, out := range outcomes {
		if out.Err == nil && strings.TrimSpace(out.Output) != "" {
			return out, true
		}
	}
	return ToolOutcome{}, false
}

func productSearchHint(outcomes []ToolOutcome) string {
	if len(outcomes) > 0 {
		return "I couldn't reach the product catalog just now. Could you tell me a bit more about what you're looking for?"
	}
	return "I couldn't find matching products. Could you describe what you're looking for in more detail?"
}

// contextFallback quotes the top knowledge snippets, or returns otherwise
// when there are none.
func contextFallback(r Retrieval, otherwise string) string {
	if len(r.Sources) == 0 {
		return otherwise
	}
	var b strings.Builder
	b.WriteString("Here's what I found that may help:")
	for i, src := range r.Sources {
		if i == fallbackSnippets {
			break
		}
		fmt.Fprintf(&b, "\n- %s: %s", src.Title, src.Snippet)
	}
	return b.String()
}

func storeLabel(name string) string {
	if strings.TrimSpace(name) == "" {
		return "our store"
	}
	return name
}
