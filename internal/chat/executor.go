// Package chat runs one assistant turn: classify the latest message, route
// it to exactly one terminal handler and return the reply with its sources
// and tool records.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ibtisamdev/reva-sub001/internal/citation"
	"github.com/ibtisamdev/reva-sub001/internal/conversation"
	"github.com/ibtisamdev/reva-sub001/internal/knowledge"
	"github.com/ibtisamdev/reva-sub001/internal/tenant"
	"github.com/ibtisamdev/reva-sub001/internal/tools"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

// ErrTurnAborted is the only error a turn reports once it has started. The
// result returned alongside it is a complete fallback.
var ErrTurnAborted = errors.New("turn aborted")

// AbortedReply is the reply of a cancelled or timed-out turn.
const AbortedReply = "Sorry, I couldn't finish answering that in time. Please try again."

const (
	defaultTopK       = 5
	defaultMaxHistory = 20
)

// TurnRequest is the caller's side of a turn.
type TurnRequest struct {
	StoreID         string                 `json:"store_id"`
	StoreName       string                 `json:"store_name"`
	Message         string                 `json:"message"`
	History         []conversation.Message `json:"history"`
	HasOrderTools   bool                   `json:"has_order_tools"`
	HasProductTools bool                   `json:"has_product_tools"`
}

type TurnResult struct {
	TurnID      string                          `json:"turn_id"`
	Reply       string                          `json:"reply"`
	Intent      Intent                          `json:"intent"`
	Confidence  float64                         `json:"confidence"`
	Node        Node                            `json:"node"`
	Sources     []citation.SourceReference      `json:"sources"`
	ToolCalls   []conversation.ToolCallRecord   `json:"tool_calls"`
	ToolResults []conversation.ToolResultRecord `json:"tool_results"`
	ToolsUsed   []string                        `json:"tools_used"`
}

// ExecutorConfig wires an Executor. Index and Tools may be nil; turns then
// run without knowledge context or tools.
type ExecutorConfig struct {
	Classifier      *IntentClassifier
	Index           knowledge.Index
	Tools           tools.Invoker
	Responder       Responder
	TopK            int
	MaxParallelTool int
	MaxHistory      int
	Logger          logging.Logger
}

// Executor wires classify to the five terminal handlers. It holds no
// per-turn state and is safe for concurrent use.
type Executor struct {
	classifier  *IntentClassifier
	index       knowledge.Index
	tools       tools.Invoker
	handlers    *nodeHandlers
	topK        int
	maxParallel int
	maxHistory  int
	logger      logging.Logger
	newID       func() string
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Classifier == nil {
		return nil, errors.New("intent classifier is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MaxParallelTool <= 0 {
		cfg.MaxParallelTool = defaultMaxParallelTools
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	return &Executor{
		classifier:  cfg.Classifier,
		index:       cfg.Index,
		tools:       cfg.Tools,
		handlers:    &nodeHandlers{responder: cfg.Responder, logger: cfg.Logger},
		topK:        cfg.TopK,
		maxParallel: cfg.MaxParallelTool,
		maxHistory:  cfg.MaxHistory,
		logger:      cfg.Logger,
		newID:       uuid.NewString,
	}, nil
}

// Run executes one turn. Only cancellation of ctx makes it fail, and then
// the error wraps ErrTurnAborted and the result carries a fallback reply.
func (e *Executor) Run(ctx context.Context, req TurnRequest) (TurnResult, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	if req.StoreID == "" {
		return TurnResult{}, errors.New("store_id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return TurnResult{}, errors.New("message is required")
	}

	start := time.Now()
	turnID := e.newID()
	ctx = tenant.WithStoreID(ctx, req.StoreID)
	ctx = tenant.WithStoreName(ctx, req.StoreName)
	ctx = tenant.WithTurnID(ctx, turnID)

	scope := conversation.Scope{
		StoreID:         req.StoreID,
		StoreName:       req.StoreName,
		HasOrderTools:   req.HasOrderTools,
		HasProductTools: req.HasProductTools,
	}
	state := conversation.New(scope, capHistory(req.History, e.maxHistory), req.Message)

	intent, confidence := e.classifier.Classify(ctx, state.View())
	state.SetClassification(string(intent), confidence)
	node := Route(intent, state.Confidence())
	routingDecisionsTotal.WithLabelValues(node.String()).Inc()

	log := e.turnLogger(turnID, req.StoreID)
	if log != nil {
		log.WithFields(logging.Fields{
			"intent":     intent,
			"confidence": state.Confidence(),
			"node":       node.String(),
		}).Debug("Turn routed")
	}

	box := NewToolBox(tools.NewGate(e.tools, req.HasProductTools, req.HasOrderTools), req.StoreID, e.maxParallel, e.logger)
	var delta conversation.Delta
	if ctx.Err() == nil {
		var r Retrieval
		if node != NodeClarify {
			r = retrieve(ctx, e.index, req.StoreID, req.Message, e.topK, e.logger)
		}
		delta = e.handlers.handle(ctx, node, state.View(), box, r)
	}
	delta.ToolCalls, delta.ToolResults = box.Records()

	if cause := ctx.Err(); cause != nil {
		turnsTotal.WithLabelValues(NodeGeneral.String(), "aborted").Inc()
		if log != nil {
			log.WithError(cause).WithField("node", node.String()).Warn("Turn aborted")
		}
		return e.abort(turnID, scope, req, delta, cause)
	}

	if err := state.Apply(delta); err != nil {
		return TurnResult{}, fmt.Errorf("apply %s delta: %w", node, err)
	}
	turnsTotal.WithLabelValues(node.String(), "ok").Inc()
	turnDuration.WithLabelValues(node.String()).Observe(time.Since(start).Seconds())
	return resultFromState(turnID, node, state), nil
}

// abort builds the general-style fallback. Issued tool calls stay paired
// with their results; reply text and sources produced so far are dropped.
func (e *Executor) abort(turnID string, scope conversation.Scope, req TurnRequest, partial conversation.Delta, cause error) (TurnResult, error) {
	state := conversation.New(scope, nil, req.Message)
	if err := state.Apply(conversation.Delta{
		Reply:       AbortedReply,
		ToolCalls:   partial.ToolCalls,
		ToolResults: partial.ToolResults,
	}); err != nil {
		return TurnResult{}, fmt.Errorf("%w: %w", ErrTurnAborted, err)
	}
	result := resultFromState(turnID, NodeGeneral, state)
	result.Intent = IntentSmallTalk
	return result, fmt.Errorf("%w: %w", ErrTurnAborted, cause)
}

func resultFromState(turnID string, node Node, state *conversation.State) TurnResult {
	return TurnResult{
		TurnID:      turnID,
		Reply:       state.Reply(),
		Intent:      Intent(state.Intent()),
		Confidence:  state.Confidence(),
		Node:        node,
		Sources:     nonNil(state.Sources()),
		ToolCalls:   nonNil(state.ToolCalls()),
		ToolResults: nonNil(state.ToolResults()),
		ToolsUsed:   nonNil(state.ToolsUsed()),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (e *Executor) turnLogger(turnID, storeID string) *logging.Entry {
	if e.logger == nil {
		return nil
	}
	return e.logger.WithFields(logging.Fields{"turn_id": turnID, "store_id": storeID})
}
