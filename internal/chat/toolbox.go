package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ibtisamdev/reva-sub001/internal/conversation"
	"github.com/ibtisamdev/reva-sub001/internal/tools"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

const defaultMaxParallelTools = 3

// ToolRequest is one call a handler wants to make. store_id is added to
// Args by the box.
type ToolRequest struct {
	Name string
	Args map[string]any
}

type ToolOutcome struct {
	Name   string
	Output string
	Err    error
}

// ToolBox is the bounded tool set handed to one handler. Calls are recorded
// when issued and results land in the matching slot, so both records keep
// issue order however completions race. A ToolBox belongs to one turn and
// Invoke must not be called concurrently; Records may be read at any time.
type ToolBox struct {
	invoker     tools.Invoker
	storeID     string
	maxParallel int
	logger      logging.Logger

	mu      sync.Mutex
	calls   []conversation.ToolCallRecord
	results []conversation.ToolResultRecord

	newID func() string
	now   func() time.Time
}

func NewToolBox(invoker tools.Invoker, storeID string, maxParallel int, logger logging.Logger) *ToolBox {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallelTools
	}
	return &ToolBox{
		invoker:     invoker,
		storeID:     storeID,
		maxParallel: maxParallel,
		logger:      logger,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Has reports whether the turn may call name.
func (b *ToolBox) Has(name string) bool {
	return b != nil && b.invoker != nil && b.invoker.HasTool(name)
}

// Invoke issues every request and waits for all of them. Failures are
// recorded and returned in the outcome, never as an error.
func (b *ToolBox) Invoke(ctx context.Context, reqs ...ToolRequest) []ToolOutcome {
	if len(reqs) == 0 {
		return nil
	}
	b.mu.Lock()
	base := len(b.results)
	args := make([]json.RawMessage, len(reqs))
	callIDs := make([]string, len(reqs))
	for i, req := range reqs {
		args[i] = b.encodeArgs(req.Args)
		call := conversation.ToolCallRecord{
			ID:        b.newID(),
			Name:      req.Name,
			Arguments: args[i],
			IssuedAt:  b.now(),
		}
		callIDs[i] = call.ID
		b.calls = append(b.calls, call)
		b.results = append(b.results, conversation.ToolResultRecord{
			CallID:  call.ID,
			Name:    call.Name,
			IsError: true,
			Error:   "not completed",
		})
	}
	b.mu.Unlock()

	outcomes := make([]ToolOutcome, len(reqs))
	var g errgroup.Group
	g.SetLimit(b.maxParallel)
	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i] = b.run(ctx, base+i, callIDs[i], req.Name, args[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (b *ToolBox) run(ctx context.Context, slot int, callID, name string, args json.RawMessage) ToolOutcome {
	start := time.Now()
	var (
		output string
		err    error
	)
	if b.invoker == nil {
		err = fmt.Errorf("%w: %s", tools.ErrUnavailable, name)
	} else {
		output, err = b.invoker.CallTool(ctx, name, args)
	}
	elapsed := time.Since(start)
	toolDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	record := conversation.ToolResultRecord{
		CallID:     callID,
		Name:       name,
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		record.IsError = true
		record.Error = err.Error()
		toolCallsTotal.WithLabelValues(name, toolStatus(err)).Inc()
		if b.logger != nil {
			b.logger.WithError(err).WithFields(logging.Fields{
				"tool":     name,
				"call_id":  record.CallID,
				"store_id": b.storeID,
			}).Warn("Tool call failed")
		}
	} else {
		record.Output = output
		toolCallsTotal.WithLabelValues(name, "success").Inc()
	}
	b.mu.Lock()
	b.results[slot] = record
	b.mu.Unlock()
	return ToolOutcome{Name: name, Output: output, Err: err}
}

func (b *ToolBox) encodeArgs(args map[string]any) json.RawMessage {
	merged := make(map[string]any, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	merged["store_id"] = b.storeID
	data, err := json.Marshal(merged)
	if err != nil {
		data, _ = json.Marshal(map[string]any{"store_id": b.storeID})
	}
	return data
}

// Records returns copies of the call and result records, index aligned.
func (b *ToolBox) Records() ([]conversation.ToolCallRecord, []conversation.ToolResultRecord) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]conversation.ToolCallRecord(nil), b.calls...),
		append([]conversation.ToolResultRecord(nil), b.results...)
}

func toolStatus(err error) string {
	switch {
	case errors.Is(err, tools.ErrRejected):
		return "rejected"
	case errors.Is(err, tools.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
