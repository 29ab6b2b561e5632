// Package audit publishes one record per finished assistant turn.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ibtisamdev/reva-sub001/internal/chat"
	"github.com/ibtisamdev/reva-sub001/internal/conversation"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

const DefaultTopic = "assistant.turns"

var publishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reva",
		Name:      "audit_publish_total",
		Help:      "Turn audit records published by status",
	},
	[]string{"status"},
)

// Producer is satisfied by *kafka.Producer.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// TurnRecord is the audit payload. Tool records are kept in issue order.
type TurnRecord struct {
	TurnID      string                          `json:"turn_id"`
	StoreID     string                          `json:"store_id"`
	Intent      string                          `json:"intent"`
	Confidence  float64                         `json:"confidence"`
	Node        string                          `json:"node"`
	Outcome     string                          `json:"outcome"`
	Error       string                          `json:"error,omitempty"`
	Reply       string                          `json:"reply"`
	SourceCount int                             `json:"source_count"`
	ToolsUsed   []string                        `json:"tools_used"`
	ToolCalls   []conversation.ToolCallRecord   `json:"tool_calls"`
	ToolResults []conversation.ToolResultRecord `json:"tool_results"`
	OccurredAt  time.Time                       `json:"occurred_at"`
}

type Publisher struct {
	producer Producer
	topic    string
	logger   logging.Logger
	now      func() time.Time
}

func NewPublisher(producer Producer, topic string, logger logging.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{producer: producer, topic: topic, logger: logger, now: time.Now}
}

// ObserveTurn publishes the turn and logs failures. Turns rejected before
// they started carry no turn id and are skipped.
func (p *Publisher) ObserveTurn(ctx context.Context, req chat.TurnRequest, result chat.TurnResult, turnErr error) {
	if p == nil || p.producer == nil || result.TurnID == "" {
		return
	}
	if err := p.Publish(ctx, NewTurnRecord(req, result, turnErr, p.now())); err != nil {
		publishTotal.WithLabelValues("error").Inc()
		if p.logger != nil {
			p.logger.WithError(err).WithFields(logging.Fields{
				"turn_id":  result.TurnID,
				"store_id": req.StoreID,
			}).Warn("Failed to publish turn audit record")
		}
		return
	}
	publishTotal.WithLabelValues("success").Inc()
}

func (p *Publisher) Publish(ctx context.Context, record TurnRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal turn record: %w", err)
	}
	headers := map[string]string{
		"store_id": record.StoreID,
		"outcome":  record.Outcome,
	}
	return p.producer.Produce(ctx, p.topic, []byte(record.StoreID), value, headers)
}

func NewTurnRecord(req chat.TurnRequest, result chat.TurnResult, turnErr error, at time.Time) TurnRecord {
	outcome := "ok"
	errText := ""
	if turnErr != nil {
		errText = turnErr.Error()
		outcome = "error"
		if errors.Is(turnErr, chat.ErrTurnAborted) {
			outcome = "aborted"
		}
	}
	return TurnRecord{
		TurnID:      result.TurnID,
		StoreID:     req.StoreID,
		Intent:      string(result.Intent),
		Confidence:  result.Confidence,
		Node:        result.Node.String(),
		Outcome:     outcome,
		Error:       errText,
		Reply:       result.Reply,
		SourceCount: len(result.Sources),
		ToolsUsed:   result.ToolsUsed,
		ToolCalls:   result.ToolCalls,
		ToolResults: result.ToolResults,
		OccurredAt:  at.UTC(),
	}
}
