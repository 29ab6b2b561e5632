package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibtisamdev/reva-sub001/internal/chat"
	"github.com/ibtisamdev/reva-sub001/internal/conversation"
)

type produced struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	records []produced
	err     error
}

func (f *fakeProducer) Produce(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, produced{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func sampleResult() chat.TurnResult {
	return chat.TurnResult{
		TurnID:     "turn-1",
		Reply:      "It shipped.",
		Intent:     chat.IntentOrderStatus,
		Confidence: 0.9,
		Node:       chat.NodeSupport,
		ToolsUsed:  []string{"get_order_status"},
		ToolCalls:  []conversation.ToolCallRecord{{ID: "c1", Name: "get_order_status"}},
		ToolResults: []conversation.ToolResultRecord{
			{CallID: "c1", Name: "get_order_status", Output: "shipped"},
		},
	}
}

func TestObserveTurnPublishes(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, "", nil)
	p.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

	p.ObserveTurn(context.Background(), chat.TurnRequest{StoreID: "store-1"}, sampleResult(), nil)

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, DefaultTopic, rec.topic)
	assert.Equal(t, "store-1", string(rec.key))
	assert.Equal(t, "ok", rec.headers["outcome"])

	var got TurnRecord
	require.NoError(t, json.Unmarshal(rec.value, &got))
	assert.Equal(t, "turn-1", got.TurnID)
	assert.Equal(t, "support", got.Node)
	assert.Equal(t, "order_status", got.Intent)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, got.ToolCalls[0].ID, got.ToolResults[0].CallID)
	assert.True(t, got.OccurredAt.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestNewTurnRecordOutcome(t *testing.T) {
	aborted := NewTurnRecord(chat.TurnRequest{StoreID: "s"}, sampleResult(), fmt.Errorf("%w: %w", chat.ErrTurnAborted, context.Canceled), time.Now())
	assert.Equal(t, "aborted", aborted.Outcome)
	assert.Contains(t, aborted.Error, "turn aborted")

	failed := NewTurnRecord(chat.TurnRequest{StoreID: "s"}, sampleResult(), errors.New("boom"), time.Now())
	assert.Equal(t, "error", failed.Outcome)
}

func TestObserveTurnSkipsRejectedTurnsAndSurvivesFailures(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, "audit", nil)
	p.ObserveTurn(context.Background(), chat.TurnRequest{}, chat.TurnResult{}, errors.New("store_id is required"))
	assert.Empty(t, producer.records)

	failing := NewPublisher(&fakeProducer{err: errors.New("broker down")}, "audit", nil)
	failing.ObserveTurn(context.Background(), chat.TurnRequest{StoreID: "s"}, sampleResult(), nil)

	var nilPublisher *Publisher
	nilPublisher.ObserveTurn(context.Background(), chat.TurnRequest{}, sampleResult(), nil)
}
