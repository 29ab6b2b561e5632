package kafka

import (
	"testing"
)

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(nil, "", nil); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestNewRecordSortsHeaders(t *testing.T) {
	record := newRecord("assistant.turns", []byte("k"), []byte("v"), map[string]string{
		"store_id": "store-1",
		"intent":   "order_status",
	})

	if record.Topic != "assistant.turns" || string(record.Key) != "k" || string(record.Value) != "v" {
		t.Fatalf("unexpected record %+v", record)
	}
	if len(record.Headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(record.Headers))
	}
	if record.Headers[0].Key != "intent" || string(record.Headers[1].Value) != "store-1" {
		t.Fatalf("unexpected header order %+v", record.Headers)
	}
}
