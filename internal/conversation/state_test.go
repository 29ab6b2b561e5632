package conversation

import (
	"errors"
	"math"
	"testing"

	"github.com/ibtisamdev/reva-sub001/internal/citation"
)

func newState() *State {
	return New(
		Scope{StoreID: "store-1", StoreName: "Acme", HasOrderTools: true},
		[]Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}},
		"where is #1001",
	)
}

func TestNewSplitsLatestFromHistory(t *testing.T) {
	s := newState()
	if got := s.LatestMessage(); got != "where is #1001" {
		t.Fatalf("LatestMessage = %q", got)
	}
	v := s.View()
	if v.Latest != "where is #1001" || len(v.History) != 2 {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Scope.StoreID != "store-1" || !v.Scope.HasOrderTools || v.Scope.HasProductTools {
		t.Fatalf("unexpected scope %+v", v.Scope)
	}
}

func TestSetClassificationClamps(t *testing.T) {
	s := newState()
	for _, tc := range []struct {
		in, want float64
	}{{0.7, 0.7}, {-1, 0}, {1.5, 1}, {math.NaN(), 0}} {
		s.SetClassification("order_status", tc.in)
		if s.Confidence() != tc.want {
			t.Errorf("SetClassification(%v) stored %v, want %v", tc.in, s.Confidence(), tc.want)
		}
	}
	if s.Intent() != "order_status" {
		t.Fatalf("Intent = %q", s.Intent())
	}
}

func TestApplyMergesDelta(t *testing.T) {
	s := newState()
	err := s.Apply(Delta{
		Reply:   "It shipped.",
		Sources: []citation.SourceReference{{Title: "Shipping"}},
		ToolCalls: []ToolCallRecord{
			{ID: "c1", Name: "get_order_status"},
			{ID: "c2", Name: "get_order_status"},
		},
		ToolResults: []ToolResultRecord{
			{CallID: "c1", Name: "get_order_status", Output: "shipped"},
			{CallID: "c2", Name: "get_order_status", IsError: true, Error: "timeout"},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if s.Reply() != "It shipped." {
		t.Fatalf("Reply = %q", s.Reply())
	}
	msgs := s.Messages()
	if len(msgs) != 4 || msgs[3].Role != RoleAssistant {
		t.Fatalf("expected assistant reply appended, got %+v", msgs)
	}
	if used := s.ToolsUsed(); len(used) != 1 || used[0] != "get_order_status" {
		t.Fatalf("ToolsUsed = %v", used)
	}
	if len(s.ToolCalls()) != len(s.ToolResults()) {
		t.Fatal("call and result records must have equal length")
	}
	if len(s.Sources()) != 1 {
		t.Fatalf("Sources = %v", s.Sources())
	}
}

func TestApplyRejectsUnpairedRecords(t *testing.T) {
	s := newState()
	err := s.Apply(Delta{
		Reply:     "x",
		ToolCalls: []ToolCallRecord{{ID: "c1"}},
	})
	if !errors.Is(err, ErrRecordMismatch) {
		t.Fatalf("expected ErrRecordMismatch, got %v", err)
	}

	err = s.Apply(Delta{
		ToolCalls:   []ToolCallRecord{{ID: "c1"}},
		ToolResults: []ToolResultRecord{{CallID: "c2"}},
	})
	if !errors.Is(err, ErrRecordMismatch) {
		t.Fatalf("expected ErrRecordMismatch for swapped slot, got %v", err)
	}
	if len(s.Messages()) != 3 || s.Reply() != "" {
		t.Fatal("rejected delta must not change state")
	}
}

func TestApplyOnlyOnce(t *testing.T) {
	s := newState()
	if err := s.Apply(Delta{Reply: "one"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.Apply(Delta{Reply: "two"}); err == nil {
		t.Fatal("second Apply should fail")
	}
	if s.Reply() != "one" {
		t.Fatalf("Reply = %q", s.Reply())
	}
}

func TestGettersReturnCopies(t *testing.T) {
	s := newState()
	msgs := s.Messages()
	msgs[0].Content = "mutated"
	if s.Messages()[0].Content != "hi" {
		t.Fatal("Messages must return a copy")
	}
}
