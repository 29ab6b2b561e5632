// Package conversation holds the per-turn record threaded through one
// orchestration run.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ibtisamdev/reva-sub001/internal/citation"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrRecordMismatch is returned by Apply when tool calls and results do
// not pair up slot for slot.
var ErrRecordMismatch = errors.New("tool call and result records do not pair")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Scope is the tenant scope and capability flags of a turn. It never
// changes after the state is created.
type Scope struct {
	StoreID         string `json:"store_id"`
	StoreName       string `json:"store_name"`
	HasOrderTools   bool   `json:"has_order_tools"`
	HasProductTools bool   `json:"has_product_tools"`
}

type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	IssuedAt  time.Time       `json:"issued_at"`
}

type ToolResultRecord struct {
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	IsError    bool   `json:"is_error"`
	DurationMS int64  `json:"duration_ms"`
}

// Delta is what a node handler produces.
type Delta struct {
	Reply       string
	Sources     []citation.SourceReference
	ToolCalls   []ToolCallRecord
	ToolResults []ToolResultRecord
}

// View is a read-only snapshot handed to classifiers and handlers.
type View struct {
	Scope      Scope
	History    []Message
	Latest     string
	Intent     string
	Confidence float64
}

// State is owned by exactly one turn. Messages and tool records only grow.
type State struct {
	scope       Scope
	messages    []Message
	intent      string
	confidence  float64
	reply       string
	sources     []citation.SourceReference
	toolsUsed   []string
	toolCalls   []ToolCallRecord
	toolResults []ToolResultRecord
	applied     bool
}

// New starts a turn: prior history followed by the latest user message.
func New(scope Scope, history []Message, latest string) *State {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: latest})
	return &State{scope: scope, messages: messages}
}

func (s *State) Scope() Scope { return s.scope }
func (s *State) StoreID() string { return s.scope.StoreID }
func (s *State) StoreName() string { return s.scope.StoreName }
func (s *State) HasOrderTools() bool { return s.scope.HasOrderTools }
func (s *State) HasProductTools() bool { return s.scope.HasProductTools }
func (s *State) Intent() string { return s.intent }
func (s *State) Confidence() float64 { return s.confidence }
func (s *State) Reply() string { return s.reply }

func (s *State) Sources() []citation.SourceReference {
	return append([]citation.SourceReference(nil), s.sources...)
}

func (s *State) Messages() []Message {
	return append([]Message(nil), s.messages...)
}

// LatestMessage returns the content of the most recent user message.
func (s *State) LatestMessage() string {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			return s.messages[i].Content
		}
	}
	return ""
}

func (s *State) ToolsUsed() []string {
	return append([]string(nil), s.toolsUsed...)
}

func (s *State) ToolCalls() []ToolCallRecord {
	return append([]ToolCallRecord(nil), s.toolCalls...)
}

func (s *State) ToolResults() []ToolResultRecord {
	return append([]ToolResultRecord(nil), s.toolResults...)
}

// SetClassification records the classifier output, clamping confidence to
// [0, 1]. NaN becomes 0.
func (s *State) SetClassification(intent string, confidence float64) {
	switch {
	case math.IsNaN(confidence), confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	s.intent = intent
	s.confidence = confidence
}

// View snapshots the state. The latest user message is split from history.
func (s *State) View() View {
	history := s.messages
	latest := ""
	if n := len(history); n > 0 && history[n-1].Role == RoleUser {
		latest = history[n-1].Content
		history = history[:n-1]
	}
	return View{
		Scope:      s.scope,
		History:    append([]Message(nil), history...),
		Latest:     latest,
		Intent:     s.intent,
		Confidence: s.confidence,
	}
}

// Apply merges a handler delta. It may be called once per turn.
func (s *State) Apply(d Delta) error {
	if s.applied {
		return errors.New("delta already applied for this turn")
	}
	if len(d.ToolCalls) != len(d.ToolResults) {
		return fmt.Errorf("%w: %d calls, %d results", ErrRecordMismatch, len(d.ToolCalls), len(d.ToolResults))
	}
	for i := range d.ToolCalls {
		if d.ToolCalls[i].ID != d.ToolResults[i].CallID {
			return fmt.Errorf("%w: slot %d has call %s and result for %s", ErrRecordMismatch, i, d.ToolCalls[i].ID, d.ToolResults[i].CallID)
		}
	}

	s.applied = true
	s.reply = d.Reply
	s.sources = append(s.sources, d.Sources...)
	s.toolCalls = append(s.toolCalls, d.ToolCalls...)
	s.toolResults = append(s.toolResults, d.ToolResults...)
	for _, call := range d.ToolCalls {
		s.markUsed(call.Name)
	}
	if d.Reply != "" {
		s.messages = append(s.messages, Message{Role: RoleAssistant, Content: d.Reply})
	}
	return nil
}

func (s *State) markUsed(name string) {
	for _, existing := range s.toolsUsed {
		if existing == name {
			return
		}
	}
	s.toolsUsed = append(s.toolsUsed, name)
}
