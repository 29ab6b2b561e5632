package chat

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ibtisamdev/reva-sub001/internal/conversation"
	"github.com/ibtisamdev/reva-sub001/internal/knowledge"
	"github.com/ibtisamdev/reva-sub001/pkg/llm"
)

type fixedCapability struct {
	intent     Intent
	confidence float64
	err        error
}

func (f fixedCapability) Classify(context.Context, []conversation.Message, string, conversation.Scope) (Intent, float64, error) {
	return f.intent, f.confidence, f.err
}

type scriptedProvider struct {
	reply string
	err   error

	mu    sync.Mutex
	calls [][]llm.Message
}

func (p *scriptedProvider) Complete(_ context.Context, messages []llm.Message) (llm.Stream, error) {
	p.mu.Lock()
	p.calls = append(p.calls, messages)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &textStream{parts: strings.SplitAfter(p.reply, " ")}, nil
}

type textStream struct {
	parts []string
}

func (s *textStream) Recv() (llm.Chunk, error) {
	if len(s.parts) == 0 {
		return llm.Chunk{}, io.EOF
	}
	part := s.parts[0]
	s.parts = s.parts[1:]
	return llm.Chunk{Content: part}, nil
}

func (s *textStream) Close() error { return nil }

type stubIndex struct {
	chunks []knowledge.Chunk
	err    error
	calls  atomic.Int32
}

func (s *stubIndex) Query(context.Context, string, string, int) ([]knowledge.Chunk, error) {
	s.calls.Add(1)
	return s.chunks, s.err
}

type recordingResponder struct {
	reply string
	err   error

	mu   sync.Mutex
	reqs []ResponseRequest
}

func (r *recordingResponder) Respond(_ context.Context, req ResponseRequest) (string, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return r.reply, r.err
}
