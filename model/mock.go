package model

import (
	"context"
	"fmt"
	"sync"
)

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are scripted in order; once the script is exhausted every further
// invocation returns a plain fallback completion. Errors can be interleaved
// with responses to exercise failure paths.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	script   []scriptEntry
	pos      int
	Requests []Request // every request seen, in order
}

type scriptEntry struct {
	resp *Response
	err  error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsTools: true},
	}
}

// EnqueueResponse appends a canned response to the script.
func (m *MockModel) EnqueueResponse(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp.Usage == nil {
		resp.Usage = &TokenUsage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	}
	m.script = append(m.script, scriptEntry{resp: &resp})
}

// EnqueueError appends an error to the script; the matching invocation fails.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{err: err})
}

// Invoke implements Model.
func (m *MockModel) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.pos < len(m.script) {
		entry := m.script[m.pos]
		m.pos++
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.resp, nil
	}
	var last string
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Text
	}
	return &Response{
		Text:         fmt.Sprintf("Mock response to: %s", last),
		FinishReason: "stop",
		Usage:        &TokenUsage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// Invocations returns how many times Invoke was called.
func (m *MockModel) Invocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
