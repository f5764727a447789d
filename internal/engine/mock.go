package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockSimplifier implements Simplifier for testing. By default it
// echoes a deterministic simplification; scripted outputs and failures
// can be injected per paragraph.
type MockSimplifier struct {
	mu      sync.Mutex
	outputs map[string]string
	fail    map[string]error

	// Usage reported per call
	PromptTokens     int64
	CompletionTokens int64

	calls atomic.Int64
}

// NewMockSimplifier creates a mock simplifier.
func NewMockSimplifier() *MockSimplifier {
	return &MockSimplifier{
		outputs:          make(map[string]string),
		fail:             make(map[string]error),
		PromptTokens:     10,
		CompletionTokens: 20,
	}
}

// SetOutput scripts the simplified text for a paragraph.
func (m *MockSimplifier) SetOutput(paragraph, simplified string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[paragraph] = simplified
}

// FailOn makes Simplify return err for the given paragraph.
func (m *MockSimplifier) FailOn(paragraph string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[paragraph] = err
}

// Calls returns how many times Simplify was invoked.
func (m *MockSimplifier) Calls() int64 {
	return m.calls.Load()
}

// Simplify implements Simplifier.
func (m *MockSimplifier) Simplify(ctx context.Context, paragraph string) (Simplification, error) {
	m.calls.Add(1)

	if err := ctx.Err(); err != nil {
		return Simplification{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.fail[paragraph]; ok {
		return Simplification{}, &ServiceError{Op: "simplify", Cause: err}
	}

	text, ok := m.outputs[paragraph]
	if !ok {
		text = "Simplified: " + paragraph
	}

	return Simplification{
		Text:             text,
		PromptTokens:     m.PromptTokens,
		CompletionTokens: m.CompletionTokens,
	}, nil
}

// MockSynthesizer implements Synthesizer for testing. It fabricates
// audio bytes derived from the input text; failures can be scripted per
// sentence or for the first N calls.
type MockSynthesizer struct {
	mu        sync.Mutex
	fail      map[string]error
	failFirst int

	calls atomic.Int64
}

// NewMockSynthesizer creates a mock synthesizer.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{fail: make(map[string]error)}
}

// FailOn makes Synthesize return err for the given sentence.
func (m *MockSynthesizer) FailOn(sentence string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[sentence] = err
}

// FailFirst makes the first n calls fail regardless of input, then
// recover. Used to exercise retry policies.
func (m *MockSynthesizer) FailFirst(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFirst = n
}

// Calls returns how many times Synthesize was invoked.
func (m *MockSynthesizer) Calls() int64 {
	return m.calls.Load()
}

// Synthesize implements Synthesizer.
func (m *MockSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	m.calls.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failFirst > 0 {
		m.failFirst--
		return nil, &ServiceError{Op: "synthesize", Cause: ErrSynthesis}
	}
	if err, ok := m.fail[text]; ok {
		return nil, &ServiceError{Op: "synthesize", Cause: err}
	}

	return []byte(fmt.Sprintf("PCM[%s]", text)), nil
}
