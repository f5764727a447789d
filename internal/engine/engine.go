// Package engine wraps the external AI services the pipeline depends
// on: text simplification (chat completions) and speech synthesis.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Common engine errors
var (
	// ErrSimplification indicates the simplification service call failed.
	ErrSimplification = errors.New("simplification service failed")

	// ErrSynthesis indicates the speech synthesis call failed.
	ErrSynthesis = errors.New("speech synthesis failed")

	// ErrEmptyInput indicates a request with no text to process.
	ErrEmptyInput = errors.New("empty input text")
)

// Simplification is the result of simplifying one paragraph, including
// the token usage the caller accumulates for cost estimation.
type Simplification struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// Simplifier turns an original paragraph into a shorter,
// speech-friendly version. A failing call returns a typed error; the
// error text is never substituted for content.
type Simplifier interface {
	Simplify(ctx context.Context, paragraph string) (Simplification, error)
}

// Synthesizer converts one sentence of text into raw audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ServiceError carries the failing operation and underlying cause for
// errors crossing the engine boundary.
type ServiceError struct {
	Op    string // "simplify" or "synthesize"
	Cause error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}
