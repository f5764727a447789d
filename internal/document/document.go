// Package document loads input text and splits it into paragraphs for
// the pipeline. A paragraph boundary is one or more blank lines.
package document

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Source yields the paragraphs of a document in reading order.
type Source interface {
	// Paragraphs returns the document's paragraphs. Whitespace-only
	// paragraphs are dropped; internal line breaks are flattened to
	// spaces so the text reads as prose.
	Paragraphs(ctx context.Context) ([]string, error)

	// Name identifies the document for logging and status display.
	Name() string
}

// FileSource reads a plain-text document from disk.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name implements Source.
func (f *FileSource) Name() string {
	return f.path
}

// Paragraphs implements Source.
func (f *FileSource) Paragraphs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return Split(string(data)), nil
}

// TextSource wraps already-loaded text, for piped input and tests.
type TextSource struct {
	name string
	text string
}

// NewTextSource creates a source over text. name is used for display.
func NewTextSource(name, text string) *TextSource {
	return &TextSource{name: name, text: text}
}

// Name implements Source.
func (t *TextSource) Name() string {
	return t.name
}

// Paragraphs implements Source.
func (t *TextSource) Paragraphs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Split(t.text), nil
}

// Split breaks text into paragraphs on blank lines. Line breaks inside
// a paragraph become single spaces and surrounding whitespace is
// trimmed.
func Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		lines := strings.Split(block, "\n")
		parts := lines[:0]
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line != "" {
				parts = append(parts, line)
			}
		}
		paragraph := strings.Join(parts, " ")
		if paragraph != "" {
			paragraphs = append(paragraphs, paragraph)
		}
	}
	return paragraphs
}
