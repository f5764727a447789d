package document

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "blank line separates paragraphs",
			input: "First paragraph.\n\nSecond paragraph.",
			want:  []string{"First paragraph.", "Second paragraph."},
		},
		{
			name:  "internal line breaks flattened",
			input: "A line\nwrapped over\nthree lines.\n\nNext.",
			want:  []string{"A line wrapped over three lines.", "Next."},
		},
		{
			name:  "multiple blank lines",
			input: "One.\n\n\n\nTwo.",
			want:  []string{"One.", "Two."},
		},
		{
			name:  "windows line endings",
			input: "One.\r\n\r\nTwo.",
			want:  []string{"One.", "Two."},
		},
		{
			name:  "whitespace only paragraph dropped",
			input: "One.\n\n   \t\n\nTwo.",
			want:  []string{"One.", "Two."},
		},
		{
			name:  "leading and trailing whitespace trimmed",
			input: "  One.  \n\n  Two.  ",
			want:  []string{"One.", "Two."},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "single paragraph no terminator",
			input: "Just one paragraph",
			want:  []string{"Just one paragraph"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	content := "Alpha one.\nAlpha two.\n\nBeta.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewFileSource(path)
	if src.Name() != path {
		t.Errorf("Name() = %q, want %q", src.Name(), path)
	}

	got, err := src.Paragraphs(context.Background())
	if err != nil {
		t.Fatalf("Paragraphs: %v", err)
	}
	want := []string{"Alpha one. Alpha two.", "Beta."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paragraphs = %v, want %v", got, want)
	}
}

func TestFileSourceMissing(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "nope.txt"))
	if _, err := src.Paragraphs(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFileSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewTextSource("stdin", "Hello.")
	if _, err := src.Paragraphs(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestTextSource(t *testing.T) {
	src := NewTextSource("inline", "One.\n\nTwo.")
	got, err := src.Paragraphs(context.Background())
	if err != nil {
		t.Fatalf("Paragraphs: %v", err)
	}
	want := []string{"One.", "Two."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paragraphs = %v, want %v", got, want)
	}
}
