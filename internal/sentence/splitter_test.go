package sentence

import (
	"reflect"
	"testing"
)

func TestSplitter_Split(t *testing.T) {
	s := NewSplitter()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple sentences",
			text: "First sentence. Second sentence. Third sentence.",
			want: []string{"First sentence.", "Second sentence.", "Third sentence."},
		},
		{
			name: "mixed terminators",
			text: "Is this a question? Yes! It works.",
			want: []string{"Is this a question?", "Yes!", "It works."},
		},
		{
			name: "stacked punctuation",
			text: "Really?! That is surprising. Done.",
			want: []string{"Really?!", "That is surprising.", "Done."},
		},
		{
			name: "abbreviation not a boundary",
			text: "Dr. Smith et al. proposed a method. It works well.",
			want: []string{"Dr. Smith et al. proposed a method.", "It works well."},
		},
		{
			name: "decimal number not a boundary",
			text: "The error rate was 3.14 percent. Impressive.",
			want: []string{"The error rate was 3.14 percent.", "Impressive."},
		},
		{
			name: "closing quote attaches to sentence",
			text: `They called it "novel." We agree.`,
			want: []string{`They called it "novel."`, "We agree."},
		},
		{
			name: "no terminal punctuation",
			text: "a sentence without terminal punctuation",
			want: []string{"a sentence without terminal punctuation"},
		},
		{
			name: "initials are not boundaries",
			text: "The work of J. Doe shows progress. More follows.",
			want: []string{"The work of J. Doe shows progress.", "More follows."},
		},
		{
			name: "empty input",
			text: "   ",
			want: nil,
		},
		{
			name: "minimum length sentence kept",
			text: "Hm. A longer sentence follows here.",
			want: []string{"Hm.", "A longer sentence follows here."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Split(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q)\n got: %#v\nwant: %#v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSplitter_OrderPreserved(t *testing.T) {
	s := NewSplitter()

	text := "One. Two. Three. Four. Five."
	got := s.Split(text)
	want := []string{"One.", "Two.", "Three.", "Four.", "Five."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sentence order not preserved: %#v", got)
	}
}
