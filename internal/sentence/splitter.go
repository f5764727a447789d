// Package sentence provides sentence segmentation for simplified
// paragraph text.
package sentence

import (
	"strings"
	"unicode"
)

// Splitter segments plain text into sentences. It understands stacked
// terminators (?!), trailing quotes and brackets, and guards against
// common abbreviations that do not end a sentence.
type Splitter struct {
	minLength     int
	abbreviations map[string]bool
}

// NewSplitter creates a splitter with default settings.
func NewSplitter() *Splitter {
	return &Splitter{
		minLength:     3,
		abbreviations: makeAbbreviationMap(),
	}
}

// Split returns the sentences of text in order. Fragments shorter than
// the minimum length are dropped. Text without terminal punctuation is
// returned as a single sentence.
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var sentences []string
	lastStart := 0

	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}

		// Collect stacked punctuation
		end := i + 1
		for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?') {
			end++
		}

		// Closing quotes and brackets belong to the sentence
		for end < len(runes) && (runes[end] == '"' || runes[end] == '\'' || runes[end] == ')' || runes[end] == ']') {
			end++
		}

		if !s.isSentenceEnd(runes, i, end) {
			i = end - 1
			continue
		}

		if frag := strings.TrimSpace(string(runes[lastStart:end])); len(frag) >= s.minLength {
			sentences = append(sentences, frag)
		}

		// Skip whitespace to the next sentence start
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		lastStart = end
		i = end - 1
	}

	// Trailing text without terminal punctuation
	if lastStart < len(runes) {
		if frag := strings.TrimSpace(string(runes[lastStart:])); len(frag) >= s.minLength {
			sentences = append(sentences, frag)
		}
	}

	return sentences
}

// isSentenceEnd decides whether the terminator at position i really
// ends a sentence.
func (s *Splitter) isSentenceEnd(runes []rune, i, end int) bool {
	// A period inside a number (3.14) is not a boundary.
	if runes[i] == '.' && i > 0 && i+1 < len(runes) &&
		unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
		return false
	}

	// Abbreviation guard: look back at the word preceding a period.
	if runes[i] == '.' {
		wordStart := i
		for wordStart > 0 && (unicode.IsLetter(runes[wordStart-1]) || runes[wordStart-1] == '.') {
			wordStart--
		}
		word := strings.ToLower(strings.TrimSuffix(string(runes[wordStart:i]), "."))
		word = strings.ReplaceAll(word, ".", "")
		if s.abbreviations[word] {
			return false
		}
		// Single letters are initials (A. B. Author)
		if len(word) == 1 {
			return false
		}
	}

	// End of text always closes a sentence.
	if end >= len(runes) {
		return true
	}

	// Otherwise require following whitespace.
	return unicode.IsSpace(runes[end])
}

func makeAbbreviationMap() map[string]bool {
	list := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "phd", "md",
		"ie", "eg", "etc", "vs", "cf", "al", "inc", "ltd", "co", "corp",
		"fig", "figs", "eq", "eqs", "sec", "secs", "ch", "pg", "pp",
		"ed", "eds", "vol", "vols", "no", "nos", "approx",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept",
		"oct", "nov", "dec", "st", "rd", "nd", "th",
		"us", "uk", "un", "eu",
	}

	m := make(map[string]bool, len(list))
	for _, abbr := range list {
		m[abbr] = true
	}
	return m
}
