// Package segment defines the unit of playback: one sentence of
// simplified text together with its position and resolved audio.
package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Segment carries a single sentence from production to playback.
// Rank is global, zero-based and strictly increasing across the whole
// document; it defines playback order. AudioRef is empty until the
// producer resolves audio for the sentence.
type Segment struct {
	Rank                int    `json:"rank"`
	ParagraphIndex      int    `json:"paragraph_index"`
	SentenceIndex       int    `json:"sentence_index"`
	Sentence            string `json:"sentence"`
	OriginalParagraph   string `json:"original_paragraph"`
	SimplifiedParagraph string `json:"simplified_paragraph"`
	AudioRef            string `json:"audio_ref,omitempty"`
}

// Key returns the segment's content-addressed cache key: a SHA-256 hash
// over every content field including Rank. Two segments share a key only
// if their full content, position included, is identical.
func (s *Segment) Key() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%d\x00%d\x00%s\x00%s\x00%s",
		s.Rank, s.ParagraphIndex, s.SentenceIndex,
		s.Sentence, s.OriginalParagraph, s.SimplifiedParagraph)
	return hex.EncodeToString(h.Sum(nil))
}

// Resolved reports whether the segment is eligible for playback.
func (s *Segment) Resolved() bool {
	return s.AudioRef != ""
}

// Encode serializes the segment for storage as a cache value.
func (s *Segment) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode segment %d: %w", s.Rank, err)
	}
	return string(b), nil
}

// Decode deserializes a segment previously produced by Encode.
func Decode(data string) (*Segment, error) {
	var s Segment
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode segment: %w", err)
	}
	return &s, nil
}
