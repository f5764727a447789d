// Package producer transforms document paragraphs into a rank-ordered
// stream of fully resolved segments: simplify each paragraph, split it
// into sentences, resolve audio for each sentence, and hand the result
// to the transit buffer.
package producer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/papervoice/internal/blob"
	"github.com/dgnsrekt/papervoice/internal/cache"
	"github.com/dgnsrekt/papervoice/internal/engine"
	"github.com/dgnsrekt/papervoice/internal/segment"
	"github.com/dgnsrekt/papervoice/internal/sentence"
	"github.com/dgnsrekt/papervoice/internal/transit"
)

// Config holds producer tuning knobs.
type Config struct {
	// CacheTTL is the expiry applied to simplification and audio
	// cache entries.
	CacheTTL time.Duration

	// SynthAttempts is the number of synthesis tries per sentence.
	// 1 matches the reference behavior of no retries.
	SynthAttempts int

	// RetryDelay is the wait between synthesis attempts.
	RetryDelay time.Duration
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		CacheTTL:      7 * 24 * time.Hour,
		SynthAttempts: 1,
		RetryDelay:    time.Second,
	}
}

// Usage accumulates the cost counters exposed through the status feed.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	SynthesizedChars int64
}

// Producer drives the production half of the pipeline. It processes
// paragraphs strictly in input order and performs no parallel external
// calls; the transit buffer's capacity is the only thing limiting how
// far it runs ahead of playback.
type Producer struct {
	store    cache.Store
	blobs    *blob.Store
	simplify engine.Simplifier
	synth    engine.Synthesizer
	splitter *sentence.Splitter
	buffer   *transit.Buffer
	config   Config
	logger   *log.Logger

	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	synthesizedChars atomic.Int64
}

// New creates a producer writing to buffer.
func New(store cache.Store, blobs *blob.Store, simplifier engine.Simplifier,
	synth engine.Synthesizer, buffer *transit.Buffer, config Config) *Producer {
	if config.SynthAttempts < 1 {
		config.SynthAttempts = 1
	}
	return &Producer{
		store:    store,
		blobs:    blobs,
		simplify: simplifier,
		synth:    synth,
		splitter: sentence.NewSplitter(),
		buffer:   buffer,
		config:   config,
		logger:   log.WithPrefix("producer"),
	}
}

// Usage returns a snapshot of the accumulated cost counters.
func (p *Producer) Usage() Usage {
	return Usage{
		PromptTokens:     p.promptTokens.Load(),
		CompletionTokens: p.completionTokens.Load(),
		SynthesizedChars: p.synthesizedChars.Load(),
	}
}

// Run processes all paragraphs and returns when the document is
// exhausted, the context is cancelled, or the transit buffer is closed
// by a stop. Ranks are assigned only at the point a sentence's audio
// has resolved, so the produced ranks are dense: 0,1,2,... with no
// gaps. A sentence whose audio cannot be resolved is logged and
// dropped; a paragraph whose simplification fails is logged and
// skipped whole.
func (p *Producer) Run(ctx context.Context, paragraphs []string) error {
	rank := 0

	for i, paragraph := range paragraphs {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.logger.Info("processing paragraph", "index", i+1, "total", len(paragraphs), "rank", rank)

		simplified, err := p.simplifyParagraph(ctx, paragraph)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("paragraph simplification failed, skipping paragraph",
				"paragraph", i, "err", err)
			continue
		}

		sentences := p.splitter.Split(simplified)
		if len(sentences) == 0 {
			p.logger.Debug("paragraph yielded no sentences", "paragraph", i)
			continue
		}

		for j, text := range sentences {
			seg := &segment.Segment{
				Rank:                rank,
				ParagraphIndex:      i,
				SentenceIndex:       j,
				Sentence:            text,
				OriginalParagraph:   paragraph,
				SimplifiedParagraph: simplified,
			}

			if err := p.resolveAudio(ctx, seg); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error("dropping sentence, audio unresolved",
					"paragraph", i, "sentence", j, "err", err)
				continue
			}

			if err := p.buffer.Put(ctx, seg); err != nil {
				if errors.Is(err, transit.ErrClosed) {
					p.logger.Debug("transit buffer closed, stopping production")
					return nil
				}
				return err
			}

			p.synthesizedChars.Add(int64(len(text)))
			rank++
		}
	}

	p.logger.Info("document production complete", "segments", rank)
	return nil
}

// simplifyParagraph returns the speech-friendly version of a paragraph,
// from cache when possible. Cache failures are warnings; the pipeline
// falls back to a live call rather than failing the paragraph.
func (p *Producer) simplifyParagraph(ctx context.Context, paragraph string) (string, error) {
	key := cache.ParagraphPrefix + hashText(paragraph)

	cached, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn("simplification cache read failed, computing live", "err", err)
	}
	if ok {
		return cached, nil
	}

	result, err := p.simplify.Simplify(ctx, paragraph)
	if err != nil {
		return "", err
	}
	p.promptTokens.Add(result.PromptTokens)
	p.completionTokens.Add(result.CompletionTokens)

	if err := p.store.Set(ctx, key, result.Text, p.config.CacheTTL); err != nil {
		p.logger.Warn("simplification cache write failed", "err", err)
	}

	return result.Text, nil
}

// resolveAudio attaches an audio reference to seg, reusing cached work
// when the segment's content hash is known.
func (p *Producer) resolveAudio(ctx context.Context, seg *segment.Segment) error {
	key := seg.Key()
	cacheKey := cache.SegmentPrefix + key

	cached, ok, err := p.store.Get(ctx, cacheKey)
	if err != nil {
		p.logger.Warn("audio cache read failed, synthesizing live", "err", err)
	}
	if ok {
		if prior, err := segment.Decode(cached); err == nil && prior.Resolved() && p.blobs.Has(key) {
			seg.AudioRef = prior.AudioRef
			return nil
		}
		// Stale entry: audio bytes gone or value unreadable.
		p.logger.Debug("audio cache entry stale, re-synthesizing", "rank", seg.Rank)
	}

	audio, err := p.synthesizeWithRetry(ctx, seg.Sentence)
	if err != nil {
		return err
	}

	path, err := p.blobs.Put(key, audio)
	if err != nil {
		return fmt.Errorf("persist audio for rank %d: %w", seg.Rank, err)
	}
	seg.AudioRef = path

	encoded, err := seg.Encode()
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, cacheKey, encoded, p.config.CacheTTL); err != nil {
		p.logger.Warn("audio cache write failed", "err", err)
	}

	return nil
}

func (p *Producer) synthesizeWithRetry(ctx context.Context, text string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < p.config.SynthAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.config.RetryDelay):
			}
			p.logger.Debug("retrying synthesis", "attempt", attempt+1)
		}

		audio, err := p.synth.Synthesize(ctx, text)
		if err == nil {
			return audio, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
