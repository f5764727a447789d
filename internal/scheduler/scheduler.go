// Package scheduler reassembles out-of-order segments into strict rank
// order and plays them, exposing pause/resume/stop control and a status
// feed. It owns the audio device for the duration of a run.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/papervoice/internal/blob"
	"github.com/dgnsrekt/papervoice/internal/player"
	"github.com/dgnsrekt/papervoice/internal/producer"
	"github.com/dgnsrekt/papervoice/internal/segment"
	"github.com/dgnsrekt/papervoice/internal/transit"
)

// State is the scheduler lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds scheduler tuning knobs.
type Config struct {
	// GetTimeout bounds each transit buffer wait so the collector can
	// observe the stop flag. Must stay at or under a second.
	GetTimeout time.Duration

	// DevicePoll is the interval at which the player loop checks the
	// device for completion of the current segment.
	DevicePoll time.Duration
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		GetTimeout: time.Second,
		DevicePoll: 100 * time.Millisecond,
	}
}

// ProduceFunc runs the production side of the pipeline. It returns when
// the document is exhausted or the context is cancelled.
type ProduceFunc func(ctx context.Context) error

// UsageFunc reports accumulated cost counters for the status feed.
type UsageFunc func() producer.Usage

// Snapshot is one observation of playback state for external observers.
// Rank is -1 before any segment has played.
type Snapshot struct {
	State               State
	Rank                int
	Sentence            string
	OriginalParagraph   string
	SimplifiedParagraph string

	// Cumulative counters for cost estimation
	ReceivedChars    int64
	PlayedSegments   int64
	PromptTokens     int64
	CompletionTokens int64
}

// Scheduler coordinates the producer, the collector loop and the player
// loop. All mutable state is guarded by mu; cond wakes the player on
// segment insertion and on pause/resume/stop transitions, so the player
// never spins waiting for work.
type Scheduler struct {
	buffer *transit.Buffer
	blobs  *blob.Store
	device player.Device
	config Config
	usage  UsageFunc
	logger *log.Logger

	mu   sync.Mutex
	cond *sync.Cond

	holding map[int]*segment.Segment
	next    int

	state        State
	paused       bool
	stopped      bool
	producerDone bool
	collectDone  bool

	current        *segment.Segment
	receivedChars  int64
	playedSegments int64

	stopOnce sync.Once
}

// New creates a scheduler reading from buffer and playing on device.
// usage may be nil when no cost counters are available.
func New(buffer *transit.Buffer, blobs *blob.Store, device player.Device, usage UsageFunc, config Config) *Scheduler {
	if config.GetTimeout <= 0 || config.GetTimeout > time.Second {
		config.GetTimeout = time.Second
	}
	if config.DevicePoll <= 0 {
		config.DevicePoll = 100 * time.Millisecond
	}

	s := &Scheduler{
		buffer:  buffer,
		blobs:   blobs,
		device:  device,
		config:  config,
		usage:   usage,
		logger:  log.WithPrefix("scheduler"),
		holding: make(map[int]*segment.Segment),
		state:   StateIdle,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Run starts the producer, the collector and the player and blocks
// until all three finish. Stop always executes on the way out, whatever
// the exit path, so the audio device and buffers are always released.
func (s *Scheduler) Run(ctx context.Context, produce ProduceFunc) error {
	defer s.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		err := produce(ctx)
		s.mu.Lock()
		s.producerDone = true
		s.cond.Broadcast()
		s.mu.Unlock()
		errCh <- err
	}()
	go func() {
		defer wg.Done()
		s.collect()
		errCh <- nil
	}()
	go func() {
		defer wg.Done()
		errCh <- s.play(ctx)
	}()

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// collect drains the transit buffer into the holding area, tolerating
// out-of-order arrival. Each wait is bounded so the stop flag is
// observed within GetTimeout.
func (s *Scheduler) collect() {
	defer func() {
		s.mu.Lock()
		s.collectDone = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}()

	for {
		seg, err := s.buffer.Get(s.config.GetTimeout)
		switch err {
		case nil:
			s.mu.Lock()
			s.holding[seg.Rank] = seg
			s.receivedChars += int64(len(seg.Sentence))
			s.cond.Broadcast()
			s.mu.Unlock()
			s.logger.Debug("received segment", "rank", seg.Rank)

		case transit.ErrClosed:
			return

		case transit.ErrTimeout:
			s.mu.Lock()
			done := s.stopped || (s.producerDone && s.buffer.Len() == 0)
			s.mu.Unlock()
			if done {
				return
			}
		}
	}
}

// play takes segments from the holding area in strict rank order. It
// waits on the condition variable while paused or while the next rank
// has not arrived; insertion and control transitions wake it.
func (s *Scheduler) play(ctx context.Context) error {
	for {
		s.mu.Lock()
		for !s.stopped && (s.paused || s.holding[s.next] == nil) {
			if s.drained() {
				s.mu.Unlock()
				s.logger.Info("playback complete", "segments", s.playedSegments)
				return nil
			}
			s.maybeSkipGap()
			if s.holding[s.next] != nil && !s.paused {
				break
			}
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return nil
		}
		seg := s.holding[s.next]
		s.mu.Unlock()

		s.playSegment(ctx, seg)

		s.mu.Lock()
		delete(s.holding, seg.Rank)
		s.next = seg.Rank + 1
		s.mu.Unlock()
	}
}

// drained reports completion: nothing more will arrive and nothing is
// held. Caller holds s.mu.
func (s *Scheduler) drained() bool {
	return s.producerDone && s.collectDone && len(s.holding) == 0 && !s.paused
}

// maybeSkipGap advances the cursor past a rank that can no longer
// arrive. The producer keeps ranks dense, so this only fires if an
// upstream bug or partial run left a hole; waiting forever would stall
// playback. Caller holds s.mu.
func (s *Scheduler) maybeSkipGap() {
	if !s.producerDone || !s.collectDone || len(s.holding) == 0 || s.holding[s.next] != nil {
		return
	}
	min := -1
	for rank := range s.holding {
		if min == -1 || rank < min {
			min = rank
		}
	}
	if min > s.next {
		s.logger.Warn("skipping rank gap", "from", s.next, "to", min)
		s.next = min
	}
}

// playSegment plays one segment to completion, honoring pause and stop.
// Device and blob failures abandon the segment; the loop advances.
func (s *Scheduler) playSegment(ctx context.Context, seg *segment.Segment) {
	audio, err := s.blobs.Get(seg.Key())
	if err != nil {
		s.logger.Error("abandoning segment, audio unreadable", "rank", seg.Rank, "err", err)
		return
	}

	s.logger.Info("playing segment", "rank", seg.Rank)
	if err := s.device.Play(audio); err != nil {
		s.logger.Error("abandoning segment, device failed", "rank", seg.Rank, "err", err)
		return
	}

	s.mu.Lock()
	s.current = seg
	s.playedSegments++
	s.mu.Unlock()

	// Device-busy wait: bounded polls, re-checking stop each cycle.
	for {
		s.mu.Lock()
		stopped, paused := s.stopped, s.paused
		s.mu.Unlock()

		if stopped || ctx.Err() != nil {
			return
		}
		if !paused && !s.device.IsPlaying() {
			return
		}
		time.Sleep(s.config.DevicePoll)
	}
}

// Pause suspends playback. Idempotent; a no-op when already paused or
// stopped.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.stopped {
		return
	}
	s.paused = true
	s.state = StatePaused
	s.cond.Broadcast()

	if s.device.IsPlaying() {
		if err := s.device.Pause(); err != nil {
			s.logger.Error("device pause failed", "err", err)
		}
	}
	if s.current != nil {
		s.logger.Info("paused", "rank", s.current.Rank)
	}
}

// Resume continues playback from the paused position. Idempotent.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused || s.stopped {
		return
	}
	s.paused = false
	s.state = StateRunning
	s.cond.Broadcast()

	if err := s.device.Resume(); err != nil {
		s.logger.Error("device resume failed", "err", err)
	}
	if s.current != nil {
		s.logger.Info("resumed", "rank", s.current.Rank)
	}
}

// Stop tears the run down: set the stop flag, halt the device, wake all
// loops, close and drain the transit buffer, clear the holding area and
// release the device. Idempotent; safe from any state, including while
// loops are blocked on a full or empty buffer.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.paused = false
		s.state = StateStopped
		s.current = nil
		s.cond.Broadcast()
		s.mu.Unlock()

		if err := s.device.Stop(); err != nil {
			s.logger.Error("device stop failed", "err", err)
		}

		s.buffer.Close()
		if dropped := s.buffer.Drain(); dropped > 0 {
			s.logger.Debug("drained transit buffer", "segments", dropped)
		}

		s.mu.Lock()
		held := len(s.holding)
		s.holding = make(map[int]*segment.Segment)
		s.mu.Unlock()
		if held > 0 {
			s.logger.Debug("cleared holding area", "segments", held)
		}

		if err := s.device.Close(); err != nil {
			s.logger.Error("device release failed", "err", err)
		}
		s.logger.Info("stopped")
	})
}

// Snapshot returns the current playback state. Before any segment has
// played, Rank is -1 and the text fields are empty.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:          s.state,
		Rank:           -1,
		ReceivedChars:  s.receivedChars,
		PlayedSegments: s.playedSegments,
	}
	if s.current != nil {
		snap.Rank = s.current.Rank
		snap.Sentence = s.current.Sentence
		snap.OriginalParagraph = s.current.OriginalParagraph
		snap.SimplifiedParagraph = s.current.SimplifiedParagraph
	}
	if s.usage != nil {
		u := s.usage()
		snap.PromptTokens = u.PromptTokens
		snap.CompletionTokens = u.CompletionTokens
	}
	return snap
}

// Status returns a channel of snapshots emitted every interval until
// ctx is cancelled. The feed is restartable: cancel it and call Status
// again at any time, before or after segments exist.
func (s *Scheduler) Status(ctx context.Context, interval time.Duration) <-chan Snapshot {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- s.Snapshot():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
