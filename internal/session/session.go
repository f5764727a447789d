// Package session is the top-level control surface. A session owns the
// long-lived dependencies (caches, engines) and manages one playback
// run at a time; starting a new document stops the previous run first.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/papervoice/internal/blob"
	"github.com/dgnsrekt/papervoice/internal/cache"
	"github.com/dgnsrekt/papervoice/internal/document"
	"github.com/dgnsrekt/papervoice/internal/engine"
	"github.com/dgnsrekt/papervoice/internal/player"
	"github.com/dgnsrekt/papervoice/internal/producer"
	"github.com/dgnsrekt/papervoice/internal/scheduler"
	"github.com/dgnsrekt/papervoice/internal/transit"
)

// ErrNoRun is returned by Wait when no run has been started.
var ErrNoRun = errors.New("session: no active run")

// DeviceFactory creates a fresh audio device for each run. The
// scheduler releases the device when the run ends.
type DeviceFactory func() (player.Device, error)

// Deps are the injected collaborators a session builds runs from.
type Deps struct {
	Store       cache.Store
	Blobs       *blob.Store
	Simplifier  engine.Simplifier
	Synthesizer engine.Synthesizer
	NewDevice   DeviceFactory

	BufferCapacity int
	Producer       producer.Config
	Scheduler      scheduler.Config
}

type run struct {
	id     string
	sched  *scheduler.Scheduler
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (r *run) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *run) getErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Session manages playback runs. All methods are safe for concurrent
// use and safe to call when no run is active.
type Session struct {
	deps   Deps
	logger *log.Logger

	mu      sync.Mutex
	current *run
}

// New creates a session from deps.
func New(deps Deps) *Session {
	return &Session{
		deps:   deps,
		logger: log.WithPrefix("session"),
	}
}

// Start begins playback of source. Any run already in progress is
// stopped and fully torn down before the new one launches. It returns
// the new run's identifier once the run is underway; the run itself
// proceeds in the background until the document completes or Stop is
// called.
func (s *Session) Start(ctx context.Context, source document.Source) (string, error) {
	paragraphs, err := source.Paragraphs(ctx)
	if err != nil {
		return "", err
	}

	s.Stop()

	device, err := s.deps.NewDevice()
	if err != nil {
		return "", err
	}

	buffer := transit.NewBuffer(s.deps.BufferCapacity)
	prod := producer.New(s.deps.Store, s.deps.Blobs, s.deps.Simplifier,
		s.deps.Synthesizer, buffer, s.deps.Producer)
	sched := scheduler.New(buffer, s.deps.Blobs, device, prod.Usage, s.deps.Scheduler)

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     uuid.NewString(),
		sched:  sched,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.current = r
	s.mu.Unlock()

	s.logger.Info("starting run", "id", r.id, "document", source.Name(),
		"paragraphs", len(paragraphs))

	go func() {
		defer close(r.done)
		defer cancel()
		r.setErr(sched.Run(runCtx, func(ctx context.Context) error {
			return prod.Run(ctx, paragraphs)
		}))
		s.logger.Info("run finished", "id", r.id)
	}()

	return r.id, nil
}

// Pause suspends the active run. A no-op when nothing is running.
func (s *Session) Pause() {
	if r := s.active(); r != nil {
		r.sched.Pause()
	}
}

// Resume continues a paused run. A no-op when nothing is running.
func (s *Session) Resume() {
	if r := s.active(); r != nil {
		r.sched.Resume()
	}
}

// Stop tears down the active run and waits for it to finish. A no-op
// when nothing is running.
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.current
	s.current = nil
	s.mu.Unlock()

	if r == nil {
		return
	}

	r.cancel()
	r.sched.Stop()
	<-r.done
	s.logger.Info("run stopped", "id", r.id)
}

// Wait blocks until the active run completes and returns its error.
// It returns ErrNoRun when no run has been started.
func (s *Session) Wait(ctx context.Context) error {
	r := s.active()
	if r == nil {
		return ErrNoRun
	}
	select {
	case <-r.done:
		return r.getErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the active run's playback state, or a zero snapshot
// with rank -1 when nothing is running.
func (s *Session) Snapshot() scheduler.Snapshot {
	if r := s.active(); r != nil {
		return r.sched.Snapshot()
	}
	return scheduler.Snapshot{State: scheduler.StateIdle, Rank: -1}
}

// Status returns a snapshot feed for the active run. With no active
// run the feed reports idle snapshots; it ends when ctx is cancelled.
// The feed may be abandoned and requested again at any time.
func (s *Session) Status(ctx context.Context, interval time.Duration) <-chan scheduler.Snapshot {
	if r := s.active(); r != nil {
		return r.sched.Status(ctx, interval)
	}

	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	out := make(chan scheduler.Snapshot)
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

// Close stops any active run and releases the session's stores.
func (s *Session) Close() error {
	s.Stop()

	var errs []error
	if s.deps.Store != nil {
		if err := s.deps.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.deps.Blobs != nil {
		if err := s.deps.Blobs.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) active() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
