package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/papervoice/internal/blob"
	"github.com/dgnsrekt/papervoice/internal/cache"
	"github.com/dgnsrekt/papervoice/internal/document"
	"github.com/dgnsrekt/papervoice/internal/engine"
	"github.com/dgnsrekt/papervoice/internal/player"
	"github.com/dgnsrekt/papervoice/internal/producer"
	"github.com/dgnsrekt/papervoice/internal/scheduler"
)

type fixture struct {
	session *Session

	mu           sync.Mutex
	devices      []*player.MockDevice
	playDuration time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	blobs, err := blob.NewStore(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	f := &fixture{playDuration: 5 * time.Millisecond}
	schedConfig := scheduler.DefaultConfig()
	schedConfig.GetTimeout = 50 * time.Millisecond
	schedConfig.DevicePoll = 2 * time.Millisecond

	f.session = New(Deps{
		Store:       cache.NewMemoryStore(),
		Blobs:       blobs,
		Simplifier:  engine.NewMockSimplifier(),
		Synthesizer: engine.NewMockSynthesizer(),
		NewDevice: func() (player.Device, error) {
			d := player.NewMockDevice()
			f.mu.Lock()
			d.PlayDuration = f.playDuration
			f.devices = append(f.devices, d)
			f.mu.Unlock()
			return d, nil
		},
		BufferCapacity: 3,
		Producer:       producer.DefaultConfig(),
		Scheduler:      schedConfig,
	})
	return f
}

func (f *fixture) setPlayDuration(d time.Duration) {
	f.mu.Lock()
	f.playDuration = d
	f.mu.Unlock()
}

func (f *fixture) device(i int) *player.MockDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[i]
}

func (f *fixture) deviceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

func wait(t *testing.T, f *fixture) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.session.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestSessionRunsDocumentToCompletion(t *testing.T) {
	f := newFixture(t)
	src := document.NewTextSource("test", "First paragraph.\n\nSecond paragraph.")

	id, err := f.session.Start(context.Background(), src)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id == "" {
		t.Error("empty run id")
	}
	wait(t, f)

	if played := f.device(0).Played(); len(played) != 2 {
		t.Errorf("played %d segments, want 2", len(played))
	}
	if snap := f.session.Snapshot(); snap.State != scheduler.StateStopped {
		t.Errorf("state = %v, want stopped", snap.State)
	}
}

func TestSessionStartStopsPreviousRun(t *testing.T) {
	f := newFixture(t)

	f.setPlayDuration(time.Hour)
	first := document.NewTextSource("first", "Long first document.")
	if _, err := f.session.Start(context.Background(), first); err != nil {
		t.Fatalf("start first: %v", err)
	}

	// Starting the second document must tear the first run down
	// before the new one begins.
	f.setPlayDuration(5 * time.Millisecond)
	second := document.NewTextSource("second", "Short second document.")
	id2, err := f.session.Start(context.Background(), second)
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if f.deviceCount() != 2 {
		t.Fatalf("device count = %d, want 2", f.deviceCount())
	}
	if f.device(0).State() != player.StateClosed {
		t.Errorf("first device state = %v, want closed", f.device(0).State())
	}

	wait(t, f)
	if id2 == "" {
		t.Error("empty second run id")
	}
	if played := f.device(1).Played(); len(played) != 1 {
		t.Errorf("second run played %d segments, want 1", len(played))
	}
}

func TestSessionRunIDsUnique(t *testing.T) {
	f := newFixture(t)
	src := document.NewTextSource("test", "Hello there.")

	id1, err := f.session.Start(context.Background(), src)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	wait(t, f)

	id2, err := f.session.Start(context.Background(), src)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	wait(t, f)

	if id1 == id2 {
		t.Errorf("run ids not unique: %q", id1)
	}
}

func TestSessionControlsSafeWithoutRun(t *testing.T) {
	f := newFixture(t)

	f.session.Pause()
	f.session.Resume()
	f.session.Stop()

	snap := f.session.Snapshot()
	if snap.State != scheduler.StateIdle {
		t.Errorf("state = %v, want idle", snap.State)
	}
	if snap.Rank != -1 {
		t.Errorf("rank = %d, want -1", snap.Rank)
	}

	if err := f.session.Wait(context.Background()); err != ErrNoRun {
		t.Errorf("wait = %v, want ErrNoRun", err)
	}
}

func TestSessionStopTearsDownActiveRun(t *testing.T) {
	f := newFixture(t)
	f.setPlayDuration(time.Hour)
	src := document.NewTextSource("test", "A document that keeps playing.")

	if _, err := f.session.Start(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}

	start := time.Now()
	f.session.Stop()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stop took %v", elapsed)
	}

	if f.device(0).State() != player.StateClosed {
		t.Errorf("device state = %v, want closed", f.device(0).State())
	}
	if err := f.session.Wait(context.Background()); err != ErrNoRun {
		t.Errorf("wait after stop = %v, want ErrNoRun", err)
	}
}

func TestSessionPauseResumeDelegates(t *testing.T) {
	f := newFixture(t)
	f.setPlayDuration(200 * time.Millisecond)
	src := document.NewTextSource("test", "Something to pause.")

	if _, err := f.session.Start(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}
	dev := f.device(0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && dev.State() != player.StatePlaying {
		time.Sleep(2 * time.Millisecond)
	}

	f.session.Pause()
	if snap := f.session.Snapshot(); snap.State != scheduler.StatePaused {
		t.Errorf("state = %v, want paused", snap.State)
	}
	f.session.Resume()

	wait(t, f)
}

func TestSessionStatusFeedWithoutRun(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	feed := f.session.Status(ctx, 5*time.Millisecond)
	snap := <-feed
	if snap.State != scheduler.StateIdle {
		t.Errorf("feed state = %v, want idle", snap.State)
	}
	cancel()
	for range feed {
	}
}

func TestSessionClose(t *testing.T) {
	f := newFixture(t)
	src := document.NewTextSource("test", "Closing time.")

	if _, err := f.session.Start(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The cache store is released; further use reports closure.
	if err := f.session.deps.Store.Set(context.Background(), "k", "v", 0); err == nil {
		t.Error("expected error using closed store")
	}
}
