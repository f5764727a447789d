package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dgnsrekt/papervoice/internal/blob"
	"github.com/dgnsrekt/papervoice/internal/player"
	"github.com/dgnsrekt/papervoice/internal/segment"
	"github.com/dgnsrekt/papervoice/internal/transit"
)

type fixture struct {
	buffer *transit.Buffer
	blobs  *blob.Store
	device *player.MockDevice
	sched  *Scheduler
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	blobs, err := blob.NewStore(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	f := &fixture{
		buffer: transit.NewBuffer(capacity),
		blobs:  blobs,
		device: player.NewMockDevice(),
	}
	f.device.PlayDuration = 10 * time.Millisecond

	config := DefaultConfig()
	config.GetTimeout = 50 * time.Millisecond
	config.DevicePoll = 2 * time.Millisecond
	f.sched = New(f.buffer, f.blobs, f.device, nil, config)
	return f
}

// makeSegment builds a segment with stored audio whose payload names
// the rank, so playback order is visible in device.Played().
func (f *fixture) makeSegment(t *testing.T, rank int) *segment.Segment {
	t.Helper()

	seg := &segment.Segment{
		Rank:                rank,
		ParagraphIndex:      0,
		SentenceIndex:       rank,
		Sentence:            fmt.Sprintf("Sentence %d.", rank),
		OriginalParagraph:   "original",
		SimplifiedParagraph: "simplified",
	}
	path, err := f.blobs.Put(seg.Key(), []byte(fmt.Sprintf("audio-%d", rank)))
	if err != nil {
		t.Fatalf("blob put: %v", err)
	}
	seg.AudioRef = path
	return seg
}

// produceRanks returns a ProduceFunc feeding segments for the given
// ranks into the transit buffer, in the given order.
func (f *fixture) produceRanks(t *testing.T, ranks ...int) ProduceFunc {
	t.Helper()

	segs := make([]*segment.Segment, 0, len(ranks))
	for _, r := range ranks {
		segs = append(segs, f.makeSegment(t, r))
	}
	return func(ctx context.Context) error {
		for _, seg := range segs {
			if err := f.buffer.Put(ctx, seg); err != nil {
				if err == transit.ErrClosed {
					return nil
				}
				return err
			}
		}
		return nil
	}
}

func runScheduler(t *testing.T, f *fixture, produce ProduceFunc) error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- f.sched.Run(context.Background(), produce) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not finish")
		return nil
	}
}

func assertPlayedOrder(t *testing.T, f *fixture, ranks ...int) {
	t.Helper()

	played := f.device.Played()
	if len(played) != len(ranks) {
		t.Fatalf("played %d segments, want %d", len(played), len(ranks))
	}
	for i, r := range ranks {
		want := fmt.Sprintf("audio-%d", r)
		if string(played[i]) != want {
			t.Errorf("position %d: played %q, want %q", i, played[i], want)
		}
	}
}

func TestSchedulerPlaysInRankOrder(t *testing.T) {
	f := newFixture(t, 3)

	if err := runScheduler(t, f, f.produceRanks(t, 0, 1, 2, 3, 4)); err != nil {
		t.Fatalf("run: %v", err)
	}
	assertPlayedOrder(t, f, 0, 1, 2, 3, 4)

	snap := f.sched.Snapshot()
	if snap.State != StateStopped {
		t.Errorf("state = %v, want stopped", snap.State)
	}
	if snap.PlayedSegments != 5 {
		t.Errorf("played segments = %d, want 5", snap.PlayedSegments)
	}
}

func TestSchedulerReordersOutOfOrderArrival(t *testing.T) {
	f := newFixture(t, 5)

	if err := runScheduler(t, f, f.produceRanks(t, 2, 0, 1, 3)); err != nil {
		t.Fatalf("run: %v", err)
	}
	assertPlayedOrder(t, f, 0, 1, 2, 3)
}

func TestSchedulerSkipsUnfillableGap(t *testing.T) {
	f := newFixture(t, 5)

	// Rank 1 never arrives. Playback must not stall on it.
	if err := runScheduler(t, f, f.produceRanks(t, 0, 2, 3)); err != nil {
		t.Fatalf("run: %v", err)
	}
	assertPlayedOrder(t, f, 0, 2, 3)
}

func TestSchedulerPauseAndResume(t *testing.T) {
	f := newFixture(t, 3)
	f.device.PlayDuration = 60 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- f.sched.Run(context.Background(), f.produceRanks(t, 0, 1)) }()

	waitFor(t, func() bool { return f.device.State() == player.StatePlaying })

	f.sched.Pause()
	if got := f.sched.Snapshot().State; got != StatePaused {
		t.Errorf("state after pause = %v, want paused", got)
	}
	if f.device.State() != player.StatePaused {
		t.Errorf("device state = %v, want paused", f.device.State())
	}

	// Paused playback must not advance to the next segment.
	time.Sleep(100 * time.Millisecond)
	if plays, _, _, _, _ := f.device.Counts(); plays != 1 {
		t.Errorf("play count while paused = %d, want 1", plays)
	}

	f.sched.Resume()
	if got := f.sched.Snapshot().State; got != StateRunning {
		t.Errorf("state after resume = %v, want running", got)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not finish after resume")
	}
	assertPlayedOrder(t, f, 0, 1)

	if _, pauses, resumes, _, _ := f.device.Counts(); pauses != 1 || resumes != 1 {
		t.Errorf("pause/resume counts = %d/%d, want 1/1", pauses, resumes)
	}
}

func TestSchedulerPauseResumeIdempotent(t *testing.T) {
	f := newFixture(t, 3)

	// Before any run these must be safe no-ops.
	f.sched.Resume()
	f.sched.Pause()
	f.sched.Pause()
	f.sched.Resume()
	f.sched.Resume()

	if err := runScheduler(t, f, f.produceRanks(t, 0)); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSchedulerStopUnblocksFullBuffer(t *testing.T) {
	f := newFixture(t, 1)
	f.device.PlayDuration = time.Hour // first segment never completes

	done := make(chan error, 1)
	go func() {
		done <- f.sched.Run(context.Background(), f.produceRanks(t, 0, 1, 2, 3, 4))
	}()

	waitFor(t, func() bool { return f.device.State() == player.StatePlaying })

	start := time.Now()
	f.sched.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("teardown took %v", elapsed)
	}

	if f.device.State() != player.StateClosed {
		t.Errorf("device state after stop = %v, want closed", f.device.State())
	}
	if snap := f.sched.Snapshot(); snap.State != StateStopped {
		t.Errorf("state = %v, want stopped", snap.State)
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	f := newFixture(t, 2)

	if err := runScheduler(t, f, f.produceRanks(t, 0)); err != nil {
		t.Fatalf("run: %v", err)
	}
	f.sched.Stop()
	f.sched.Stop()

	if _, _, _, _, closes := f.device.Counts(); closes != 1 {
		t.Errorf("device closed %d times, want 1", closes)
	}
}

func TestSchedulerAbandonsSegmentOnDeviceError(t *testing.T) {
	f := newFixture(t, 3)
	f.device.PlayErr = player.ErrEmptyAudio

	if err := runScheduler(t, f, f.produceRanks(t, 0, 1, 2)); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Rank 0 is abandoned; the rest still play in order.
	assertPlayedOrder(t, f, 1, 2)
}

func TestSchedulerAbandonsSegmentOnMissingAudio(t *testing.T) {
	f := newFixture(t, 3)

	seg0 := f.makeSegment(t, 0)
	seg1 := f.makeSegment(t, 1)
	if err := f.blobs.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	// Restore only rank 1's audio.
	if _, err := f.blobs.Put(seg1.Key(), []byte("audio-1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	produce := func(ctx context.Context) error {
		for _, seg := range []*segment.Segment{seg0, seg1} {
			if err := f.buffer.Put(ctx, seg); err != nil {
				return err
			}
		}
		return nil
	}
	if err := runScheduler(t, f, produce); err != nil {
		t.Fatalf("run: %v", err)
	}
	assertPlayedOrder(t, f, 1)
}

func TestSchedulerCancelledContext(t *testing.T) {
	f := newFixture(t, 1)
	f.device.PlayDuration = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx, f.produceRanks(t, 0, 1, 2)) }()

	waitFor(t, func() bool { return f.device.State() == player.StatePlaying })
	cancel()

	// Context cancellation alone interrupts the current segment; the
	// stop path in Run then releases everything.
	f.sched.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not exit after cancel")
	}
}

func TestSchedulerSnapshotBeforeAndDuringRun(t *testing.T) {
	f := newFixture(t, 3)

	snap := f.sched.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("initial state = %v, want idle", snap.State)
	}
	if snap.Rank != -1 {
		t.Errorf("initial rank = %d, want -1", snap.Rank)
	}
	if snap.Sentence != "" {
		t.Errorf("initial sentence = %q, want empty", snap.Sentence)
	}

	f.device.PlayDuration = 60 * time.Millisecond
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(context.Background(), f.produceRanks(t, 0)) }()

	waitFor(t, func() bool { return f.sched.Snapshot().Rank == 0 })
	snap = f.sched.Snapshot()
	if snap.Sentence != "Sentence 0." {
		t.Errorf("sentence = %q, want %q", snap.Sentence, "Sentence 0.")
	}
	if snap.SimplifiedParagraph != "simplified" {
		t.Errorf("simplified paragraph = %q", snap.SimplifiedParagraph)
	}
	if snap.ReceivedChars == 0 {
		t.Error("received chars not counted")
	}

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSchedulerStatusFeedRestartable(t *testing.T) {
	f := newFixture(t, 2)

	ctx1, cancel1 := context.WithCancel(context.Background())
	feed1 := f.sched.Status(ctx1, 5*time.Millisecond)
	snap := <-feed1
	if snap.State != StateIdle {
		t.Errorf("feed state = %v, want idle", snap.State)
	}
	cancel1()
	for range feed1 {
	}

	if err := runScheduler(t, f, f.produceRanks(t, 0)); err != nil {
		t.Fatalf("run: %v", err)
	}

	// A second subscription after the run still works.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	feed2 := f.sched.Status(ctx2, 5*time.Millisecond)
	snap = <-feed2
	if snap.State != StateStopped {
		t.Errorf("feed state after run = %v, want stopped", snap.State)
	}
	if snap.PlayedSegments != 1 {
		t.Errorf("played segments = %d, want 1", snap.PlayedSegments)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
