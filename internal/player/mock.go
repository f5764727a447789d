package player

import (
	"sync"
	"sync/atomic"
	"time"
)

// MockDevice implements Device for testing. It simulates playback in
// wall-clock time with a configurable duration per payload and supports
// scripted failures.
type MockDevice struct {
	mu sync.Mutex

	// PlayDuration is how long every payload "plays" for. Keep it
	// short in tests; pause time extends it.
	PlayDuration time.Duration

	// PlayErr, when set, is returned by the next Play call.
	PlayErr error

	state      atomic.Int32
	startTime  time.Time
	pausedAt   time.Time
	totalPause time.Duration

	// Call counters
	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
	closeCount  atomic.Int64

	played [][]byte
}

// NewMockDevice creates a mock device with a 20ms simulated duration.
func NewMockDevice() *MockDevice {
	d := &MockDevice{PlayDuration: 20 * time.Millisecond}
	d.state.Store(int32(StateStopped))
	return d
}

// Play implements Device.
func (d *MockDevice) Play(audio []byte) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}
	if State(d.state.Load()) == StateClosed {
		return ErrDeviceClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.PlayErr != nil {
		err := d.PlayErr
		d.PlayErr = nil
		return err
	}

	d.playCount.Add(1)
	d.played = append(d.played, audio)
	d.startTime = time.Now()
	d.totalPause = 0
	d.state.Store(int32(StatePlaying))
	return nil
}

// Pause implements Device.
func (d *MockDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) != StatePlaying {
		return nil
	}
	d.pauseCount.Add(1)
	d.pausedAt = time.Now()
	d.state.Store(int32(StatePaused))
	return nil
}

// Resume implements Device.
func (d *MockDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) != StatePaused {
		return nil
	}
	d.resumeCount.Add(1)
	d.totalPause += time.Since(d.pausedAt)
	d.state.Store(int32(StatePlaying))
	return nil
}

// Stop implements Device.
func (d *MockDevice) Stop() error {
	if State(d.state.Load()) == StateClosed {
		return nil
	}
	d.stopCount.Add(1)
	d.state.Store(int32(StateStopped))
	return nil
}

// IsPlaying implements Device: true until the simulated duration
// (extended by pauses) has elapsed.
func (d *MockDevice) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) != StatePlaying {
		return false
	}
	if time.Since(d.startTime)-d.totalPause >= d.PlayDuration {
		d.state.Store(int32(StateStopped))
		return false
	}
	return true
}

// Close implements Device.
func (d *MockDevice) Close() error {
	d.closeCount.Add(1)
	d.state.Store(int32(StateClosed))
	return nil
}

// State returns the current device state.
func (d *MockDevice) State() State {
	return State(d.state.Load())
}

// Counts returns the play/pause/resume/stop/close call counts.
func (d *MockDevice) Counts() (play, pause, resume, stop, closed int64) {
	return d.playCount.Load(), d.pauseCount.Load(), d.resumeCount.Load(),
		d.stopCount.Load(), d.closeCount.Load()
}

// Played returns the payloads passed to Play, in order.
func (d *MockDevice) Played() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.played))
	copy(out, d.played)
	return out
}
