package player

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoDevice implements Device on ebitengine/oto. The oto context is
// created once per device; streams come and go per segment.
type OtoDevice struct {
	context *oto.Context
	config  Config

	mu     sync.Mutex
	player *oto.Player

	// Keeps the audio bytes alive while oto reads them. Dropping this
	// reference mid-playback causes static.
	activeData []byte
	duration   time.Duration
	startTime  time.Time
	pausedAt   time.Duration
	totalPause time.Duration

	state atomic.Int32
}

// NewOtoDevice acquires the audio output device. Blocks until the
// platform audio context is ready.
func NewOtoDevice(config Config) (*OtoDevice, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	<-ready

	d := &OtoDevice{context: ctx, config: config}
	d.state.Store(int32(StateStopped))
	return d, nil
}

// Play starts playback of raw PCM bytes, stopping any current stream.
func (d *OtoDevice) Play(audio []byte) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}
	if State(d.state.Load()) == StateClosed {
		return ErrDeviceClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()

	// Own the data for the lifetime of the stream.
	data := make([]byte, len(audio))
	copy(data, audio)

	p := d.context.NewPlayer(bytes.NewReader(data))
	p.Play()

	d.player = p
	d.activeData = data
	d.duration = d.config.Duration(data)
	d.startTime = time.Now()
	d.pausedAt = 0
	d.totalPause = 0
	d.state.Store(int32(StatePlaying))

	return nil
}

// Pause suspends the device, keeping the stream position.
func (d *OtoDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) != StatePlaying {
		return nil
	}
	if d.player != nil {
		d.player.Pause()
	}
	d.pausedAt = d.positionLocked()
	d.state.Store(int32(StatePaused))
	return nil
}

// Resume continues from the paused position without restarting.
func (d *OtoDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) != StatePaused {
		return nil
	}
	if d.player != nil {
		d.player.Play()
	}
	d.totalPause += time.Since(d.startTime.Add(d.pausedAt)) - d.totalPause
	d.state.Store(int32(StatePlaying))
	return nil
}

// Stop halts playback and discards the current stream.
func (d *OtoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) == StateClosed {
		return nil
	}
	d.stopLocked()
	return nil
}

// IsPlaying reports whether audio is actively playing. It also detects
// natural end-of-stream, transitioning the device to stopped.
func (d *OtoDevice) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) != StatePlaying {
		return false
	}
	if d.player != nil && !d.player.IsPlaying() {
		d.stopLocked()
		return false
	}
	return true
}

// Close stops playback and releases the device. Idempotent.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) == StateClosed {
		return nil
	}
	d.stopLocked()

	// oto v3 contexts have no Close; dropping the reference releases it.
	d.context = nil
	d.state.Store(int32(StateClosed))
	return nil
}

// stopLocked halts and clears the current stream. Caller holds d.mu.
func (d *OtoDevice) stopLocked() {
	if d.player != nil {
		d.player.Pause()
		d.player.Close()
		d.player = nil
	}
	d.activeData = nil
	d.pausedAt = 0
	d.totalPause = 0
	if State(d.state.Load()) != StateClosed {
		d.state.Store(int32(StateStopped))
	}
}

// positionLocked computes the playback position. Caller holds d.mu.
func (d *OtoDevice) positionLocked() time.Duration {
	switch State(d.state.Load()) {
	case StatePlaying:
		elapsed := time.Since(d.startTime) - d.totalPause
		if elapsed > d.duration {
			elapsed = d.duration
		}
		return elapsed
	case StatePaused:
		return d.pausedAt
	default:
		return 0
	}
}
