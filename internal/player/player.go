// Package player abstracts the audio output device. The production
// implementation plays raw PCM through oto; a mock device backs tests.
package player

import (
	"errors"
	"time"
)

// Common device errors
var (
	// ErrDeviceUnavailable indicates the audio device cannot be accessed.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrDeviceClosed is returned when operations are attempted on a
	// released device.
	ErrDeviceClosed = errors.New("audio device closed")

	// ErrEmptyAudio indicates Play was called with no data.
	ErrEmptyAudio = errors.New("audio data is empty")
)

// Device is the audio output contract the player loop depends on. A
// device is exclusively owned by one run and must be released exactly
// once via Close.
type Device interface {
	// Play starts playback of raw audio bytes and returns immediately.
	Play(audio []byte) error

	// Pause suspends playback; Resume continues from the same position.
	Pause() error
	Resume() error

	// Stop halts playback and discards the current stream.
	Stop() error

	// IsPlaying reports whether audio is actively playing (not paused,
	// not finished).
	IsPlaying() bool

	// Close stops playback and releases the device.
	Close() error
}

// State represents the device lifecycle.
type State int32

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config describes the PCM format the device accepts.
type Config struct {
	SampleRate int // samples per second
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // bits per sample, 16 only
}

// DefaultConfig matches the synthesis service's PCM output: signed
// 16-bit little endian, 24 kHz, mono.
func DefaultConfig() Config {
	return Config{
		SampleRate: 24000,
		Channels:   1,
		BitDepth:   16,
	}
}

// Validate checks the PCM format parameters.
func (c Config) Validate() error {
	switch c.SampleRate {
	case 16000, 22050, 24000, 44100, 48000:
	default:
		return errors.New("sample rate must be one of 16000, 22050, 24000, 44100, 48000")
	}
	if c.Channels != 1 && c.Channels != 2 {
		return errors.New("channels must be 1 (mono) or 2 (stereo)")
	}
	if c.BitDepth != 16 {
		return errors.New("bit depth must be 16")
	}
	return nil
}

// Duration returns how long the given PCM payload plays for.
func (c Config) Duration(data []byte) time.Duration {
	bytesPerSample := c.BitDepth / 8
	frames := len(data) / (c.Channels * bytesPerSample)
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
