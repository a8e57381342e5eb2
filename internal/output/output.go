// Package output drives a Renderer in real time on an audio device.
package output

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Kinds of output device accepted by Open.
const (
	KindStream    = "stream"
	KindPortAudio = "portaudio"
	KindOto       = "oto"
	KindNone      = "none"
)

// ErrUnavailable is returned when no realtime audio output can be opened.
var ErrUnavailable = errors.New("output: audio device unavailable")

// Renderer produces audio on demand. dst holds one slice per channel, all of
// the same length, and must be completely filled.
type Renderer interface {
	Read(dst [][]float32)
}

// Device pulls audio from a Renderer on its own clock.
type Device interface {
	// Start begins pulling from r. A device can be started once.
	Start(r Renderer) error
	// Suspend pauses the clock; Resume continues it.
	Suspend() error
	Resume() error
	Close() error
	Name() string
}

// Options configure a device.
type Options struct {
	SampleRate   int
	Channels     int
	BufferFrames int // device callback size; 0 lets the device choose
}

func (o Options) validate() error {
	if o.SampleRate <= 0 {
		return fmt.Errorf("output: sample rate must be > 0: %d", o.SampleRate)
	}
	if o.Channels < 1 || o.Channels > 2 {
		return fmt.Errorf("output: channels must be 1 or 2: %d", o.Channels)
	}
	if o.BufferFrames < 0 {
		return fmt.Errorf("output: buffer frames must be >= 0: %d", o.BufferFrames)
	}
	return nil
}

// Open creates a device of the given kind. KindNone always fails with
// ErrUnavailable.
func Open(kind string, opts Options, logger *zap.Logger) (Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	switch kind {
	case KindStream:
		return NewStream(opts, logger), nil
	case KindPortAudio:
		return NewPortAudio(opts, logger)
	case KindOto:
		return NewOto(opts, logger)
	case KindNone:
		return nil, fmt.Errorf("%w: output disabled", ErrUnavailable)
	}
	return nil, fmt.Errorf("output: unknown device kind %q", kind)
}

// planes resizes buf to channels slices of frames samples.
func planes(buf [][]float32, channels, frames int) [][]float32 {
	if len(buf) != channels {
		buf = make([][]float32, channels)
	}
	for i := range buf {
		if cap(buf[i]) < frames {
			buf[i] = make([]float32, frames)
		}
		buf[i] = buf[i][:frames]
	}
	return buf
}
