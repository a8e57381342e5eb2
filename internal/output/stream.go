package output

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/audio"
)

// Stream is a device paced by a 20ms ticker instead of sound hardware. Each
// tick renders one frame and publishes it as interleaved int16 PCM on
// Frames, for fan-out to network listeners.
type Stream struct {
	opts      Options
	frameSize int
	frameCh   chan []int16
	logger    *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	suspended bool
	frames    int64
	dropped   int64
	closeOnce sync.Once
}

// NewStream creates a ticker-paced device.
func NewStream(opts Options, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		opts:      opts,
		frameSize: opts.SampleRate * int(audio.FrameDuration/time.Millisecond) / 1000,
		frameCh:   make(chan []int16, 100),
		logger:    logger,
	}
}

func (s *Stream) Name() string { return KindStream }

// Frames returns the channel of outgoing PCM frames (20ms each). It is
// closed by Close.
func (s *Stream) Frames() <-chan []int16 {
	return s.frameCh
}

// FrameSize returns the number of frames per channel in each published frame.
func (s *Stream) FrameSize() int {
	return s.frameSize
}

// Options returns the sample rate and channel layout of published frames.
func (s *Stream) Options() Options {
	return s.opts
}

// Start begins rendering from r on the ticker.
func (s *Stream) Start(r Renderer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("output: stream already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, r)
	s.logger.Info("Stream output started",
		zap.Int("sampleRate", s.opts.SampleRate),
		zap.Int("channels", s.opts.Channels),
		zap.Int("frameSize", s.frameSize))
	return nil
}

func (s *Stream) run(ctx context.Context, r Renderer) {
	defer close(s.done)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	buf := planes(nil, s.opts.Channels, s.frameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		suspended := s.suspended
		s.mu.Unlock()
		if suspended {
			continue
		}

		r.Read(buf)
		frame := audio.QuantizeInterleaved(nil, buf)

		s.mu.Lock()
		s.frames++
		s.mu.Unlock()

		select {
		case s.frameCh <- frame:
		default:
			// nobody is draining; the clock keeps running
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		}
	}
}

// Suspend stops rendering on subsequent ticks.
func (s *Stream) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
	return nil
}

// Resume continues rendering.
func (s *Stream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	return nil
}

// Suspended reports whether the clock is paused.
func (s *Stream) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Position returns how much audio has been rendered.
func (s *Stream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.frames) * audio.FrameDuration
}

// Close stops the ticker and closes Frames.
func (s *Stream) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	s.closeOnce.Do(func() {
		close(s.frameCh)
		s.mu.Lock()
		dropped := s.dropped
		s.mu.Unlock()
		s.logger.Info("Stream output closed", zap.Int64("droppedFrames", dropped))
	})
	return nil
}
