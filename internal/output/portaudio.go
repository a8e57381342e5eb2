package output

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// PortAudio plays through the default PortAudio output device.
type PortAudio struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
	closed bool
}

// NewPortAudio initializes PortAudio and checks that an output device exists.
func NewPortAudio(opts Options, logger *zap.Logger) (*PortAudio, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrUnavailable, err)
	}
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: no default output device: %v", ErrUnavailable, err)
	}
	logger.Info("PortAudio output device",
		zap.String("device", dev.Name),
		zap.Int("maxChannels", dev.MaxOutputChannels))
	return &PortAudio{opts: opts, logger: logger}, nil
}

func (p *PortAudio) Name() string { return KindPortAudio }

// Start opens a non-interleaved float32 stream whose callback renders from r.
func (p *PortAudio) Start(r Renderer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("output: portaudio closed")
	}
	if p.stream != nil {
		return errors.New("output: portaudio already started")
	}
	stream, err := portaudio.OpenDefaultStream(0, p.opts.Channels, float64(p.opts.SampleRate), p.opts.BufferFrames,
		func(out [][]float32) {
			r.Read(out)
		})
	if err != nil {
		return fmt.Errorf("%w: open stream: %v", ErrUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: start stream: %v", ErrUnavailable, err)
	}
	p.stream = stream
	return nil
}

func (p *PortAudio) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	return p.stream.Stop()
}

func (p *PortAudio) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	return p.stream.Start()
}

// Close stops the stream and terminates PortAudio.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	if p.stream != nil {
		p.stream.Stop()
		err = p.stream.Close()
		p.stream = nil
	}
	portaudio.Terminate()
	return err
}
