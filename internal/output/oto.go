package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Oto plays through an oto context as float32 little-endian PCM.
type Oto struct {
	opts   Options
	logger *zap.Logger
	ctx    *oto.Context

	mu     sync.Mutex
	player *oto.Player
}

// NewOto creates the oto context and waits until the device is ready. Only
// one oto context can exist per process.
func NewOto(opts Options, logger *zap.Logger) (*Oto, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   opts.SampleRate,
		ChannelCount: opts.Channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: oto: %v", ErrUnavailable, err)
	}
	<-ready
	logger.Info("Oto output ready", zap.Int("sampleRate", opts.SampleRate))
	return &Oto{opts: opts, logger: logger, ctx: ctx}, nil
}

func (o *Oto) Name() string { return KindOto }

// Start creates a player that pulls from r.
func (o *Oto) Start(r Renderer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		return errors.New("output: oto already started")
	}
	p := o.ctx.NewPlayer(&floatReader{r: r, channels: o.opts.Channels})
	if o.opts.BufferFrames > 0 {
		p.SetBufferSize(o.opts.BufferFrames * o.opts.Channels * 4)
	}
	p.Play()
	o.player = p
	return nil
}

func (o *Oto) Suspend() error { return o.ctx.Suspend() }
func (o *Oto) Resume() error  { return o.ctx.Resume() }

// Close stops the player and suspends the context.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return err
		}
		o.player = nil
	}
	return o.ctx.Suspend()
}

// floatReader adapts a Renderer to the io.Reader oto pulls from.
type floatReader struct {
	r        Renderer
	channels int
	buf      [][]float32
}

func (f *floatReader) Read(p []byte) (int, error) {
	frameBytes := 4 * f.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	f.buf = planes(f.buf, f.channels, frames)
	f.r.Read(f.buf)
	idx := 0
	for i := 0; i < frames; i++ {
		for ch := 0; ch < f.channels; ch++ {
			binary.LittleEndian.PutUint32(p[idx:], math.Float32bits(f.buf[ch][i]))
			idx += 4
		}
	}
	return frames * frameBytes, nil
}
