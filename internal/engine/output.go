// Package engine runs tone and music playback on a shared realtime output.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/graph"
	"github.com/satindergrewal/aura/internal/metrics"
	"github.com/satindergrewal/aura/internal/output"
	"github.com/satindergrewal/aura/internal/tone"
)

var (
	// ErrEngineUnavailable is returned when no realtime audio output can be
	// created. It is not retried.
	ErrEngineUnavailable = errors.New("audio engine unavailable")
	// ErrNoMusic is returned when music playback is requested with no track loaded.
	ErrNoMusic = errors.New("no music track loaded")
)

// Opener creates the device the realtime context plays through.
type Opener func() (output.Device, error)

// Output is the process-wide realtime processing context, its master gain and
// the device that pulls it. Everything is created on first use.
type Output struct {
	sampleRate int
	channels   int
	open       Opener
	logger     *zap.Logger

	mu     sync.Mutex
	ctx    *graph.Context
	master *graph.Gain
	dev    output.Device
	volume float64
}

// NewOutput prepares an output. Nothing is opened until Acquire.
func NewOutput(sampleRate, channels int, volume float64, open Opener, logger *zap.Logger) *Output {
	if logger == nil {
		logger = zap.NewNop()
	}
	volume, _ = tone.SanitizeLevel("volume", volume, 0.5)
	return &Output{
		sampleRate: sampleRate,
		channels:   channels,
		open:       open,
		logger:     logger,
		volume:     volume,
	}
}

// Acquire returns the realtime context and master gain, creating them and
// starting the device if needed, and resuming a suspended device.
func (o *Output) Acquire() (*graph.Context, *graph.Gain, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx != nil && !o.ctx.Closed() {
		if err := o.dev.Resume(); err != nil {
			o.logger.Warn("Output resume failed", zap.String("device", o.dev.Name()), zap.Error(err))
		}
		return o.ctx, o.master, nil
	}

	ctx, err := graph.NewContext(float64(o.sampleRate), o.channels)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	dev, err := o.open()
	if err != nil {
		ctx.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	master := ctx.NewGain()
	if err := firstErr(
		master.Gain.SetValueAtTime(o.volume, 0),
		master.Connect(ctx.Destination()),
	); err != nil {
		dev.Close()
		ctx.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := dev.Start(ctx); err != nil {
		dev.Close()
		ctx.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	o.ctx, o.master, o.dev = ctx, master, dev
	o.logger.Info("Realtime output started",
		zap.String("device", dev.Name()),
		zap.Int("sampleRate", o.sampleRate),
		zap.Int("channels", o.channels))
	return ctx, master, nil
}

// Context returns the realtime context, or nil before the first Acquire.
func (o *Output) Context() *graph.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctx
}

// Volume returns the master volume.
func (o *Output) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// SetVolume sets the master volume, gliding to it if the context is running.
func (o *Output) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = v
	if o.ctx == nil || o.ctx.Closed() {
		return
	}
	if err := setLevel(o.ctx, o.master.Gain, v); err != nil {
		o.logger.Warn("Master volume not applied", zap.Float64("volume", v), zap.Error(err))
	}
}

// Suspend pauses the device clock until the next Acquire.
func (o *Output) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dev == nil {
		return nil
	}
	return o.dev.Suspend()
}

// Close stops the device and closes the context. A later Acquire starts over.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil
	}
	err := o.dev.Close()
	o.ctx.Close()
	o.ctx, o.master, o.dev = nil, nil, nil
	metrics.GraphNodes.Set(0)
	o.logger.Info("Realtime output closed")
	return err
}

func (o *Output) recordNodes() {
	if ctx := o.Context(); ctx != nil {
		metrics.GraphNodes.Set(float64(ctx.ActiveNodes()))
	}
}

// setLevel glides p to v from the context's current time.
func setLevel(ctx *graph.Context, p *graph.Param, v float64) error {
	now := ctx.CurrentTime()
	return firstErr(
		p.SetValueAtTime(p.Value(), now),
		p.RampToValueAtTime(v, now+tone.Glide),
	)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// bus is a persistent gain stage between one source and the master gain.
// It is recreated when the output context is.
type bus struct {
	out   *Output
	ctx   *graph.Context
	gain  *graph.Gain
	level float64
}

// ensure returns the bus gain on the current context, creating it if needed.
func (b *bus) ensure() (*graph.Context, *graph.Gain, error) {
	ctx, master, err := b.out.Acquire()
	if err != nil {
		return nil, nil, err
	}
	if b.ctx == ctx && !b.gain.Released() {
		return ctx, b.gain, nil
	}
	g := ctx.NewGain()
	if err := firstErr(
		g.Gain.SetValueAtTime(b.level, ctx.CurrentTime()),
		g.Connect(master),
	); err != nil {
		g.Release()
		return nil, nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	b.ctx, b.gain = ctx, g
	return ctx, g, nil
}

func (b *bus) set(v float64) error {
	b.level = v
	if b.ctx == nil || b.ctx.Closed() {
		return nil
	}
	return setLevel(b.ctx, b.gain.Gain, v)
}
