package graph

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/satindergrewal/aura/internal/audio"
)

// schedule is the start/stop window of a single-use generator.
type schedule struct {
	started bool
	ended   bool
	startAt int64
	stopAt  int64 // -1 until Stop is called
}

func (s *schedule) playing(f int64) bool {
	return s.started && !s.ended && f >= s.startAt && (s.stopAt < 0 || f < s.stopAt)
}

func (s *schedule) activeAfter(f int64) bool {
	return s.started && !s.ended && (s.stopAt < 0 || s.stopAt > f)
}

func (s *schedule) halt(f int64) {
	if !s.started {
		s.started = true
		s.startAt = f
	}
	if s.stopAt < 0 || s.stopAt > f {
		s.stopAt = f
	}
}

// generator is a node that produces sound between Start and Stop. It can be
// started once.
type generator struct {
	node
	sched schedule
}

func (g *generator) initGenerator(c *Context, process func(t0 int64)) {
	g.node.init(c, process)
	g.sched.stopAt = -1
	g.node.gen = &g.sched
}

// Start schedules the generator to begin at time t. Times in the past start
// at the current frame. A second Start fails with ErrInvalidState.
func (g *generator) Start(t float64) error {
	c := g.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if g.released || g.sched.started {
		return ErrInvalidState
	}
	f, err := c.toFrame(t)
	if err != nil {
		return err
	}
	g.sched.started = true
	g.sched.startAt = max(f, c.frame)
	return nil
}

// Stop schedules the generator to fall silent at time t. Stopping a
// generator that was never started fails with ErrInvalidState; a later Stop
// replaces the earlier stop time.
func (g *generator) Stop(t float64) error {
	c := g.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if !g.sched.started {
		return ErrInvalidState
	}
	f, err := c.toFrame(t)
	if err != nil {
		return err
	}
	g.sched.stopAt = max(f, c.frame, g.sched.startAt)
	return nil
}

// Playing reports whether the generator is started and not yet stopped or
// finished at the current frame.
func (g *generator) Playing() bool {
	c := g.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return g.sched.activeAfter(c.frame)
}

// Oscillator is a sine generator.
type Oscillator struct {
	generator
	Frequency *Param

	phase float64
}

// NewOscillator creates a 440 Hz sine oscillator.
func (c *Context) NewOscillator() *Oscillator {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := &Oscillator{}
	o.initGenerator(c, o.process)
	nyquist := c.sampleRate / 2
	o.Frequency = newParam(&o.node, 440, -nyquist, nyquist)
	return o
}

func (o *Oscillator) process(t0 int64) {
	freq := o.Frequency.compute(t0)
	out := o.out[0]
	o.channels = 1
	step := 2 * math.Pi / o.ctx.sampleRate
	for i := range out {
		if !o.sched.playing(t0 + int64(i)) {
			out[i] = 0
			continue
		}
		out[i] = math.Sin(o.phase)
		o.phase += step * freq[i]
		if o.phase >= 2*math.Pi || o.phase < 0 {
			o.phase = math.Mod(o.phase, 2*math.Pi)
			if o.phase < 0 {
				o.phase += 2 * math.Pi
			}
		}
	}
}

// Gain multiplies its input by the Gain parameter.
type Gain struct {
	node
	Gain *Param
}

// NewGain creates a unity gain node.
func (c *Context) NewGain() *Gain {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := &Gain{}
	g.init(c, g.process)
	g.Gain = newParam(&g.node, 1, -math.MaxFloat32, math.MaxFloat32)
	return g
}

func (g *Gain) process(t0 int64) {
	in := g.mixInputs(0)
	gain := g.Gain.compute(t0)
	g.channels = len(in)
	for ch := range in {
		vecmath.MulBlock(g.out[ch], in[ch], gain)
	}
}

// StereoPanner places its input in the stereo field with an equal-power law.
// Pan runs from -1 (left) to +1 (right). The output is always stereo.
type StereoPanner struct {
	node
	Pan *Param
}

// NewStereoPanner creates a centred panner.
func (c *Context) NewStereoPanner() *StereoPanner {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &StereoPanner{}
	p.init(c, p.process)
	p.Pan = newParam(&p.node, 0, -1, 1)
	return p
}

func (p *StereoPanner) process(t0 int64) {
	in := p.mixInputs(0)
	pan := p.Pan.compute(t0)
	p.channels = 2
	left, right := p.out[0], p.out[1]

	if len(in) == 1 {
		for i, x := range in[0] {
			a := (pan[i] + 1) / 2 * math.Pi / 2
			left[i] = x * math.Cos(a)
			right[i] = x * math.Sin(a)
		}
		return
	}

	inL, inR := in[0], in[1]
	for i := range left {
		if pan[i] <= 0 {
			a := (pan[i] + 1) * math.Pi / 2
			left[i] = inL[i] + inR[i]*math.Cos(a)
			right[i] = inR[i] * math.Sin(a)
		} else {
			a := pan[i] * math.Pi / 2
			left[i] = inL[i] * math.Cos(a)
			right[i] = inR[i] + inL[i]*math.Sin(a)
		}
	}
}

// BufferSource plays an audio.Buffer once, or repeatedly when looping.
// Buffers at a different sample rate are resampled by linear interpolation.
type BufferSource struct {
	generator

	buf  *audio.Buffer
	loop bool
	pos  float64
	step float64
}

// NewBufferSource creates a source bound to buf. The buffer is only read.
func (c *Context) NewBufferSource(buf *audio.Buffer) (*BufferSource, error) {
	if buf == nil || buf.NumChannels() == 0 {
		return nil, errors.New("graph: buffer source needs a buffer with at least one channel")
	}
	if buf.SampleRate <= 0 {
		return nil, errors.New("graph: buffer source sample rate must be > 0")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &BufferSource{
		buf:  buf,
		step: float64(buf.SampleRate) / c.sampleRate,
	}
	s.initGenerator(c, s.process)
	return s, nil
}

// SetLoop enables or disables wrapping from the end of the buffer to its start.
func (s *BufferSource) SetLoop(loop bool) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.loop = loop
}

// Ended reports whether a non-looping source has played to the end.
func (s *BufferSource) Ended() bool {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.sched.ended
}

func (s *BufferSource) process(t0 int64) {
	data := s.buf.Data[:min(len(s.buf.Data), maxChannels)]
	s.channels = len(data)
	n := s.buf.Len()

	for i := 0; i < RenderQuantum; i++ {
		if n == 0 || !s.sched.playing(t0+int64(i)) {
			for ch := range data {
				s.out[ch][i] = 0
			}
			continue
		}
		idx := int(s.pos)
		if idx >= n {
			if !s.loop {
				s.sched.ended = true
				for ch := range data {
					s.out[ch][i] = 0
				}
				continue
			}
			s.pos = math.Mod(s.pos, float64(n))
			idx = int(s.pos)
		}
		frac := s.pos - float64(idx)
		next := idx + 1
		if next >= n {
			if s.loop {
				next = 0
			} else {
				next = idx
			}
		}
		for ch, samples := range data {
			a, b := float64(samples[idx]), float64(samples[next])
			s.out[ch][i] = a + (b-a)*frac
		}
		s.pos += s.step
	}
}

// Destination is the end of the graph. Its input is mixed to the context's
// channel count.
type Destination struct {
	node
}

func (d *Destination) process(int64) {
	in := d.mixInputs(d.ctx.channels)
	d.channels = len(in)
	for ch := range in {
		copy(d.out[ch], in[ch])
	}
}
