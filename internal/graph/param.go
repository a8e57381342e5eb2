package graph

import (
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/satindergrewal/aura/internal/audio"
)

type eventKind int

const (
	setValue eventKind = iota
	rampValue
)

type event struct {
	kind  eventKind
	frame int64
	value float64
}

// Param is an automatable node parameter. Its value at each frame is the
// scheduled timeline value plus the sum of any connected modulation inputs,
// clamped to [Min, Max].
type Param struct {
	owner    *node
	def      float64
	min, max float64

	// base is the value in effect from baseFrame until the first event.
	base      float64
	baseFrame int64
	events    []event

	inputs []*node
	values []float64
	mod    [][]float64
}

func newParam(owner *node, def, min, max float64) *Param {
	return &Param{
		owner:  owner,
		def:    def,
		min:    min,
		max:    max,
		base:   def,
		values: make([]float64, RenderQuantum),
		mod:    newPlanes(1),
	}
}

// Default returns the initial value.
func (p *Param) Default() float64 { return p.def }

// Min returns the lower clamp bound.
func (p *Param) Min() float64 { return p.min }

// Max returns the upper clamp bound.
func (p *Param) Max() float64 { return p.max }

// Value returns the scheduled value at the context's current frame, without
// modulation inputs.
func (p *Param) Value() float64 {
	c := p.owner.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return p.valueAt(c.frame)
}

// SetValueAtTime schedules an immediate jump to v at time t (seconds).
// Every event scheduled at or after t is cancelled.
func (p *Param) SetValueAtTime(v, t float64) error {
	return p.schedule(setValue, v, t)
}

// RampToValueAtTime schedules a smooth transition from the previous event's
// value to v, arriving at time t. Every event scheduled at or after t is
// cancelled.
func (p *Param) RampToValueAtTime(v, t float64) error {
	return p.schedule(rampValue, v, t)
}

// CancelScheduledValues drops every event scheduled at or after t.
func (p *Param) CancelScheduledValues(t float64) error {
	c := p.owner.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := c.toFrame(t)
	if err != nil {
		return err
	}
	p.cancelFrom(f)
	return nil
}

func (p *Param) schedule(kind eventKind, v, t float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrNonFinite
	}
	c := p.owner.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	f, err := c.toFrame(t)
	if err != nil {
		return err
	}
	p.cancelFrom(f)
	p.events = append(p.events, event{kind: kind, frame: f, value: v})
	return nil
}

func (p *Param) cancelFrom(f int64) {
	for i, ev := range p.events {
		if ev.frame >= f {
			p.events = p.events[:i]
			return
		}
	}
}

// valueAt evaluates the timeline at frame f.
func (p *Param) valueAt(f int64) float64 {
	prevFrame, prevValue := p.baseFrame, p.base
	for _, ev := range p.events {
		if ev.frame > f {
			if ev.kind != rampValue || ev.frame <= prevFrame {
				return prevValue
			}
			x := float64(f-prevFrame) / float64(ev.frame-prevFrame)
			return prevValue + (ev.value-prevValue)*audio.Smoothstep(x)
		}
		prevFrame, prevValue = ev.frame, ev.value
	}
	return prevValue
}

// prune folds events at or before frame f into the base value.
func (p *Param) prune(f int64) {
	n := 0
	for n < len(p.events) && p.events[n].frame <= f {
		p.base = p.events[n].value
		p.baseFrame = p.events[n].frame
		n++
	}
	if n > 0 {
		p.events = append(p.events[:0], p.events[n:]...)
	}
}

// compute fills and returns the per-frame values for the quantum starting
// at t0. Callers hold the context lock.
func (p *Param) compute(t0 int64) []float64 {
	p.prune(t0)
	if len(p.events) == 0 {
		v := p.base
		for i := range p.values {
			p.values[i] = v
		}
	} else {
		for i := range p.values {
			p.values[i] = p.valueAt(t0 + int64(i))
		}
	}

	if len(p.inputs) > 0 {
		c := p.owner.ctx
		clear(p.mod[0])
		for _, in := range p.inputs {
			mixInto(p.mod, c.pull(in), c.tmp)
		}
		vecmath.AddBlockInPlace(p.values, p.mod[0])
	}

	for i, v := range p.values {
		if v < p.min {
			p.values[i] = p.min
		} else if v > p.max {
			p.values[i] = p.max
		}
	}
	return p.values
}
