package tone

import (
	"errors"
	"fmt"

	"github.com/satindergrewal/aura/internal/graph"
)

// CarrierBaseline is the steady-state isochronic carrier gain at
// CarrierGain 1. The LFO swings around it by DepthPercent of the baseline.
const CarrierBaseline = 0.5

// Glide is the ramp time used when a live update changes a parameter.
const Glide = 0.015

// Voice is the node set built for one variant. It owns every node it
// created; Release stops and disconnects all of them.
type Voice struct {
	ctx     *graph.Context
	variant Variant
	nodes   []releaser
	oscs    []*graph.Oscillator

	// isochronic
	carrier, lfo         *graph.Oscillator
	carrierGain, lfoGain *graph.Gain

	// binaural and monaural
	first, second *graph.Oscillator
}

type releaser interface {
	Release()
}

// Build wires v into ctx, ending at dest, with every parameter scheduled at
// time at. The generators are not started; call Start. Build sanitizes v
// before any value reaches the graph.
func Build(ctx *graph.Context, dest graph.Node, v Variant, at float64) (*Voice, error) {
	if v == nil {
		return nil, errors.New("tone: nil variant")
	}
	v, _ = Sanitize(v, nil)

	voice := &Voice{ctx: ctx, variant: v}
	var err error
	switch t := v.(type) {
	case Isochronic:
		err = voice.buildIsochronic(dest, t, at)
	case Binaural:
		err = voice.buildBinaural(dest, t, at)
	case Monaural:
		err = voice.buildMonaural(dest, t, at)
	}
	if err != nil {
		voice.Release()
		return nil, fmt.Errorf("build %s: %w", v.Kind(), err)
	}
	return voice, nil
}

func (v *Voice) oscillator() *graph.Oscillator {
	o := v.ctx.NewOscillator()
	v.nodes = append(v.nodes, o)
	v.oscs = append(v.oscs, o)
	return o
}

func (v *Voice) gain() *graph.Gain {
	g := v.ctx.NewGain()
	v.nodes = append(v.nodes, g)
	return g
}

func (v *Voice) panner() *graph.StereoPanner {
	p := v.ctx.NewStereoPanner()
	v.nodes = append(v.nodes, p)
	return p
}

// carrier -> carrierGain -> dest; lfo -> lfoGain -> carrierGain.Gain
func (v *Voice) buildIsochronic(dest graph.Node, p Isochronic, at float64) error {
	v.carrier = v.oscillator()
	v.lfo = v.oscillator()
	v.carrierGain = v.gain()
	v.lfoGain = v.gain()

	baseline, swing := isochronicLevels(p)
	return firstErr(
		v.carrier.Frequency.SetValueAtTime(p.CarrierHz, at),
		v.lfo.Frequency.SetValueAtTime(p.PulseHz, at),
		v.carrierGain.Gain.SetValueAtTime(baseline, at),
		v.lfoGain.Gain.SetValueAtTime(swing, at),
		v.carrier.Connect(v.carrierGain),
		v.carrierGain.Connect(dest),
		v.lfo.Connect(v.lfoGain),
		v.lfoGain.ConnectParam(v.carrierGain.Gain),
	)
}

// isochronicLevels returns the carrier baseline gain and the LFO swing.
func isochronicLevels(p Isochronic) (baseline, swing float64) {
	baseline = CarrierBaseline * p.CarrierGain
	return baseline, baseline * p.DepthPercent / 100
}

// left -> pan(-1) -> dest; right -> pan(+1) -> dest
func (v *Voice) buildBinaural(dest graph.Node, p Binaural, at float64) error {
	v.first = v.oscillator()
	v.second = v.oscillator()
	left := v.panner()
	right := v.panner()
	return firstErr(
		v.first.Frequency.SetValueAtTime(p.Left(), at),
		v.second.Frequency.SetValueAtTime(p.Right(), at),
		left.Pan.SetValueAtTime(-1, at),
		right.Pan.SetValueAtTime(1, at),
		v.first.Connect(left),
		v.second.Connect(right),
		left.Connect(dest),
		right.Connect(dest),
	)
}

func (v *Voice) buildMonaural(dest graph.Node, p Monaural, at float64) error {
	v.first = v.oscillator()
	v.second = v.oscillator()
	return firstErr(
		v.first.Frequency.SetValueAtTime(p.FrequencyOneHz, at),
		v.second.Frequency.SetValueAtTime(p.FrequencyTwoHz, at),
		v.first.Connect(dest),
		v.second.Connect(dest),
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

// Kind returns the variant kind the voice was built for.
func (v *Voice) Kind() Kind {
	return v.variant.Kind()
}

// Variant returns the parameters currently scheduled on the voice.
func (v *Voice) Variant() Variant {
	return v.variant
}

// Nodes returns the number of nodes the voice owns.
func (v *Voice) Nodes() int {
	return len(v.nodes)
}

// Start starts every generator at time at.
func (v *Voice) Start(at float64) error {
	for _, o := range v.oscs {
		if err := o.Start(at); err != nil {
			return err
		}
	}
	return nil
}

// Update reschedules the parameters that differ between the voice's current
// variant and next, gliding to the new values from time at. The graph is not
// rebuilt. It returns false without touching the voice when next is of a
// different kind.
func (v *Voice) Update(next Variant, at float64) (bool, error) {
	if next == nil || next.Kind() != v.Kind() {
		return false, nil
	}
	next, _ = Sanitize(next, v.variant)

	var err error
	switch n := next.(type) {
	case Isochronic:
		cur := v.variant.(Isochronic)
		curBase, curSwing := isochronicLevels(cur)
		base, swing := isochronicLevels(n)
		err = firstErr(
			glide(v.carrier.Frequency, cur.CarrierHz, n.CarrierHz, at),
			glide(v.lfo.Frequency, cur.PulseHz, n.PulseHz, at),
			glide(v.carrierGain.Gain, curBase, base, at),
			glide(v.lfoGain.Gain, curSwing, swing, at),
		)
	case Binaural:
		cur := v.variant.(Binaural)
		err = firstErr(
			glide(v.first.Frequency, cur.Left(), n.Left(), at),
			glide(v.second.Frequency, cur.Right(), n.Right(), at),
		)
	case Monaural:
		cur := v.variant.(Monaural)
		err = firstErr(
			glide(v.first.Frequency, cur.FrequencyOneHz, n.FrequencyOneHz, at),
			glide(v.second.Frequency, cur.FrequencyTwoHz, n.FrequencyTwoHz, at),
		)
	}
	if err != nil {
		return true, err
	}
	v.variant = next
	return true, nil
}

// glide moves p from its value at time at to to over Glide seconds. Unchanged
// parameters are left alone.
func glide(p *graph.Param, from, to, at float64) error {
	if from == to {
		return nil
	}
	if err := p.SetValueAtTime(p.Value(), at); err != nil {
		return err
	}
	return p.RampToValueAtTime(to, at+Glide)
}

// Release stops and disconnects every node of the voice. It is safe to call
// more than once.
func (v *Voice) Release() {
	for _, n := range v.nodes {
		n.Release()
	}
}
