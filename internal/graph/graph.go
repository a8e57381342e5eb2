// Package graph is a small pull-based audio processing graph. A Context owns a
// sample clock and a destination; nodes are wired with Connect and rendered
// in quanta of RenderQuantum frames. The same node types run against a
// realtime Context (pulled by an output device through Read) and an
// OfflineContext (rendered to completion with StartRendering).
package graph

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/algo-vecmath"
)

// RenderQuantum is the number of frames processed per graph pass.
const RenderQuantum = 128

const maxChannels = 2

var (
	// ErrInvalidState is returned when a single-use node is started twice,
	// stopped before it was started, or used after release.
	ErrInvalidState = errors.New("graph: invalid node state")
	// ErrClosed is returned for operations on a closed context.
	ErrClosed = errors.New("graph: context closed")
	// ErrNonFinite is returned when a parameter value or time is NaN or infinite.
	ErrNonFinite = errors.New("graph: non-finite value")
)

// Node is anything that can appear in a graph.
type Node interface {
	base() *node
}

// Context is an audio processing context: a sample clock, a destination and
// the set of live nodes.
type Context struct {
	mu         sync.Mutex
	sampleRate float64
	channels   int
	frame      int64 // first frame of the next quantum
	stamp      int64 // render pass counter
	dest       *Destination
	nodes      map[*node]struct{}
	closed     bool

	tmp      []float64
	carry    [][]float64
	carryPos int
}

// NewContext creates a context rendering channels outputs at sampleRate.
func NewContext(sampleRate float64, channels int) (*Context, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("graph: sample rate must be > 0: %v", sampleRate)
	}
	if channels < 1 || channels > maxChannels {
		return nil, fmt.Errorf("graph: channels must be 1 or 2: %d", channels)
	}
	c := &Context{
		sampleRate: sampleRate,
		channels:   channels,
		nodes:      make(map[*node]struct{}),
		tmp:        make([]float64, RenderQuantum),
		carry:      newPlanes(channels),
		carryPos:   RenderQuantum,
	}
	c.dest = &Destination{}
	c.dest.init(c, c.dest.process)
	delete(c.nodes, &c.dest.node) // the destination is not counted as a live node
	return c, nil
}

// SampleRate returns the context sample rate in Hz.
func (c *Context) SampleRate() float64 {
	return c.sampleRate
}

// Channels returns the destination channel count.
func (c *Context) Channels() int {
	return c.channels
}

// Destination returns the final node of the graph.
func (c *Context) Destination() *Destination {
	return c.dest
}

// CurrentTime returns the clock position in seconds.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.frame) / c.sampleRate
}

// Frame returns the clock position in frames.
func (c *Context) Frame() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// ActiveNodes returns the number of nodes created and not yet released.
func (c *Context) ActiveNodes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// ActiveGenerators returns the number of oscillators and buffer sources that
// are started and still scheduled to produce sound.
func (c *Context) ActiveGenerators() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for n := range c.nodes {
		if n.gen != nil && n.gen.activeAfter(c.frame) {
			count++
		}
	}
	return count
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases every node. Read keeps returning silence afterwards.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for n := range c.nodes {
		n.release()
	}
	c.dest.inputs = nil
	c.closed = true
}

// Read fills dst (one slice per channel, equal lengths) with the next frames
// of output. Channel layouts that differ from the context are mixed down or up.
func (c *Context) Read(dst [][]float32) {
	if len(dst) == 0 {
		return
	}
	frames := len(dst[0])

	c.mu.Lock()
	defer c.mu.Unlock()

	written := 0
	for written < frames {
		if c.closed {
			for _, ch := range dst {
				clear(ch[written:])
			}
			return
		}
		if c.carryPos >= RenderQuantum {
			out := c.renderQuantum()
			for ch := range c.carry {
				copy(c.carry[ch], out[ch])
			}
			c.carryPos = 0
		}
		n := min(RenderQuantum-c.carryPos, frames-written)
		if len(dst) == 1 && len(c.carry) == 2 {
			for i := 0; i < n; i++ {
				dst[0][written+i] = float32(0.5 * (c.carry[0][c.carryPos+i] + c.carry[1][c.carryPos+i]))
			}
		} else {
			for ch := range dst {
				src := c.carry[min(ch, len(c.carry)-1)]
				for i := 0; i < n; i++ {
					dst[ch][written+i] = float32(src[c.carryPos+i])
				}
			}
		}
		c.carryPos += n
		written += n
	}
}

// renderQuantum advances the clock by one quantum. Callers hold c.mu.
func (c *Context) renderQuantum() [][]float64 {
	c.stamp++
	out := c.pull(&c.dest.node)
	c.frame += RenderQuantum
	return out
}

func (c *Context) pull(n *node) [][]float64 {
	if n.stamp == c.stamp {
		return n.out[:n.channels]
	}
	if n.busy {
		// feedback loop; the back edge contributes silence
		return silence[:1]
	}
	n.busy = true
	n.process(c.frame)
	n.busy = false
	n.stamp = c.stamp
	return n.out[:n.channels]
}

var silence = newPlanes(maxChannels)

func newPlanes(channels int) [][]float64 {
	p := make([][]float64, channels)
	for i := range p {
		p[i] = make([]float64, RenderQuantum)
	}
	return p
}

// node is the shared wiring state embedded in every node type.
type node struct {
	ctx      *Context
	channels int
	inputs   []*node
	outs     []*node
	params   []*Param
	out      [][]float64
	in       [][]float64
	stamp    int64
	busy     bool
	released bool
	gen      *schedule
	process  func(t0 int64)
	upstream [][][]float64
}

func (n *node) base() *node { return n }

func (n *node) init(c *Context, process func(t0 int64)) {
	n.ctx = c
	n.channels = 1
	n.out = newPlanes(maxChannels)
	n.in = newPlanes(maxChannels)
	n.stamp = -1
	n.process = process
	c.nodes[n] = struct{}{}
}

// Connect routes this node's output into dst. Duplicate connections are ignored.
func (n *node) Connect(dst Node) error {
	d := dst.base()
	c := n.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if d.ctx != c {
		return fmt.Errorf("graph: connect across contexts: %w", ErrInvalidState)
	}
	if n.released || d.released {
		return fmt.Errorf("graph: connect released node: %w", ErrInvalidState)
	}
	for _, in := range d.inputs {
		if in == n {
			return nil
		}
	}
	d.inputs = append(d.inputs, n)
	n.outs = append(n.outs, d)
	return nil
}

// ConnectParam routes this node's output into p, where it is added to the
// parameter's scheduled value sample by sample.
func (n *node) ConnectParam(p *Param) error {
	c := n.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if p.owner.ctx != c {
		return fmt.Errorf("graph: connect across contexts: %w", ErrInvalidState)
	}
	if n.released || p.owner.released {
		return fmt.Errorf("graph: connect released node: %w", ErrInvalidState)
	}
	for _, in := range p.inputs {
		if in == n {
			return nil
		}
	}
	p.inputs = append(p.inputs, n)
	n.params = append(n.params, p)
	return nil
}

// Disconnect removes every outgoing connection of this node.
func (n *node) Disconnect() {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	n.disconnect()
}

// Release stops the node if it is a generator, disconnects it in both
// directions and removes it from the context. A released node cannot be
// reconnected or restarted.
func (n *node) Release() {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	n.release()
}

// Released reports whether Release has been called.
func (n *node) Released() bool {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return n.released
}

func (n *node) disconnect() {
	for _, d := range n.outs {
		d.inputs = removeNode(d.inputs, n)
	}
	for _, p := range n.params {
		p.inputs = removeNode(p.inputs, n)
	}
	n.outs = nil
	n.params = nil
}

func (n *node) release() {
	if n.released {
		return
	}
	if n.gen != nil {
		n.gen.halt(n.ctx.frame)
	}
	n.disconnect()
	for _, in := range n.inputs {
		in.outs = removeNode(in.outs, n)
	}
	n.inputs = nil
	n.released = true
	delete(n.ctx.nodes, n)
}

func removeNode(list []*node, n *node) []*node {
	out := list[:0]
	for _, x := range list {
		if x != n {
			out = append(out, x)
		}
	}
	return out
}

// mixInputs pulls every input and sums them into n.in. With fixed == 0 the
// channel count is the widest input (mono when there are none).
func (n *node) mixInputs(fixed int) [][]float64 {
	c := n.ctx
	n.upstream = n.upstream[:0]
	channels := 1
	for _, in := range n.inputs {
		o := c.pull(in)
		n.upstream = append(n.upstream, o)
		channels = max(channels, len(o))
	}
	if fixed > 0 {
		channels = fixed
	}
	dst := n.in[:channels]
	for _, ch := range dst {
		clear(ch)
	}
	for _, src := range n.upstream {
		mixInto(dst, src, c.tmp)
	}
	return dst
}

// mixInto adds src into dst following speaker rules: equal layouts add
// channel-wise, mono is copied to every output channel, and stereo folds to
// mono as the average of both channels.
func mixInto(dst, src [][]float64, tmp []float64) {
	switch {
	case len(dst) == len(src):
		for ch := range dst {
			vecmath.AddBlockInPlace(dst[ch], src[ch])
		}
	case len(src) == 1:
		for ch := range dst {
			vecmath.AddBlockInPlace(dst[ch], src[0])
		}
	case len(dst) == 1:
		scale := 1 / float64(len(src))
		for ch := range src {
			vecmath.ScaleBlock(tmp, src[ch], scale)
			vecmath.AddBlockInPlace(dst[0], tmp)
		}
	}
}

// toFrame converts a time in seconds to a frame on the context clock.
// Negative times clamp to zero.
func (c *Context) toFrame(t float64) (int64, error) {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, ErrNonFinite
	}
	if t < 0 {
		t = 0
	}
	return int64(math.Round(t * c.sampleRate)), nil
}
