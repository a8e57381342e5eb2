package graph

import (
	"context"
	"fmt"

	"github.com/satindergrewal/aura/internal/audio"
)

// cancelCheckQuanta is how many quanta are rendered between context checks.
const cancelCheckQuanta = 64

// OfflineContext renders a fixed number of frames as fast as possible.
type OfflineContext struct {
	*Context
	length   int
	rendered bool
}

// NewOfflineContext creates a context that renders length frames. A zero
// length is accepted and renders an empty buffer.
func NewOfflineContext(channels, length int, sampleRate float64) (*OfflineContext, error) {
	if length < 0 {
		return nil, fmt.Errorf("graph: offline length must be >= 0: %d", length)
	}
	c, err := NewContext(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &OfflineContext{Context: c, length: length}, nil
}

// Length returns the number of frames StartRendering produces.
func (o *OfflineContext) Length() int {
	return o.length
}

// StartRendering renders the whole graph and returns the result. It can be
// called once. ctx is checked between quanta; on cancellation the partial
// result is discarded.
func (o *OfflineContext) StartRendering(ctx context.Context) (*audio.Buffer, error) {
	c := o.Context
	c.mu.Lock()
	if o.rendered {
		c.mu.Unlock()
		return nil, fmt.Errorf("graph: offline context already rendered: %w", ErrInvalidState)
	}
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	o.rendered = true
	c.mu.Unlock()

	buf, err := audio.NewBuffer(c.channels, o.length, int(c.sampleRate))
	if err != nil {
		return nil, err
	}

	for pos, q := 0, 0; pos < o.length; q++ {
		if q%cancelCheckQuanta == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		c.mu.Lock()
		out := c.renderQuantum()
		n := min(RenderQuantum, o.length-pos)
		for ch := range buf.Data {
			dst := buf.Data[ch][pos : pos+n]
			for i := range dst {
				dst[i] = float32(out[ch][i])
			}
		}
		c.mu.Unlock()
		pos += n
	}
	return buf, nil
}
