package audio

import (
	"fmt"
	"time"
)

const (
	LiveSampleRate   = 48000
	ExportSampleRate = 44100
	LiveChannels     = 2
	BitDepth         = 16
	FrameDuration    = 20 * time.Millisecond
	FrameSize        = 960                     // samples per channel per 20ms frame at LiveSampleRate
	FrameSamples     = FrameSize * LiveChannels // total interleaved samples per frame
	FrameBytes       = FrameSamples * 2         // bytes per frame (int16 = 2 bytes)
)

// Buffer holds planar float32 PCM at a fixed sample rate. It is the shape of
// both a decoded music track and a rendered export.
type Buffer struct {
	SampleRate int
	Data       [][]float32 // one slice per channel, all the same length
}

// NewBuffer allocates a silent buffer.
func NewBuffer(channels, frames, sampleRate int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("buffer channels must be > 0: %d", channels)
	}
	if frames < 0 {
		return nil, fmt.Errorf("buffer frames must be >= 0: %d", frames)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("buffer sample rate must be > 0: %d", sampleRate)
	}
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}, nil
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.Data)
}

// Len returns the number of frames per channel.
func (b *Buffer) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playing time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Len()) / float64(b.SampleRate) * float64(time.Second))
}

// Interleave returns frame-ordered samples (L R L R ... for stereo).
func (b *Buffer) Interleave() []float32 {
	n, ch := b.Len(), b.NumChannels()
	if ch == 1 {
		out := make([]float32, n)
		copy(out, b.Data[0])
		return out
	}
	out := make([]float32, n*ch)
	idx := 0
	for i := 0; i < n; i++ {
		for c := 0; c < ch; c++ {
			out[idx] = b.Data[c][i]
			idx++
		}
	}
	return out
}
