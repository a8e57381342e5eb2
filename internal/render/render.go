// Package render produces tone sessions, optionally over a music track,
// faster than real time.
package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/audio"
	"github.com/satindergrewal/aura/internal/graph"
	"github.com/satindergrewal/aura/internal/metrics"
	"github.com/satindergrewal/aura/internal/tone"
)

// ErrEmptyRender means the context rendered no frames. It indicates a job
// that asked for nothing, never a transient failure.
var ErrEmptyRender = errors.New("render produced an empty buffer")

// ErrTooLong rejects a job whose 16-bit PCM data would not fit a WAV file.
var ErrTooLong = errors.New("render exceeds the WAV size limit")

// maxDataBytes is the largest data chunk a WAV header can describe.
const maxDataBytes = math.MaxUint32 - 36

// DurationSource selects what decides the length of a render.
type DurationSource int

const (
	// Explicit renders Job.Seconds and loops the music under it.
	Explicit DurationSource = iota
	// MusicLength renders exactly one pass of the music track.
	MusicLength
)

func (d DurationSource) String() string {
	if d == MusicLength {
		return "music"
	}
	return "explicit"
}

func (d DurationSource) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DurationSource) UnmarshalText(b []byte) error {
	s, err := ParseDurationSource(string(b))
	if err != nil {
		return err
	}
	*d = s
	return nil
}

// ParseDurationSource accepts "explicit" (or "") and "music".
func ParseDurationSource(s string) (DurationSource, error) {
	switch s {
	case "", "explicit":
		return Explicit, nil
	case "music":
		return MusicLength, nil
	}
	return Explicit, fmt.Errorf("unknown duration source %q", s)
}

// Job describes one offline render.
type Job struct {
	Variant           tone.Variant
	Volume            float64
	FrequenciesVolume float64
	MusicVolume       float64
	Seconds           float64
	DurationSource    DurationSource
	Music             *audio.Buffer // optional, read only
	SampleRate        int           // 0 means audio.ExportSampleRate
}

// Frames returns the number of frames the job renders. Lengths beyond the
// range of int saturate at math.MaxInt.
func (j Job) Frames() int {
	sr := j.sampleRate()
	if j.DurationSource == MusicLength && j.Music != nil && j.Music.SampleRate > 0 {
		return toFrames(math.Ceil(float64(j.Music.Len()) * float64(sr) / float64(j.Music.SampleRate)))
	}
	if !(j.Seconds > 0) || math.IsInf(j.Seconds, 0) {
		return 0
	}
	return toFrames(math.Round(j.Seconds * float64(sr)))
}

func toFrames(f float64) int {
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}

// checkSize reports ErrTooLong when frames of the given width would not fit
// a WAV data chunk.
func checkSize(frames, channels int) error {
	if int64(frames) > maxDataBytes/int64(channels*2) {
		return fmt.Errorf("%w: %d frames of %d channels", ErrTooLong, frames, channels)
	}
	return nil
}

func (j Job) sampleRate() int {
	if j.SampleRate > 0 {
		return j.SampleRate
	}
	return audio.ExportSampleRate
}

// Renderer runs jobs.
type Renderer struct {
	logger *zap.Logger
}

// New creates a renderer.
func New(logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{logger: logger}
}

// Render builds the job's graph into an offline context and renders it to
// completion. The channel count is the tone kind's: 2 for binaural, else 1.
// Cancelling ctx abandons the render.
func (r *Renderer) Render(ctx context.Context, job Job) (*audio.Buffer, error) {
	v, corrections := tone.Sanitize(job.Variant, nil)
	tone.Report(r.logger, corrections...)
	volume, _ := tone.SanitizeLevel("volume", job.Volume, 0.5)
	freqVolume, _ := tone.SanitizeLevel("frequenciesVolume", job.FrequenciesVolume, 0.5)
	musicVolume, _ := tone.SanitizeLevel("musicVolume", job.MusicVolume, 0.7)

	sr := job.sampleRate()
	frames := job.Frames()
	if err := checkSize(frames, v.Kind().Channels()); err != nil {
		return nil, err
	}
	off, err := graph.NewOfflineContext(v.Kind().Channels(), frames, float64(sr))
	if err != nil {
		return nil, fmt.Errorf("offline context: %w", err)
	}
	defer off.Close()

	master := off.NewGain()
	freqGain := off.NewGain()
	if err := firstErr(
		master.Gain.SetValueAtTime(volume, 0),
		master.Connect(off.Destination()),
		freqGain.Gain.SetValueAtTime(freqVolume, 0),
		freqGain.Connect(master),
	); err != nil {
		return nil, err
	}

	voice, err := tone.Build(off.Context, freqGain, v, 0)
	if err != nil {
		return nil, err
	}
	if err := voice.Start(0); err != nil {
		return nil, err
	}

	if job.Music != nil {
		musicGain := off.NewGain()
		src, err := off.NewBufferSource(job.Music)
		if err != nil {
			return nil, fmt.Errorf("music source: %w", err)
		}
		src.SetLoop(job.DurationSource == Explicit)
		if err := firstErr(
			musicGain.Gain.SetValueAtTime(musicVolume, 0),
			musicGain.Connect(master),
			src.Connect(musicGain),
			src.Start(0),
		); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	buf, err := off.StartRendering(ctx)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(started)
	metrics.RenderDuration.WithLabelValues(v.Kind().String()).Observe(elapsed.Seconds())

	if buf.Len() == 0 {
		return nil, ErrEmptyRender
	}
	r.logger.Info("Render complete",
		zap.String("tone", v.Kind().String()),
		zap.Int("frames", buf.Len()),
		zap.Int("channels", buf.NumChannels()),
		zap.Bool("music", job.Music != nil),
		zap.Duration("elapsed", elapsed))
	return buf, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
