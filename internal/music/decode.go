// Package music decodes uploaded background tracks and holds the current one.
package music

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/audio"
	"github.com/satindergrewal/aura/internal/metrics"
)

// Formats recognised by Sniff.
const (
	FormatWAV   = "wav"
	FormatMP3   = "mp3"
	FormatOther = "other"
)

// ErrEmptyAudio is wrapped by a DecodeError when a file decodes to no samples.
var ErrEmptyAudio = errors.New("no audio samples")

// DecodeError reports bytes that could not be decoded as audio.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder turns file bytes into planar float samples at the file's own
// sample rate. WAV and MP3 decode in process; anything else goes through
// ffmpeg.
type Decoder struct {
	ffmpeg string
	logger *zap.Logger
}

// NewDecoder creates a decoder. ffmpeg is the binary used for formats without
// a native decoder; empty means "ffmpeg" on PATH.
func NewDecoder(ffmpeg string, logger *zap.Logger) *Decoder {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{ffmpeg: ffmpeg, logger: logger}
}

// Sniff picks a format from the leading bytes, falling back to the declared
// MIME type.
func Sniff(data []byte, mime string) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	switch strings.ToLower(mime) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return FormatWAV
	case "audio/mpeg", "audio/mp3":
		return FormatMP3
	}
	return FormatOther
}

// Accept reports whether an upload looks like audio: either the declared MIME
// type is audio/* or the bytes sniff as a known container.
func Accept(data []byte, mime string) bool {
	if strings.HasPrefix(strings.ToLower(mime), "audio/") {
		return true
	}
	return Sniff(data, "") != FormatOther
}

// Decode decodes data. Failures are returned as *DecodeError.
func (d *Decoder) Decode(ctx context.Context, data []byte, mime string) (*audio.Buffer, error) {
	format := Sniff(data, mime)
	var buf *audio.Buffer
	var err error
	switch format {
	case FormatWAV:
		buf, err = decodeWAV(data)
		if errors.Is(err, errNotPCM) {
			buf, err = d.decodeFFmpeg(ctx, data)
		}
	case FormatMP3:
		buf, err = decodeMP3(data)
	default:
		buf, err = d.decodeFFmpeg(ctx, data)
	}
	if err == nil && buf.Len() == 0 {
		err = ErrEmptyAudio
	}
	if err != nil {
		metrics.DecodeFailuresTotal.WithLabelValues(format).Inc()
		d.logger.Warn("Music decode failed", zap.String("format", format), zap.String("mime", mime), zap.Error(err))
		return nil, &DecodeError{Format: format, Err: err}
	}
	d.logger.Info("Music decoded",
		zap.String("format", format),
		zap.Int("sampleRate", buf.SampleRate),
		zap.Int("channels", buf.NumChannels()),
		zap.Duration("duration", buf.Duration()))
	return buf, nil
}

var errNotPCM = errors.New("wav is not integer PCM")

func decodeWAV(data []byte) (*audio.Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}
	if dec.WavAudioFormat != 1 && dec.WavAudioFormat != 0xFFFE {
		return nil, errNotPCM
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if ib.Format == nil || ib.Format.NumChannels <= 0 || ib.Format.SampleRate <= 0 {
		return nil, errors.New("missing WAV format")
	}
	depth := ib.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	if depth <= 0 {
		return nil, errors.New("unknown WAV bit depth")
	}

	nch := ib.Format.NumChannels
	keep := min(nch, 2)
	frames := len(ib.Data) / nch
	buf, err := audio.NewBuffer(keep, frames, ib.Format.SampleRate)
	if err != nil {
		return nil, err
	}
	factor := math.Pow(2, float64(depth-1))
	offset := 0
	if depth == 8 {
		// 8-bit WAV is unsigned
		offset = 128
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < keep; ch++ {
			buf.Data[ch][i] = float32(float64(ib.Data[i*nch+ch]-offset) / factor)
		}
	}
	return buf, nil
}

// decodeMP3 decodes MPEG audio. go-mp3 always produces 16-bit stereo.
func decodeMP3(data []byte) (*audio.Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	return fromS16Stereo(pcm, dec.SampleRate())
}

// fallbackRate is used when ffprobe cannot report the native rate.
const fallbackRate = audio.LiveSampleRate

// decodeFFmpeg pipes data through ffmpeg to raw PCM int16 samples,
// interleaved stereo at the file's native rate as reported by ffprobe.
func (d *Decoder) decodeFFmpeg(ctx context.Context, data []byte) (*audio.Buffer, error) {
	rate, err := d.probeRate(ctx, data)
	if err != nil {
		d.logger.Warn("Sample rate probe failed, resampling",
			zap.Int("sampleRate", fallbackRate), zap.Error(err))
		rate = fallbackRate
	}

	cmd := exec.CommandContext(ctx, d.ffmpeg,
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	out, err := run(cmd, data)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return fromS16Stereo(out, rate)
}

// probeRate asks ffprobe for the sample rate of the first audio stream.
func (d *Decoder) probeRate(ctx context.Context, data []byte) (int, error) {
	cmd := exec.CommandContext(ctx, ffprobePath(d.ffmpeg),
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"pipe:0",
	)
	out, err := run(cmd, data)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeRate(out)
}

// run feeds data to cmd and returns its stdout, folding stderr into the error.
func run(cmd *exec.Cmd, data []byte) ([]byte, error) {
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// ffprobePath returns the ffprobe that ships next to ffmpeg.
func ffprobePath(ffmpeg string) string {
	dir, base := filepath.Split(ffmpeg)
	if i := strings.LastIndex(base, "ffmpeg"); i >= 0 {
		return dir + base[:i] + "ffprobe" + base[i+len("ffmpeg"):]
	}
	return "ffprobe"
}

func parseProbeRate(out []byte) (int, error) {
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, errors.New("no audio stream")
	}
	rate, err := strconv.Atoi(fields[0])
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("bad sample rate %q", fields[0])
	}
	return rate, nil
}

func fromS16Stereo(pcm []byte, sampleRate int) (*audio.Buffer, error) {
	frames := len(pcm) / 4
	buf, err := audio.NewBuffer(2, frames, sampleRate)
	if err != nil {
		return nil, err
	}
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		buf.Data[0][i] = float32(l) / 32768
		buf.Data[1][i] = float32(r) / 32768
	}
	return buf, nil
}
