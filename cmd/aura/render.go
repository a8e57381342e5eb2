package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/config"
	"github.com/satindergrewal/aura/internal/music"
	"github.com/satindergrewal/aura/internal/render"
	"github.com/satindergrewal/aura/internal/studio"
	"github.com/satindergrewal/aura/internal/tone"
	"github.com/satindergrewal/aura/internal/wav"
)

// renderFlags are the options of "aura render".
type renderFlags struct {
	tone              string
	carrier, pulse    float64
	depth, gain       float64
	base, beat        float64
	f1, f2            float64
	seconds           float64
	volume            float64
	frequenciesVolume float64
	musicVolume       float64
	music             string
	durationSource    string
	sampleRate        int
	out               string
}

func parseRenderFlags(cfg config.Config, args []string) (renderFlags, map[string]bool, error) {
	var f renderFlags
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.StringVar(&f.tone, "tone", "isochronic", "tone kind: isochronic, binaural or monaural")
	fs.Float64Var(&f.carrier, "carrier", 0, "isochronic carrier frequency (Hz)")
	fs.Float64Var(&f.pulse, "pulse", 0, "isochronic pulse frequency (Hz)")
	fs.Float64Var(&f.depth, "depth", 0, "isochronic modulation depth (%)")
	fs.Float64Var(&f.gain, "gain", 0, "isochronic carrier gain (0-1)")
	fs.Float64Var(&f.base, "base", 0, "binaural base frequency (Hz)")
	fs.Float64Var(&f.beat, "beat", 0, "binaural beat frequency (Hz)")
	fs.Float64Var(&f.f1, "f1", 0, "monaural first frequency (Hz)")
	fs.Float64Var(&f.f2, "f2", 0, "monaural second frequency (Hz)")
	fs.Float64Var(&f.seconds, "seconds", float64(cfg.ExportMinutes*60), "length in seconds")
	fs.Float64Var(&f.volume, "volume", cfg.Volume, "master volume (0-1)")
	fs.Float64Var(&f.frequenciesVolume, "frequencies-volume", cfg.FrequenciesVolume, "tone volume (0-1)")
	fs.Float64Var(&f.musicVolume, "music-volume", cfg.MusicVolume, "music volume (0-1)")
	fs.StringVar(&f.music, "music", "", "optional music file to mix under the tone")
	fs.StringVar(&f.durationSource, "duration-source", cfg.ExportDurationSource, "explicit or music")
	fs.IntVar(&f.sampleRate, "sample-rate", cfg.ExportSampleRate, "output sample rate")
	fs.StringVar(&f.out, "out", "", "output path (default: generated name in the working directory)")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// variant starts from the kind's defaults and applies only the flags given.
func (f renderFlags) variant(set map[string]bool) (tone.Variant, error) {
	k, err := tone.ParseKind(f.tone)
	if err != nil {
		return nil, err
	}
	var p tone.Patch
	pick := func(name string, v float64) *float64 {
		if !set[name] {
			return nil
		}
		return &v
	}
	switch k {
	case tone.KindIsochronic:
		p.CarrierHz = pick("carrier", f.carrier)
		p.PulseHz = pick("pulse", f.pulse)
		p.DepthPercent = pick("depth", f.depth)
		p.CarrierGain = pick("gain", f.gain)
	case tone.KindBinaural:
		p.BaseHz = pick("base", f.base)
		p.BeatHz = pick("beat", f.beat)
	case tone.KindMonaural:
		p.FrequencyOneHz = pick("f1", f.f1)
		p.FrequencyTwoHz = pick("f2", f.f2)
	}
	return p.Apply(tone.Defaults(k)), nil
}

func runRender(ctx context.Context, cfg config.Config, args []string, logger *zap.Logger) error {
	f, set, err := parseRenderFlags(cfg, args)
	if err != nil {
		return err
	}
	v, err := f.variant(set)
	if err != nil {
		return err
	}
	src, err := render.ParseDurationSource(f.durationSource)
	if err != nil {
		return err
	}

	job := render.Job{
		Variant:           v,
		Volume:            f.volume,
		FrequenciesVolume: f.frequenciesVolume,
		MusicVolume:       f.musicVolume,
		Seconds:           f.seconds,
		DurationSource:    src,
		SampleRate:        f.sampleRate,
	}
	if f.music != "" {
		data, err := os.ReadFile(f.music)
		if err != nil {
			return err
		}
		dec := music.NewDecoder(cfg.FFmpeg, logger.Named("decode"))
		buf, err := dec.Decode(ctx, data, mime.TypeByExtension(filepath.Ext(f.music)))
		if err != nil {
			return err
		}
		job.Music = buf
	}

	start := time.Now()
	buf, err := render.New(logger).Render(ctx, job)
	if err != nil {
		return err
	}
	out := f.out
	if out == "" {
		out = studio.Filename(v.Kind(), job.Music != nil, time.Now())
	}
	file, err := os.Create(out)
	if err != nil {
		return err
	}
	n, err := wav.Write(file, buf)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("Render complete",
		zap.String("file", out),
		zap.String("tone", v.Kind().String()),
		zap.Duration("length", buf.Duration()),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
