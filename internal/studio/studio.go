// Package studio is the single entry point the user interface talks to. It
// keeps the user's settings, drives live playback and music, and runs
// exports, refusing combinations that would compete for the engine.
package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/engine"
	"github.com/satindergrewal/aura/internal/music"
	"github.com/satindergrewal/aura/internal/render"
	"github.com/satindergrewal/aura/internal/tone"
)

var (
	// ErrExportInProgress rejects playback or a second export while an export runs.
	ErrExportInProgress = errors.New("an export is in progress")
	// ErrPlaybackActive rejects an export while anything is playing.
	ErrPlaybackActive = errors.New("stop playback before exporting")
	// ErrNotAudio rejects uploads that are neither declared nor sniffed as audio.
	ErrNotAudio = errors.New("file is not audio")
	// ErrUnknownPreset is returned by ApplyPreset for an id not in tone.Presets.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrMusicLoading rejects music playback while a new track replaces the
	// current one.
	ErrMusicLoading = errors.New("a music track is loading")
)

// Options configures a Studio.
type Options struct {
	SampleRate int
	Channels   int
	Open       engine.Opener
	Decoder    *music.Decoder
	Renderer   *render.Renderer
	Settings   Settings
	// ExportSampleRate defaults to audio.ExportSampleRate.
	ExportSampleRate int
}

// Studio coordinates the mixer, the music library and exports.
type Studio struct {
	mixer    *engine.Mixer
	lib      *music.Library
	decoder  *music.Decoder
	renderer *render.Renderer
	exportSR int
	logger   *zap.Logger
	events   *hub

	mu        sync.Mutex
	settings  Settings
	exporting bool
	loading   int // LoadMusic calls between stop and replace
}

// New creates a studio. Nothing touches the audio device until playback
// is first requested.
func New(opts Options, logger *zap.Logger) *Studio {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := opts.Settings
	settings.normalize()

	s := &Studio{
		lib:      music.NewLibrary(),
		decoder:  opts.Decoder,
		renderer: opts.Renderer,
		exportSR: opts.ExportSampleRate,
		logger:   logger,
		events:   newHub(),
		settings: settings,
	}
	if s.decoder == nil {
		s.decoder = music.NewDecoder("", logger.Named("decode"))
	}
	if s.renderer == nil {
		s.renderer = render.New(logger.Named("render"))
	}
	s.mixer = engine.NewMixer(opts.SampleRate, opts.Channels, engine.Volumes{
		Master:      settings.Volume,
		Frequencies: settings.FrequenciesVolume,
		Music:       settings.MusicVolume,
	}, opts.Open, s.lib, logger.Named("engine"), s.onChange)
	if err := s.mixer.Frequencies().SetVariant(settings.Variant()); err != nil {
		logger.Warn("Initial tone not applied", zap.Error(err))
	}
	return s
}

// Mixer returns the live mixer.
func (s *Studio) Mixer() *engine.Mixer { return s.mixer }

// Library returns the music library.
func (s *Studio) Library() *music.Library { return s.lib }

// Settings returns a copy of the current settings.
func (s *Studio) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Status is a snapshot for the user interface.
type Status struct {
	Frequencies engine.State `json:"frequencies"`
	Music       engine.State `json:"music"`
	Mixer       engine.State `json:"mixer"`
	Exporting   bool         `json:"exporting"`
	Track       *music.Track `json:"track,omitempty"`
	Settings    Settings     `json:"settings"`
}

// Status returns the current playback and export state.
func (s *Studio) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	freq, mus := s.mixer.Frequencies().State(), s.mixer.Music().State()
	return Status{
		Frequencies: freq,
		Music:       mus,
		Mixer:       combined(freq, mus),
		Exporting:   s.exporting,
		Track:       s.lib.Current(),
		Settings:    s.settings,
	}
}

func combined(a, b engine.State) engine.State {
	if a == engine.StatePlaying || b == engine.StatePlaying {
		return engine.StatePlaying
	}
	return engine.StateIdle
}

// SelectTone switches the selected kind. Playing frequencies switch over
// without stopping.
func (s *Studio) SelectTone(k tone.Kind) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Tone = k
	if err := s.applyVariant(s.settings.Variant()); err != nil {
		return s.settings, err
	}
	return s.settings, nil
}

// UpdateTone applies patch to every kind it touches. Changes to the selected
// kind reach a playing voice immediately.
func (s *Studio) UpdateTone(patch tone.Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range tone.Kinds {
		if !patch.Touches(k) || k == s.settings.Tone {
			continue
		}
		v, errs := tone.Sanitize(patch.Apply(s.settings.variant(k)), s.settings.variant(k))
		tone.Report(s.logger, errs...)
		s.settings.setVariant(v)
	}
	if !patch.Touches(s.settings.Tone) {
		return s.settings, nil
	}
	next, err := s.mixer.Frequencies().Update(patch)
	if err != nil {
		return s.settings, err
	}
	s.settings.setVariant(next)
	return s.settings, nil
}

// ApplyPreset selects the preset's kind and parameters.
func (s *Studio) ApplyPreset(id string) (tone.Preset, error) {
	p, ok := tone.PresetByID(id)
	if !ok {
		return tone.Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Tone = p.Variant.Kind()
	if err := s.applyVariant(p.Variant); err != nil {
		return p, err
	}
	s.logger.Info("Preset applied", zap.String("preset", p.ID))
	return p, nil
}

// applyVariant hands v to the player and stores what it accepted. Callers
// hold s.mu.
func (s *Studio) applyVariant(v tone.Variant) error {
	p := s.mixer.Frequencies()
	err := p.SetVariant(v)
	s.settings.setVariant(p.Variant())
	return err
}

// PlayFrequencies starts the selected tone.
func (s *Studio) PlayFrequencies() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExportInProgress
	}
	err := s.mixer.Frequencies().Start(s.settings.Variant())
	if err != nil {
		s.events.publish(Event{Target: TargetFrequencies, State: engine.StateIdle.String(), Message: UserMessage(err)})
	}
	return err
}

// StopFrequencies stops the tone. It is a no-op when idle.
func (s *Studio) StopFrequencies() {
	s.mixer.Frequencies().Stop()
}

// PlayMusic starts the loaded track at the music volume.
func (s *Studio) PlayMusic(loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExportInProgress
	}
	if s.loading > 0 {
		return ErrMusicLoading
	}
	err := s.mixer.Music().Play(s.settings.MusicVolume, loop)
	if err != nil {
		s.events.publish(Event{Target: TargetMusic, State: engine.StateIdle.String(), Message: UserMessage(err)})
	}
	return err
}

// StopMusic stops the track. It is a no-op when idle.
func (s *Studio) StopMusic() {
	s.mixer.Music().Stop()
}

// StopAll stops everything and suspends the audio device.
func (s *Studio) StopAll() error {
	return s.mixer.StopAll()
}

// SetVolume sets the master volume.
func (s *Studio) SetVolume(v float64) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Volume, _ = tone.SanitizeLevel("volume", v, s.settings.Volume)
	s.mixer.SetMasterVolume(s.settings.Volume)
	return s.settings
}

// SetMusicVolume sets the music level.
func (s *Studio) SetMusicVolume(v float64) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.SetMusicVolume(v)
	s.settings.MusicVolume = s.mixer.Music().Volume()
	return s.settings
}

// SetFrequenciesVolume sets the tone level.
func (s *Studio) SetFrequenciesVolume(v float64) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.SetFrequenciesVolume(v)
	s.settings.FrequenciesVolume = s.mixer.Frequencies().Volume()
	return s.settings
}

// SetExportOptions sets the default export length and duration source.
func (s *Studio) SetExportOptions(minutes int, src render.DurationSource) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.ExportMinutes = ClampMinutes(minutes)
	s.settings.DurationSource = src
	return s.settings
}

// LoadMusic decodes an upload and makes it the current track. Playing music
// is stopped first; a running export keeps the old track until it finishes
// or ctx ends.
func (s *Studio) LoadMusic(ctx context.Context, name, mime string, data []byte) (*music.Track, error) {
	if !music.Accept(data, mime) {
		return nil, ErrNotAudio
	}
	s.events.publish(Event{Target: TargetMusic, Message: "Decoding " + name + "..."})
	buf, err := s.decoder.Decode(ctx, data, mime)
	if err != nil {
		s.events.publish(Event{Target: TargetMusic, Message: UserMessage(err)})
		return nil, err
	}
	track := music.NewTrack(name, mime, len(data), buf)

	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	s.mixer.Music().Stop()
	if err := s.lib.Replace(ctx, track); err != nil {
		return nil, fmt.Errorf("replace track: %w", err)
	}
	s.logger.Info("Music loaded",
		zap.String("track", track.ID),
		zap.String("name", name),
		zap.Duration("duration", track.Duration))
	s.events.publish(Event{Target: TargetMusic, Message: "Loaded " + name})
	return track, nil
}

// ClearMusic stops and removes the current track.
func (s *Studio) ClearMusic(ctx context.Context) error {
	s.mixer.Music().Stop()
	return s.lib.Clear(ctx)
}

// Close stops playback and releases the audio device.
func (s *Studio) Close() error {
	err := s.mixer.Close()
	s.events.close()
	return err
}

func (s *Studio) onChange(t engine.Target, st engine.State) {
	s.events.publish(Event{Target: t.String(), State: st.String()})
	freq, mus := s.mixer.Frequencies().State(), s.mixer.Music().State()
	s.events.publish(Event{Target: TargetMixer, State: combined(freq, mus).String()})
}

// UserMessage returns the text shown to the user for a failure.
func UserMessage(err error) string {
	var de *music.DecodeError
	switch {
	case errors.Is(err, engine.ErrEngineUnavailable):
		return "Audio output is not available on this system."
	case errors.Is(err, engine.ErrNoMusic):
		return "Load a music file first."
	case errors.As(err, &de):
		return "Could not read the audio file. Please choose another file."
	case errors.Is(err, render.ErrEmptyRender):
		return "Export failed. Please try again."
	case errors.Is(err, ErrExportInProgress):
		return "Wait for the export to finish."
	case errors.Is(err, ErrPlaybackActive):
		return "Stop playback before exporting."
	case errors.Is(err, ErrMusicLoading):
		return "Wait for the music to finish loading."
	case errors.Is(err, ErrNotAudio):
		return "Please choose an audio file."
	}
	return "Something went wrong: " + err.Error()
}
