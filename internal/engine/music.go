package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/metrics"
	"github.com/satindergrewal/aura/internal/music"
	"github.com/satindergrewal/aura/internal/tone"
)

// MusicChannel plays the library's current track on the shared output. It
// holds a library lease for as long as a source is playing.
type MusicChannel struct {
	out      *Output
	lib      *music.Library
	logger   *zap.Logger
	onChange ChangeFunc

	mu      sync.Mutex
	bus     bus
	session *Session
	loop    bool
}

// NewMusicChannel creates an idle music channel on out.
func NewMusicChannel(out *Output, lib *music.Library, volume float64, logger *zap.Logger, onChange ChangeFunc) *MusicChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	volume, _ = tone.SanitizeLevel("musicVolume", volume, 0.5)
	return &MusicChannel{
		out:      out,
		lib:      lib,
		logger:   logger,
		onChange: onChange,
		bus:      bus{out: out, level: volume},
		loop:     true,
	}
}

// Play starts the current track from the beginning at volume. A running
// source is replaced. It returns ErrNoMusic when no track is loaded.
func (m *MusicChannel) Play(volume float64, loop bool) error {
	m.mu.Lock()
	err := m.play(volume, loop)
	m.mu.Unlock()
	m.out.recordNodes()
	if err != nil {
		return err
	}
	if m.onChange != nil {
		m.onChange(TargetMusic, StatePlaying)
	}
	return nil
}

func (m *MusicChannel) play(volume float64, loop bool) error {
	track, release, ok := m.lib.Acquire()
	if !ok {
		return ErrNoMusic
	}
	ctx, busGain, err := m.bus.ensure()
	if err != nil {
		release()
		return err
	}

	m.session.Close()
	m.session = nil

	volume, verr := tone.SanitizeLevel("musicVolume", volume, m.bus.level)
	report(m.logger, verr)
	if err := m.bus.set(volume); err != nil {
		release()
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	src, err := ctx.NewBufferSource(track.Buffer)
	if err != nil {
		release()
		return err
	}
	src.SetLoop(loop)
	if err := firstErr(src.Connect(busGain), src.Start(ctx.CurrentTime())); err != nil {
		src.Release()
		release()
		return err
	}

	s := newSession(TargetMusic)
	s.source = src
	s.lease = release
	m.session = s
	m.loop = loop

	metrics.SessionsStartedTotal.WithLabelValues(TargetMusic.String(), "").Inc()
	m.logger.Info("Music started",
		zap.String("session", s.ID),
		zap.String("track", track.Name),
		zap.Bool("loop", loop),
		zap.Float64("volume", volume))
	return nil
}

// Stop tears down the running source and releases the library lease.
func (m *MusicChannel) Stop() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	s.Close()
	m.mu.Unlock()
	if s == nil {
		return
	}
	m.out.recordNodes()
	m.logger.Info("Music stopped", zap.String("session", s.ID))
	if m.onChange != nil {
		m.onChange(TargetMusic, StateIdle)
	}
}

// SetVolume sets the music level ahead of the master gain.
func (m *MusicChannel) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, verr := tone.SanitizeLevel("musicVolume", v, m.bus.level)
	report(m.logger, verr)
	if err := m.bus.set(v); err != nil {
		m.logger.Warn("Music volume not applied", zap.Error(err))
	}
}

// Volume returns the music level.
func (m *MusicChannel) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bus.level
}

// State reports Playing while a source is sounding. A non-looping track that
// has reached its end reads as Idle even before Stop.
func (m *MusicChannel) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.source.Ended() {
		return StateIdle
	}
	return StatePlaying
}
