package engine

import (
	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/music"
)

// Volumes are the starting levels of a Mixer.
type Volumes struct {
	Master      float64
	Frequencies float64
	Music       float64
}

// Mixer routes the tone player and the music channel through their own
// gains into one master gain. Either side starts and stops without touching
// the other.
type Mixer struct {
	out   *Output
	freq  *Player
	music *MusicChannel
}

// NewMixer wires a player and a music channel onto a new output.
func NewMixer(sampleRate, channels int, vol Volumes, open Opener, lib *music.Library, logger *zap.Logger, onChange ChangeFunc) *Mixer {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := NewOutput(sampleRate, channels, vol.Master, open, logger.Named("output"))
	return &Mixer{
		out:   out,
		freq:  NewPlayer(out, vol.Frequencies, logger.Named("frequencies"), onChange),
		music: NewMusicChannel(out, lib, vol.Music, logger.Named("music"), onChange),
	}
}

// Frequencies returns the tone player.
func (m *Mixer) Frequencies() *Player { return m.freq }

// Music returns the music channel.
func (m *Mixer) Music() *MusicChannel { return m.music }

// Output returns the shared output.
func (m *Mixer) Output() *Output { return m.out }

// SetMasterVolume sets the level applied after both sources are summed.
func (m *Mixer) SetMasterVolume(v float64) { m.freq.SetGlobalVolume(v) }

// SetFrequenciesVolume sets the tone player's level.
func (m *Mixer) SetFrequenciesVolume(v float64) { m.freq.SetVolume(v) }

// SetMusicVolume sets the music channel's level.
func (m *Mixer) SetMusicVolume(v float64) { m.music.SetVolume(v) }

// StopAll stops both sources and suspends the output clock.
func (m *Mixer) StopAll() error {
	m.freq.Stop()
	m.music.Stop()
	return m.out.Suspend()
}

// Close stops both sources and closes the output.
func (m *Mixer) Close() error {
	m.freq.Stop()
	m.music.Stop()
	return m.out.Close()
}
