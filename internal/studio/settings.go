package studio

import (
	"github.com/satindergrewal/aura/internal/render"
	"github.com/satindergrewal/aura/internal/tone"
)

// Export length limits in minutes.
const (
	MinExportMinutes = 1
	MaxExportMinutes = 120
)

// Settings is everything the user has chosen. Each kind keeps its own
// parameters so switching kinds and back restores them.
type Settings struct {
	Tone              tone.Kind             `json:"tone"`
	Isochronic        tone.Isochronic       `json:"isochronic"`
	Binaural          tone.Binaural         `json:"binaural"`
	Monaural          tone.Monaural         `json:"monaural"`
	Volume            float64               `json:"volume"`
	MusicVolume       float64               `json:"musicVolume"`
	FrequenciesVolume float64               `json:"frequenciesVolume"`
	ExportMinutes     int                   `json:"exportMinutes"`
	DurationSource    render.DurationSource `json:"durationSource"`
}

// DefaultSettings returns the factory settings.
func DefaultSettings() Settings {
	return Settings{
		Tone:              tone.KindIsochronic,
		Isochronic:        tone.Defaults(tone.KindIsochronic).(tone.Isochronic),
		Binaural:          tone.Defaults(tone.KindBinaural).(tone.Binaural),
		Monaural:          tone.Defaults(tone.KindMonaural).(tone.Monaural),
		Volume:            0.5,
		MusicVolume:       0.7,
		FrequenciesVolume: 0.5,
		ExportMinutes:     5,
		DurationSource:    render.Explicit,
	}
}

// Variant returns the parameters of the selected kind.
func (s Settings) Variant() tone.Variant {
	return s.variant(s.Tone)
}

func (s Settings) variant(k tone.Kind) tone.Variant {
	switch k {
	case tone.KindBinaural:
		return s.Binaural
	case tone.KindMonaural:
		return s.Monaural
	}
	return s.Isochronic
}

// setVariant stores v under its kind without changing the selection.
func (s *Settings) setVariant(v tone.Variant) {
	switch t := v.(type) {
	case tone.Isochronic:
		s.Isochronic = t
	case tone.Binaural:
		s.Binaural = t
	case tone.Monaural:
		s.Monaural = t
	}
}

// ClampMinutes limits an export length to [MinExportMinutes, MaxExportMinutes].
func ClampMinutes(m int) int {
	return max(MinExportMinutes, min(m, MaxExportMinutes))
}

// normalize sanitizes every field in place.
func (s *Settings) normalize() {
	for _, k := range tone.Kinds {
		v, _ := tone.Sanitize(s.variant(k), nil)
		s.setVariant(v)
	}
	s.Volume, _ = tone.SanitizeLevel("volume", s.Volume, 0.5)
	s.MusicVolume, _ = tone.SanitizeLevel("musicVolume", s.MusicVolume, 0.7)
	s.FrequenciesVolume, _ = tone.SanitizeLevel("frequenciesVolume", s.FrequenciesVolume, 0.5)
	s.ExportMinutes = ClampMinutes(s.ExportMinutes)
}
