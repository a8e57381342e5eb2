package tone

// Preset is a named, ready-made variant.
type Preset struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Variant     Variant `json:"settings"`
}

var presets = []Preset{
	{
		ID:          "focus-alpha-binaural",
		Name:        "Focus (Alpha Binaural)",
		Description: "Mental clarity and concentration",
		Variant:     Binaural{BaseHz: 105, BeatHz: 10},
	},
	{
		ID:          "meditation-theta-binaural",
		Name:        "Meditation (Theta Binaural)",
		Description: "Deep relaxation and meditation",
		Variant:     Binaural{BaseHz: 139.1, BeatHz: 6},
	},
	{
		ID:          "solfeggio-528-isochronic",
		Name:        "Solfeggio 528Hz (Isochronic)",
		Description: "Emotional balance and transformation",
		Variant:     Isochronic{CarrierHz: 528, PulseHz: 7.83, DepthPercent: 50, CarrierGain: 0.8},
	},
	{
		ID:          "solfeggio-396-monaural",
		Name:        "Solfeggio 396Hz (Monaural)",
		Description: "Release of fear and emotional cleansing",
		Variant:     Monaural{FrequencyOneHz: 396, FrequencyTwoHz: 398},
	},
	{
		ID:          "astral-theta-isochronic",
		Name:        "Astral Projection (Theta Isochronic)",
		Description: "Altered states of consciousness",
		Variant:     Isochronic{CarrierHz: 100, PulseHz: 4.5, DepthPercent: 60, CarrierGain: 0.7},
	},
	{
		ID:          "healing-432-isochronic",
		Name:        "General Healing (432Hz Isochronic)",
		Description: "Harmonisation and energetic healing",
		Variant:     Isochronic{CarrierHz: 432, PulseHz: 10, DepthPercent: 40, CarrierGain: 0.8},
	},
}

// Presets returns the built-in presets in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// PresetByID looks up a preset.
func PresetByID(id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}
