// Package tone describes the three psychoacoustic tone variants, keeps their
// parameters inside declared ranges and builds their synthesis graphs.
package tone

import (
	"fmt"
	"strings"
)

// Kind identifies a tone variant.
type Kind int

const (
	KindIsochronic Kind = iota
	KindBinaural
	KindMonaural
)

// Kinds lists every variant in display order.
var Kinds = []Kind{KindIsochronic, KindBinaural, KindMonaural}

func (k Kind) String() string {
	switch k {
	case KindIsochronic:
		return "isochronic"
	case KindBinaural:
		return "binaural"
	case KindMonaural:
		return "monaural"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Channels returns the output channel count a render of this kind needs.
// Only binaural beats depend on stereo separation.
func (k Kind) Channels() int {
	if k == KindBinaural {
		return 2
	}
	return 1
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts a variant name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "isochronic":
		return KindIsochronic, nil
	case "binaural":
		return KindBinaural, nil
	case "monaural":
		return KindMonaural, nil
	}
	return 0, fmt.Errorf("unknown tone kind %q", s)
}

// Variant is one of Isochronic, Binaural or Monaural.
type Variant interface {
	Kind() Kind
	isVariant()
}

// Isochronic is a single carrier whose amplitude is modulated by a slow LFO.
type Isochronic struct {
	CarrierHz    float64 `json:"carrierFrequency"`
	PulseHz      float64 `json:"pulseFrequency"`
	DepthPercent float64 `json:"modulationDepth"`
	CarrierGain  float64 `json:"carrierGain"`
}

// Binaural is two pure tones, base-beat/2 hard left and base+beat/2 hard right.
type Binaural struct {
	BaseHz float64 `json:"baseFrequency"`
	BeatHz float64 `json:"beatFrequency"`
}

// Monaural is two pure tones summed into the same channel.
type Monaural struct {
	FrequencyOneHz float64 `json:"frequencyOne"`
	FrequencyTwoHz float64 `json:"frequencyTwo"`
}

func (Isochronic) Kind() Kind { return KindIsochronic }
func (Binaural) Kind() Kind   { return KindBinaural }
func (Monaural) Kind() Kind   { return KindMonaural }

func (Isochronic) isVariant() {}
func (Binaural) isVariant()   {}
func (Monaural) isVariant()   {}

// Left returns the left-ear frequency.
func (b Binaural) Left() float64 { return b.BaseHz - b.BeatHz/2 }

// Right returns the right-ear frequency.
func (b Binaural) Right() float64 { return b.BaseHz + b.BeatHz/2 }

// BeatHz returns the physical beat frequency of the two tones.
func (m Monaural) BeatHz() float64 {
	d := m.FrequencyTwoHz - m.FrequencyOneHz
	if d < 0 {
		return -d
	}
	return d
}
