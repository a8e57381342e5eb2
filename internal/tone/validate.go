package tone

import (
	"fmt"
	"math"
)

// Range is the declared {min, max, step} of a parameter.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Contains reports whether v is finite and inside the range.
func (r Range) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= r.Min && v <= r.Max
}

var (
	CarrierRange   = Range{Min: 20, Max: 1500, Step: 0.1}
	PulseRange     = Range{Min: 0.5, Max: 40, Step: 0.1}
	DepthRange     = Range{Min: 0, Max: 100, Step: 1}
	GainRange      = Range{Min: 0, Max: 1, Step: 0.01}
	BaseRange      = Range{Min: 20, Max: 1500, Step: 0.1}
	BeatRange      = Range{Min: 0.5, Max: 50, Step: 0.1}
	FrequencyRange = Range{Min: 20, Max: 1500, Step: 0.1}
)

// Ranges maps the JSON field names of every variant to their ranges.
var Ranges = map[string]Range{
	"carrierFrequency": CarrierRange,
	"pulseFrequency":   PulseRange,
	"modulationDepth":  DepthRange,
	"carrierGain":      GainRange,
	"baseFrequency":    BaseRange,
	"beatFrequency":    BeatRange,
	"frequencyOne":     FrequencyRange,
	"frequencyTwo":     FrequencyRange,
}

// Defaults returns the documented default parameters of k.
func Defaults(k Kind) Variant {
	switch k {
	case KindBinaural:
		return Binaural{BaseHz: 105, BeatHz: 10}
	case KindMonaural:
		return Monaural{FrequencyOneHz: 200, FrequencyTwoHz: 204}
	default:
		return Isochronic{CarrierHz: 136.1, PulseHz: 7.83, DepthPercent: 50, CarrierGain: 0.8}
	}
}

// ValidationError records a parameter that was corrected before it reached
// the synthesis layer. It is a report, not a failure.
type ValidationError struct {
	Field   string
	Value   float64
	Applied float64
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v %s, using %v", e.Field, e.Value, e.Reason, e.Applied)
}

// check returns v when it is finite and in range. Otherwise it appends a
// ValidationError and returns the nearest bound, or fallback for non-finite
// values.
func check(field string, v, fallback float64, r Range, errs *[]ValidationError) float64 {
	var applied float64
	var reason string
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		applied, reason = r.Clamp(fallback), "is not finite"
		if math.IsNaN(applied) {
			applied = r.Min
		}
	case v < r.Min:
		applied, reason = r.Min, "is below minimum"
	case v > r.Max:
		applied, reason = r.Max, "is above maximum"
	default:
		return v
	}
	*errs = append(*errs, ValidationError{Field: field, Value: v, Applied: applied, Reason: reason})
	return applied
}

// Sanitize clamps every field of v into its declared range. Non-finite fields
// take the value from fallback, which should be the last known good variant
// of the same kind; a nil or mismatched fallback means Defaults. A nil v
// returns the fallback. The returned errors describe each correction.
func Sanitize(v, fallback Variant) (Variant, []ValidationError) {
	if v == nil {
		if fallback == nil {
			fallback = Defaults(KindIsochronic)
		}
		v = fallback
	}
	if fallback == nil || fallback.Kind() != v.Kind() {
		fallback = Defaults(v.Kind())
	}

	var errs []ValidationError
	switch t := v.(type) {
	case Isochronic:
		fb := fallback.(Isochronic)
		t.CarrierHz = check("carrierFrequency", t.CarrierHz, fb.CarrierHz, CarrierRange, &errs)
		t.PulseHz = check("pulseFrequency", t.PulseHz, fb.PulseHz, PulseRange, &errs)
		t.DepthPercent = check("modulationDepth", t.DepthPercent, fb.DepthPercent, DepthRange, &errs)
		t.CarrierGain = check("carrierGain", t.CarrierGain, fb.CarrierGain, GainRange, &errs)
		return t, errs
	case Binaural:
		fb := fallback.(Binaural)
		t.BaseHz = check("baseFrequency", t.BaseHz, fb.BaseHz, BaseRange, &errs)
		t.BeatHz = check("beatFrequency", t.BeatHz, fb.BeatHz, BeatRange, &errs)
		// keep the left tone above zero
		if t.BeatHz > t.BaseHz {
			errs = append(errs, ValidationError{Field: "beatFrequency", Value: t.BeatHz, Applied: t.BaseHz, Reason: "exceeds base frequency"})
			t.BeatHz = t.BaseHz
		}
		return t, errs
	case Monaural:
		fb := fallback.(Monaural)
		t.FrequencyOneHz = check("frequencyOne", t.FrequencyOneHz, fb.FrequencyOneHz, FrequencyRange, &errs)
		t.FrequencyTwoHz = check("frequencyTwo", t.FrequencyTwoHz, fb.FrequencyTwoHz, FrequencyRange, &errs)
		return t, errs
	}
	panic(fmt.Sprintf("tone: unhandled variant %T", v))
}

// SanitizeLevel clamps a volume to [0, 1]. Non-finite values take fallback.
func SanitizeLevel(field string, v, fallback float64) (float64, *ValidationError) {
	var errs []ValidationError
	applied := check(field, v, fallback, GainRange, &errs)
	if len(errs) == 0 {
		return applied, nil
	}
	return applied, &errs[0]
}

// Patch is a partial parameter update. Nil fields are left unchanged; fields
// that do not belong to the variant being patched are ignored.
type Patch struct {
	CarrierHz      *float64 `json:"carrierFrequency,omitempty"`
	PulseHz        *float64 `json:"pulseFrequency,omitempty"`
	DepthPercent   *float64 `json:"modulationDepth,omitempty"`
	CarrierGain    *float64 `json:"carrierGain,omitempty"`
	BaseHz         *float64 `json:"baseFrequency,omitempty"`
	BeatHz         *float64 `json:"beatFrequency,omitempty"`
	FrequencyOneHz *float64 `json:"frequencyOne,omitempty"`
	FrequencyTwoHz *float64 `json:"frequencyTwo,omitempty"`
}

// Apply returns v with the patch's fields for v's kind overwritten.
func (p Patch) Apply(v Variant) Variant {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	switch t := v.(type) {
	case Isochronic:
		set(&t.CarrierHz, p.CarrierHz)
		set(&t.PulseHz, p.PulseHz)
		set(&t.DepthPercent, p.DepthPercent)
		set(&t.CarrierGain, p.CarrierGain)
		return t
	case Binaural:
		set(&t.BaseHz, p.BaseHz)
		set(&t.BeatHz, p.BeatHz)
		return t
	case Monaural:
		set(&t.FrequencyOneHz, p.FrequencyOneHz)
		set(&t.FrequencyTwoHz, p.FrequencyTwoHz)
		return t
	}
	return v
}

// Touches reports whether the patch sets any field of kind k.
func (p Patch) Touches(k Kind) bool {
	switch k {
	case KindIsochronic:
		return p.CarrierHz != nil || p.PulseHz != nil || p.DepthPercent != nil || p.CarrierGain != nil
	case KindBinaural:
		return p.BaseHz != nil || p.BeatHz != nil
	case KindMonaural:
		return p.FrequencyOneHz != nil || p.FrequencyTwoHz != nil
	}
	return false
}
