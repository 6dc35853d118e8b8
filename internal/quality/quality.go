// Package quality defines the stream quality tiers and the downgrade rules
// applied when a track cannot supply the requested tier.
package quality

import "fmt"

// Tier is a stream quality tier, ordered from lowest to highest.
type Tier int

const (
	Low Tier = iota
	High
	Lossless
	HiResLossless
)

// String returns the tier name as used by the backend API.
func (t Tier) String() string {
	switch t {
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	case Lossless:
		return "LOSSLESS"
	case HiResLossless:
		return "HI_RES_LOSSLESS"
	default:
		return "UNKNOWN"
	}
}

// Parse converts a backend tier name to a Tier.
func Parse(s string) (Tier, error) {
	switch s {
	case "LOW":
		return Low, nil
	case "HIGH":
		return High, nil
	case "LOSSLESS":
		return Lossless, nil
	case "HI_RES_LOSSLESS":
		return HiResLossless, nil
	default:
		return Lossless, fmt.Errorf("unknown quality tier: %q", s)
	}
}

// Source indicates how the requested quality was chosen.
type Source int

const (
	SourceAuto Source = iota
	SourceManual
)

func (s Source) String() string {
	if s == SourceManual {
		return "manual"
	}
	return "auto"
}

// Normalize downgrades the requested tier to what the track can actually
// supply. Never request a tier the source cannot provide.
func Normalize(requested, trackMax Tier) Tier {
	if requested > trackMax {
		return trackMax
	}
	return requested
}

// NextLower returns the tier one step below t, clamped at Low.
func (t Tier) NextLower() Tier {
	if t <= Low {
		return Low
	}
	return t - 1
}

// IsHiRes reports whether the tier uses manifest (DASH) delivery.
func (t Tier) IsHiRes() bool {
	return t == HiResLossless
}
