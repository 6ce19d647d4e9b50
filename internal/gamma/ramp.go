// Package gamma builds per-channel CRTC gamma ramps.
package gamma

import (
	"math"

	"github.com/1broseidon/iccsync/internal/icc"
)

// FullScale is the largest ramp entry
const FullScale = 0xffff

// Ramp holds one lookup table per channel, all of equal length
type Ramp struct {
	Red   []uint16
	Green []uint16
	Blue  []uint16
}

// Size returns the number of entries per channel
func (r Ramp) Size() int {
	return len(r.Red)
}

// Linear returns the identity ramp of n entries. Entry i is
// round(i*FullScale/(n-1)); a single-entry ramp holds FullScale.
func Linear(n int) Ramp {
	if n <= 0 {
		return Ramp{}
	}
	values := make([]uint16, n)
	if n == 1 {
		values[0] = FullScale
	} else {
		for i := range values {
			values[i] = uint16(math.Round(float64(i) * FullScale / float64(n-1)))
		}
	}
	return Ramp{
		Red:   values,
		Green: append([]uint16(nil), values...),
		Blue:  append([]uint16(nil), values...),
	}
}

// FromCurve scales normalized channel curves to ramp entries, clamping
// each value to [0,1].
func FromCurve(r, g, b []float64) Ramp {
	return Ramp{Red: scale(r), Green: scale(g), Blue: scale(b)}
}

func scale(curve []float64) []uint16 {
	out := make([]uint16, len(curve))
	for i, v := range curve {
		if math.IsNaN(v) || v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		out[i] = uint16(math.Round(v * FullScale))
	}
	return out
}

// ForProfile returns the ramp of n entries for p: its tone curve when it
// carries one, otherwise the linear ramp. A nil profile resets to linear.
func ForProfile(p *icc.Profile, n int) Ramp {
	if p == nil || n <= 0 {
		return Linear(n)
	}
	r, g, b, ok := p.ToneCurve(n)
	if !ok {
		return Linear(n)
	}
	return FromCurve(r, g, b)
}
