package icc

import (
	"errors"
	"math"
)

const (
	vcgtTable   = 0
	vcgtFormula = 1
)

var errBadVCGT = errors.New("malformed vcgt tag")

// videoCardGamma is the Apple 'vcgt' calibration curve a display profile
// may carry. It is either a sampled table or a per-channel power formula.
type videoCardGamma struct {
	table   [3][]float64
	formula bool
	gamma   [3]float64
	min     [3]float64
	max     [3]float64
}

func parseVCGT(tag []byte) (*videoCardGamma, error) {
	if len(tag) < 12 {
		return nil, errBadVCGT
	}
	v := &videoCardGamma{}
	switch be.Uint32(tag[8:]) {
	case vcgtTable:
		if len(tag) < 18 {
			return nil, errBadVCGT
		}
		channels := int(be.Uint16(tag[12:]))
		count := int(be.Uint16(tag[14:]))
		width := int(be.Uint16(tag[16:]))
		if (channels != 1 && channels != 3) || count < 2 || (width != 1 && width != 2) {
			return nil, errBadVCGT
		}
		data := tag[18:]
		if len(data) < channels*count*width {
			return nil, errBadVCGT
		}
		scale := float64(math.MaxUint8)
		if width == 2 {
			scale = math.MaxUint16
		}
		for ch := 0; ch < channels; ch++ {
			values := make([]float64, count)
			for i := range values {
				pos := (ch*count + i) * width
				if width == 1 {
					values[i] = float64(data[pos]) / scale
				} else {
					values[i] = float64(be.Uint16(data[pos:])) / scale
				}
			}
			v.table[ch] = values
		}
		if channels == 1 {
			v.table[1], v.table[2] = v.table[0], v.table[0]
		}
	case vcgtFormula:
		if len(tag) < 12+9*4 {
			return nil, errBadVCGT
		}
		v.formula = true
		for ch := 0; ch < 3; ch++ {
			base := 12 + ch*12
			v.gamma[ch] = fromS15Fixed16(be.Uint32(tag[base:]))
			v.min[ch] = fromS15Fixed16(be.Uint32(tag[base+4:]))
			v.max[ch] = fromS15Fixed16(be.Uint32(tag[base+8:]))
		}
	default:
		return nil, errBadVCGT
	}
	return v, nil
}

func (v *videoCardGamma) sample(ch int, x float64) float64 {
	if v.formula {
		return v.min[ch] + (v.max[ch]-v.min[ch])*math.Pow(x, v.gamma[ch])
	}
	values := v.table[ch]
	pos := x * float64(len(values)-1)
	i := int(pos)
	if i >= len(values)-1 {
		return values[len(values)-1]
	}
	frac := pos - float64(i)
	return values[i] + (values[i+1]-values[i])*frac
}

// ToneCurve samples the profile's vcgt at n evenly spaced inputs in [0,1].
// A single sample is taken at full input. ok is false when the profile
// has no usable vcgt.
func (p *Profile) ToneCurve(n int) (r, g, b []float64, ok bool) {
	if p == nil || p.vcgt == nil || n <= 0 {
		return nil, nil, nil, false
	}
	curves := [3][]float64{make([]float64, n), make([]float64, n), make([]float64, n)}
	for i := 0; i < n; i++ {
		x := 1.0
		if n > 1 {
			x = float64(i) / float64(n-1)
		}
		for ch := 0; ch < 3; ch++ {
			curves[ch][i] = p.vcgt.sample(ch, x)
		}
	}
	return curves[0], curves[1], curves[2], true
}
