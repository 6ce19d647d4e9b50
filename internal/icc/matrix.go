package icc

import (
	"errors"
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/1broseidon/iccsync/internal/edid"
)

// ErrUnusableColorimetry is returned when the primaries cannot form a
// colorant matrix.
var ErrUnusableColorimetry = errors.New("unusable colorimetry")

const epsilon = 1e-6

// pcsIlluminant is the D50 white the ICC profile connection space uses
var pcsIlluminant = [3]float64{0.9642, 1.0, 0.8249}

type matrix3 [3][3]float64

var bradford = matrix3{
	{0.8951, 0.2664, -0.1614},
	{-0.7502, 1.7135, 0.0367},
	{0.0389, -0.0685, 1.0296},
}

func (m matrix3) mul(n matrix3) matrix3 {
	var out matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * n[k][j]
			}
		}
	}
	return out
}

func (m matrix3) apply(v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return out
}

func (m matrix3) inverse() (matrix3, bool) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-9 {
		return matrix3{}, false
	}
	inv := 1 / det
	return matrix3{
		{
			(m[1][1]*m[2][2] - m[1][2]*m[2][1]) * inv,
			(m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv,
			(m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv,
		},
		{
			(m[1][2]*m[2][0] - m[1][0]*m[2][2]) * inv,
			(m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv,
			(m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv,
		},
		{
			(m[1][0]*m[2][1] - m[1][1]*m[2][0]) * inv,
			(m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv,
			(m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv,
		},
	}, true
}

func xyToXYZ(name string, x, y float64) ([3]float64, error) {
	if y < epsilon {
		return [3]float64{}, fmt.Errorf("%w: %s chromaticity has y=%v", ErrUnusableColorimetry, name, y)
	}
	X, Y, Z := colorful.XyyToXyz(x, y, 1)
	return [3]float64{X, Y, Z}, nil
}

// adaptation returns the Bradford transform taking colors under white src
// to white dst.
func adaptation(src, dst [3]float64) (matrix3, error) {
	coneSrc := bradford.apply(src)
	coneDst := bradford.apply(dst)
	var scale matrix3
	for i := 0; i < 3; i++ {
		if math.Abs(coneSrc[i]) < epsilon {
			return matrix3{}, fmt.Errorf("%w: degenerate white point", ErrUnusableColorimetry)
		}
		scale[i][i] = coneDst[i] / coneSrc[i]
	}
	inv, ok := bradford.inverse()
	if !ok {
		return matrix3{}, fmt.Errorf("%w: bradford matrix is singular", ErrUnusableColorimetry)
	}
	return inv.mul(scale).mul(bradford), nil
}

// colorants computes the D50-adapted RGB->XYZ matrix (columns are the red,
// green and blue colorants) and the adaptation applied to get there.
func colorants(id edid.Identity) (rgb matrix3, chad matrix3, err error) {
	r, err := xyToXYZ("red", id.Red.X, id.Red.Y)
	if err != nil {
		return rgb, chad, err
	}
	g, err := xyToXYZ("green", id.Green.X, id.Green.Y)
	if err != nil {
		return rgb, chad, err
	}
	b, err := xyToXYZ("blue", id.Blue.X, id.Blue.Y)
	if err != nil {
		return rgb, chad, err
	}
	w, err := xyToXYZ("white", id.White.X, id.White.Y)
	if err != nil {
		return rgb, chad, err
	}

	primaries := matrix3{
		{r[0], g[0], b[0]},
		{r[1], g[1], b[1]},
		{r[2], g[2], b[2]},
	}
	inv, ok := primaries.inverse()
	if !ok {
		return rgb, chad, fmt.Errorf("%w: primaries are collinear", ErrUnusableColorimetry)
	}
	// scale each primary so that R=G=B=1 lands on the white point
	s := inv.apply(w)
	var native matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			native[i][j] = primaries[i][j] * s[j]
		}
	}

	chad, err = adaptation(w, pcsIlluminant)
	if err != nil {
		return rgb, chad, err
	}
	return chad.mul(native), chad, nil
}
