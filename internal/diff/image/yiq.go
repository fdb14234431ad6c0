package image

// Color difference according to "Measuring perceived color difference using
// YIQ NTSC transmission color space in mobile applications" by Y. Kotsarenko
// and F. Ramos. The Y (luminance) row weighs green highest and blue least,
// matching human perceptual sensitivity.

// maxYIQDelta is the largest possible squared YIQ distance, reached between
// pure white and pure black. Threshold t maps to a cutoff of maxYIQDelta*t*t.
const maxYIQDelta = 35215.0

// colorDelta returns the squared YIQ distance between two RGBA pixels,
// negative when the second pixel is brighter than the first. Semi-transparent
// pixels are blended against white first, so two fully transparent pixels are
// always at distance zero. With yOnly only the brightness difference is
// returned.
func colorDelta(c1 [4]uint8, c2 [4]uint8, yOnly bool) float64 {
	if c1 == c2 {
		return 0
	}

	r1, g1, b1 := blendWhite(c1)
	r2, g2, b2 := blendWhite(c2)

	y1 := rgb2y(r1, g1, b1)
	y2 := rgb2y(r2, g2, b2)
	y := y1 - y2

	if yOnly {
		return y
	}

	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)

	delta := 0.5053*y*y + 0.299*i*i + 0.1957*q*q

	// Encode in the sign whether the pixel darkens or lightens.
	if y1 > y2 {
		return -delta
	}
	return delta
}

func blendWhite(c [4]uint8) (float64, float64, float64) {
	if c[3] == 255 {
		return float64(c[0]), float64(c[1]), float64(c[2])
	}
	a := float64(c[3]) / 255
	return blend(float64(c[0]), a), blend(float64(c[1]), a), blend(float64(c[2]), a)
}

func blend(c float64, a float64) float64 {
	return 255 + (c-255)*a
}

func rgb2y(r float64, g float64, b float64) float64 {
	return r*0.29889531 + g*0.58662247 + b*0.11448223
}

func rgb2i(r float64, g float64, b float64) float64 {
	return r*0.59597799 - g*0.27417610 - b*0.32180189
}

func rgb2q(r float64, g float64, b float64) float64 {
	return r*0.21147017 - g*0.52261711 + b*0.31114694
}
