package image

import "image"

// Anti-aliasing detection based on "Anti-aliased Pixel and Intensity Slope
// Detector" by V. Vysniauskas, 2009. A candidate pixel is attributed to edge
// smoothing when its neighborhood forms a brightness slope (both darker and
// brighter neighbors, few equal siblings) and the extreme neighbor sits in a
// flat area of both images.

// A pixel with more than maxEqualSiblings identical neighbors is in a flat
// area and cannot be anti-aliasing.
const maxEqualSiblings = 2

// antialiased reports whether the pixel at (x1, y1) of img looks like an
// anti-aliasing artifact when checked against other. Coordinates are
// zero-based offsets from the image origin.
func antialiased(img *image.NRGBA, other *image.NRGBA, x1 int, y1 int, width int, height int) bool {
	x0 := max(x1-1, 0)
	y0 := max(y1-1, 0)
	x2 := min(x1+1, width-1)
	y2 := min(y1+1, height-1)

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}

	center := pixelAt(img, x1, y1)

	var minDelta, maxDelta float64
	var minX, minY, maxX, maxY int
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}

			// Brightness delta between the center pixel and this neighbor.
			delta := colorDelta(center, pixelAt(img, x, y), true)

			switch {
			case delta == 0:
				zeroes++
				if zeroes > maxEqualSiblings {
					return false
				}
			case delta < minDelta:
				minDelta = delta
				minX = x
				minY = y
			case delta > maxDelta:
				maxDelta = delta
				maxX = x
				maxY = y
			}
		}
	}

	// Without both darker and brighter neighbors there is no slope.
	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	return (hasManySiblings(img, minX, minY, width, height) && hasManySiblings(other, minX, minY, width, height)) ||
		(hasManySiblings(img, maxX, maxY, width, height) && hasManySiblings(other, maxX, maxY, width, height))
}

// hasManySiblings reports whether the pixel at (x1, y1) has more than
// maxEqualSiblings neighbors of exactly its own color.
func hasManySiblings(img *image.NRGBA, x1 int, y1 int, width int, height int) bool {
	x0 := max(x1-1, 0)
	y0 := max(y1-1, 0)
	x2 := min(x1+1, width-1)
	y2 := min(y1+1, height-1)

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}

	center := pixelAt(img, x1, y1)

	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}

			if center == pixelAt(img, x, y) {
				zeroes++
			}
			if zeroes > maxEqualSiblings {
				return true
			}
		}
	}

	return false
}

// pixelAt reads the RGBA quadruple at the zero-based offset (x, y).
func pixelAt(img *image.NRGBA, x int, y int) (c [4]uint8) {
	bounds := img.Bounds()
	i := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
	copy(c[:], img.Pix[i:i+4:i+4])
	return
}
