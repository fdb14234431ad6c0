package image

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Rectangle is an axis-aligned region in image coordinates, used both for
// ignored regions and for the bounding box of detected differences.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rectangle) Contains(x int, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

func (r Rectangle) Overlaps(o Rectangle) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return !(r.X+r.Width <= o.X || o.X+o.Width <= r.X ||
		r.Y+r.Height <= o.Y || o.Y+o.Height <= r.Y)
}

// Union returns the smallest rectangle covering both r and o. An empty
// rectangle acts as the identity.
func (r Rectangle) Union(o Rectangle) Rectangle {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}

	minX := r.X
	if o.X < minX {
		minX = o.X
	}

	minY := r.Y
	if o.Y < minY {
		minY = o.Y
	}

	maxX := r.X + r.Width
	if o.X+o.Width > maxX {
		maxX = o.X + o.Width
	}

	maxY := r.Y + r.Height
	if o.Y+o.Height > maxY {
		maxY = o.Y + o.Height
	}

	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}

// ParseRectangle parses an "x,y,w,h" region argument.
func ParseRectangle(s string) (Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rectangle{}, xerrors.Errorf("region %q is not of the form x,y,w,h: %w", s, ErrInvalidConfig)
	}

	values := make([]int, 4)
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Rectangle{}, xerrors.Errorf("region %q has a non-integer component: %w", s, ErrInvalidConfig)
		}
		values[i] = v
	}

	r := Rectangle{X: values[0], Y: values[1], Width: values[2], Height: values[3]}
	if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 {
		return Rectangle{}, xerrors.Errorf("region %q is degenerate: %w", s, ErrInvalidConfig)
	}
	return r, nil
}
