package image

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRectangle_Contains(t *testing.T) {
	r := Rectangle{X: 2, Y: 3, Width: 4, Height: 5}

	cases := []struct {
		name string
		x    int
		y    int
		want bool
	}{
		{"TopLeftCorner", 2, 3, true},
		{"Interior", 4, 5, true},
		{"BottomRightInside", 5, 7, true},
		{"RightEdgeExclusive", 6, 3, false},
		{"BottomEdgeExclusive", 2, 8, false},
		{"Outside", 0, 0, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := r.Contains(c.x, c.y); got != c.want {
				t.Errorf("Contains(%d, %d) = %v, want %v", c.x, c.y, got, c.want)
			}
		})
	}
}

func TestRectangle_Overlaps(t *testing.T) {
	r := Rectangle{X: 0, Y: 0, Width: 10, Height: 10}

	if !r.Overlaps(Rectangle{X: 5, Y: 5, Width: 10, Height: 10}) {
		t.Error("Expected overlapping rectangles to overlap")
	}
	if r.Overlaps(Rectangle{X: 10, Y: 0, Width: 5, Height: 5}) {
		t.Error("Expected touching rectangles not to overlap")
	}
	if r.Overlaps(Rectangle{}) {
		t.Error("Expected the empty rectangle not to overlap anything")
	}
}

func TestRectangle_Union(t *testing.T) {
	t.Run("Disjoint", func(t *testing.T) {
		got := Rectangle{X: 1, Y: 1, Width: 2, Height: 2}.Union(Rectangle{X: 5, Y: 6, Width: 1, Height: 1})
		want := Rectangle{X: 1, Y: 1, Width: 5, Height: 6}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Unexpected union (-want +got):\n%s", diff)
		}
	})

	t.Run("EmptyIsIdentity", func(t *testing.T) {
		r := Rectangle{X: 3, Y: 4, Width: 5, Height: 6}
		if got := r.Union(Rectangle{}); got != r {
			t.Errorf("Expected union with empty to be %+v, got %+v", r, got)
		}
		if got := (Rectangle{}).Union(r); got != r {
			t.Errorf("Expected union with empty to be %+v, got %+v", r, got)
		}
	})
}

func TestParseRectangle(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		got, err := ParseRectangle("10,20,30,40")
		if err != nil {
			t.Fatalf("ParseRectangle failed: %v", err)
		}
		want := Rectangle{X: 10, Y: 20, Width: 30, Height: 40}
		if got != want {
			t.Errorf("Expected %+v, got %+v", want, got)
		}
	})

	t.Run("ValidWithSpaces", func(t *testing.T) {
		got, err := ParseRectangle("1, 2, 3, 4")
		if err != nil {
			t.Fatalf("ParseRectangle failed: %v", err)
		}
		if got != (Rectangle{X: 1, Y: 2, Width: 3, Height: 4}) {
			t.Errorf("Unexpected rectangle %+v", got)
		}
	})

	invalid := []struct {
		name string
		in   string
	}{
		{"TooFewComponents", "1,2,3"},
		{"NonInteger", "1,2,three,4"},
		{"ZeroWidth", "1,2,0,4"},
		{"NegativeOrigin", "-1,2,3,4"},
	}
	for _, c := range invalid {
		t.Run(c.name, func(t *testing.T) {
			if _, err := ParseRectangle(c.in); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig for %q, got %v", c.in, err)
			}
		})
	}
}
