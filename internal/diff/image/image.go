package image

import (
	"context"
	"errors"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/xerrors"
)

// Classification of a single pixel position after comparison.
type Classification uint8

const (
	Same Classification = iota
	Different
	AntiAliased
)

var (
	ErrDimensionMismatch = errors.New("image dimensions do not match")
	ErrInvalidConfig     = errors.New("invalid comparison config")
)

type DiffResult struct {
	// Image is the rendered diff mask. By default it is a copy of the
	// baseline with differing pixels recolored; with Config.DiffMask only
	// the differing pixels are drawn over a transparent background.
	Image                 *image.NRGBA
	DiffPixelCount        int64
	AntiAliasedPixelCount int64
	TotalPixelCount       int64
	// DiffPercentage is DiffPixelCount / TotalPixelCount * 100.
	DiffPercentage float64
	// DiffLines holds the row indices that contain at least one differing
	// pixel. Populated only when Config.OutputDiffLines is set.
	DiffLines []int
	// DiffBounds is the bounding rectangle of all differing pixels. Empty
	// when the images match.
	DiffBounds Rectangle
	// DeltaMean and DeltaMax summarize the perceptual distance of the
	// differing pixels. Zero when the images match.
	DeltaMean float64
	DeltaMax  float64
}

type Differ interface {
	Calculate(ctx context.Context, baseline *image.NRGBA, target *image.NRGBA) (*DiffResult, error)
}

type Config struct {
	// Threshold is the perceptual color distance cutoff on a 0-1 scale.
	Threshold float64
	// DetectAntiAliasing reclassifies differences attributable to edge
	// smoothing so they are not counted.
	DetectAntiAliasing bool
	// IgnoreRegions are always classified Same regardless of content.
	IgnoreRegions []Rectangle
	// DiffColor is the highlight color for differing pixels. The zero value
	// selects opaque red.
	DiffColor color.NRGBA
	// DiffMask renders only differing pixels over a transparent background.
	DiffMask bool
	// OutputDiffLines collects the row indices of differing pixels.
	OutputDiffLines bool
}

func DefaultConfig() Config {
	return Config{
		Threshold: 0.1,
		DiffColor: color.NRGBA{R: 255, A: 255},
	}
}

func (c Config) validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return xerrors.Errorf("threshold %v is outside [0, 1]: %w", c.Threshold, ErrInvalidConfig)
	}
	for _, region := range c.IgnoreRegions {
		if region.X < 0 || region.Y < 0 || region.Width <= 0 || region.Height <= 0 {
			return xerrors.Errorf("ignore region %+v is malformed: %w", region, ErrInvalidConfig)
		}
	}
	return nil
}

// ParseDiffColor parses a hex color such as "#ff0000" into the highlight
// color used for differing pixels.
func ParseDiffColor(s string) (color.NRGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, xerrors.Errorf("diff color %q: %w", s, ErrInvalidConfig)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
