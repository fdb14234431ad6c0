package image

import (
	"context"
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PerceptualDiff compares two equally sized pixel buffers using a YIQ
// perceptual color distance and renders a diff mask.
type PerceptualDiff struct {
	config   Config
	maxDelta float64
}

func NewPerceptualDiff(config Config) (*PerceptualDiff, error) {
	if config.DiffColor == (color.NRGBA{}) {
		config.DiffColor = color.NRGBA{R: 255, A: 255}
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &PerceptualDiff{
		config:   config,
		maxDelta: maxYIQDelta * config.Threshold * config.Threshold,
	}, nil
}

// band is the per-worker accumulator. Each worker owns a disjoint row range
// of the output mask, so no locking is needed; bands are merged by index
// after all workers finish, which keeps the result independent of scheduling
// order.
type band struct {
	startY int
	endY   int

	diffCount int64
	aaCount   int64
	lines     []int
	bounds    Rectangle
	deltas    []float64
}

func (p *PerceptualDiff) Calculate(ctx context.Context, baseline *image.NRGBA, target *image.NRGBA) (*DiffResult, error) {
	baselineBounds := baseline.Bounds()
	targetBounds := target.Bounds()
	width := baselineBounds.Dx()
	height := baselineBounds.Dy()
	if width != targetBounds.Dx() || height != targetBounds.Dy() {
		return nil, xerrors.Errorf("baseline is %dx%d, target is %dx%d: %w",
			width, height, targetBounds.Dx(), targetBounds.Dy(), ErrDimensionMismatch)
	}

	totalPixelCount := int64(width) * int64(height)
	mask := image.NewNRGBA(image.Rect(0, 0, width, height))

	if baseline == target || totalPixelCount == 0 {
		if !p.config.DiffMask {
			copyPixels(mask, baseline)
		}
		return &DiffResult{Image: mask, TotalPixelCount: totalPixelCount}, nil
	}

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	rowsPerWorker := height / numWorkers

	bands := make([]*band, numWorkers)
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = height
		}
		bands[i] = &band{startY: startY, endY: endY}

		go func(b *band) {
			defer wg.Done()
			p.processBand(ctx, baseline, target, mask, width, height, b)
		}(bands[i])
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &DiffResult{Image: mask, TotalPixelCount: totalPixelCount}
	var deltas []float64
	for _, b := range bands {
		result.DiffPixelCount += b.diffCount
		result.AntiAliasedPixelCount += b.aaCount
		result.DiffLines = append(result.DiffLines, b.lines...)
		result.DiffBounds = result.DiffBounds.Union(b.bounds)
		deltas = append(deltas, b.deltas...)
	}
	result.DiffPercentage = float64(result.DiffPixelCount) / float64(totalPixelCount) * 100

	if len(deltas) > 0 {
		result.DeltaMean = stat.Mean(deltas, nil)
		result.DeltaMax = floats.Max(deltas)
	}

	return result, nil
}

func (p *PerceptualDiff) processBand(ctx context.Context, baseline *image.NRGBA, target *image.NRGBA, mask *image.NRGBA, width int, height int, b *band) {
	baselineMin := baseline.Bounds().Min
	targetMin := target.Bounds().Min

	for y := b.startY; y < b.endY; y++ {
		// Cooperative cancellation between rows; no mid-row aborts.
		if ctx.Err() != nil {
			return
		}

		baselineRow := baseline.PixOffset(baselineMin.X, baselineMin.Y+y)
		targetRow := target.PixOffset(targetMin.X, targetMin.Y+y)
		maskRow := mask.PixOffset(0, y)
		rowHasDiff := false

		for x := 0; x < width; x++ {
			var c1, c2 [4]uint8
			copy(c1[:], baseline.Pix[baselineRow+x*4:baselineRow+x*4+4])
			copy(c2[:], target.Pix[targetRow+x*4:targetRow+x*4+4])

			classification, delta := p.classify(baseline, target, c1, c2, x, y, width, height)

			offset := maskRow + x*4
			switch classification {
			case Different:
				mask.Pix[offset] = p.config.DiffColor.R
				mask.Pix[offset+1] = p.config.DiffColor.G
				mask.Pix[offset+2] = p.config.DiffColor.B
				mask.Pix[offset+3] = p.config.DiffColor.A

				b.diffCount++
				rowHasDiff = true
				b.bounds = b.bounds.Union(Rectangle{X: x, Y: y, Width: 1, Height: 1})
				b.deltas = append(b.deltas, delta)
			default:
				// Same and AntiAliased pixels keep the baseline content;
				// in mask mode the background stays transparent.
				if !p.config.DiffMask {
					mask.Pix[offset] = c1[0]
					mask.Pix[offset+1] = c1[1]
					mask.Pix[offset+2] = c1[2]
					mask.Pix[offset+3] = c1[3]
				}
				if classification == AntiAliased {
					b.aaCount++
				}
			}
		}

		if rowHasDiff && p.config.OutputDiffLines {
			b.lines = append(b.lines, y)
		}
	}
}

// classify tags a single pixel position. Anti-aliasing detection can only
// narrow the Different set; Same pixels are never touched by it.
func (p *PerceptualDiff) classify(baseline *image.NRGBA, target *image.NRGBA, c1 [4]uint8, c2 [4]uint8, x int, y int, width int, height int) (Classification, float64) {
	for _, region := range p.config.IgnoreRegions {
		if region.Contains(x, y) {
			return Same, 0
		}
	}

	if c1 == c2 {
		return Same, 0
	}

	// No visible content on either side.
	if c1[3] == 0 && c2[3] == 0 {
		return Same, 0
	}

	delta := math.Abs(colorDelta(c1, c2, false))
	if delta <= p.maxDelta {
		return Same, 0
	}

	if p.config.DetectAntiAliasing &&
		(antialiased(baseline, target, x, y, width, height) || antialiased(target, baseline, x, y, width, height)) {
		return AntiAliased, delta
	}

	return Different, delta
}

func copyPixels(dst *image.NRGBA, src *image.NRGBA) {
	srcMin := src.Bounds().Min
	width := dst.Bounds().Dx()
	for y := 0; y < dst.Bounds().Dy(); y++ {
		srcRow := src.PixOffset(srcMin.X, srcMin.Y+y)
		dstRow := dst.PixOffset(0, y)
		copy(dst.Pix[dstRow:dstRow+width*4], src.Pix[srcRow:srcRow+width*4])
	}
}
