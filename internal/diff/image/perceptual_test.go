package image

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func createTestImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func createNoiseImage(t *testing.T, width, height int, seed int64) *image.NRGBA {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

func newDiffer(t *testing.T, config Config) *PerceptualDiff {
	t.Helper()
	p, err := NewPerceptualDiff(config)
	if err != nil {
		t.Fatalf("NewPerceptualDiff failed: %v", err)
	}
	return p
}

// redChannelPair returns two 2x2 black images whose top-left pixels differ by
// the full red channel (255 vs 0).
func redChannelPair() (*image.NRGBA, *image.NRGBA) {
	baseline := createTestImage(2, 2, color.NRGBA{A: 255})
	target := createTestImage(2, 2, color.NRGBA{A: 255})
	baseline.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	return baseline, target
}

// antialiasedEdgePair returns a 5x5 hard vertical edge and the same edge with
// the center pixel smoothed to gray, the canonical anti-aliasing shape.
func antialiasedEdgePair() (*image.NRGBA, *image.NRGBA) {
	baseline := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			if x < 2 {
				baseline.SetNRGBA(x, y, color.NRGBA{A: 255})
			} else {
				baseline.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	target := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	copy(target.Pix, baseline.Pix)
	target.SetNRGBA(2, 2, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	return baseline, target
}

func TestPerceptualDiff_Calculate(t *testing.T) {
	ctx := context.Background()

	t.Run("NoDifference", func(t *testing.T) {
		p := newDiffer(t, DefaultConfig())
		img1 := createTestImage(100, 100, color.White)
		img2 := createTestImage(100, 100, color.White)

		result, err := p.Calculate(ctx, img1, img2)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if result.DiffPixelCount != 0 {
			t.Errorf("Expected DiffPixelCount to be 0, got %d", result.DiffPixelCount)
		}
		if result.DiffPercentage != 0 {
			t.Errorf("Expected DiffPercentage to be 0, got %f", result.DiffPercentage)
		}
	})

	t.Run("SameImageInstance", func(t *testing.T) {
		p := newDiffer(t, DefaultConfig())
		img := createTestImage(100, 100, color.White)

		result, err := p.Calculate(ctx, img, img)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if result.DiffPixelCount != 0 {
			t.Errorf("Expected DiffPixelCount to be 0 for same image instance, got %d", result.DiffPixelCount)
		}
		if result.TotalPixelCount != 100*100 {
			t.Errorf("Expected TotalPixelCount to be 10000, got %d", result.TotalPixelCount)
		}
	})

	t.Run("SingleRedChannelPixel", func(t *testing.T) {
		p := newDiffer(t, DefaultConfig())
		baseline, target := redChannelPair()

		result, err := p.Calculate(ctx, baseline, target)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if result.DiffPixelCount != 1 {
			t.Errorf("Expected DiffPixelCount to be 1, got %d", result.DiffPixelCount)
		}
		if result.DiffPercentage != 25.0 {
			t.Errorf("Expected DiffPercentage to be 25.0, got %f", result.DiffPercentage)
		}
		if diff := cmp.Diff(Rectangle{X: 0, Y: 0, Width: 1, Height: 1}, result.DiffBounds); diff != "" {
			t.Errorf("Unexpected DiffBounds (-want +got):\n%s", diff)
		}
		if result.DeltaMax <= 0 || result.DeltaMax != result.DeltaMean {
			t.Errorf("Expected delta stats of a single pixel to coincide, got mean=%f max=%f", result.DeltaMean, result.DeltaMax)
		}
	})

	t.Run("ThresholdAboveDistance", func(t *testing.T) {
		config := DefaultConfig()
		config.Threshold = 0.9
		p := newDiffer(t, config)
		baseline, target := redChannelPair()

		result, err := p.Calculate(ctx, baseline, target)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if result.DiffPixelCount != 0 {
			t.Errorf("Expected DiffPixelCount to be 0 with a permissive threshold, got %d", result.DiffPixelCount)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		p := newDiffer(t, DefaultConfig())
		img1 := createTestImage(2, 2, color.White)
		img2 := createTestImage(3, 2, color.White)

		result, err := p.Calculate(ctx, img1, img2)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Fatalf("Expected ErrDimensionMismatch, got %v", err)
		}
		if result != nil {
			t.Errorf("Expected no result on dimension mismatch, got %+v", result)
		}
	})

	t.Run("IgnoreRegionCoversImage", func(t *testing.T) {
		config := DefaultConfig()
		config.IgnoreRegions = []Rectangle{{X: 0, Y: 0, Width: 10, Height: 10}}
		p := newDiffer(t, config)
		img1 := createTestImage(10, 10, color.White)
		img2 := createTestImage(10, 10, color.Black)

		result, err := p.Calculate(ctx, img1, img2)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if result.DiffPixelCount != 0 {
			t.Errorf("Expected DiffPixelCount to be 0 with a covering ignore region, got %d", result.DiffPixelCount)
		}
	})

	t.Run("TransparentPixelsAreSame", func(t *testing.T) {
		p := newDiffer(t, DefaultConfig())
		img1 := image.NewNRGBA(image.Rect(0, 0, 4, 4))
		img2 := image.NewNRGBA(image.Rect(0, 0, 4, 4))
		for i := 0; i < len(img1.Pix); i += 4 {
			img1.Pix[i] = 255   // red, fully transparent
			img2.Pix[i+2] = 255 // blue, fully transparent
		}

		result, err := p.Calculate(ctx, img1, img2)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if result.DiffPixelCount != 0 {
			t.Errorf("Expected fully transparent pixels to match, got %d differences", result.DiffPixelCount)
		}
	})

	t.Run("SymmetryWithoutAntiAliasing", func(t *testing.T) {
		p := newDiffer(t, DefaultConfig())
		img1 := createNoiseImage(t, 64, 48, 1)
		img2 := createNoiseImage(t, 64, 48, 2)

		forward, err := p.Calculate(ctx, img1, img2)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		backward, err := p.Calculate(ctx, img2, img1)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if forward.DiffPixelCount != backward.DiffPixelCount {
			t.Errorf("Expected symmetric counts, got %d and %d", forward.DiffPixelCount, backward.DiffPixelCount)
		}
	})

	t.Run("AntiAliasedEdge", func(t *testing.T) {
		baseline, target := antialiasedEdgePair()

		config := DefaultConfig()
		config.DetectAntiAliasing = true
		p := newDiffer(t, config)

		result, err := p.Calculate(ctx, baseline, target)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if result.DiffPixelCount != 0 {
			t.Errorf("Expected the smoothed edge pixel to be excluded, got %d differences", result.DiffPixelCount)
		}
		if result.AntiAliasedPixelCount != 1 {
			t.Errorf("Expected AntiAliasedPixelCount to be 1, got %d", result.AntiAliasedPixelCount)
		}
	})

	t.Run("AntiAliasedEdgeCountedWhenDisabled", func(t *testing.T) {
		baseline, target := antialiasedEdgePair()
		p := newDiffer(t, DefaultConfig())

		result, err := p.Calculate(ctx, baseline, target)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if result.DiffPixelCount != 1 {
			t.Errorf("Expected the smoothed edge pixel to be counted, got %d", result.DiffPixelCount)
		}
		if result.AntiAliasedPixelCount != 0 {
			t.Errorf("Expected AntiAliasedPixelCount to be 0, got %d", result.AntiAliasedPixelCount)
		}
	})

	t.Run("DiffLines", func(t *testing.T) {
		config := DefaultConfig()
		config.OutputDiffLines = true
		p := newDiffer(t, config)

		baseline := createTestImage(4, 4, color.White)
		target := createTestImage(4, 4, color.White)
		target.SetNRGBA(0, 1, color.NRGBA{A: 255})
		target.SetNRGBA(2, 3, color.NRGBA{A: 255})

		result, err := p.Calculate(ctx, baseline, target)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if diff := cmp.Diff([]int{1, 3}, result.DiffLines); diff != "" {
			t.Errorf("Unexpected DiffLines (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(Rectangle{X: 0, Y: 1, Width: 3, Height: 3}, result.DiffBounds); diff != "" {
			t.Errorf("Unexpected DiffBounds (-want +got):\n%s", diff)
		}
	})

	t.Run("MaskRendering", func(t *testing.T) {
		config := DefaultConfig()
		config.DiffColor = color.NRGBA{G: 255, A: 255}
		p := newDiffer(t, config)

		baseline := createTestImage(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		target := createTestImage(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		target.SetNRGBA(1, 0, color.NRGBA{R: 240, G: 240, B: 240, A: 255})

		result, err := p.Calculate(ctx, baseline, target)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if got := result.Image.NRGBAAt(0, 0); got != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) {
			t.Errorf("Expected matching pixel to keep the baseline color, got %+v", got)
		}
		if got := result.Image.NRGBAAt(1, 0); got != (color.NRGBA{G: 255, A: 255}) {
			t.Errorf("Expected differing pixel to use the diff color, got %+v", got)
		}
	})

	t.Run("TransparentDiffMask", func(t *testing.T) {
		config := DefaultConfig()
		config.DiffMask = true
		p := newDiffer(t, config)

		baseline := createTestImage(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		target := createTestImage(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		target.SetNRGBA(1, 0, color.NRGBA{R: 240, G: 240, B: 240, A: 255})

		result, err := p.Calculate(ctx, baseline, target)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if got := result.Image.NRGBAAt(0, 0); got != (color.NRGBA{}) {
			t.Errorf("Expected matching pixel to stay transparent, got %+v", got)
		}
		if got := result.Image.NRGBAAt(1, 0); got != (color.NRGBA{R: 255, A: 255}) {
			t.Errorf("Expected differing pixel to use the diff color, got %+v", got)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		p := newDiffer(t, DefaultConfig())
		img1 := createNoiseImage(t, 128, 96, 3)
		img2 := createNoiseImage(t, 128, 96, 4)

		first, err := p.Calculate(ctx, img1, img2)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		second, err := p.Calculate(ctx, img1, img2)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if first.DiffPixelCount != second.DiffPixelCount {
			t.Errorf("Expected identical counts, got %d and %d", first.DiffPixelCount, second.DiffPixelCount)
		}
		if !bytes.Equal(first.Image.Pix, second.Image.Pix) {
			t.Error("Expected bit-identical masks across runs")
		}
	})

	t.Run("Cancellation", func(t *testing.T) {
		p := newDiffer(t, DefaultConfig())
		img1 := createNoiseImage(t, 64, 64, 5)
		img2 := createNoiseImage(t, 64, 64, 6)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := p.Calculate(cancelled, img1, img2)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
		if result != nil {
			t.Errorf("Expected no result after cancellation, got %+v", result)
		}
	})
}

func TestNewPerceptualDiff_InvalidConfig(t *testing.T) {
	t.Run("NegativeThreshold", func(t *testing.T) {
		_, err := NewPerceptualDiff(Config{Threshold: -0.5})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("ThresholdAboveOne", func(t *testing.T) {
		_, err := NewPerceptualDiff(Config{Threshold: 1.5})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("MalformedIgnoreRegion", func(t *testing.T) {
		_, err := NewPerceptualDiff(Config{
			Threshold:     0.1,
			IgnoreRegions: []Rectangle{{X: 0, Y: 0, Width: -5, Height: 5}},
		})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestParseDiffColor(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		c, err := ParseDiffColor("#cd2cc9")
		if err != nil {
			t.Fatalf("ParseDiffColor failed: %v", err)
		}
		if c != (color.NRGBA{R: 0xcd, G: 0x2c, B: 0xc9, A: 255}) {
			t.Errorf("Unexpected color %+v", c)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ParseDiffColor("red")
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})
}

func BenchmarkPerceptualDiff_Calculate_Small(b *testing.B) {
	p, _ := NewPerceptualDiff(DefaultConfig())
	img1 := createTestImage(1920, 1080, color.White)
	img2 := createTestImage(1920, 1080, color.White)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Calculate(context.Background(), img1, img2)
	}
}

func BenchmarkPerceptualDiff_Calculate_Large(b *testing.B) {
	p, _ := NewPerceptualDiff(DefaultConfig())
	img1 := createTestImage(3840, 2160, color.White)
	img2 := createTestImage(3840, 2160, color.White)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Calculate(context.Background(), img1, img2)
	}
}
