// Package report turns comparison results into persisted summaries and the
// final match verdict.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/xerrors"

	"pixeldiff/internal/decode"
	imagediff "pixeldiff/internal/diff/image"
	"pixeldiff/internal/storage"
)

// ErrOutputWrite marks failures to persist the diff mask or summary. The
// verdict computed before the failure is still valid.
var ErrOutputWrite = errors.New("failed to write output")

// Summary is the machine-readable record of a single comparison.
type Summary struct {
	Matched               bool                 `json:"matched"`
	DiffPixelCount        int64                `json:"diffPixelCount"`
	DiffPercentage        float64              `json:"diffPercentage"`
	AntiAliasedPixelCount int64                `json:"antiAliasedPixelCount"`
	Width                 int                  `json:"width"`
	Height                int                  `json:"height"`
	DimensionMismatch     bool                 `json:"dimensionMismatch,omitempty"`
	DiffLines             []int                `json:"diffLines,omitempty"`
	DiffBounds            *imagediff.Rectangle `json:"diffBounds,omitempty"`
	DiffPath              string               `json:"diffPath,omitempty"`
	ElapsedMilliseconds   int64                `json:"elapsedMilliseconds,omitempty"`
}

// Reporter persists diff masks and renders summaries. AllowedDiffPercentage
// is the tolerated fraction of differing pixels, in percent.
type Reporter struct {
	Storage               storage.Storage
	AllowedDiffPercentage float64
	IncludeTiming         bool
}

// Report computes the verdict for result and, when key is non-empty, encodes
// the diff mask in format and persists it. A persistence failure still
// returns the computed summary alongside an error wrapping ErrOutputWrite.
func (r *Reporter) Report(ctx context.Context, result *imagediff.DiffResult, key string, format string, elapsedMilliseconds int64) (*Summary, error) {
	summary := &Summary{
		Matched:               result.DiffPercentage <= r.AllowedDiffPercentage,
		DiffPixelCount:        result.DiffPixelCount,
		DiffPercentage:        result.DiffPercentage,
		AntiAliasedPixelCount: result.AntiAliasedPixelCount,
		Width:                 result.Image.Bounds().Dx(),
		Height:                result.Image.Bounds().Dy(),
		DiffLines:             result.DiffLines,
	}
	if !result.DiffBounds.Empty() {
		bounds := result.DiffBounds
		summary.DiffBounds = &bounds
	}
	if r.IncludeTiming {
		summary.ElapsedMilliseconds = elapsedMilliseconds
	}

	if key == "" || r.Storage == nil {
		return summary, nil
	}

	var buffer bytes.Buffer
	if err := decode.Encode(&buffer, result.Image, format); err != nil {
		return summary, xerrors.Errorf("failed to encode diff mask (%v): %w", err, ErrOutputWrite)
	}
	url, err := r.Storage.Put(ctx, key, buffer.Bytes())
	if err != nil {
		return summary, xerrors.Errorf("failed to store diff mask (%v): %w", err, ErrOutputWrite)
	}
	summary.DiffPath = url

	return summary, nil
}

// DimensionMismatchSummary renders the summary for images whose sizes differ.
// No pixels are compared, so the verdict is always a mismatch.
func DimensionMismatchSummary(baselineWidth, baselineHeight int) *Summary {
	return &Summary{
		Matched:           false,
		DiffPercentage:    100.0,
		Width:             baselineWidth,
		Height:            baselineHeight,
		DimensionMismatch: true,
	}
}

// Render serializes the summary as indented JSON for stdout consumers.
func (s *Summary) Render() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal summary: %w", err)
	}

	return data, nil
}
