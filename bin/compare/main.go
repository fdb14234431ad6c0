package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pixeldiff/internal/decode"
	diffimage "pixeldiff/internal/diff/image"
	"pixeldiff/internal/report"
	"pixeldiff/internal/storage"
)

const (
	exitMatch    = 0
	exitMismatch = 1
	exitError    = 2
)

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case uint64:
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return any(uintValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

type rectangleList []diffimage.Rectangle

func (r *rectangleList) String() string {
	parts := make([]string, 0, len(*r))
	for _, rect := range *r {
		parts = append(parts, fmt.Sprintf("%d,%d,%d,%d", rect.X, rect.Y, rect.Width, rect.Height))
	}
	return strings.Join(parts, ";")
}

func (r *rectangleList) Set(s string) error {
	rect, err := diffimage.ParseRectangle(s)
	if err != nil {
		return err
	}
	*r = append(*r, rect)
	return nil
}

func fatalf(format string, v ...interface{}) {
	log.Printf(format, v...)
	os.Exit(exitError)
}

func main() {
	_ = godotenv.Load()

	var threshold float64
	var antialiasing bool
	var ignore rectangleList
	var diffColor string
	var diffMask bool
	var outputDiffLines bool
	var failOnLayoutDiff bool
	var allowedDiffPercentage float64
	var format string
	var output string
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("THRESHOLD", 0.1), "Color distance threshold between 0 and 1")
	flag.BoolVar(&antialiasing, "antialiasing", envOrDefaultValue("ANTIALIASING", false), "Detect and ignore anti-aliased pixels")
	flag.Var(&ignore, "ignore", "Region to exclude from comparison as x,y,width,height (repeatable)")
	flag.StringVar(&diffColor, "diff-color", envOrDefaultValue("DIFF_COLOR", "#ff0000"), "Hex color for differing pixels")
	flag.BoolVar(&diffMask, "diff-mask", envOrDefaultValue("DIFF_MASK", false), "Render only differing pixels over a transparent background")
	flag.BoolVar(&outputDiffLines, "output-diff-lines", envOrDefaultValue("OUTPUT_DIFF_LINES", false), "Collect the y coordinates of differing rows")
	flag.BoolVar(&failOnLayoutDiff, "fail-on-layout-diff", envOrDefaultValue("FAIL_ON_LAYOUT_DIFF", false), "Skip the summary when dimensions differ")
	flag.Float64Var(&allowedDiffPercentage, "allowed-diff-percentage", envOrDefaultValue("ALLOWED_DIFF_PERCENTAGE", 0.0), "Tolerated percentage of differing pixels")
	flag.StringVar(&format, "format", envOrDefaultValue("FORMAT", ""), "Image format (png, jpeg, tiff or bmp); sniffed from content when empty")
	flag.StringVar(&output, "output", envOrDefaultValue("OUTPUT", ""), "Path to write the diff image to")

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <baseline> <target>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(exitError)
	}

	ctx := context.Background()

	baseline, _, err := decode.File(args[0], format)
	if err != nil {
		fatalf("failed to decode baseline image: %v", err)
	}
	target, _, err := decode.File(args[1], format)
	if err != nil {
		fatalf("failed to decode target image: %v", err)
	}

	color, err := diffimage.ParseDiffColor(diffColor)
	if err != nil {
		fatalf("failed to parse diff color: %v", err)
	}

	differ, err := diffimage.NewPerceptualDiff(diffimage.Config{
		Threshold:          threshold,
		DetectAntiAliasing: antialiasing,
		IgnoreRegions:      ignore,
		DiffColor:          color,
		DiffMask:           diffMask,
		OutputDiffLines:    outputDiffLines,
	})
	if err != nil {
		fatalf("invalid comparison config: %v", err)
	}

	now := time.Now()
	result, err := differ.Calculate(ctx, baseline, target)
	if err != nil {
		if errors.Is(err, diffimage.ErrDimensionMismatch) {
			if !failOnLayoutDiff {
				printSummary(report.DimensionMismatchSummary(baseline.Bounds().Dx(), baseline.Bounds().Dy()))
			}
			fatalf("layout differs: %v", err)
		}
		fatalf("failed to compare images: %v", err)
	}
	elapsed := time.Since(now).Milliseconds()

	reporter := &report.Reporter{
		AllowedDiffPercentage: allowedDiffPercentage,
		IncludeTiming:         true,
	}
	var key string
	if output != "" {
		s, err := storage.NewFileStorage(ctx, storage.FileConfig{
			Directory: filepath.Dir(output),
		})
		if err != nil {
			fatalf("failed to create storage backend: %v", err)
		}
		reporter.Storage = s
		key = filepath.Base(output)
	}

	summary, err := reporter.Report(ctx, result, key, outputFormat(output, format), elapsed)
	if err != nil {
		// The verdict is still valid, so report it after warning.
		log.Printf("failed to write diff image: %v", err)
	}
	printSummary(summary)

	if summary.Matched {
		os.Exit(exitMatch)
	}
	os.Exit(exitMismatch)
}

func outputFormat(output string, format string) string {
	if ext := strings.TrimPrefix(filepath.Ext(output), "."); ext != "" {
		return ext
	}
	return format
}

func printSummary(summary *report.Summary) {
	data, err := summary.Render()
	if err != nil {
		fatalf("failed to render summary: %v", err)
	}
	fmt.Println(string(data))
}
