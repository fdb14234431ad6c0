package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"pixeldiff/internal/decode"
	diffimage "pixeldiff/internal/diff/image"
	"pixeldiff/internal/report"
	"pixeldiff/internal/retry"
	"pixeldiff/internal/storage"
)

type Worker struct {
	Differ                diffimage.Differ
	Storage               storage.Storage
	AllowedDiffPercentage float64
	Format                string
}

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

func main() {
	_ = godotenv.Load()

	var threshold float64
	var antialiasing bool
	var allowedDiffPercentage float64
	var format string
	var storageBackend string
	var callbackURL string
	var retryOn string
	var schedule string
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("THRESHOLD", 0.1), "Color distance threshold between 0 and 1")
	flag.BoolVar(&antialiasing, "antialiasing", envOrDefaultValue("ANTIALIASING", false), "Detect and ignore anti-aliased pixels")
	flag.Float64Var(&allowedDiffPercentage, "allowed-diff-percentage", envOrDefaultValue("ALLOWED_DIFF_PERCENTAGE", 0.0), "Tolerated percentage of differing pixels")
	flag.StringVar(&format, "format", envOrDefaultValue("FORMAT", "png"), "Format for the stored diff image (png, jpeg, tiff or bmp)")
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&callbackURL, "callback-url", envOrDefaultValue("CALLBACK_URL", ""), "Callback URL to send results to")
	flag.StringVar(&retryOn, "retry-on", envOrDefaultValue("RETRY_ON", ""), "Callback retry conditions (Envoy x-envoy-retry-on grammar)")
	flag.StringVar(&schedule, "schedule", envOrDefaultValue("SCHEDULE", ""), "Cron schedule; runs once when empty")

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		log.Fatalf("baseline, target not specified")
	}

	baseline := args[0]
	target := args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	differ, err := diffimage.NewPerceptualDiff(diffimage.Config{
		Threshold:          threshold,
		DetectAntiAliasing: antialiasing,
		DiffColor:          diffimage.DefaultConfig().DiffColor,
	})
	if err != nil {
		log.Fatalf("invalid comparison config: %v", err)
	}

	s, err := storage.New(ctx, storageBackend, storage.FileConfig{
		Directory: envOrDefaultValue("DIRECTORY", "/tmp"),
	}, storage.S3Config{
		Bucket: os.Getenv("S3_BUCKET"),
	})
	if err != nil {
		log.Fatalf("failed to create storage backend: %v", err)
	}

	worker := &Worker{
		Differ:                differ,
		Storage:               s,
		AllowedDiffPercentage: allowedDiffPercentage,
		Format:                format,
	}

	policy := retry.NewDefaultPolicy()
	if retryOn != "" {
		policy, err = retry.NewPolicyFromString(retryOn)
		if err != nil {
			log.Fatalf("failed to parse retry conditions: %v", err)
		}
	}

	run := func(ctx context.Context) error {
		summary, err := worker.processComparison(ctx, baseline, target)
		if err != nil {
			return err
		}

		j, err := summary.Render()
		if err != nil {
			return xerrors.Errorf("failed to marshal result: %w", err)
		}

		if callbackURL == "" {
			fmt.Println(string(j))
			return nil
		}
		return callback(ctx, callbackURL, policy, j)
	}

	if schedule == "" {
		if err := run(ctx); err != nil {
			log.Fatalf("failed to process comparison: %v", err)
		}
		return
	}

	parsed, err := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(schedule)
	if err != nil {
		log.Fatalf("failed to parse schedule: %v", err)
	}
	for {
		next := parsed.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := run(ctx); err != nil {
			log.Printf("failed to process comparison: %v", err)
		}
	}
}

func (w *Worker) processComparison(ctx context.Context, baseline string, target string) (*report.Summary, error) {
	var baselineImage, targetImage *decodedInput

	// Step 1: Decode both inputs in parallel
	{
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			input, err := w.load(ctx, baseline)
			if err != nil {
				return xerrors.Errorf("failed to load baseline image: %w", err)
			}
			baselineImage = input
			return nil
		})

		eg.Go(func() error {
			input, err := w.load(ctx, target)
			if err != nil {
				return xerrors.Errorf("failed to load target image: %w", err)
			}
			targetImage = input
			return nil
		})

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	// Step 2: Compare
	now := time.Now()
	result, err := w.Differ.Calculate(ctx, baselineImage.image, targetImage.image)
	if err != nil {
		return nil, xerrors.Errorf("failed to compare images: %w", err)
	}
	elapsed := time.Since(now).Milliseconds()

	// Step 3: Upload the diff image and summary in parallel
	timestamp := time.Now().Format("20060102150405")
	h := sha256.New()
	h.Write([]byte(baseline + target))
	hash := fmt.Sprintf("%x", h.Sum(nil))[:16]

	reporter := &report.Reporter{
		Storage:               w.Storage,
		AllowedDiffPercentage: w.AllowedDiffPercentage,
		IncludeTiming:         true,
	}
	key := fmt.Sprintf("Compare/diff/%s/%s.%s", hash, timestamp, w.Format)
	summary, err := reporter.Report(ctx, result, key, w.Format, elapsed)
	if err != nil {
		return nil, err
	}

	j, err := summary.Render()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal summary: %w", err)
	}
	summaryKey := fmt.Sprintf("Compare/diff/%s/%s.json", hash, timestamp)
	if _, err := w.Storage.Put(ctx, summaryKey, j); err != nil {
		return nil, xerrors.Errorf("failed to upload summary: %w", err)
	}

	return summary, nil
}

type decodedInput struct {
	image  *image.NRGBA
	format string
}

// load reads a local path or, for s3:// URLs, fetches the object through the
// storage backend before decoding.
func (w *Worker) load(ctx context.Context, path string) (*decodedInput, error) {
	var data []byte
	var err error
	if strings.HasPrefix(path, "s3://") {
		data, err = w.Storage.Get(ctx, path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", path, err)
	}

	img, format, err := decode.Bytes(data, "")
	if err != nil {
		return nil, err
	}
	return &decodedInput{image: img, format: format}, nil
}

func callback(ctx context.Context, callbackURL string, policy *retry.Policy, data []byte) error {
	request, err := http.NewRequestWithContext(ctx, "PATCH", callbackURL, bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 1 * time.Second, // retry.Transport does not have perTryTimeout
		Transport: &retry.Transport{
			Base:    http.DefaultTransport,
			Backoff: retry.NewExponential(10*time.Millisecond, 1*time.Second, 3, nil),
			Policy:  policy,
		},
	}

	response, err := client.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	return nil
}
