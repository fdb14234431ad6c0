package retry

import (
	"context"
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that retries requests per Backoff and
// Policy. Callers must use requests whose bodies are replayable.
type Transport struct {
	Base    http.RoundTripper
	Backoff Backoff
	Policy  *Policy
}

type contextKey string

const attemptContextKey contextKey = "attempt"

func getAttempt(ctx context.Context) uint {
	v := ctx.Value(attemptContextKey)

	i, ok := v.(uint)
	if !ok {
		return 0
	}

	return i
}

func setAttempt(ctx context.Context, attempt uint) context.Context {
	return context.WithValue(ctx, attemptContextKey, attempt)
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	attempt := getAttempt(request.Context())
	sleep, exhausted := t.backoff().Next(attempt)

	response, err := t.base().RoundTrip(request)
	if err != nil {
		if !exhausted && t.Policy != nil && t.Policy.CheckError(err) {
			if err := t.wait(request.Context(), sleep); err != nil {
				return nil, err
			}
			return t.RoundTrip(request.WithContext(setAttempt(request.Context(), attempt+1)))
		}
		return nil, err
	}
	if !exhausted && t.Policy != nil && t.Policy.CheckResponse(response) {
		if err := t.wait(request.Context(), sleep); err != nil {
			return nil, err
		}
		return t.RoundTrip(request.WithContext(setAttempt(request.Context(), attempt+1)))
	}
	return response, nil
}

func (t *Transport) wait(ctx context.Context, sleep time.Duration) error {
	timer := time.NewTimer(sleep)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) backoff() Backoff {
	if t.Backoff != nil {
		return t.Backoff
	}
	return NewNone()
}
