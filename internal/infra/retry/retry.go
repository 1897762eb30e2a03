package retry

// Exponential backoff with full jitter
// HTTP callers retry 429/500/502/503/504 and honour Retry-After on 429
// Other callers pass their own RetryIf predicate (settlement inspection retries "no credit yet")

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter disables full jitter when false; the exact exponential delay is used.
	Jitter bool
	// RetryIf overrides IsRetryable.
	RetryIf func(error) bool
	// Sleep replaces the timer wait, tests use it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// HTTPOptions is the policy shared by the aggregator and notice clients.
var HTTPOptions = Options{
	MaxRetries: 3,
	BaseDelay:  300 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	Jitter:     true,
}

type HTTPError struct {
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error: <nil>"
	}
	if len(e.Body) == 0 {
		return fmt.Sprintf("http error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("http error (%d): %s", e.StatusCode, string(e.Body))
}

func IsRetryable(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	switch he.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
			return 0
		}
	}
	return 0
}

func clamp(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

// Backoff is the upper bound of the wait before retry number attempt+1.
func Backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if baseDelay <= 0 {
		return 0
	}
	return clamp(baseDelay<<attempt, maxDelay)
}

func FullJitterSleep(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	upper := Backoff(attempt, baseDelay, maxDelay)
	if upper <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(upper) + 1))
}

// SleepContext waits d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func Do(ctx context.Context, opts Options, fn func() error) error {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 300 * time.Millisecond
	}
	retryIf := opts.RetryIf
	if retryIf == nil {
		retryIf = IsRetryable
	}
	sleepFn := opts.Sleep
	if sleepFn == nil {
		sleepFn = SleepContext
	}

	totalAttempts := 1 + opts.MaxRetries
	var lastErr error

	for attempt := 0; attempt < totalAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryIf(err) || attempt == totalAttempts-1 {
			return lastErr
		}

		sleep := Backoff(attempt, opts.BaseDelay, opts.MaxDelay)
		if opts.Jitter {
			sleep = FullJitterSleep(attempt, opts.BaseDelay, opts.MaxDelay)
		}

		var he *HTTPError
		if errors.As(err, &he) && he.StatusCode == 429 && he.RetryAfter > 0 {
			sleep = clamp(he.RetryAfter, opts.MaxDelay)
		}

		if err := sleepFn(ctx, sleep); err != nil {
			return err
		}
	}

	return lastErr
}
