package anthropic

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/chetcli/chet/internal/llm"
)

// RetryConfig controls retry behavior for transient API failures.
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the first try.
	MaxRetries int
	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay clamps every computed or server-specified delay.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay after each attempt.
	BackoffFactor float64
}

// DefaultRetryConfig returns the stock retry schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2,
	}
}

// calculateDelay computes the wait before retry attempt n (0-based). A
// server-specified retryAfter overrides the exponential schedule; both are
// clamped to MaxDelay. Computed delays carry a uniform ±25% jitter.
func calculateDelay(config RetryConfig, attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, config.MaxDelay)
	}

	base := float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt))
	clamped := math.Min(base, float64(config.MaxDelay))

	jittered := clamped * (0.75 + rand.Float64()*0.5)
	return min(time.Duration(jittered), config.MaxDelay)
}

// parseRetryAfter reads a Retry-After header as either delta-seconds or an
// HTTP-date. Returns zero when the header is absent or unparseable.
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

// retryable reports whether an error should be retried.
func retryable(err error) bool {
	apiErr, ok := err.(*llm.APIError)
	return ok && apiErr.Retryable()
}
