package anthropic

import (
	"net/http"
	"testing"
	"time"

	"github.com/chetcli/chet/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()
	assert.Equal(t, 2, config.MaxRetries)
	assert.Equal(t, time.Second, config.InitialDelay)
	assert.Equal(t, 60*time.Second, config.MaxDelay)
	assert.Equal(t, float64(2), config.BackoffFactor)
}

func TestRetryableClassification(t *testing.T) {
	retryableKinds := []string{
		llm.ErrKindRateLimited,
		llm.ErrKindOverloaded,
		llm.ErrKindServer,
		llm.ErrKindNetwork,
		llm.ErrKindTimeout,
	}
	for _, kind := range retryableKinds {
		assert.True(t, retryable(&llm.APIError{Kind: kind}), kind)
	}

	terminalKinds := []string{
		llm.ErrKindAuth,
		llm.ErrKindBadRequest,
		llm.ErrKindStreamParse,
	}
	for _, kind := range terminalKinds {
		assert.False(t, retryable(&llm.APIError{Kind: kind}), kind)
	}

	assert.False(t, retryable(nil))
}

func TestCalculateDelayExponential(t *testing.T) {
	config := DefaultRetryConfig()

	// Attempt n has base initial*2^n, jittered by ±25%.
	ranges := []struct {
		attempt  int
		min, max time.Duration
	}{
		{0, 750 * time.Millisecond, 1250 * time.Millisecond},
		{1, 1500 * time.Millisecond, 2500 * time.Millisecond},
		{2, 3 * time.Second, 5 * time.Second},
	}
	for _, bounds := range ranges {
		for i := 0; i < 50; i++ {
			delay := calculateDelay(config, bounds.attempt, 0)
			assert.GreaterOrEqual(t, delay, bounds.min, "attempt %d", bounds.attempt)
			assert.LessOrEqual(t, delay, bounds.max, "attempt %d", bounds.attempt)
		}
	}
}

func TestCalculateDelayClampedToMax(t *testing.T) {
	config := RetryConfig{
		MaxRetries:    10,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 10,
	}
	for i := 0; i < 50; i++ {
		delay := calculateDelay(config, 5, 0)
		assert.LessOrEqual(t, delay, config.MaxDelay)
	}
}

func TestCalculateDelayMonotonicModuloJitter(t *testing.T) {
	config := DefaultRetryConfig()
	// Compare jitter-free bounds: the lower bound of attempt n+1 must not
	// fall below the lower bound of attempt n.
	previousFloor := time.Duration(0)
	for attempt := 0; attempt < 6; attempt++ {
		base := float64(config.InitialDelay) * pow(config.BackoffFactor, attempt)
		if base > float64(config.MaxDelay) {
			base = float64(config.MaxDelay)
		}
		lower := time.Duration(base * 0.75)
		assert.GreaterOrEqual(t, lower, previousFloor)
		for i := 0; i < 20; i++ {
			assert.GreaterOrEqual(t, calculateDelay(config, attempt, 0), lower, "attempt %d", attempt)
		}
		previousFloor = lower
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func TestCalculateDelayRespectsRetryAfter(t *testing.T) {
	config := DefaultRetryConfig()
	assert.Equal(t, 5*time.Second, calculateDelay(config, 0, 5*time.Second))
}

func TestCalculateDelayRetryAfterCapped(t *testing.T) {
	config := DefaultRetryConfig()
	config.MaxDelay = 10 * time.Second
	assert.Equal(t, 10*time.Second, calculateDelay(config, 0, 30*time.Second))
}

func TestParseRetryAfterSeconds(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, parseRetryAfter(header))
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", time.Now().Add(30*time.Second).UTC().Format(http.TimeFormat))
	wait := parseRetryAfter(header)
	assert.Greater(t, wait, 20*time.Second)
	assert.LessOrEqual(t, wait, 30*time.Second)
}

func TestParseRetryAfterAbsentOrGarbage(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(http.Header{}))

	header := http.Header{}
	header.Set("Retry-After", "soonish")
	assert.Equal(t, time.Duration(0), parseRetryAfter(header))
}
