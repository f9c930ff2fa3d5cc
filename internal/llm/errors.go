package llm

import (
	"fmt"
	"time"
)

// APIError is a classified failure from the Messages API or its transport.
type APIError struct {
	// Kind selects the failure class; see the Err* constants.
	Kind string
	// Status is the HTTP status code, when one was received.
	Status int
	// Message is the server-provided or transport error text.
	Message string
	// RetryAfter is the server-requested wait, when the response carried one.
	RetryAfter time.Duration
}

// API error kinds.
const (
	ErrKindAuth        = "auth"
	ErrKindBadRequest  = "bad_request"
	ErrKindRateLimited = "rate_limited"
	ErrKindOverloaded  = "overloaded"
	ErrKindServer      = "server"
	ErrKindNetwork     = "network"
	ErrKindTimeout     = "timeout"
	ErrKindStreamParse = "stream_parse"
)

func (e *APIError) Error() string {
	switch e.Kind {
	case ErrKindAuth:
		return fmt.Sprintf("authentication failed: %s", e.Message)
	case ErrKindBadRequest:
		return fmt.Sprintf("bad request: %s", e.Message)
	case ErrKindRateLimited:
		return "rate limited"
	case ErrKindOverloaded:
		return "server overloaded"
	case ErrKindServer:
		return fmt.Sprintf("server error: %d %s", e.Status, e.Message)
	case ErrKindNetwork:
		return fmt.Sprintf("network error: %s", e.Message)
	case ErrKindTimeout:
		return "request timeout"
	case ErrKindStreamParse:
		return fmt.Sprintf("stream parse error: %s", e.Message)
	default:
		return e.Message
	}
}

// Retryable reports whether the error is transient and worth retrying.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case ErrKindRateLimited, ErrKindOverloaded, ErrKindNetwork, ErrKindTimeout:
		return true
	case ErrKindServer:
		// Unclassified HTTP statuses below 500 (403, 404, ...) are terminal.
		return e.Status == 0 || e.Status >= 500
	}
	return false
}
