package anthropic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chetcli/chet/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helloTranscript is a minimal valid streamed response.
const helloTranscript = "event: message_start\n" +
	"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"role\":\"assistant\",\"model\":\"claude-test\",\"content\":[],\"usage\":{\"input_tokens\":3,\"output_tokens\":1}}}\n\n" +
	"event: content_block_start\ndata: {\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
	"event: content_block_delta\ndata: {\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hello\"}}\n\n" +
	"event: content_block_stop\ndata: {\"index\":0}\n\n" +
	"event: message_delta\ndata: {\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":2}}\n\n" +
	"event: message_stop\ndata: {}\n\n"

func testRequest() *llm.Request {
	return &llm.Request{
		Model:     "claude-test",
		MaxTokens: 64,
		Messages:  []llm.Message{llm.UserText("hi")},
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		InitialDelay:  5 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestClientSendsProtocolHeaders(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		io.WriteString(w, helloTranscript)
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL)
	stream, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	stream.Close()

	assert.Equal(t, "sk-test", gotHeaders.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", gotHeaders.Get("anthropic-version"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
}

func TestClientStreamsEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, helloTranscript)
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL)
	stream, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	assembler := llm.NewAssembler()
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assembler.Apply(event)
	}

	message := assembler.Message()
	assert.Equal(t, "hello", message.PlainText())
	assert.Equal(t, llm.StopEndTurn, assembler.StopReason())
	assert.Equal(t, int64(3), assembler.Usage().InputTokens)
	assert.Equal(t, int64(3), assembler.Usage().OutputTokens)
}

func TestClientRetriesOn529(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(529)
			io.WriteString(w, `{"error":{"type":"overloaded_error","message":"overloaded"}}`)
			return
		}
		io.WriteString(w, helloTranscript)
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL, WithRetryConfig(fastRetry()))
	stream, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	stream.Close()

	assert.Equal(t, int32(2), attempts.Load())
}

func TestClientDoesNotRetry401(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(401)
		io.WriteString(w, `{"error":{"type":"authentication_error","message":"bad key"}}`)
	}))
	defer server.Close()

	client := NewClient("sk-bad", server.URL, WithRetryConfig(fastRetry()))
	_, err := client.Stream(context.Background(), testRequest())
	require.Error(t, err)

	apiErr, ok := err.(*llm.APIError)
	require.True(t, ok)
	assert.Equal(t, llm.ErrKindAuth, apiErr.Kind)
	assert.Equal(t, "bad key", apiErr.Message)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClientDoesNotRetry400(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(400)
		io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"bad body"}}`)
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL, WithRetryConfig(fastRetry()))
	_, err := client.Stream(context.Background(), testRequest())
	require.Error(t, err)

	apiErr, ok := err.(*llm.APIError)
	require.True(t, ok)
	assert.Equal(t, llm.ErrKindBadRequest, apiErr.Kind)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClientExhaustsRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(503)
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL, WithRetryConfig(fastRetry()))
	_, err := client.Stream(context.Background(), testRequest())
	require.Error(t, err)

	apiErr, ok := err.(*llm.APIError)
	require.True(t, ok)
	assert.Equal(t, llm.ErrKindServer, apiErr.Kind)
	// One initial attempt plus two retries.
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientRetryAfterHeaderParsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(429)
	}))
	defer server.Close()

	// Zero retries so the error surfaces immediately with the parsed wait.
	config := fastRetry()
	config.MaxRetries = 0
	client := NewClient("sk-test", server.URL, WithRetryConfig(config))
	_, err := client.Stream(context.Background(), testRequest())
	require.Error(t, err)

	apiErr, ok := err.(*llm.APIError)
	require.True(t, ok)
	assert.Equal(t, llm.ErrKindRateLimited, apiErr.Kind)
	assert.Equal(t, 7*time.Second, apiErr.RetryAfter)
}

func TestClientCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, helloTranscript)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("sk-test", server.URL)
	_, err := client.Stream(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
