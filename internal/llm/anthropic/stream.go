package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/chetcli/chet/internal/llm"
	"go.uber.org/zap"
)

// messageStream decodes an HTTP response body into typed stream events. All
// events completed by a single read are buffered and handed out one at a
// time; a chunk must never contribute only its first event.
type messageStream struct {
	ctx     context.Context
	body    io.ReadCloser
	parser  sseParser
	pending []llm.StreamEvent
	readBuf []byte
	log     *zap.Logger
	err     error
}

func newMessageStream(ctx context.Context, body io.ReadCloser, log *zap.Logger) *messageStream {
	return &messageStream{
		ctx:     ctx,
		body:    body,
		readBuf: make([]byte, 16*1024),
		log:     log,
	}
}

// Recv returns the next typed event. It drains buffered events before
// reading more bytes, returns io.EOF when the stream ends cleanly, and fails
// with a stream parse error on malformed event JSON.
func (s *messageStream) Recv() (llm.StreamEvent, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return llm.StreamEvent{}, s.err
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return llm.StreamEvent{}, err
		}

		n, err := s.body.Read(s.readBuf)
		if n > 0 {
			for _, raw := range s.parser.feed(string(s.readBuf[:n])) {
				event, decodeErr := decodeStreamEvent(raw)
				if decodeErr != nil {
					s.err = decodeErr
					// Events decoded before the failure are still delivered.
					break
				}
				if event == nil {
					continue
				}
				s.pending = append(s.pending, *event)
			}
		}
		if err != nil && s.err == nil {
			if err == io.EOF {
				s.err = io.EOF
			} else if s.ctx.Err() != nil {
				s.err = s.ctx.Err()
			} else {
				s.err = &llm.APIError{Kind: llm.ErrKindNetwork, Message: err.Error()}
			}
		}
	}

	event := s.pending[0]
	s.pending = s.pending[1:]
	return event, nil
}

// Close drops the underlying body, aborting any in-flight read.
func (s *messageStream) Close() error {
	return s.body.Close()
}

// decodeStreamEvent turns one SSE event into a typed stream event. Unknown
// event names are skipped, not fatal; malformed JSON is.
func decodeStreamEvent(raw sseEvent) (*llm.StreamEvent, error) {
	if raw.name == "" {
		return nil, nil
	}

	parseErr := func(err error) error {
		return &llm.APIError{
			Kind:    llm.ErrKindStreamParse,
			Message: fmt.Sprintf("%s: %v", raw.name, err),
		}
	}

	switch raw.name {
	case llm.EventMessageStart:
		var wrapper struct {
			Message llm.MessageStart `json:"message"`
		}
		if err := json.Unmarshal([]byte(raw.data), &wrapper); err != nil {
			return nil, parseErr(err)
		}
		return &llm.StreamEvent{Type: llm.EventMessageStart, Message: &wrapper.Message}, nil
	case llm.EventContentBlockStart:
		var wrapper struct {
			Index        int              `json:"index"`
			ContentBlock llm.ContentBlock `json:"content_block"`
		}
		if err := json.Unmarshal([]byte(raw.data), &wrapper); err != nil {
			return nil, parseErr(err)
		}
		return &llm.StreamEvent{
			Type:         llm.EventContentBlockStart,
			Index:        wrapper.Index,
			ContentBlock: &wrapper.ContentBlock,
		}, nil
	case llm.EventContentBlockDelta:
		var wrapper struct {
			Index int       `json:"index"`
			Delta llm.Delta `json:"delta"`
		}
		if err := json.Unmarshal([]byte(raw.data), &wrapper); err != nil {
			return nil, parseErr(err)
		}
		return &llm.StreamEvent{
			Type:  llm.EventContentBlockDelta,
			Index: wrapper.Index,
			Delta: &wrapper.Delta,
		}, nil
	case llm.EventContentBlockStop:
		var wrapper struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal([]byte(raw.data), &wrapper); err != nil {
			return nil, parseErr(err)
		}
		return &llm.StreamEvent{Type: llm.EventContentBlockStop, Index: wrapper.Index}, nil
	case llm.EventMessageDelta:
		var wrapper struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Usage *llm.Usage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(raw.data), &wrapper); err != nil {
			return nil, parseErr(err)
		}
		return &llm.StreamEvent{
			Type:       llm.EventMessageDelta,
			StopReason: wrapper.Delta.StopReason,
			Usage:      wrapper.Usage,
		}, nil
	case llm.EventMessageStop:
		return &llm.StreamEvent{Type: llm.EventMessageStop}, nil
	case llm.EventPing:
		return &llm.StreamEvent{Type: llm.EventPing}, nil
	case llm.EventError:
		var wrapper struct {
			Error llm.APIErrorDetail `json:"error"`
		}
		if err := json.Unmarshal([]byte(raw.data), &wrapper); err != nil {
			return nil, parseErr(err)
		}
		return &llm.StreamEvent{Type: llm.EventError, Error: &wrapper.Error}, nil
	default:
		return nil, nil
	}
}
