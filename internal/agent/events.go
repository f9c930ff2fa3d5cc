package agent

import (
	"encoding/json"

	"github.com/chetcli/chet/internal/llm"
)

// Observer receives agent progress events in stream order. The UI subscribes
// to one; subagents run with the silent observer.
type Observer interface {
	// TextDelta delivers a streamed chunk of assistant prose.
	TextDelta(text string)
	// ThinkingDelta delivers a streamed chunk of model reasoning.
	ThinkingDelta(text string)
	// ToolStart fires before a permitted tool executes.
	ToolStart(name string, input json.RawMessage)
	// ToolProgress relays progress notes from a running tool.
	ToolProgress(name string, message string)
	// ToolEnd fires after a tool finishes.
	ToolEnd(name string, output string, isError bool)
	// ToolBlocked fires when a tool call is answered without running: it was
	// refused by plan mode or the permission gate, or left pending when the
	// stream was cancelled or failed.
	ToolBlocked(name string, reason string)
	// Usage reports merged token usage for the turn so far.
	Usage(usage llm.Usage)
	// Done fires when the turn completes normally.
	Done()
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) TextDelta(string)                  {}
func (NopObserver) ThinkingDelta(string)              {}
func (NopObserver) ToolStart(string, json.RawMessage) {}
func (NopObserver) ToolProgress(string, string)       {}
func (NopObserver) ToolEnd(string, string, bool)      {}
func (NopObserver) ToolBlocked(string, string)        {}
func (NopObserver) Usage(llm.Usage)                   {}
func (NopObserver) Done()                             {}

// observerSink adapts an Observer to the tools progress sink.
type observerSink struct {
	observer Observer
}

func (s observerSink) ToolProgress(tool string, message string) {
	s.observer.ToolProgress(tool, message)
}
