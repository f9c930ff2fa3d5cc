package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chetcli/chet/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestTruncateDisplay(t *testing.T) {
	assert.Equal(t, "short", truncateDisplay("short", 10))
	long := strings.Repeat("x", 20)
	truncated := truncateDisplay(long, 10)
	assert.True(t, strings.HasSuffix(truncated, "...(truncated)"))
	assert.Contains(t, truncated, strings.Repeat("x", 10))
}

func TestSummarizeInput(t *testing.T) {
	input := json.RawMessage("{\n  \"command\":   \"ls -la\"\n}")
	assert.Equal(t, `{ "command": "ls -la" }`, summarizeInput(input, 100))
}

func TestPromptMarkerByMode(t *testing.T) {
	assert.Contains(t, promptMarker(session.ModeNormal), ">")
	assert.Contains(t, promptMarker(session.ModePlan), "plan>")
}

func TestPrintObserverStreamsText(t *testing.T) {
	var out bytes.Buffer
	var errOut bytes.Buffer
	observer := newPrintObserver(&out, &errOut)

	observer.TextDelta("hello ")
	observer.TextDelta("world")
	observer.finish()

	assert.Equal(t, "hello world\n", out.String())
}

func TestPrintObserverToolFailuresGoToStderr(t *testing.T) {
	var out bytes.Buffer
	var errOut bytes.Buffer
	observer := newPrintObserver(&out, &errOut)

	observer.ToolEnd("Bash", "boom", true)
	observer.ToolEnd("Read", "fine", false)
	observer.ToolBlocked("Write", "nope")

	assert.Contains(t, errOut.String(), "x Bash: boom")
	assert.NotContains(t, errOut.String(), "Read")
	assert.Contains(t, errOut.String(), "blocked Write: nope")
	assert.Empty(t, out.String())
}

func TestReplObserverBuffersUntilFlush(t *testing.T) {
	var out bytes.Buffer
	var errOut bytes.Buffer
	observer := newReplObserver(&out, &errOut)

	observer.TextDelta("# heading")
	assert.Empty(t, out.String())

	observer.Done()
	assert.Contains(t, out.String(), "heading")
}

func TestUsageErrorExitCodeClassification(t *testing.T) {
	err := usageError{err: assert.AnError}
	assert.Equal(t, assert.AnError.Error(), err.Error())
	var usage usageError
	assert.True(t, errors.As(fmt.Errorf("execute: %w", err), &usage))
}
