package session

import (
	"strings"
	"testing"

	"github.com/chetcli/chet/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestEstimateEmpty(t *testing.T) {
	tracker := NewContextTracker("claude-sonnet-4-5-20250929")
	info := tracker.Estimate(nil, "")
	assert.Equal(t, int64(0), info.EstimatedTokens)
	assert.Equal(t, int64(200_000), info.ContextWindow)
	assert.Equal(t, float64(0), info.UsagePercent())
}

func TestEstimateSplitsByRole(t *testing.T) {
	tracker := NewContextTracker("claude-test")
	messages := []llm.Message{
		llm.UserText("a question about things"),
		llm.AssistantText("an answer about those things"),
	}
	info := tracker.Estimate(messages, "system prompt")

	assert.Greater(t, info.UserTokens, int64(0))
	assert.Greater(t, info.AssistantTokens, int64(0))
	assert.Greater(t, info.SystemTokens, int64(0))
	assert.Equal(t, info.SystemTokens+info.UserTokens+info.AssistantTokens, info.EstimatedTokens)
}

func TestEstimateCharsOverFour(t *testing.T) {
	assert.Equal(t, int64(3), estimateText("twelve chars"))
	assert.Equal(t, int64(1), estimateText("abc"))
	assert.Equal(t, int64(0), estimateText(""))
}

func TestEstimateLastTurn(t *testing.T) {
	tracker := NewContextTracker("claude-test")
	messages := []llm.Message{
		llm.UserText("first question"),
		llm.AssistantText("first answer"),
		llm.UserText("second question"),
		llm.AssistantText("second answer"),
	}
	info := tracker.Estimate(messages, "")
	assert.Greater(t, info.LastTurnInput, int64(0))
	assert.Greater(t, info.LastTurnOutput, int64(0))
}

func TestUnknownModelWindow(t *testing.T) {
	tracker := NewContextTracker("some-other-model")
	info := tracker.Estimate(nil, "")
	assert.Equal(t, int64(128_000), info.ContextWindow)
}

func TestFormatBrief(t *testing.T) {
	tracker := NewContextTracker("claude-test")
	info := tracker.Estimate([]llm.Message{llm.UserText("hello world")}, "")
	brief := tracker.FormatBrief(info)
	assert.True(t, strings.HasPrefix(brief, "Context:"))
	assert.Contains(t, brief, "/200k tokens")
}

func TestFormatDetailed(t *testing.T) {
	tracker := NewContextTracker("claude-test")
	messages := []llm.Message{
		llm.UserText("question"),
		llm.AssistantText("answer"),
	}
	detailed := tracker.FormatDetailed(tracker.Estimate(messages, "sys"))
	assert.Contains(t, detailed, "Context window:")
	assert.Contains(t, detailed, "System:")
	assert.Contains(t, detailed, "Last turn:")
}
