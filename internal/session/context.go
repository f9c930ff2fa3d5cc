package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chetcli/chet/internal/llm"
)

// ContextInfo reports estimated context window usage. Estimates use the
// chars/4 heuristic; provider usage counters remain authoritative for
// billing.
type ContextInfo struct {
	EstimatedTokens  int64
	ContextWindow    int64
	SystemTokens     int64
	UserTokens       int64
	AssistantTokens  int64
	LastTurnInput    int64
	LastTurnOutput   int64
}

// UsagePercent is the estimated share of the context window in use.
func (c ContextInfo) UsagePercent() float64 {
	if c.ContextWindow == 0 {
		return 0
	}
	return float64(c.EstimatedTokens) / float64(c.ContextWindow) * 100
}

// ContextTracker estimates token usage against a model's context window.
type ContextTracker struct {
	window int64
}

// NewContextTracker creates a tracker sized for the given model.
func NewContextTracker(model string) *ContextTracker {
	return &ContextTracker{window: contextWindow(model)}
}

// Estimate computes usage for the current transcript plus system prompt.
func (t *ContextTracker) Estimate(messages []llm.Message, systemPrompt string) ContextInfo {
	info := ContextInfo{
		ContextWindow: t.window,
		SystemTokens:  estimateText(systemPrompt),
	}

	for _, msg := range messages {
		tokens := estimateMessage(msg)
		switch msg.Role {
		case llm.RoleUser:
			info.UserTokens += tokens
		case llm.RoleAssistant:
			info.AssistantTokens += tokens
		}
	}

	// Last turn: the final assistant message and the user messages just
	// before it.
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llm.RoleAssistant {
			continue
		}
		info.LastTurnOutput = estimateMessage(messages[i])
		for j := i - 1; j >= 0 && messages[j].Role == llm.RoleUser; j-- {
			info.LastTurnInput += estimateMessage(messages[j])
		}
		break
	}

	info.EstimatedTokens = info.SystemTokens + info.UserTokens + info.AssistantTokens
	return info
}

// FormatBrief renders a one-line context summary.
func (t *ContextTracker) FormatBrief(info ContextInfo) string {
	return fmt.Sprintf("Context: %.1fk/%.0fk tokens (%.0f%%)",
		float64(info.EstimatedTokens)/1000,
		float64(info.ContextWindow)/1000,
		info.UsagePercent())
}

// FormatDetailed renders a multi-line context breakdown.
func (t *ContextTracker) FormatDetailed(info ContextInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context window: %.1fk / %.0fk tokens (%.1f%%)\n",
		float64(info.EstimatedTokens)/1000,
		float64(info.ContextWindow)/1000,
		info.UsagePercent())
	fmt.Fprintf(&b, "  System:    ~%d tokens\n", info.SystemTokens)
	fmt.Fprintf(&b, "  User:      ~%d tokens\n", info.UserTokens)
	fmt.Fprintf(&b, "  Assistant: ~%d tokens", info.AssistantTokens)
	if info.LastTurnInput > 0 || info.LastTurnOutput > 0 {
		fmt.Fprintf(&b, "\n  Last turn: ~%d in / ~%d out", info.LastTurnInput, info.LastTurnOutput)
	}
	return b.String()
}

// estimateText applies the chars/4 heuristic.
func estimateText(text string) int64 {
	return (int64(len(text)) + 3) / 4
}

// estimateMessage estimates one message from its serialized form, plus a
// small per-message overhead.
func estimateMessage(msg llm.Message) int64 {
	data, err := json.Marshal(msg.Content)
	if err != nil {
		return 4
	}
	return 4 + estimateText(string(data))
}

// contextWindow looks up the window size for a model.
func contextWindow(model string) int64 {
	if strings.Contains(strings.ToLower(model), "claude") {
		return 200_000
	}
	return 128_000
}
