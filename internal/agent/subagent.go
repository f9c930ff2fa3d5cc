package agent

import (
	"context"
	"encoding/json"

	"github.com/chetcli/chet/internal/llm"
	"github.com/chetcli/chet/internal/permission"
	"github.com/chetcli/chet/internal/tools"
)

// SubagentTool spawns a nested agent to handle a delegated task. The child
// gets a builtins-only registry (no SubagentTool, preventing recursion), a
// silent observer, and the parent's permission engine; its last assistant
// text becomes the tool result.
type SubagentTool struct {
	Provider    llm.Provider
	Permissions *permission.Engine
	Model       string
	MaxTokens   int
	CWD         string
}

func (t *SubagentTool) Name() string {
	return "Subagent"
}

func (t *SubagentTool) Description() string {
	return "Spawn a child agent to handle a delegated task independently. " +
		"The child has the built-in tools (Read, Write, Edit, Bash, Glob, Grep) " +
		"and runs silently. Use this for self-contained sub-tasks like searching " +
		"many files or running a test suite."
}

func (t *SubagentTool) Mutating() bool {
	return true
}

func (t *SubagentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "The task for the child agent to perform.",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Short task description for display.",
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *SubagentTool) Run(ctx context.Context, input json.RawMessage, tc Context) (tools.Result, error) {
	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return tools.Errorf("invalid input: %v", err), nil
	}
	if payload.Prompt == "" {
		return tools.Errorf("prompt is required"), nil
	}

	child := &Agent{
		Provider:     t.Provider,
		Registry:     tools.NewRegistry(tools.Builtins()),
		Permissions:  t.Permissions,
		Model:        t.Model,
		MaxTokens:    t.MaxTokens,
		SystemPrompt: subagentSystemPrompt(t.CWD),
		CWD:          t.CWD,
		Observer:     NopObserver{},
	}

	messages := []llm.Message{llm.UserText(payload.Prompt)}
	if _, err := child.Run(ctx, &messages); err != nil {
		return tools.Errorf("subagent error: %v", err), nil
	}

	text := lastAssistantText(messages)
	if text == "" {
		return tools.Errorf("subagent completed but produced no text output"), nil
	}
	return tools.Result{Content: text}, nil
}

// Context aliases the tools execution context for readability here.
type Context = tools.Context

// subagentSystemPrompt is the child agent's system prompt.
func subagentSystemPrompt(cwd string) string {
	return "You are a subagent of chet, an AI coding assistant. You have been " +
		"spawned to handle a specific task. Complete the task using the available " +
		"tools and reply with a clear, concise summary of your findings.\n\n" +
		"Current working directory: " + cwd
}

// lastAssistantText returns the text of the most recent assistant message.
func lastAssistantText(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llm.RoleAssistant {
			continue
		}
		if text := messages[i].PlainText(); text != "" {
			return text
		}
	}
	return ""
}
