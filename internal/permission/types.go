// Package permission gates tool invocations behind configured rules,
// external hook processes, and an interactive prompt.
package permission

import "encoding/json"

// Level is the action a matched rule applies.
type Level string

const (
	LevelPermit Level = "permit"
	LevelBlock  Level = "block"
	LevelPrompt Level = "prompt"
)

// Rule matches a tool call by name pattern and an optional argument pattern.
// Rules are evaluated in declaration order; the first match wins.
type Rule struct {
	// Tool is a glob over the tool name (e.g. "Bash", "*").
	Tool string `json:"tool" mapstructure:"tool"`
	// Args is an optional "key:glob" matcher over the tool's input JSON
	// (e.g. "command:rm *").
	Args string `json:"args,omitempty" mapstructure:"args"`
	// Level applies when the rule matches.
	Level Level `json:"level" mapstructure:"level"`

	matcher *ruleMatcher
}

// DecisionKind classifies the outcome of a permission check.
type DecisionKind int

const (
	// Permitted allows the tool to run.
	Permitted DecisionKind = iota
	// Blocked rejects the call due to configuration or a hook.
	Blocked
	// Denied rejects the call because the user refused it.
	Denied
)

// Decision is the result of a permission check. Input carries the tool input
// to execute with, which a hook may have rewritten.
type Decision struct {
	Kind   DecisionKind
	Reason string
	Input  json.RawMessage
}

// PromptResponse is the user's answer to a permission prompt.
type PromptResponse int

const (
	// AllowOnce permits this single invocation.
	AllowOnce PromptResponse = iota
	// AllowSession permits the tool for the rest of the session.
	AllowSession
	// Deny refuses the invocation.
	Deny
)

// Prompter asks the user whether a tool call may proceed.
type Prompter interface {
	PromptPermission(tool string, input json.RawMessage, description string) PromptResponse
}

// HookEvent names the lifecycle points hooks can attach to.
type HookEvent string

const (
	EventBeforeTool     HookEvent = "before_tool"
	EventAfterTool      HookEvent = "after_tool"
	EventSessionStart   HookEvent = "session_start"
	EventSessionEnd     HookEvent = "session_end"
	EventConfigChange   HookEvent = "config_change"
	EventWorktreeCreate HookEvent = "worktree_create"
	EventWorktreeRemove HookEvent = "worktree_remove"
)

// DefaultHookTimeoutMS applies when a hook omits timeout_ms.
const DefaultHookTimeoutMS = 5000

// HookConfig declares one external hook process.
type HookConfig struct {
	// Event selects when the hook runs.
	Event HookEvent `json:"event" mapstructure:"event"`
	// Command is run through the shell with the hook payload on stdin.
	Command string `json:"command" mapstructure:"command"`
	// TimeoutMS bounds the hook's runtime; expiry counts as a block.
	TimeoutMS int `json:"timeout_ms,omitempty" mapstructure:"timeout_ms"`
}

// HookInput is the JSON payload written to a hook's stdin.
type HookInput struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
	Event HookEvent       `json:"event"`
}

// HookOutput is the optional JSON decision a hook prints on stdout.
type HookOutput struct {
	Decision      string          `json:"decision"`
	Reason        string          `json:"reason,omitempty"`
	ModifiedInput json.RawMessage `json:"modified_input,omitempty"`
}
