package permission

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func beforeToolInput() HookInput {
	return HookInput{
		Tool:  "Bash",
		Input: json.RawMessage(`{"command":"ls"}`),
		Event: EventBeforeTool,
	}
}

func TestRunHookCleanExitPasses(t *testing.T) {
	result := runHook(context.Background(),
		HookConfig{Event: EventBeforeTool, Command: "exit 0", TimeoutMS: 5000},
		beforeToolInput(), zap.NewNop())
	assert.Equal(t, hookPass, result.outcome)
}

func TestRunHookNonZeroExitBlocks(t *testing.T) {
	result := runHook(context.Background(),
		HookConfig{Event: EventBeforeTool, Command: "exit 1", TimeoutMS: 5000},
		beforeToolInput(), zap.NewNop())
	assert.Equal(t, hookBlock, result.outcome)
}

func TestRunHookNonJSONStdoutPasses(t *testing.T) {
	result := runHook(context.Background(),
		HookConfig{Event: EventBeforeTool, Command: "echo audited", TimeoutMS: 5000},
		beforeToolInput(), zap.NewNop())
	assert.Equal(t, hookPass, result.outcome)
}

func TestRunHookMalformedJSONPasses(t *testing.T) {
	result := runHook(context.Background(),
		HookConfig{Event: EventBeforeTool, Command: `echo '{"decision":'`, TimeoutMS: 5000},
		beforeToolInput(), zap.NewNop())
	assert.Equal(t, hookPass, result.outcome)
}

func TestRunHookUnknownDecisionPasses(t *testing.T) {
	result := runHook(context.Background(),
		HookConfig{Event: EventBeforeTool, Command: `echo '{"decision":"maybe"}'`, TimeoutMS: 5000},
		beforeToolInput(), zap.NewNop())
	assert.Equal(t, hookPass, result.outcome)
}

func TestRunHookDefaultTimeoutApplied(t *testing.T) {
	// TimeoutMS zero falls back to the default rather than expiring at once.
	result := runHook(context.Background(),
		HookConfig{Event: EventBeforeTool, Command: "exit 0"},
		beforeToolInput(), zap.NewNop())
	assert.Equal(t, hookPass, result.outcome)
}

func TestRunHookTimeoutBlocks(t *testing.T) {
	result := runHook(context.Background(),
		HookConfig{Event: EventBeforeTool, Command: "sleep 5", TimeoutMS: 50},
		beforeToolInput(), zap.NewNop())
	assert.Equal(t, hookBlock, result.outcome)
	assert.Contains(t, result.reason, "timed out")
}

func TestRunHookDedicatedTempDir(t *testing.T) {
	// The hook sees a per-run TMPDIR it can write to.
	result := runHook(context.Background(),
		HookConfig{Event: EventBeforeTool, Command: `touch "$TMPDIR/scratch"`, TimeoutMS: 5000},
		beforeToolInput(), zap.NewNop())
	assert.Equal(t, hookPass, result.outcome)
}
