package permission

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// hookOutcome classifies one hook run.
type hookOutcome int

const (
	// hookPass means the hook completed without an explicit decision.
	hookPass hookOutcome = iota
	// hookPermit is an explicit stdout permit decision.
	hookPermit
	// hookBlock covers explicit blocks, non-zero exits, timeouts, and crashes.
	hookBlock
	// hookPrompt is an explicit stdout prompt decision.
	hookPrompt
)

// hookResult carries the outcome of a single hook run.
type hookResult struct {
	outcome hookOutcome
	reason  string
	// modifiedInput replaces the tool input when a permit decision set it.
	modifiedInput json.RawMessage
}

// runHook executes one hook process: payload on stdin, decision JSON on
// stdout, a dedicated temp dir, and a hard timeout. Timeouts and crashes are
// treated as block.
func runHook(ctx context.Context, hook HookConfig, payload HookInput, log *zap.Logger) hookResult {
	timeout := time.Duration(hook.TimeoutMS) * time.Millisecond
	if hook.TimeoutMS <= 0 {
		timeout = DefaultHookTimeoutMS * time.Millisecond
	}
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input, err := json.Marshal(payload)
	if err != nil {
		return hookResult{outcome: hookBlock, reason: "hook input serialization failed: " + err.Error()}
	}

	// Each run gets its own scratch directory, removed afterwards.
	tempDir, err := os.MkdirTemp("", "chet-hook-")
	if err != nil {
		return hookResult{outcome: hookBlock, reason: "hook temp dir: " + err.Error()}
	}
	defer os.RemoveAll(tempDir)

	cmd := exec.CommandContext(hookCtx, "sh", "-c", hook.Command)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(), "TMPDIR="+tempDir)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if hookCtx.Err() == context.DeadlineExceeded {
		log.Warn("hook timed out", zap.String("command", hook.Command), zap.Duration("timeout", timeout))
		return hookResult{outcome: hookBlock, reason: "hook timed out: " + hook.Command}
	}
	if runErr != nil {
		log.Warn("hook failed",
			zap.String("command", hook.Command),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(runErr))
		return hookResult{outcome: hookBlock, reason: "hook rejected the call: " + hook.Command}
	}

	return parseHookStdout(stdout.Bytes(), hook, log)
}

// parseHookStdout interprets an exited-zero hook's stdout. A JSON decision
// object takes precedence over the exit code; anything else passes.
func parseHookStdout(stdout []byte, hook HookConfig, log *zap.Logger) hookResult {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return hookResult{outcome: hookPass}
	}

	var output HookOutput
	if err := json.Unmarshal(trimmed, &output); err != nil {
		log.Warn("hook printed malformed JSON, ignoring",
			zap.String("command", hook.Command), zap.Error(err))
		return hookResult{outcome: hookPass}
	}

	switch output.Decision {
	case "permit":
		return hookResult{outcome: hookPermit, reason: output.Reason, modifiedInput: output.ModifiedInput}
	case "block":
		reason := output.Reason
		if reason == "" {
			reason = "blocked by hook: " + hook.Command
		}
		return hookResult{outcome: hookBlock, reason: reason}
	case "prompt":
		return hookResult{outcome: hookPrompt, reason: output.Reason}
	case "":
		return hookResult{outcome: hookPass}
	default:
		log.Warn("hook printed unknown decision",
			zap.String("command", hook.Command), zap.String("decision", output.Decision))
		return hookResult{outcome: hookPass}
	}
}
