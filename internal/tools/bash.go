package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"
)

// maxCommandOutput limits combined stdout/stderr output.
const maxCommandOutput = 64 * 1024

// defaultCommandTimeout applies when the model does not request one. Tools
// enforce their own deadlines; the agent loop imposes none.
const defaultCommandTimeout = 2 * time.Minute

// maxCommandTimeout caps model-requested timeouts.
const maxCommandTimeout = 10 * time.Minute

// BashTool runs shell commands with a bounded runtime.
type BashTool struct{}

func (t *BashTool) Name() string {
	return "Bash"
}

func (t *BashTool) Description() string {
	return "Run a shell command and return its combined output."
}

func (t *BashTool) Mutating() bool {
	return true
}

func (t *BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"timeout_ms": map[string]any{
				"type":        "integer",
				"description": "Optional timeout in milliseconds (max 600000).",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Run(ctx context.Context, input json.RawMessage, tc Context) (Result, error) {
	var payload struct {
		Command   string `json:"command"`
		TimeoutMS int    `json:"timeout_ms"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return Errorf("invalid input: %v", err), nil
	}
	if strings.TrimSpace(payload.Command) == "" {
		return Errorf("command is required"), nil
	}

	timeout := defaultCommandTimeout
	if payload.TimeoutMS > 0 {
		timeout = time.Duration(payload.TimeoutMS) * time.Millisecond
		if timeout > maxCommandTimeout {
			timeout = maxCommandTimeout
		}
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if tc.Events != nil {
		tc.Events.ToolProgress("Bash", payload.Command)
	}

	// Commands go through bash -lc to match interactive shell behavior.
	cmd := exec.CommandContext(cmdCtx, "bash", "-lc", payload.Command)
	cmd.Dir = tc.CWD

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += strings.TrimSpace(stderr.String())
	}
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput] + "\n...[truncated]"
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return Errorf("command timed out after %s\n%s", timeout, output), nil
	}
	if ctx.Err() != nil {
		return Errorf("cancelled"), nil
	}
	if err != nil {
		return Errorf("command failed: %v\n%s", err, output), nil
	}

	return Result{Content: output}, nil
}
