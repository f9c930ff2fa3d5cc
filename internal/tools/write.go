package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTool creates or overwrites a file with the given content.
type WriteTool struct{}

func (t *WriteTool) Name() string {
	return "Write"
}

func (t *WriteTool) Description() string {
	return "Write content to a file, creating it or overwriting an existing file."
}

func (t *WriteTool) Mutating() bool {
	return true
}

func (t *WriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Absolute path of the file to write.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full content to write.",
			},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteTool) Run(ctx context.Context, input json.RawMessage, tc Context) (Result, error) {
	var payload struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return Errorf("invalid input: %v", err), nil
	}
	if payload.FilePath == "" {
		return Errorf("file_path is required"), nil
	}

	path := resolvePath(tc.CWD, payload.FilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Errorf("create parent dir: %v", err), nil
	}
	if err := os.WriteFile(path, []byte(payload.Content), 0o644); err != nil {
		return Errorf("%v", err), nil
	}

	return Result{Content: fmt.Sprintf("Wrote %d bytes to %s", len(payload.Content), path)}, nil
}
