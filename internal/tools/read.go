package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// maxReadBytes caps file reads so tool output stays bounded. Oversized files
// fail fast with a clear error instead of flooding the transcript.
const maxReadBytes = 1024 * 1024

// ReadTool reads a file from disk, with optional line-window reads.
type ReadTool struct{}

func (t *ReadTool) Name() string {
	return "Read"
}

func (t *ReadTool) Description() string {
	return "Read the contents of a file from disk. Supports offset/limit line windows for large files."
}

func (t *ReadTool) Mutating() bool {
	return false
}

func (t *ReadTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Absolute path to the file to read.",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Line number to start reading from (1-indexed).",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lines to read.",
			},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadTool) Run(ctx context.Context, input json.RawMessage, tc Context) (Result, error) {
	var payload struct {
		FilePath string `json:"file_path"`
		Offset   *int   `json:"offset"`
		Limit    *int   `json:"limit"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return Errorf("invalid input: %v", err), nil
	}
	if payload.FilePath == "" {
		return Errorf("file_path is required"), nil
	}

	path := resolvePath(tc.CWD, payload.FilePath)
	info, err := os.Stat(path)
	if err != nil {
		return Errorf("%v", err), nil
	}
	if info.Size() > maxReadBytes {
		return Errorf("file too large: %d bytes", info.Size()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf("%v", err), nil
	}

	// Quick binary detection to avoid dumping binary blobs.
	if bytes.IndexByte(data, 0) >= 0 {
		return Errorf("binary file detected"), nil
	}

	content := string(data)
	if payload.Offset != nil || payload.Limit != nil {
		// Offset is 1-indexed to match editor line numbering.
		lines := strings.Split(content, "\n")
		start := 0
		if payload.Offset != nil && *payload.Offset > 0 {
			start = *payload.Offset - 1
		}
		if start > len(lines) {
			return Errorf("offset exceeds file length"), nil
		}
		end := len(lines)
		if payload.Limit != nil && *payload.Limit >= 0 && start+*payload.Limit < end {
			end = start + *payload.Limit
		}
		content = strings.Join(lines[start:end], "\n")
	}

	return Result{Content: content}, nil
}

// resolvePath makes relative tool paths absolute against the tool cwd.
func resolvePath(cwd string, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(cwd, path)
}
