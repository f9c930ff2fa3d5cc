package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// EditTool performs an exact old-string to new-string replacement in a file.
type EditTool struct{}

func (t *EditTool) Name() string {
	return "Edit"
}

func (t *EditTool) Description() string {
	return "Replace an exact string in a file. The old string must appear exactly once unless replace_all is set."
}

func (t *EditTool) Mutating() bool {
	return true
}

func (t *EditTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Absolute path of the file to edit.",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "Exact text to replace.",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "Replacement text.",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "Replace every occurrence instead of requiring a unique match.",
			},
		},
		"required": []string{"file_path", "old_string", "new_string"},
	}
}

func (t *EditTool) Run(ctx context.Context, input json.RawMessage, tc Context) (Result, error) {
	var payload struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return Errorf("invalid input: %v", err), nil
	}
	if payload.FilePath == "" {
		return Errorf("file_path is required"), nil
	}
	if payload.OldString == "" {
		return Errorf("old_string is required"), nil
	}
	if payload.OldString == payload.NewString {
		return Errorf("old_string and new_string are identical"), nil
	}

	path := resolvePath(tc.CWD, payload.FilePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf("%v", err), nil
	}
	content := string(data)

	count := strings.Count(content, payload.OldString)
	switch {
	case count == 0:
		return Errorf("old_string not found in %s", path), nil
	case count > 1 && !payload.ReplaceAll:
		return Errorf("old_string appears %d times in %s; pass replace_all or make it unique", count, path), nil
	}

	replacements := 1
	if payload.ReplaceAll {
		replacements = count
	}
	content = strings.Replace(content, payload.OldString, payload.NewString, replacements)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Errorf("%v", err), nil
	}

	return Result{Content: fmt.Sprintf("Replaced %d occurrence(s) in %s", replacements, path)}, nil
}
