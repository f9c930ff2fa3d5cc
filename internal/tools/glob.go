package tools

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GlobTool finds files matching a doublestar glob pattern.
type GlobTool struct{}

func (t *GlobTool) Name() string {
	return "Glob"
}

func (t *GlobTool) Description() string {
	return "Find files matching a glob pattern (supports ** for recursive matches)."
}

func (t *GlobTool) Mutating() bool {
	return false
}

func (t *GlobTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern to match files, relative to path.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search (defaults to the working directory).",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GlobTool) Run(ctx context.Context, input json.RawMessage, tc Context) (Result, error) {
	var payload struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return Errorf("invalid input: %v", err), nil
	}
	if payload.Pattern == "" {
		return Errorf("pattern is required"), nil
	}

	root := tc.CWD
	if payload.Path != "" {
		root = resolvePath(tc.CWD, payload.Path)
	}

	matches, err := doublestar.Glob(os.DirFS(root), payload.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		if err == doublestar.ErrBadPattern {
			return Errorf("bad pattern: %s", payload.Pattern), nil
		}
		return Errorf("%v", err), nil
	}

	sort.Strings(matches)
	return Result{Content: strings.Join(matches, "\n")}, nil
}
