package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// maxGrepMatches bounds result size for broad patterns.
const maxGrepMatches = 500

// GrepTool searches file contents with a regular expression.
type GrepTool struct{}

func (t *GrepTool) Name() string {
	return "Grep"
}

func (t *GrepTool) Description() string {
	return "Search for a regular expression in files under a path."
}

func (t *GrepTool) Mutating() bool {
	return false
}

func (t *GrepTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "File or directory to search (defaults to the working directory).",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Run(ctx context.Context, input json.RawMessage, tc Context) (Result, error) {
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

	pattern, err := regexp.Compile(payload.Pattern)
	if err != nil {
		return Errorf("bad pattern: %v", err), nil
	}

	root := tc.CWD
	if payload.Path != "" {
		root = resolvePath(tc.CWD, payload.Path)
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		// Re-check cancellation between files; large trees take a while.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := entry.Info()
		if err != nil || info.Size() > maxReadBytes {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		lineNumber := 1
		for scanner.Scan() {
			if pattern.MatchString(scanner.Text()) {
				matches = append(matches, fmt.Sprintf("%s:%d:%s", path, lineNumber, scanner.Text()))
				if len(matches) >= maxGrepMatches {
					return filepath.SkipAll
				}
			}
			lineNumber++
		}
		return nil
	})
	if walkErr != nil && walkErr == ctx.Err() {
		return Errorf("cancelled"), nil
	}

	result := strings.Join(matches, "\n")
	if len(matches) >= maxGrepMatches {
		result += fmt.Sprintf("\n...[stopped after %d matches]", maxGrepMatches)
	}
	return Result{Content: result}, nil
}
