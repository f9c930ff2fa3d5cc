package permission

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// ruleMatcher holds the compiled patterns for one rule.
type ruleMatcher struct {
	tool    glob.Glob
	argKey  string
	argGlob glob.Glob
}

// Compile validates a rule's patterns. A malformed glob is a configuration
// error and must abort config load, never surface at runtime.
func (r *Rule) Compile() error {
	if r.Tool == "" {
		return fmt.Errorf("permission rule missing tool pattern")
	}
	switch r.Level {
	case LevelPermit, LevelBlock, LevelPrompt:
	default:
		return fmt.Errorf("permission rule %q: unknown level %q", r.Tool, r.Level)
	}

	toolGlob, err := glob.Compile(r.Tool)
	if err != nil {
		return fmt.Errorf("permission rule %q: bad tool pattern: %w", r.Tool, err)
	}
	matcher := &ruleMatcher{tool: toolGlob}

	if r.Args != "" {
		key, pattern, found := strings.Cut(r.Args, ":")
		if !found || key == "" {
			return fmt.Errorf("permission rule %q: args pattern %q is not key:glob", r.Tool, r.Args)
		}
		argGlob, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("permission rule %q: bad args pattern %q: %w", r.Tool, r.Args, err)
		}
		matcher.argKey = key
		matcher.argGlob = argGlob
	}

	r.matcher = matcher
	return nil
}

// Matches reports whether the rule applies to the given tool call.
func (r *Rule) Matches(tool string, input json.RawMessage) bool {
	if r.matcher == nil {
		// Uncompiled rules never match; Compile is enforced at config load.
		return false
	}
	if !r.matcher.tool.Match(tool) {
		return false
	}
	if r.matcher.argGlob == nil {
		return true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err != nil {
		return false
	}
	raw, ok := fields[r.matcher.argKey]
	if !ok {
		return false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}
	return r.matcher.argGlob.Match(value)
}

// Describe renders a rule for prompt and block messages.
func (r *Rule) Describe() string {
	if r.Args != "" {
		return fmt.Sprintf("rule: %s [%s] -> %s", r.Tool, r.Args, r.Level)
	}
	return fmt.Sprintf("rule: %s -> %s", r.Tool, r.Level)
}

// CompileRules compiles a rule list in place, failing on the first bad rule.
func CompileRules(rules []Rule) error {
	for i := range rules {
		if err := rules[i].Compile(); err != nil {
			return err
		}
	}
	return nil
}
