// Package tools defines the tool interface, the registry the agent
// dispatches through, and the built-in file, shell, and search tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chetcli/chet/internal/llm"
	"github.com/chetcli/chet/internal/permission"
)

// Sink receives progress notes from long-running tools.
type Sink interface {
	ToolProgress(tool string, message string)
}

// Context provides shared state to tool implementations.
type Context struct {
	// CWD is the working directory for filesystem and command tools.
	CWD string
	// Permissions is the shared permission engine, for tools that gate
	// sub-operations of their own.
	Permissions *permission.Engine
	// Events receives progress notes when non-nil.
	Events Sink
}

// Result is the outcome of a tool invocation.
type Result struct {
	// Content holds the tool output payload.
	Content string
	// IsError reports whether the tool failed.
	IsError bool
}

// Errorf builds an error result.
func Errorf(format string, args ...any) Result {
	return Result{IsError: true, Content: fmt.Sprintf(format, args...)}
}

// Tool is a callable capability advertised to the model.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	// Mutating is advisory: mutating tools default to a permission prompt
	// when no rule covers them.
	Mutating() bool
	// Run executes the tool. Long-running tools must observe ctx between
	// logical steps.
	Run(ctx context.Context, input json.RawMessage, tc Context) (Result, error)
}

// Registry maps tool names to implementations, preserving registration order
// for deterministic API payloads.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry constructs a registry, de-duplicating by name.
func NewRegistry(tools []Tool) *Registry {
	registry := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		name := tool.Name()
		if name == "" {
			continue
		}
		if _, exists := registry.tools[name]; exists {
			continue
		}
		registry.tools[name] = tool
		registry.order = append(registry.order, name)
	}
	return registry
}

// Builtins returns the standard tool set in canonical order.
func Builtins() []Tool {
	return []Tool{
		&ReadTool{},
		&WriteTool{},
		&EditTool{},
		&BashTool{},
		&GlobTool{},
		&GrepTool{},
	}
}

// readOnlyNames is the tool subset advertised in plan mode.
var readOnlyNames = map[string]bool{
	"Read": true,
	"Glob": true,
	"Grep": true,
}

// Lookup returns a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Definitions returns API tool definitions in registration order. The last
// definition carries the ephemeral cache-control marker so the tool block
// participates in prompt caching.
func (r *Registry) Definitions(readOnly bool) []llm.ToolDefinition {
	var defs []llm.ToolDefinition
	for _, name := range r.order {
		if readOnly && !readOnlyNames[name] {
			continue
		}
		tool := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	if len(defs) > 0 {
		defs[len(defs)-1].CacheControl = llm.EphemeralCache()
	}
	return defs
}

// Allowed reports whether a tool may be dispatched under the current mode.
func (r *Registry) Allowed(name string, readOnly bool) bool {
	if _, ok := r.tools[name]; !ok {
		return false
	}
	if readOnly {
		return readOnlyNames[name]
	}
	return true
}

// Mutating reports whether a named tool is mutating; unknown tools count as
// mutating so the permission default stays conservative.
func (r *Registry) Mutating(name string) bool {
	tool, ok := r.tools[name]
	if !ok {
		return true
	}
	return tool.Mutating()
}

// Run dispatches a tool by name. An unknown name is a tool-level error, not
// a process failure.
func (r *Registry) Run(ctx context.Context, name string, input json.RawMessage, tc Context) (Result, error) {
	tool, ok := r.tools[name]
	if !ok {
		return Errorf("tool not found: %s", name), nil
	}
	return tool.Run(ctx, input, tc)
}
