package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTool(t *testing.T, tool Tool, cwd string, input string) Result {
	t.Helper()
	result, err := tool.Run(context.Background(), json.RawMessage(input), Context{CWD: cwd})
	require.NoError(t, err)
	return result
}

func TestRegistryOrderAndLookup(t *testing.T) {
	registry := NewRegistry(Builtins())
	assert.Equal(t, []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep"}, registry.Names())

	tool, ok := registry.Lookup("Bash")
	require.True(t, ok)
	assert.Equal(t, "Bash", tool.Name())

	_, ok = registry.Lookup("Nope")
	assert.False(t, ok)
}

func TestRegistryDefinitionsCacheControlOnLast(t *testing.T) {
	registry := NewRegistry(Builtins())
	defs := registry.Definitions(false)
	require.Len(t, defs, 6)
	for _, def := range defs[:5] {
		assert.Nil(t, def.CacheControl, def.Name)
	}
	require.NotNil(t, defs[5].CacheControl)
	assert.Equal(t, "ephemeral", defs[5].CacheControl.Type)
}

func TestRegistryReadOnlySubset(t *testing.T) {
	registry := NewRegistry(Builtins())
	defs := registry.Definitions(true)
	var names []string
	for _, def := range defs {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"Read", "Glob", "Grep"}, names)

	assert.True(t, registry.Allowed("Read", true))
	assert.False(t, registry.Allowed("Write", true))
	assert.True(t, registry.Allowed("Write", false))
	assert.False(t, registry.Allowed("Nope", false))
}

func TestRegistryMutatingFlags(t *testing.T) {
	registry := NewRegistry(Builtins())
	assert.False(t, registry.Mutating("Read"))
	assert.False(t, registry.Mutating("Glob"))
	assert.False(t, registry.Mutating("Grep"))
	assert.True(t, registry.Mutating("Write"))
	assert.True(t, registry.Mutating("Edit"))
	assert.True(t, registry.Mutating("Bash"))
	// Unknown tools count as mutating so the default stays conservative.
	assert.True(t, registry.Mutating("Mystery"))
}

func TestRegistryRunUnknownTool(t *testing.T) {
	registry := NewRegistry(Builtins())
	result, err := registry.Run(context.Background(), "Nope", json.RawMessage(`{}`), Context{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "tool not found")
}

func TestReadTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("line1\nline2\nline3\n"), 0o644))

	result := runTool(t, &ReadTool{}, dir, `{"file_path":"`+path+`"}`)
	assert.False(t, result.IsError)
	assert.Equal(t, "line1\nline2\nline3\n", result.Content)
}

func TestReadToolLineWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd"), 0o644))

	result := runTool(t, &ReadTool{}, dir, `{"file_path":"`+path+`","offset":2,"limit":2}`)
	assert.False(t, result.IsError)
	assert.Equal(t, "b\nc", result.Content)
}

func TestReadToolRelativePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rel.txt"), []byte("ok"), 0o644))

	result := runTool(t, &ReadTool{}, dir, `{"file_path":"rel.txt"}`)
	assert.False(t, result.IsError)
	assert.Equal(t, "ok", result.Content)
}

func TestReadToolMissingFile(t *testing.T) {
	result := runTool(t, &ReadTool{}, t.TempDir(), `{"file_path":"/does/not/exist"}`)
	assert.True(t, result.IsError)
}

func TestReadToolBinaryDetection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 0, 3}, 0o644))

	result := runTool(t, &ReadTool{}, dir, `{"file_path":"`+path+`"}`)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "binary")
}

func TestWriteTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "new.txt")

	result := runTool(t, &WriteTool{}, dir, `{"file_path":"`+path+`","content":"written"}`)
	assert.False(t, result.IsError)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "written", string(data))
}

func TestEditToolUniqueReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.go")
	require.NoError(t, os.WriteFile(path, []byte("foo bar baz"), 0o644))

	result := runTool(t, &EditTool{}, dir,
		`{"file_path":"`+path+`","old_string":"bar","new_string":"qux"}`)
	assert.False(t, result.IsError)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "foo qux baz", string(data))
}

func TestEditToolAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.go")
	require.NoError(t, os.WriteFile(path, []byte("x x"), 0o644))

	result := runTool(t, &EditTool{}, dir,
		`{"file_path":"`+path+`","old_string":"x","new_string":"y"}`)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "replace_all")
}

func TestEditToolReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.go")
	require.NoError(t, os.WriteFile(path, []byte("x x x"), 0o644))

	result := runTool(t, &EditTool{}, dir,
		`{"file_path":"`+path+`","old_string":"x","new_string":"y","replace_all":true}`)
	assert.False(t, result.IsError)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "y y y", string(data))
}

func TestEditToolMissingOldString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.go")
	require.NoError(t, os.WriteFile(path, []byte("nothing here"), 0o644))

	result := runTool(t, &EditTool{}, dir,
		`{"file_path":"`+path+`","old_string":"absent","new_string":"y"}`)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "not found")
}

func TestBashTool(t *testing.T) {
	result := runTool(t, &BashTool{}, t.TempDir(), `{"command":"echo hello"}`)
	assert.False(t, result.IsError)
	assert.Equal(t, "hello", result.Content)
}

func TestBashToolFailure(t *testing.T) {
	result := runTool(t, &BashTool{}, t.TempDir(), `{"command":"exit 7"}`)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "command failed")
}

func TestBashToolRunsInCWD(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), nil, 0o644))

	result := runTool(t, &BashTool{}, dir, `{"command":"ls"}`)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "marker")
}

func TestBashToolTimeout(t *testing.T) {
	result := runTool(t, &BashTool{}, t.TempDir(), `{"command":"sleep 5","timeout_ms":50}`)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "timed out")
}

func TestBashToolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := (&BashTool{}).Run(ctx, json.RawMessage(`{"command":"sleep 5"}`), Context{CWD: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "cancelled", result.Content)
}

func TestGlobTool(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "util.go"), []byte("package pkg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi"), 0o644))

	result := runTool(t, &GlobTool{}, dir, `{"pattern":"**/*.go"}`)
	assert.False(t, result.IsError)
	assert.Equal(t, "main.go\npkg/util.go", result.Content)
}

func TestGlobToolBadPattern(t *testing.T) {
	result := runTool(t, &GlobTool{}, t.TempDir(), `{"pattern":"[bad"}`)
	assert.True(t, result.IsError)
}

func TestGrepTool(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha\nneedle here\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("nothing\n"), 0o644))

	result := runTool(t, &GrepTool{}, dir, `{"pattern":"needle"}`)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "a.txt:2:needle here")
	assert.NotContains(t, result.Content, "b.txt")
}

func TestGrepToolRegexp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("value=42\n"), 0o644))

	result := runTool(t, &GrepTool{}, dir, `{"pattern":"value=\\d+"}`)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "value=42")
}

func TestGrepToolBadPattern(t *testing.T) {
	result := runTool(t, &GrepTool{}, t.TempDir(), `{"pattern":"("}`)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "bad pattern")
}

func TestToolsRejectMissingRequiredInput(t *testing.T) {
	cases := []struct {
		tool  Tool
		input string
	}{
		{&ReadTool{}, `{}`},
		{&WriteTool{}, `{"content":"x"}`},
		{&EditTool{}, `{"file_path":"/tmp/x"}`},
		{&BashTool{}, `{"command":"  "}`},
		{&GlobTool{}, `{}`},
		{&GrepTool{}, `{}`},
	}
	for _, testCase := range cases {
		result := runTool(t, testCase.tool, t.TempDir(), testCase.input)
		assert.True(t, result.IsError, testCase.tool.Name())
	}
}
