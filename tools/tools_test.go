package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robch/cycod-sub003/config"
)

func newTestRegistry(t *testing.T, cfg *config.Config) *Registry {
	t.Helper()
	r := NewRegistry(cfg, nil)
	t.Cleanup(r.Close)
	return r
}

func TestRegistryBuiltinsAndClassify(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})

	assert.Equal(t, CategoryRead, r.Classify("read_file"))
	assert.Equal(t, CategoryWrite, r.Classify("write_file"))
	assert.Equal(t, CategoryRun, r.Classify("execute_command"))
	assert.Equal(t, CategoryUnknown, r.Classify("never_registered"))
}

func TestInvokeUnknownTool(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})
	_, err := r.Invoke(context.Background(), "never_registered", "{}")
	assert.Error(t, err)
}

func TestInvokeReadFile(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	out, err := r.Invoke(context.Background(), "read_file", `{"path":"`+path+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestInvokeRepairsMalformedArguments(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	// Unquoted key and single quotes, as models sometimes emit.
	out, err := r.Invoke(context.Background(), "read_file", `{path: '`+path+`'}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestInvokeEmptyArguments(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})
	_, err := r.Invoke(context.Background(), "read_file", "")
	assert.Error(t, err, "read_file requires a path even when arguments default to empty")
}

func TestHiddenPathsAreBlocked(t *testing.T) {
	cfg := &config.Config{}
	cfg.FilesystemAccess.Hidden = []string{"secrets/**"}
	r := newTestRegistry(t, cfg)

	_, err := r.Invoke(context.Background(), "read_file", `{"path":"secrets/key.pem"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hidden")

	_, err = r.Invoke(context.Background(), "write_file", `{"path":"secrets/key.pem","content":"x"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hidden")
}

func TestReadOnlyPathsBlockWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locked.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	cfg := &config.Config{}
	cfg.FilesystemAccess.ReadOnly = []string{filepath.Join(dir, "**")}
	r := newTestRegistry(t, cfg)

	out, err := r.Invoke(context.Background(), "read_file", `{"path":"`+path+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "original", out)

	_, err = r.Invoke(context.Background(), "write_file", `{"path":"`+path+`","content":"changed"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestCommandAllowlist(t *testing.T) {
	cfg := &config.Config{AllowedCommands: []string{`^echo\b.*`}}
	r := newTestRegistry(t, cfg)

	out, err := r.Invoke(context.Background(), "execute_command", `{"command":"echo hi"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "hi")

	_, err = r.Invoke(context.Background(), "execute_command", `{"command":"rm -rf /tmp/x"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the list of allowed commands")
}

func TestCommandAllowlistEmptyDeniesEverything(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})
	_, err := r.Invoke(context.Background(), "execute_command", `{"command":"echo hi"}`)
	assert.Error(t, err)
}

func TestActiveDefaultsToAllTools(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})

	active, err := r.Active(nil)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestActiveResolvesNamedTools(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})

	ts := &config.Toolset{Name: "reader", Tools: []string{"read_file"}}
	active, err := r.Active(ts)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "read_file", active[0].Name())
}

func TestActiveRejectsUnknownEntries(t *testing.T) {
	r := newTestRegistry(t, &config.Config{})

	_, err := r.Active(&config.Toolset{Name: "bad", Tools: []string{"no_such_tool"}})
	assert.Error(t, err)

	// "server:tool" entries require a running MCP server of that name.
	_, err = r.Active(&config.Toolset{Name: "bad", Tools: []string{"ghost:lookup"}})
	assert.Error(t, err)
}

func TestIsCommandAllowedLiteralFallback(t *testing.T) {
	// An invalid regex still matches as a literal string.
	allowed, err := isCommandAllowed("git status", []string{"git status ("})
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = isCommandAllowed("git status (", []string{"git status ("})
	require.NoError(t, err)
	assert.True(t, allowed)
}
