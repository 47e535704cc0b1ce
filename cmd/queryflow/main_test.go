package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const savedChat = `<html><head><title>Saved chat</title></head><body>
<div data-message-id="1">Hello there</div>
<div data-message-id="2">How do I reverse a list?</div>
<div data-message-id="3">Use slices.Reverse, hello again</div>
</body></html>`

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func exitCode(err error) int {
	var e *exitErr
	if errors.As(err, &e) {
		return e.code
	}
	if err != nil {
		return -1
	}
	return ExitSuccess
}

func TestCLI_CaptureLifecycle(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[store]
backend = "file"
path = "`+filepath.Join(dir, "messages.json")+`"

[logging]
level = "error"
`), 0644))
	page := filepath.Join(dir, "chat.html")
	require.NoError(t, os.WriteFile(page, []byte(savedChat), 0644))

	run := func(args ...string) error {
		return execute(t, append([]string{"--config", configPath, "-q"}, args...)...)
	}

	require.NoError(t, run("scan", page))

	out := filepath.Join(dir, "results.txt")
	require.NoError(t, run("search", "hello", "-o", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Found 2 results")
	assert.Contains(t, string(data), "1. [Hello] there")
	assert.Contains(t, string(data), "From ")
	assert.Contains(t, string(data), "chat.html")

	assert.Equal(t, ExitNotFound, exitCode(run("search", "goodbye", "-o", filepath.Join(dir, "none.txt"))))
	assert.Equal(t, ExitInvalidInput, exitCode(run("search", "hello", "-o", filepath.Join(dir, "goto.txt"), "--goto", "5")))

	exported := filepath.Join(dir, "export.json")
	require.NoError(t, run("export", "--format", "json", "-o", exported))
	data, err = os.ReadFile(exported)
	require.NoError(t, err)
	var doc struct {
		Messages []string `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []string{"Hello there", "How do I reverse a list?", "Use slices.Reverse, hello again"}, doc.Messages)

	require.NoError(t, run("clear"))
	empty := filepath.Join(dir, "empty.json")
	assert.Equal(t, ExitNotFound, exitCode(run("export", "-o", empty)))
	data, err = os.ReadFile(empty)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"source"`)

	// a source record written after a clear has no set to describe
	require.NoError(t, os.WriteFile(filepath.Join(dir, "messages.json"), []byte(`{"queryflow_messages:source": ["{\"url\":\"https://chat.example.com/c/1\"}"]}`), 0644))
	orphan := filepath.Join(dir, "orphan.json")
	assert.Equal(t, ExitNotFound, exitCode(run("export", "-o", orphan)))
	data, err = os.ReadFile(orphan)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "chat.example.com")
}

func TestCLI_ConfigErrors(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[store]\nbackend = \"floppy\"\n"), 0644))

	assert.Equal(t, ExitConfigError, exitCode(execute(t, "--config", configPath, "-q", "clear")))
}

func TestCLI_GotoWithoutAgent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[store]
backend = "memory"

[bus]
listen = "127.0.0.1:1"

[locate]
timeout = 1
`), 0644))

	assert.Equal(t, ExitNetworkError, exitCode(execute(t, "--config", configPath, "-q", "goto", "hello")))
}
