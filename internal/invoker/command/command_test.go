package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/invoker"
	"github.com/fentz26/baton/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func withLookPath(t *testing.T, found map[string]bool) {
	t.Helper()
	orig := lookPath
	lookPath = func(file string) (string, error) {
		if found[file] {
			return "/usr/local/bin/" + file, nil
		}
		return "", errors.New("not found")
	}
	t.Cleanup(func() { lookPath = orig })
}

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed bool
	}{
		{"claude", true},
		{"gemini", true},
		{"aider", true},
		{"codex", true},
		{"rm", false},
		{"", false},
		{"bash", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, IsAllowed(tt.name))
		})
	}
	assert.Equal(t, []string{"aider", "claude", "codex", "gemini"}, Backends())
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "rm", Binary: "/bin/rm"}, agents.Default(), nil)
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestDetect(t *testing.T) {
	withLookPath(t, map[string]bool{"aider": true, "gemini": true})
	assert.Equal(t, []string{"gemini", "aider"}, Detect())

	inv, err := New(Config{}, agents.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, "command:gemini", inv.Name())
	assert.Equal(t, "/usr/local/bin/gemini", inv.binary)
}

func TestDetectNothingInstalled(t *testing.T) {
	withLookPath(t, map[string]bool{})
	_, err := New(Config{}, agents.Default(), nil)
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestInvokePassesPrompt(t *testing.T) {
	script := writeScript(t, `shift; printf '%s' "$1" | tail -n 1`)

	inv, err := New(Config{Backend: "claude", Binary: script}, agents.Default(), nil)
	require.NoError(t, err)

	resp, err := inv.Invoke(context.Background(), invoker.Request{
		Agent:          models.AgentCrystal,
		Prompt:         "Add auth middleware",
		ConversationID: "workflow-x-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Add auth middleware", resp.Text)
	assert.Equal(t, "workflow-x-1", resp.ConversationID)
	assert.Equal(t, "claude", resp.Metadata["backend"])
}

func TestInvokeNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "quota exceeded" >&2; exit 3`)

	inv, err := New(Config{Backend: "codex", Binary: script}, agents.Default(), nil)
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), invoker.Request{Agent: models.AgentChloe, Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, invoker.ErrInvocation)
	assert.Contains(t, err.Error(), "exited with code 3: quota exceeded")
}

func TestInvokeEmptyOutput(t *testing.T) {
	script := writeScript(t, `exit 0`)

	inv, err := New(Config{Backend: "gemini", Binary: script}, agents.Default(), nil)
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), invoker.Request{Agent: models.AgentChloe, Prompt: "p"})
	assert.ErrorIs(t, err, invoker.ErrEmptyResponse)
}

func TestInvokeHonoursContext(t *testing.T) {
	script := writeScript(t, `sleep 5; echo late`)

	inv, err := New(Config{Backend: "aider", Binary: script}, agents.Default(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = inv.Invoke(ctx, invoker.Request{Agent: models.AgentChloe, Prompt: "p"})
	assert.ErrorIs(t, err, invoker.ErrInvocation)
}
