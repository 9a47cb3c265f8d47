package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/config"
	"github.com/fentz26/baton/internal/escalation"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/store"
)

func withAPI(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	prev := apiAddr
	apiAddr = srv.URL
	t.Cleanup(func() { apiAddr = prev })
}

func TestAPIClientStatusHandling(t *testing.T) {
	t.Run("get returns body on success", func(t *testing.T) {
		withAPI(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/agents", r.URL.Path)
			w.Write([]byte(`{"agents":[]}`))
		})

		body, err := apiGet("/agents")
		require.NoError(t, err)
		assert.JSONEq(t, `{"agents":[]}`, string(body))
	})

	t.Run("get surfaces api errors", func(t *testing.T) {
		withAPI(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"workflow not found"}`, http.StatusNotFound)
		})

		_, err := apiGet("/workflows/x/history")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API error (404)")
	})

	t.Run("workflow post treats 502 as an outcome", func(t *testing.T) {
		withAPI(t, func(w http.ResponseWriter, r *http.Request) {
			var req map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "go", req["prompt"])
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(models.Result{WorkflowID: "wf-1", Status: models.WorkflowStatusFailed, Error: "invocation failed"})
		})

		body, err := workflowPost("/workflows", map[string]string{"prompt": "go"})
		require.NoError(t, err)
		var res models.Result
		require.NoError(t, json.Unmarshal(body, &res))
		assert.Equal(t, models.WorkflowStatusFailed, res.Status)
	})

	t.Run("plain post still fails on 502", func(t *testing.T) {
		withAPI(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := apiPost("/actions/a/complete", struct{}{})
		assert.Error(t, err)
	})
}

func TestNewInvoker(t *testing.T) {
	dir := agents.Default()

	t.Run("mock", func(t *testing.T) {
		cfg := &config.Config{Invocation: config.InvocationConfig{Provider: config.ProviderMock}}
		inv, err := newInvoker(cfg, dir, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "mock", inv.Name())
	})

	t.Run("llm without key fails", func(t *testing.T) {
		cfg := &config.Config{Invocation: config.InvocationConfig{Provider: config.ProviderAnthropic}}
		inv, err := newInvoker(cfg, dir, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, inv)
	})

	t.Run("command with unknown backend fails", func(t *testing.T) {
		cfg := &config.Config{Invocation: config.InvocationConfig{Provider: config.ProviderCommand, Command: "rm"}}
		inv, err := newInvoker(cfg, dir, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, inv)
	})
}

func TestNewEscalatorWithoutNATS(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	esc, closeFn, err := newEscalator(&config.Config{}, st, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()

	multi, ok := esc.(escalation.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"daemon", "workflow", "agents", "actions"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	sub := map[string]bool{}
	for _, c := range workflowCmd.Commands() {
		sub[c.Name()] = true
	}
	for _, want := range []string{"start", "status", "history", "approve", "reject", "list"} {
		assert.True(t, sub[want], "missing workflow subcommand %s", want)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	got := truncate(strings.Repeat("日", 20), 10)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("日", 7)+"...", got)
}
