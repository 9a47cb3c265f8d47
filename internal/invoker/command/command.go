// Package command invokes agents by running an installed AI CLI as a
// subprocess. Only allowlisted backends can be run.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/invoker"
	"go.uber.org/zap"
)

// Backend describes how to run one CLI non-interactively.
type Backend struct {
	Name   string
	Binary string
	Args   func(prompt string) []string
}

// backends is the strict allowlist of runnable CLIs.
var backends = map[string]Backend{
	"claude": {Name: "claude", Binary: "claude", Args: func(p string) []string { return []string{"-p", p} }},
	"gemini": {Name: "gemini", Binary: "gemini", Args: func(p string) []string { return []string{"-p", p} }},
	"aider":  {Name: "aider", Binary: "aider", Args: func(p string) []string { return []string{"--yes", "--message", p} }},
	"codex":  {Name: "codex", Binary: "codex", Args: func(p string) []string { return []string{"exec", p} }},
}

// ErrNotAllowed is returned for backends outside the allowlist.
var ErrNotAllowed = errors.New("backend not allowed")

// ErrNoBackend is returned when auto-detection finds nothing installed.
var ErrNoBackend = errors.New("no supported AI CLI found in PATH")

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Config selects and configures a backend.
type Config struct {
	// Backend is one of the allowlisted names, or empty to auto-detect.
	Backend string
	// Binary overrides the executable path.
	Binary  string
	WorkDir string
}

// Invoker runs a CLI per invocation.
type Invoker struct {
	backend Backend
	binary  string
	workDir string
	dir     *agents.Directory
	logger  *zap.Logger
}

// IsAllowed reports whether name is an allowlisted backend.
func IsAllowed(name string) bool {
	_, ok := backends[name]
	return ok
}

// Backends lists the allowlisted backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Detect returns the allowlisted backends found in PATH, in preference
// order.
func Detect() []string {
	var found []string
	for _, name := range []string{"claude", "gemini", "codex", "aider"} {
		if _, err := lookPath(backends[name].Binary); err == nil {
			found = append(found, name)
		}
	}
	return found
}

// New creates a command invoker.
func New(cfg Config, dir *agents.Directory, logger *zap.Logger) (*Invoker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	name := cfg.Backend
	if name == "" {
		found := Detect()
		if len(found) == 0 {
			return nil, ErrNoBackend
		}
		name = found[0]
	}
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, name)
	}

	binary := cfg.Binary
	if binary == "" {
		path, err := lookPath(b.Binary)
		if err != nil {
			return nil, fmt.Errorf("locate %s: %w", b.Binary, err)
		}
		binary = path
	}

	return &Invoker{
		backend: b,
		binary:  binary,
		workDir: cfg.WorkDir,
		dir:     dir,
		logger:  logger.Named("command"),
	}, nil
}

// Name implements invoker.Invoker.
func (i *Invoker) Name() string {
	return "command:" + i.backend.Name
}

// Invoke implements invoker.Invoker.
func (i *Invoker) Invoke(ctx context.Context, req invoker.Request) (*invoker.Response, error) {
	prompt := invoker.BuildPrompt(i.dir, req)

	cmd := exec.CommandContext(ctx, i.binary, i.backend.Args(prompt)...)
	if i.workDir != "" {
		cmd.Dir = i.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, invoker.Wrap(req.Agent, fmt.Errorf("%s exited with code %d: %s",
				i.backend.Name, exitErr.ExitCode(), strings.TrimSpace(stderr.String())))
		}
		return nil, invoker.Wrap(req.Agent, fmt.Errorf("exec error: %w", err))
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return nil, invoker.Wrap(req.Agent, invoker.ErrEmptyResponse)
	}

	i.logger.Debug("agent command finished",
		zap.String("agent", string(req.Agent)),
		zap.String("backend", i.backend.Name),
		zap.Duration("elapsed", elapsed),
	)

	convID := req.ConversationID
	if convID == "" {
		convID = i.backend.Name + "-" + strconv.FormatInt(start.UnixMilli(), 10)
	}
	return &invoker.Response{
		Text:           text,
		ConversationID: convID,
		Metadata:       map[string]interface{}{"backend": i.backend.Name},
	}, nil
}

var _ invoker.Invoker = (*Invoker)(nil)
