// Package invoker defines how agents are called. Backends live in the
// llm, command and mock subpackages.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/models"
)

var (
	// ErrInvocation wraps every failure to obtain an agent response.
	ErrInvocation = errors.New("agent invocation failed")
	// ErrEmptyResponse is returned when a backend produced no text.
	ErrEmptyResponse = errors.New("empty response from agent")
)

// Context carries what the previous step produced.
type Context struct {
	PreviousAgent    models.AgentName `json:"previous_agent,omitempty"`
	PreviousResponse string           `json:"previous_response,omitempty"`
	WorkflowID       string           `json:"workflow_id,omitempty"`
	Repo             string           `json:"repo,omitempty"`
	Branch           string           `json:"branch,omitempty"`
}

// Request asks one agent to act on a prompt.
type Request struct {
	Agent          models.AgentName `json:"agent"`
	Prompt         string           `json:"prompt"`
	Context        Context          `json:"context"`
	ConversationID string           `json:"conversation_id,omitempty"`
}

// Response is the text an agent produced.
type Response struct {
	Text           string                 `json:"text"`
	ConversationID string                 `json:"conversation_id"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Invoker calls an agent and waits for its answer.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// BuildPrompt composes the full prompt sent to an agent: the instruction
// file reference, then any context from the previous step, then the
// prompt itself.
func BuildPrompt(dir *agents.Directory, req Request) string {
	var b strings.Builder

	url := agents.InstructionURL(req.Agent)
	if a, ok := dir.Get(req.Agent); ok && a.InstructionURL != "" {
		url = a.InstructionURL
	}
	fmt.Fprintf(&b, "Please read your agent instructions at %s\n\n", url)

	if req.Context.PreviousAgent != "" {
		fmt.Fprintf(&b, "Previous agent: %s\n", dir.DisplayName(req.Context.PreviousAgent))
	}
	if req.Context.PreviousResponse != "" {
		fmt.Fprintf(&b, "Previous response summary:\n%s\n\n", req.Context.PreviousResponse)
	}
	if req.Context.Repo != "" {
		fmt.Fprintf(&b, "Repository: %s\n", req.Context.Repo)
	}
	if req.Context.Branch != "" {
		fmt.Fprintf(&b, "Branch: %s\n", req.Context.Branch)
	}

	b.WriteString("\n")
	b.WriteString(req.Prompt)
	return b.String()
}

// Wrap marks err as an invocation failure for agent.
func Wrap(agent models.AgentName, err error) error {
	if err == nil || errors.Is(err, ErrInvocation) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInvocation, agent, err)
}
