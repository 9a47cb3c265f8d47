// Package mock provides a scripted invoker for tests and offline runs.
package mock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fentz26/baton/internal/invoker"
	"github.com/fentz26/baton/internal/models"
)

// Invoker returns scripted responses per agent. Queued responses are
// consumed in order; the last one is repeated once the queue drains.
type Invoker struct {
	mu     sync.Mutex
	queues map[models.AgentName][]string
	last   map[models.AgentName]string
	errs   map[models.AgentName]error
	calls  []invoker.Request
	delay  time.Duration
}

// New creates an empty mock.
func New() *Invoker {
	return &Invoker{
		queues: make(map[models.AgentName][]string),
		last:   make(map[models.AgentName]string),
		errs:   make(map[models.AgentName]error),
	}
}

// SetResponse replaces any script for agent with a single sticky response.
func (m *Invoker) SetResponse(agent models.AgentName, text string) *Invoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[agent] = nil
	m.last[agent] = text
	return m
}

// Queue appends responses for agent.
func (m *Invoker) Queue(agent models.AgentName, texts ...string) *Invoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[agent] = append(m.queues[agent], texts...)
	return m
}

// FailWith makes every call for agent fail with err. A nil err clears it.
func (m *Invoker) FailWith(agent models.AgentName, err error) *Invoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, agent)
	} else {
		m.errs[agent] = err
	}
	return m
}

// SetDelay makes every call block for d or until the context is done.
func (m *Invoker) SetDelay(d time.Duration) *Invoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Name implements invoker.Invoker.
func (m *Invoker) Name() string { return "mock" }

// Invoke implements invoker.Invoker.
func (m *Invoker) Invoke(ctx context.Context, req invoker.Request) (*invoker.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	delay := m.delay
	err := m.errs[req.Agent]
	text := m.next(req)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, invoker.Wrap(req.Agent, ctx.Err())
		}
	}
	if err != nil {
		return nil, invoker.Wrap(req.Agent, err)
	}
	if text == "" {
		return nil, invoker.Wrap(req.Agent, invoker.ErrEmptyResponse)
	}

	convID := req.ConversationID
	if convID == "" {
		convID = "mock-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return &invoker.Response{Text: text, ConversationID: convID}, nil
}

func (m *Invoker) next(req invoker.Request) string {
	if q := m.queues[req.Agent]; len(q) > 0 {
		m.queues[req.Agent] = q[1:]
		m.last[req.Agent] = q[0]
		return q[0]
	}
	if text, ok := m.last[req.Agent]; ok {
		return text
	}
	prompt := req.Prompt
	if r := []rune(prompt); len(r) > 50 {
		prompt = string(r[:50])
	}
	return fmt.Sprintf("Mock response from %s for: %s...", req.Agent, prompt)
}

// Calls returns every request received, in order.
func (m *Invoker) Calls() []invoker.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]invoker.Request(nil), m.calls...)
}

// CallsFor returns the requests received for agent.
func (m *Invoker) CallsFor(agent models.AgentName) []invoker.Request {
	var out []invoker.Request
	for _, c := range m.Calls() {
		if c.Agent == agent {
			out = append(out, c)
		}
	}
	return out
}

var _ invoker.Invoker = (*Invoker)(nil)
