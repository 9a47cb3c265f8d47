// Package violations tracks agent rule violations over a rolling window.
package violations

import (
	"sync"
	"time"

	"github.com/fentz26/baton/internal/models"
	"github.com/google/uuid"
)

// DefaultWindow is how long a violation counts toward thresholds.
const DefaultWindow = 10 * time.Minute

// Threshold is the number of violations in the window that halts a workflow.
const Threshold = 3

// Tracker is a per-agent, append-only violation log. Queries only see
// entries inside the window; PruneOld drops the rest.
type Tracker struct {
	mu      sync.Mutex
	byAgent map[models.AgentName][]models.Violation
	window  time.Duration
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindow overrides the tracking window.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		byAgent: make(map[models.AgentName][]models.Violation),
		window:  DefaultWindow,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the tracking window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Record appends a violation stamped with the current time and returns its id.
func (t *Tracker) Record(agent models.AgentName, typ models.ViolationType, rule, context string) string {
	return t.RecordViolation(models.Violation{
		Agent:   agent,
		Type:    typ,
		Rule:    rule,
		Context: context,
	})
}

// RecordViolation appends v, filling in its id and timestamp.
func (t *Tracker) RecordViolation(v models.Violation) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	v.ID = uuid.New().String()
	v.Timestamp = t.now()
	t.byAgent[v.Agent] = append(t.byAgent[v.Agent], v)
	return v.ID
}

// Recent returns the agent's violations inside the window. A zero
// window uses the tracker default.
func (t *Tracker) Recent(agent models.AgentName, window time.Duration) []models.Violation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recentLocked(agent, window)
}

func (t *Tracker) recentLocked(agent models.AgentName, window time.Duration) []models.Violation {
	if window <= 0 {
		window = t.window
	}
	cutoff := t.now().Add(-window)
	var out []models.Violation
	for _, v := range t.byAgent[agent] {
		if !v.Timestamp.Before(cutoff) {
			out = append(out, v)
		}
	}
	return out
}

// HasThreeInWindow reports whether the agent reached the halt threshold.
func (t *Tracker) HasThreeInWindow(agent models.AgentName) bool {
	return len(t.Recent(agent, 0)) >= Threshold
}

// IsRepeated reports whether a recent violation shares both type and rule.
func (t *Tracker) IsRepeated(agent models.AgentName, typ models.ViolationType, rule string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range t.recentLocked(agent, 0) {
		if v.Type == typ && v.Rule == rule {
			return true
		}
	}
	return false
}

// MarkCorrected flags a violation as corrected by a later response.
func (t *Tracker) MarkCorrected(agent models.AgentName, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	log := t.byAgent[agent]
	for i := range log {
		if log[i].ID == id {
			log[i].Corrected = true
			return true
		}
	}
	return false
}

// Count returns the number of violations inside the window.
func (t *Tracker) Count(agent models.AgentName) int {
	return len(t.Recent(agent, 0))
}

// Agents returns every agent with at least one stored violation.
func (t *Tracker) Agents() []models.AgentName {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.AgentName, 0, len(t.byAgent))
	for a := range t.byAgent {
		out = append(out, a)
	}
	return out
}

// PruneOld removes violations outside the window and returns how many
// were dropped.
func (t *Tracker) PruneOld() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.window)
	pruned := 0
	for agent, log := range t.byAgent {
		kept := log[:0]
		for _, v := range log {
			if !v.Timestamp.Before(cutoff) {
				kept = append(kept, v)
			} else {
				pruned++
			}
		}
		if len(kept) == 0 {
			delete(t.byAgent, agent)
			continue
		}
		t.byAgent[agent] = kept
	}
	return pruned
}
