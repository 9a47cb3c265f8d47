// Package workflow holds the in-memory record of every workflow: status,
// current agent, approval queue and ordered step history.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fentz26/baton/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persister receives a snapshot after every mutation.
type Persister interface {
	SaveWorkflow(ctx context.Context, w *models.Workflow) error
	DeleteWorkflows(ctx context.Context, ids []string) error
}

// Store is a concurrency-safe workflow store. The map is guarded by mu;
// each workflow has its own lock so unrelated workflows never contend.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*entry

	persister Persister
	logger    *zap.Logger
	now       func() time.Time
}

type entry struct {
	mu sync.Mutex
	wf *models.Workflow
}

// Option configures a Store.
type Option func(*Store)

// WithPersister mirrors every mutation to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		workflows: make(map[string]*entry),
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("workflow")
	return s
}

// Create registers a new pending workflow and returns a copy of it.
func (s *Store) Create(prompt string, agent models.AgentName) *models.Workflow {
	now := s.now()
	wf := &models.Workflow{
		ID:           uuid.New().String(),
		CurrentAgent: agent,
		Status:       models.WorkflowStatusPending,
		History:      []models.Step{},
		Approvals:    []models.Approval{},
		Metadata: map[string]interface{}{
			models.MetaInitialPrompt: prompt,
			models.MetaCreatedAt:     now.Format(time.RFC3339Nano),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	e := &entry{wf: wf}
	s.mu.Lock()
	s.workflows[wf.ID] = e
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	s.persist(wf)
	return clone(wf)
}

// Get returns a copy of the workflow.
func (s *Store) Get(id string) (*models.Workflow, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.wf), nil
}

// UpdateStatus moves the workflow to status if the transition is allowed.
func (s *Store) UpdateStatus(id string, status models.WorkflowStatus) error {
	_, err := s.update(id, func(w *models.Workflow) error {
		return transition(w, status)
	})
	return err
}

// SetCurrentAgent records which agent is working on the workflow.
func (s *Store) SetCurrentAgent(id string, agent models.AgentName) error {
	_, err := s.update(id, func(w *models.Workflow) error {
		w.CurrentAgent = agent
		return nil
	})
	return err
}

// AddStep appends a step to the history and returns it with its id and
// timestamp filled in.
func (s *Store) AddStep(id string, step models.Step) (models.Step, error) {
	step.ID = uuid.New().String()
	step.Timestamp = s.now()
	_, err := s.update(id, func(w *models.Workflow) error {
		w.History = append(w.History, step)
		return nil
	})
	return step, err
}

// RequestApproval opens an approval and moves the workflow to
// waiting_approval.
func (s *Store) RequestApproval(id string, agent models.AgentName, description string) (models.Approval, error) {
	a := models.Approval{
		ID:          uuid.New().String(),
		RequestedBy: agent,
		RequestedAt: s.now(),
		Description: description,
	}
	_, err := s.update(id, func(w *models.Workflow) error {
		if err := transition(w, models.WorkflowStatusWaitingApproval); err != nil {
			return err
		}
		w.Approvals = append(w.Approvals, a)
		return nil
	})
	return a, err
}

// Approve resolves a specific approval. Once every approval is resolved
// a waiting workflow returns to in_progress.
func (s *Store) Approve(id, approvalID string, approved bool, resolver string, auto bool) (models.Approval, error) {
	var resolved models.Approval
	_, err := s.update(id, func(w *models.Workflow) error {
		for i := range w.Approvals {
			if w.Approvals[i].ID != approvalID {
				continue
			}
			if w.Approvals[i].Resolved() {
				return ErrAlreadyResolved
			}
			s.resolve(&w.Approvals[i], approved, resolver, auto)
			resolved = w.Approvals[i]
			settle(w, approved)
			return nil
		}
		return ErrApprovalNotFound
	})
	return resolved, err
}

// ResolveLatestApproval atomically checks that the workflow is waiting
// for approval and resolves the most recently requested open approval.
// Rejection blocks the workflow. The returned approval is nil when no
// open approval existed.
func (s *Store) ResolveLatestApproval(id string, approved bool, resolver string, auto bool) (*models.Approval, *models.Workflow, error) {
	var resolved *models.Approval
	wf, err := s.update(id, func(w *models.Workflow) error {
		if w.Status != models.WorkflowStatusWaitingApproval {
			return ErrNotWaitingApproval
		}
		latest := -1
		for i := range w.Approvals {
			if w.Approvals[i].Resolved() {
				continue
			}
			if latest < 0 || !w.Approvals[i].RequestedAt.Before(w.Approvals[latest].RequestedAt) {
				latest = i
			}
		}
		if latest >= 0 {
			s.resolve(&w.Approvals[latest], approved, resolver, auto)
			a := w.Approvals[latest]
			resolved = &a
		}
		settle(w, approved)
		return nil
	})
	return resolved, wf, err
}

// UpdateMetadata merges values into the workflow metadata.
func (s *Store) UpdateMetadata(id string, values map[string]interface{}) error {
	_, err := s.update(id, func(w *models.Workflow) error {
		if w.Metadata == nil {
			w.Metadata = make(map[string]interface{}, len(values))
		}
		for k, v := range values {
			w.Metadata[k] = v
		}
		return nil
	})
	return err
}

// List returns copies of all workflows, newest first.
func (s *Store) List() []*models.Workflow {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.workflows))
	for _, e := range s.workflows {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.Workflow, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, clone(e.wf))
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Active returns workflows that are in progress or waiting for approval.
func (s *Store) Active() []*models.Workflow {
	var out []*models.Workflow
	for _, w := range s.List() {
		if w.Status.IsActive() {
			out = append(out, w)
		}
	}
	return out
}

// ClearCompleted removes completed workflows last updated more than
// maxAge ago and returns their ids.
func (s *Store) ClearCompleted(maxAge time.Duration) []string {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	var removed []string
	for id, e := range s.workflows {
		e.mu.Lock()
		done := e.wf.Status == models.WorkflowStatusCompleted && e.wf.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if done {
			delete(s.workflows, id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	if len(removed) > 0 && s.persister != nil {
		if err := s.persister.DeleteWorkflows(context.Background(), removed); err != nil {
			s.logger.Warn("failed to delete persisted workflows", zap.Error(err))
		}
	}
	return removed
}

// Restore loads previously persisted workflows, replacing any with the
// same id.
func (s *Store) Restore(workflows []*models.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range workflows {
		s.workflows[w.ID] = &entry{wf: clone(w)}
	}
}

// Len returns the number of workflows held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

func (s *Store) entry(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.workflows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// update applies fn under the workflow lock. Changes are kept only when
// fn succeeds.
func (s *Store) update(id string, fn func(w *models.Workflow) error) (*models.Workflow, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	draft := clone(e.wf)
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.UpdatedAt = s.now()
	e.wf = draft
	s.persist(draft)
	return clone(draft), nil
}

func (s *Store) persist(w *models.Workflow) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveWorkflow(context.Background(), w); err != nil {
		s.logger.Warn("failed to persist workflow", zap.String("workflow_id", w.ID), zap.Error(err))
	}
}

func (s *Store) resolve(a *models.Approval, approved bool, resolver string, auto bool) {
	a.Resolution = &models.ApprovalResolution{
		Approved:     approved,
		ResolvedBy:   resolver,
		AutoApproved: auto,
		ResolvedAt:   s.now(),
	}
}

func transition(w *models.Workflow, to models.WorkflowStatus) error {
	if !models.CanTransition(w.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, to)
	}
	w.Status = to
	return nil
}

// settle applies the status change that follows an approval decision.
func settle(w *models.Workflow, approved bool) {
	if w.Status != models.WorkflowStatusWaitingApproval {
		return
	}
	if !approved {
		w.Status = models.WorkflowStatusBlocked
		return
	}
	for i := range w.Approvals {
		if !w.Approvals[i].Resolved() {
			return
		}
	}
	w.Status = models.WorkflowStatusInProgress
}

func clone(w *models.Workflow) *models.Workflow {
	c := *w
	c.History = append([]models.Step(nil), w.History...)
	c.Approvals = append([]models.Approval(nil), w.Approvals...)
	if w.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(w.Metadata))
		for k, v := range w.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
