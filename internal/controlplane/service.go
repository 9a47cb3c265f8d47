// Package controlplane provides the HTTP API and service layer for Baton.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fentz26/baton/internal/audit"
	"github.com/fentz26/baton/internal/coordinator"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/store"
	"github.com/fentz26/baton/internal/violations"
)

// ActionStore lists and completes user action items.
type ActionStore interface {
	ListActionItems(ctx context.Context, f store.ActionFilter) ([]models.UserAction, error)
	CompleteActionItem(ctx context.Context, id, notes string) (*models.UserAction, error)
}

// Service provides the control plane business logic.
type Service struct {
	coord   *coordinator.Coordinator
	actions ActionStore
	tracker *violations.Tracker
	pdr     audit.Recorder
	logger  *zap.Logger
}

// NewService creates a new control plane service.
func NewService(coord *coordinator.Coordinator, actions ActionStore, tracker *violations.Tracker, pdr audit.Recorder, logger *zap.Logger) *Service {
	if pdr == nil {
		pdr = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		coord:   coord,
		actions: actions,
		tracker: tracker,
		pdr:     pdr,
		logger:  logger.Named("controlplane"),
	}
}

// StartRequest is the body of POST /workflows.
type StartRequest struct {
	Prompt        string           `json:"prompt"`
	StartingAgent models.AgentName `json:"starting_agent,omitempty"`
	ProjectID     string           `json:"project_id,omitempty"`
}

// --- Workflow Operations ---

// StartWorkflow validates the request and runs the workflow.
func (s *Service) StartWorkflow(ctx context.Context, req StartRequest) (models.Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return models.Result{}, ErrPromptRequired
	}
	agent := req.StartingAgent
	if agent != "" {
		name, ok := s.canonicalAgent(agent)
		if !ok {
			return models.Result{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agent)
		}
		agent = name
	}
	return s.coord.StartWorkflow(ctx, req.Prompt, agent, req.ProjectID), nil
}

// ContinueWorkflow resolves the pending approval.
func (s *Service) ContinueWorkflow(ctx context.Context, id string, approved bool) models.Result {
	return s.coord.ContinueWorkflow(ctx, id, approved)
}

// Status returns the workflow status.
func (s *Service) Status(id string) models.Result {
	return s.coord.Status(id)
}

// History returns the full workflow record.
func (s *Service) History(id string) (*models.Workflow, error) {
	wf, ok := s.coord.History(id)
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return wf, nil
}

// ListWorkflows returns all workflows, or only active ones.
func (s *Service) ListWorkflows(active bool) []*models.Workflow {
	return s.coord.Workflows(active)
}

// Agents lists the agent directory.
func (s *Service) Agents() []models.Agent {
	return s.coord.Agents()
}

// --- Action Item Operations ---

// ListActions returns filtered action items, most urgent first.
func (s *Service) ListActions(ctx context.Context, f store.ActionFilter) ([]models.UserAction, error) {
	return s.actions.ListActionItems(ctx, f)
}

// CompleteAction marks an action item done. Completing an approval item
// linked to a workflow approves that workflow when trigger is set; the
// resulting coordinator outcome is returned alongside the item.
func (s *Service) CompleteAction(ctx context.Context, id, notes string, trigger bool) (*models.UserAction, *models.Result, error) {
	item, err := s.actions.CompleteActionItem(ctx, id, notes)
	if errors.Is(err, store.ErrActionNotFound) {
		return nil, nil, fmt.Errorf("%w: action %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.pdr.Record("action.complete", map[string]string{"id": id, "notes": notes}, "success", item.WorkflowID, item.Title); err != nil {
		s.logger.Warn("failed to write decision record", zap.Error(err))
	}

	if !trigger || item.Type != models.UserActionApproval || item.WorkflowID == "" {
		return item, nil, nil
	}
	res := s.coord.ContinueWorkflow(ctx, item.WorkflowID, true)
	s.logger.Info("action completion continued workflow",
		zap.String("action_id", id),
		zap.String("workflow_id", item.WorkflowID),
		zap.String("status", string(res.Status)),
	)
	return item, &res, nil
}

// --- Violation Operations ---

// Violations returns the agent's violations inside the tracker window.
func (s *Service) Violations(agent models.AgentName) ([]models.Violation, error) {
	name, ok := s.canonicalAgent(agent)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agent)
	}
	return s.tracker.Recent(name, 0), nil
}

// canonicalAgent maps a case-insensitive agent name to its directory name.
func (s *Service) canonicalAgent(name models.AgentName) (models.AgentName, bool) {
	for _, a := range s.coord.Agents() {
		if strings.EqualFold(string(a.Name), string(name)) {
			return a.Name, true
		}
	}
	return "", false
}
