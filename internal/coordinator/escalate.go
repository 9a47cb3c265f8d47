package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fentz26/baton/internal/audit"
	"github.com/fentz26/baton/internal/metrics"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/validator"
)

// escalate raises item for the workflow's linked project. Workflows
// without a project link raise nothing. Delivery errors are logged only.
func (c *Coordinator) escalate(ctx context.Context, id string, item models.UserAction) {
	wf, err := c.store.Get(id)
	if err != nil {
		return
	}
	projectID := wf.ProjectID()
	if projectID == "" {
		return
	}

	now := c.now()
	item.ID = uuid.New().String()
	item.ProjectID = projectID
	item.WorkflowID = id
	item.Status = models.UserActionPending
	item.CreatedAt = now
	item.UpdatedAt = now

	metrics.Escalations.WithLabelValues(string(item.Priority)).Inc()
	c.record(audit.ActionEscalate, map[string]interface{}{"title": item.Title, "priority": item.Priority}, "raised", id, item.Title)

	if err := c.escalator.Escalate(ctx, item); err != nil {
		c.logger.Warn("escalation delivery failed",
			zap.String("workflow_id", id),
			zap.String("title", item.Title),
			zap.Error(err),
		)
	}
}

func stopItem(agent models.AgentName, v validator.Verdict, by models.AgentName) models.UserAction {
	return models.UserAction{
		Type:        models.UserActionTask,
		Title:       fmt.Sprintf("URGENT: %s has 3 violations - Workflow Stopped", agent),
		Description: fmt.Sprintf("Agent %s has violated rules 3 times within the violation window. Workflow stopped. Review violations and decide next steps.", agent),
		Priority:    models.PriorityCritical,
		Notes:       violationNotes(v.Violations),
		Metadata:    map[string]interface{}{"violations": v.Violations},
		CreatedBy:   string(by),
	}
}

func repeatedItem(agent models.AgentName, v validator.Verdict, by models.AgentName) models.UserAction {
	return models.UserAction{
		Type:        models.UserActionTask,
		Title:       fmt.Sprintf("Repeated Violation: %s", agent),
		Description: fmt.Sprintf("Agent %s has repeated a violation. Consider updating agent rules.", agent),
		Priority:    models.PriorityHigh,
		Notes:       violationNotes(v.Violations),
		Metadata:    map[string]interface{}{"violations": v.Violations},
		CreatedBy:   string(by),
	}
}

func chainItem(from models.AgentName, next hop, reason string) models.UserAction {
	return models.UserAction{
		Type:        models.UserActionTask,
		Title:       fmt.Sprintf("Handoff Halted: %s", from),
		Description: fmt.Sprintf("%s. Last handoff: %s -> %s.", reason, from, next.agent),
		Priority:    models.PriorityHigh,
		Notes:       next.prompt,
		Metadata:    map[string]interface{}{"from": string(from), "to": string(next.agent)},
		CreatedBy:   "coordinator",
	}
}

func approvalItem(id string, agent models.AgentName, a models.Approval, parsed models.ParsedResponse) models.UserAction {
	return models.UserAction{
		Type:        models.UserActionApproval,
		Title:       fmt.Sprintf("Approval Required: %s workflow", agent),
		Description: a.Description,
		Priority:    approvalPriority(parsed),
		Notes:       fmt.Sprintf("Workflow: %s\nAgent: %s", id, agent),
		Metadata:    map[string]interface{}{"approval_id": a.ID},
		CreatedBy:   string(agent),
	}
}

// approvalPriority is high when any requested action is high priority.
func approvalPriority(p models.ParsedResponse) models.Priority {
	if p.ForHuman != nil {
		for _, a := range p.ForHuman.Actions {
			if a.Priority == models.PriorityHigh {
				return models.PriorityHigh
			}
		}
	}
	return models.PriorityMedium
}

// approvalDescription lists the actions, decisions and testing notes
// one category per line.
func approvalDescription(p models.ParsedResponse) string {
	h := p.ForHuman
	if h == nil {
		return "Approval required"
	}

	var parts []string
	if len(h.Actions) > 0 {
		items := make([]string, len(h.Actions))
		for i, a := range h.Actions {
			items[i] = a.Description
		}
		parts = append(parts, "Actions: "+strings.Join(items, "; "))
	}
	if len(h.Decisions) > 0 {
		items := make([]string, len(h.Decisions))
		for i, d := range h.Decisions {
			items[i] = d.Description
		}
		parts = append(parts, "Decisions: "+strings.Join(items, "; "))
	}
	if len(h.Testing) > 0 {
		items := make([]string, len(h.Testing))
		for i, t := range h.Testing {
			items[i] = t.Description
		}
		parts = append(parts, "Testing: "+strings.Join(items, "; "))
	}

	if len(parts) == 0 {
		return "Approval required"
	}
	return strings.Join(parts, "\n")
}

func violationNotes(v []models.Violation) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
