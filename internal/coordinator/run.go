package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/baton/internal/audit"
	"github.com/fentz26/baton/internal/invoker"
	"github.com/fentz26/baton/internal/metrics"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/parser"
	"github.com/fentz26/baton/internal/validator"
)

const fallbackCorrectionPrompt = "Please correct the response"

// hop is one agent invocation in a chain.
type hop struct {
	from     models.AgentName
	agent    models.AgentName
	prompt   string
	previous string
	repo     string
	branch   string
}

func nextHop(from models.AgentName, previous string, h *models.HandoffSection) hop {
	return hop{
		from:     from,
		agent:    h.TargetAgent,
		prompt:   h.Prompt,
		previous: previous,
		repo:     h.Repo,
		branch:   h.Branch,
	}
}

// key identifies a hop for cycle detection. Agents may alternate, so
// only an identical (agent, prompt) pair counts as a repeat.
func (h hop) key() string {
	return string(h.agent) + "\x00" + h.prompt
}

// run follows hops until a step settles the workflow.
func (c *Coordinator) run(ctx context.Context, id string, h hop, start bool) models.Result {
	if start {
		c.setStatus(id, models.WorkflowStatusInProgress, "started")
	}

	seen := map[string]bool{h.key(): true}
	for depth := 0; ; depth++ {
		res, next := c.step(ctx, id, h, start && depth == 0)
		if next == nil {
			return res
		}

		metrics.Handoffs.WithLabelValues(string(h.agent), string(next.agent)).Inc()
		c.record(audit.ActionHandoff,
			map[string]interface{}{"from": h.agent, "to": next.agent, "prompt": next.prompt},
			"handoff", id, fmt.Sprintf("%s -> %s", h.agent, next.agent))
		c.logger.Info("handoff",
			zap.String("workflow_id", id),
			zap.String("from", string(h.agent)),
			zap.String("to", string(next.agent)),
			zap.Int("depth", depth+1),
		)

		if depth+1 > c.cfg.MaxHandoffDepth {
			return c.halt(ctx, id, h.agent, MsgDepthExceeded, chainItem(h.agent, *next, MsgDepthExceeded))
		}
		if seen[next.key()] {
			return c.halt(ctx, id, h.agent, MsgCycle, chainItem(h.agent, *next, MsgCycle))
		}
		seen[next.key()] = true
		h = *next
	}
}

// step invokes one agent, validates and corrects its response, records
// it, then either settles the workflow or returns the next hop.
func (c *Coordinator) step(ctx context.Context, id string, h hop, start bool) (models.Result, *hop) {
	failAgent := h.agent
	if start {
		failAgent = ""
	} else if err := c.store.SetCurrentAgent(id, h.agent); err != nil {
		return c.fail(id, h.agent, err), nil
	}

	original, dur, err := c.invoke(ctx, id, h.agent, h.prompt, invoker.Context{
		PreviousAgent:    h.from,
		PreviousResponse: h.previous,
		Repo:             h.repo,
		Branch:           h.branch,
	})
	if err != nil {
		return c.fail(id, failAgent, err), nil
	}
	parsed := original.Parsed

	verdict := c.validator.Validate(h.agent, original, h.prompt)
	observeViolations(h.agent, verdict)

	if verdict.ShouldStop {
		return c.halt(ctx, id, h.agent, MsgStopped, stopItem(h.agent, verdict, c.cfg.Validator)), nil
	}

	effective, effectiveDur := original, dur
	if verdict.CorrectionNeeded {
		if verdict.Repeated {
			c.escalate(ctx, id, repeatedItem(h.agent, verdict, c.cfg.Validator))
		}
		corrected, correctedDur, res := c.correct(ctx, id, h, original, dur, verdict)
		if res != nil {
			return *res, nil
		}
		if corrected != nil {
			effective, effectiveDur = *corrected, correctedDur
		}
	}

	if _, err := c.store.AddStep(id, models.Step{
		Agent:    h.agent,
		Input:    h.prompt,
		Output:   effective,
		Duration: effectiveDur,
	}); err != nil {
		return c.fail(id, failAgent, err), nil
	}

	// Approval and handoff decisions follow the response as first given.
	if parser.RequiresApproval(parsed) {
		return c.requestApproval(ctx, id, h.agent, parsed, effective)
	}
	if parser.HasHandoff(parsed) {
		next := nextHop(h.agent, effective.Raw, parsed.ForNextAgent)
		return models.Result{}, &next
	}
	if !start && parsed.ForHuman != nil && parsed.ForHuman.NoAction {
		c.setStatus(id, models.WorkflowStatusCompleted, MsgCompleted)
		return models.Result{
			Success:      true,
			WorkflowID:   id,
			CurrentAgent: h.agent,
			Status:       models.WorkflowStatusCompleted,
			Message:      MsgCompleted,
		}, nil
	}

	c.setStatus(id, models.WorkflowStatusInProgress, "idle")
	msg := MsgResponded
	if start {
		msg = MsgStarted
	}
	return models.Result{
		Success:      true,
		WorkflowID:   id,
		CurrentAgent: h.agent,
		Status:       models.WorkflowStatusInProgress,
		Message:      msg,
	}, nil
}

// correct runs the single corrective round: the validator agent reviews
// the response and, when it hands back to the same agent, that agent
// answers again. A nil response with a nil result means the original
// response stands.
func (c *Coordinator) correct(ctx context.Context, id string, h hop, original models.AgentResponse, dur time.Duration, verdict validator.Verdict) (*models.AgentResponse, time.Duration, *models.Result) {
	prompt := verdict.CorrectionPrompt
	if prompt == "" {
		prompt = fallbackCorrectionPrompt
	}

	review, reviewDur, err := c.invoke(ctx, id, c.cfg.Validator, prompt, invoker.Context{
		PreviousAgent:    h.agent,
		PreviousResponse: original.Raw,
	})
	if err != nil {
		res := c.fail(id, h.agent, err)
		return nil, 0, &res
	}

	for _, s := range []models.Step{
		{Agent: h.agent, Input: h.prompt, Output: original, Duration: dur},
		{Agent: c.cfg.Validator, Input: prompt, Output: review, Duration: reviewDur},
	} {
		if _, err := c.store.AddStep(id, s); err != nil {
			res := c.fail(id, h.agent, err)
			return nil, 0, &res
		}
	}

	back := review.Parsed.ForNextAgent
	if back == nil || back.TargetAgent != h.agent {
		metrics.Corrections.WithLabelValues("skipped").Inc()
		c.logger.Info("validator did not request a redo",
			zap.String("workflow_id", id),
			zap.String("agent", string(h.agent)),
		)
		return nil, 0, nil
	}

	redo, redoDur, err := c.invoke(ctx, id, h.agent, back.Prompt, invoker.Context{
		PreviousAgent:    c.cfg.Validator,
		PreviousResponse: review.Raw,
	})
	if err != nil {
		res := c.fail(id, h.agent, err)
		return nil, 0, &res
	}

	again := c.validator.Validate(h.agent, redo, back.Prompt)
	observeViolations(h.agent, again)
	if !again.Valid && again.ShouldStop {
		metrics.Corrections.WithLabelValues("failed").Inc()
		res := c.halt(ctx, id, h.agent, MsgCorrectionFailed, stopItem(h.agent, again, c.cfg.Validator))
		return nil, 0, &res
	}
	if again.Valid {
		c.validator.MarkCorrected(h.agent, verdict.Violations)
	} else {
		c.logger.Warn("corrected response still violates rules",
			zap.String("workflow_id", id),
			zap.String("agent", string(h.agent)),
			zap.Int("violations", len(again.Violations)),
		)
	}

	metrics.Corrections.WithLabelValues("corrected").Inc()
	return &redo, redoDur, nil
}

// requestApproval opens an approval for parsed. With auto-approve the
// approval resolves at once and the chain continues.
func (c *Coordinator) requestApproval(ctx context.Context, id string, agent models.AgentName, parsed models.ParsedResponse, effective models.AgentResponse) (models.Result, *hop) {
	desc := approvalDescription(parsed)
	approval, err := c.store.RequestApproval(id, agent, desc)
	if err != nil {
		return c.fail(id, agent, err), nil
	}
	c.observeTransition(models.WorkflowStatusWaitingApproval)
	c.record(audit.ActionApproval, map[string]interface{}{"approval_id": approval.ID, "description": desc}, "requested", id, string(agent))

	if !c.cfg.AutoApprove {
		c.escalate(ctx, id, approvalItem(id, agent, approval, parsed))
		return models.Result{
			Success:          true,
			WorkflowID:       id,
			CurrentAgent:     agent,
			Status:           models.WorkflowStatusWaitingApproval,
			RequiresApproval: true,
			Approval:         &approval,
		}, nil
	}

	resolved, err := c.store.Approve(id, approval.ID, true, "auto", true)
	if err != nil {
		return c.fail(id, agent, err), nil
	}
	c.observeTransition(models.WorkflowStatusInProgress)
	c.record(audit.ActionApproval, map[string]interface{}{"approval_id": approval.ID, "approved": true}, "auto_approved", id, string(agent))

	handoff := effective.Parsed.ForNextAgent
	if handoff == nil {
		return models.Result{
			Success:      true,
			WorkflowID:   id,
			CurrentAgent: agent,
			Status:       models.WorkflowStatusInProgress,
			Approval:     &resolved,
			Message:      MsgNoHandoff,
		}, nil
	}
	next := nextHop(agent, effective.Raw, handoff)
	return models.Result{}, &next
}

// invoke calls agent under the invocation timeout and parses the reply.
func (c *Coordinator) invoke(ctx context.Context, id string, agent models.AgentName, prompt string, ictx invoker.Context) (models.AgentResponse, time.Duration, error) {
	if c.cfg.InvocationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.InvocationTimeout)
		defer cancel()
	}

	ictx.WorkflowID = id
	req := invoker.Request{
		Agent:          agent,
		Prompt:         prompt,
		Context:        ictx,
		ConversationID: fmt.Sprintf("workflow-%s-%d", id, c.now().UnixNano()),
	}

	started := time.Now()
	resp, err := c.invoker.Invoke(ctx, req)
	dur := time.Since(started)
	metrics.InvocationDuration.WithLabelValues(string(agent)).Observe(dur.Seconds())

	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = invoker.ErrEmptyResponse
	}
	if err != nil {
		metrics.Invocations.WithLabelValues(string(agent), "error").Inc()
		c.logger.Warn("agent invocation failed",
			zap.String("workflow_id", id),
			zap.String("agent", string(agent)),
			zap.Duration("duration", dur),
			zap.Error(err),
		)
		return models.AgentResponse{}, dur, invoker.Wrap(agent, err)
	}
	metrics.Invocations.WithLabelValues(string(agent), "success").Inc()

	conversationID := resp.ConversationID
	if conversationID == "" {
		conversationID = req.ConversationID
	}
	return models.AgentResponse{
		Agent:          agent,
		Timestamp:      c.now(),
		Raw:            resp.Text,
		Parsed:         c.parser.Parse(resp.Text),
		ConversationID: conversationID,
	}, dur, nil
}

// fail marks the workflow failed. Steps already recorded are kept.
func (c *Coordinator) fail(id string, agent models.AgentName, err error) models.Result {
	c.setStatus(id, models.WorkflowStatusFailed, err.Error())
	return models.Result{
		WorkflowID:   id,
		CurrentAgent: agent,
		Status:       models.WorkflowStatusFailed,
		Error:        err.Error(),
	}
}

// halt blocks the workflow and escalates item.
func (c *Coordinator) halt(ctx context.Context, id string, agent models.AgentName, message string, item models.UserAction) models.Result {
	c.escalate(ctx, id, item)
	c.setStatus(id, models.WorkflowStatusBlocked, message)
	c.logger.Warn("workflow blocked",
		zap.String("workflow_id", id),
		zap.String("agent", string(agent)),
		zap.String("reason", message),
	)
	return models.Result{
		WorkflowID:   id,
		CurrentAgent: agent,
		Status:       models.WorkflowStatusBlocked,
		Error:        message,
	}
}

func (c *Coordinator) setStatus(id string, status models.WorkflowStatus, reason string) {
	if err := c.store.UpdateStatus(id, status); err != nil {
		c.logger.Warn("status update rejected",
			zap.String("workflow_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return
	}
	c.observeTransition(status)
	c.record(audit.ActionStatus, map[string]interface{}{"status": status}, string(status), id, reason)
}

func (c *Coordinator) observeTransition(status models.WorkflowStatus) {
	metrics.WorkflowTransitions.WithLabelValues(string(status)).Inc()
	metrics.ActiveWorkflows.Set(float64(len(c.store.Active())))
}

func (c *Coordinator) record(action string, inputs interface{}, outcome, id, details string) {
	if _, err := c.audit.Record(action, inputs, outcome, id, details); err != nil {
		c.logger.Warn("failed to write decision record",
			zap.String("action", action),
			zap.String("workflow_id", id),
			zap.Error(err),
		)
	}
}

func observeViolations(agent models.AgentName, v validator.Verdict) {
	for _, vi := range v.Violations {
		metrics.Violations.WithLabelValues(string(agent), string(vi.Type)).Inc()
	}
}
