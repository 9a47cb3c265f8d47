// Package coordinator drives workflows across agents: it invokes each
// agent, validates and corrects its response, opens approvals and
// follows handoffs until the chain settles.
package coordinator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/audit"
	"github.com/fentz26/baton/internal/escalation"
	"github.com/fentz26/baton/internal/invoker"
	"github.com/fentz26/baton/internal/metrics"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/parser"
	"github.com/fentz26/baton/internal/validator"
	"github.com/fentz26/baton/internal/workflow"
)

// DefaultMaxHandoffDepth bounds a single chain of handoffs.
const DefaultMaxHandoffDepth = 10

// Result messages.
const (
	MsgStarted          = "Workflow started. No immediate handoff detected."
	MsgStopped          = "Workflow stopped due to repeated violations. Vader intervention required."
	MsgCorrectionFailed = "Agent failed to correct violations. Workflow stopped."
	MsgNotFound         = "Workflow not found"
	MsgNotWaiting       = "Workflow is not waiting for approval"
	MsgRejected         = "Workflow blocked by user rejection"
	MsgNoPreviousStep   = "No previous step found"
	MsgNoHandoff        = "Approval granted, but no handoff found"
	MsgCompleted        = "Workflow completed"
	MsgResponded        = "Agent responded, no immediate handoff"
	MsgDepthExceeded    = "Handoff chain exceeded maximum depth"
	MsgCycle            = "Cyclic handoff detected"
)

// Config tunes the coordinator.
type Config struct {
	AutoApprove bool
	// MaxHandoffDepth of zero uses DefaultMaxHandoffDepth.
	MaxHandoffDepth int
	// InvocationTimeout bounds each agent call. Zero means no limit.
	InvocationTimeout time.Duration
	// DefaultAgent starts workflows that name no agent. Empty uses the
	// directory default.
	DefaultAgent models.AgentName
	// Validator is the agent asked to correct rule violations.
	Validator models.AgentName
}

// Coordinator runs workflows. It is safe for concurrent use; operations
// on the same workflow are serialized.
type Coordinator struct {
	cfg       Config
	dir       *agents.Directory
	store     *workflow.Store
	parser    *parser.Parser
	validator *validator.Validator
	invoker   invoker.Invoker
	escalator escalation.Escalator
	audit     audit.Recorder
	logger    *zap.Logger
	locks     *keyedMutex
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEscalator sets where user action items go.
func WithEscalator(e escalation.Escalator) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.escalator = e
		}
	}
}

// WithRecorder sets the audit recorder.
func WithRecorder(r audit.Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.audit = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now for step durations and ids.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a coordinator over the given stores and invoker.
func New(cfg Config, dir *agents.Directory, store *workflow.Store, val *validator.Validator, inv invoker.Invoker, opts ...Option) *Coordinator {
	if cfg.MaxHandoffDepth <= 0 {
		cfg.MaxHandoffDepth = DefaultMaxHandoffDepth
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = dir.DefaultName()
	}
	if cfg.Validator == "" {
		cfg.Validator = models.AgentJude
	}

	c := &Coordinator{
		cfg:       cfg,
		dir:       dir,
		store:     store,
		parser:    parser.New(dir),
		validator: val,
		invoker:   inv,
		escalator: escalation.Nop{},
		audit:     audit.Nop{},
		logger:    zap.NewNop(),
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("coordinator")
	return c
}

// StartWorkflow creates a workflow and runs agent on prompt, following
// handoffs until the chain settles. An empty agent uses the default.
func (c *Coordinator) StartWorkflow(ctx context.Context, prompt string, agent models.AgentName, projectID string) models.Result {
	if agent == "" {
		agent = c.cfg.DefaultAgent
	}
	if !c.dir.Has(agent) {
		return models.Result{
			Status: models.WorkflowStatusFailed,
			Error:  "Unknown agent: " + string(agent),
		}
	}
	a, _ := c.dir.Get(agent)
	agent = a.Name

	wf := c.store.Create(prompt, agent)
	unlock := c.locks.Lock(wf.ID)
	defer unlock()

	if projectID != "" {
		if err := c.store.UpdateMetadata(wf.ID, map[string]interface{}{models.MetaProjectID: projectID}); err != nil {
			c.logger.Warn("failed to link project", zap.String("workflow_id", wf.ID), zap.Error(err))
		}
	}

	metrics.WorkflowsStarted.Inc()
	c.record(audit.ActionStart, map[string]interface{}{"prompt": prompt, "agent": agent, "project_id": projectID}, "success", wf.ID, string(agent))
	c.logger.Info("workflow started",
		zap.String("workflow_id", wf.ID),
		zap.String("agent", string(agent)),
		zap.String("project_id", projectID),
	)

	return c.run(ctx, wf.ID, hop{agent: agent, prompt: prompt}, true)
}

// ContinueWorkflow resolves the latest open approval. Rejection blocks
// the workflow; approval follows the handoff recorded in the last step.
func (c *Coordinator) ContinueWorkflow(ctx context.Context, id string, approved bool) models.Result {
	unlock := c.locks.Lock(id)
	defer unlock()

	wf, err := c.store.Get(id)
	if err != nil {
		return models.Result{WorkflowID: id, Status: models.WorkflowStatusFailed, Error: MsgNotFound}
	}
	if wf.Status != models.WorkflowStatusWaitingApproval {
		return models.Result{WorkflowID: id, CurrentAgent: wf.CurrentAgent, Status: wf.Status, Error: MsgNotWaiting}
	}

	approval, updated, err := c.store.ResolveLatestApproval(id, approved, "user", false)
	if errors.Is(err, workflow.ErrNotWaitingApproval) {
		return models.Result{WorkflowID: id, CurrentAgent: wf.CurrentAgent, Status: wf.Status, Error: MsgNotWaiting}
	}
	if err != nil {
		return models.Result{WorkflowID: id, CurrentAgent: wf.CurrentAgent, Status: wf.Status, Error: err.Error()}
	}
	wf = updated
	c.observeTransition(wf.Status)

	outcome := "approved"
	if !approved {
		outcome = "rejected"
	}
	approvalID := ""
	if approval != nil {
		approvalID = approval.ID
	}
	c.record(audit.ActionApproval, map[string]interface{}{"approval_id": approvalID, "approved": approved}, outcome, id, "user")
	c.logger.Info("approval resolved",
		zap.String("workflow_id", id),
		zap.String("approval_id", approvalID),
		zap.Bool("approved", approved),
	)

	if !approved {
		return models.Result{WorkflowID: id, CurrentAgent: wf.CurrentAgent, Status: models.WorkflowStatusBlocked, Message: MsgRejected}
	}

	last := wf.LastStep()
	if last == nil {
		return models.Result{WorkflowID: id, CurrentAgent: wf.CurrentAgent, Status: models.WorkflowStatusFailed, Error: MsgNoPreviousStep}
	}
	handoff := last.Output.Parsed.ForNextAgent
	if handoff == nil {
		return models.Result{Success: true, WorkflowID: id, CurrentAgent: wf.CurrentAgent, Status: models.WorkflowStatusInProgress, Message: MsgNoHandoff}
	}

	from := wf.CurrentAgent
	if from == "" {
		from = c.cfg.DefaultAgent
	}
	return c.run(ctx, id, nextHop(from, last.Output.Raw, handoff), false)
}

// Status returns the workflow's status and current agent.
func (c *Coordinator) Status(id string) models.Result {
	wf, err := c.store.Get(id)
	if err != nil {
		return models.Result{WorkflowID: id, Status: models.WorkflowStatusFailed, Error: MsgNotFound}
	}
	return models.Result{Success: true, WorkflowID: id, CurrentAgent: wf.CurrentAgent, Status: wf.Status}
}

// History returns a copy of the full workflow record.
func (c *Coordinator) History(id string) (*models.Workflow, bool) {
	wf, err := c.store.Get(id)
	if err != nil {
		return nil, false
	}
	return wf, true
}

// Workflows returns every workflow, newest first. When active is set,
// only in-progress and waiting workflows are returned.
func (c *Coordinator) Workflows(active bool) []*models.Workflow {
	if active {
		return c.store.Active()
	}
	return c.store.List()
}

// Agents lists the directory.
func (c *Coordinator) Agents() []models.Agent {
	return c.dir.All()
}

// Invoker returns the name of the configured invoker.
func (c *Coordinator) Invoker() string {
	return c.invoker.Name()
}
