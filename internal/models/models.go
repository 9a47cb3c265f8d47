// Package models defines the core domain types for Baton.
package models

import "time"

// AgentName identifies an agent in the pipeline.
type AgentName string

const (
	AgentCrystal AgentName = "crystal"
	AgentChloe   AgentName = "chloe"
	AgentPreston AgentName = "preston"
	AgentWinsley AgentName = "winsley"
	AgentJude    AgentName = "jude"
)

// Agent describes a registered agent. Agents are immutable once the
// directory has been built.
type Agent struct {
	Name           AgentName `json:"name" yaml:"name"`
	DisplayName    string    `json:"display_name" yaml:"display_name"`
	InstructionURL string    `json:"instruction_url" yaml:"instruction_url"`
	Role           string    `json:"role" yaml:"role"`
	Capabilities   []string  `json:"capabilities" yaml:"capabilities"`
}

// WorkflowStatus represents the current state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending         WorkflowStatus = "pending"
	WorkflowStatusInProgress      WorkflowStatus = "in_progress"
	WorkflowStatusWaitingApproval WorkflowStatus = "waiting_approval"
	WorkflowStatusBlocked         WorkflowStatus = "blocked"
	WorkflowStatusCompleted       WorkflowStatus = "completed"
	WorkflowStatusFailed          WorkflowStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusBlocked, WorkflowStatusFailed:
		return true
	}
	return false
}

// IsActive reports whether the workflow is still being driven.
func (s WorkflowStatus) IsActive() bool {
	return s == WorkflowStatusInProgress || s == WorkflowStatusWaitingApproval
}

// CanTransition reports whether a workflow may move from one status to
// another. Setting the current status again is always allowed for
// non-terminal states.
func CanTransition(from, to WorkflowStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var transitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowStatusPending: {
		WorkflowStatusInProgress, WorkflowStatusWaitingApproval,
		WorkflowStatusBlocked, WorkflowStatusCompleted, WorkflowStatusFailed,
	},
	WorkflowStatusInProgress: {
		WorkflowStatusWaitingApproval, WorkflowStatusBlocked,
		WorkflowStatusCompleted, WorkflowStatusFailed,
	},
	WorkflowStatusWaitingApproval: {
		WorkflowStatusInProgress, WorkflowStatusBlocked, WorkflowStatusFailed,
	},
}

// Workflow is the record of a single coordinated run across agents.
type Workflow struct {
	ID           string                 `json:"id"`
	CurrentAgent AgentName              `json:"current_agent,omitempty"`
	Status       WorkflowStatus         `json:"status"`
	History      []Step                 `json:"history"`
	Approvals    []Approval             `json:"approvals"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ProjectID returns the linked project, if any.
func (w *Workflow) ProjectID() string {
	if w.Metadata == nil {
		return ""
	}
	id, _ := w.Metadata[MetaProjectID].(string)
	return id
}

// LastStep returns the most recent history step or nil.
func (w *Workflow) LastStep() *Step {
	if len(w.History) == 0 {
		return nil
	}
	return &w.History[len(w.History)-1]
}

// Metadata keys used by the coordinator.
const (
	MetaInitialPrompt = "initial_prompt"
	MetaCreatedAt     = "created_at"
	MetaProjectID     = "project_id"
)

// Step is one agent invocation recorded in a workflow's history.
type Step struct {
	ID        string        `json:"id"`
	Agent     AgentName     `json:"agent"`
	Timestamp time.Time     `json:"timestamp"`
	Input     string        `json:"input"`
	Output    AgentResponse `json:"output"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// AgentResponse is the raw and parsed output of one invocation.
type AgentResponse struct {
	Agent          AgentName      `json:"agent"`
	Timestamp      time.Time      `json:"timestamp"`
	Raw            string         `json:"raw"`
	Parsed         ParsedResponse `json:"parsed"`
	ConversationID string         `json:"conversation_id"`
}

// ParsedResponse holds the sections extracted from a response. A nil
// section means its marker was absent.
type ParsedResponse struct {
	ForHuman     *HumanSection   `json:"for_human,omitempty"`
	ForNextAgent *HandoffSection `json:"for_next_agent,omitempty"`
}

// HumanSection is the structured request addressed to the human operator.
type HumanSection struct {
	HasActions    bool           `json:"has_actions"`
	Actions       []ActionItem   `json:"actions"`
	Decisions     []DecisionItem `json:"decisions"`
	Testing       []TestingItem  `json:"testing"`
	GitOperations []GitOperation `json:"git_operations,omitempty"`
	NextAgent     AgentName      `json:"next_agent,omitempty"`
	NoAction      bool           `json:"no_action"`
}

// Priority ranks action items and escalations.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ActionItem is a blocking action requested from the human operator.
type ActionItem struct {
	Description string   `json:"description"`
	Blocking    bool     `json:"blocking"`
	Priority    Priority `json:"priority,omitempty"`
}

// DecisionItem is a decision the human operator must make.
type DecisionItem struct {
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// TestingItem is a manual testing note.
type TestingItem struct {
	Description string `json:"description"`
}

// GitOperationType classifies a requested git operation.
type GitOperationType string

const (
	GitCommit GitOperationType = "commit"
	GitMerge  GitOperationType = "merge"
	GitPush   GitOperationType = "push"
	GitBranch GitOperationType = "branch"
)

// GitOperation is a git action mentioned in the human section.
type GitOperation struct {
	Type        GitOperationType `json:"type"`
	Description string           `json:"description"`
}

// HandoffSection directs the next agent.
type HandoffSection struct {
	TargetAgent AgentName `json:"target_agent"`
	Prompt      string    `json:"prompt"`
	Repo        string    `json:"repo,omitempty"`
	Branch      string    `json:"branch,omitempty"`
}

// Approval is a human gate blocking workflow progress.
type Approval struct {
	ID          string              `json:"id"`
	RequestedBy AgentName           `json:"requested_by"`
	RequestedAt time.Time           `json:"requested_at"`
	Description string              `json:"description"`
	Resolution  *ApprovalResolution `json:"resolution,omitempty"`
}

// Resolved reports whether a decision was recorded.
func (a *Approval) Resolved() bool {
	return a.Resolution != nil
}

// ApprovalResolution records how an approval was decided.
type ApprovalResolution struct {
	Approved     bool      `json:"approved"`
	ResolvedBy   string    `json:"resolved_by"`
	AutoApproved bool      `json:"auto_approved"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// ViolationType categorizes a rule violation.
type ViolationType string

const (
	ViolationFormat    ViolationType = "format"
	ViolationBoundary  ViolationType = "boundary"
	ViolationRule      ViolationType = "rule"
	ViolationStructure ViolationType = "structure"
)

// Violation is a detected deviation from an agent's role rules.
type Violation struct {
	ID          string        `json:"id"`
	Agent       AgentName     `json:"agent"`
	Type        ViolationType `json:"type"`
	Rule        string        `json:"rule"`
	Description string        `json:"description"`
	Severity    Priority      `json:"severity"`
	Context     string        `json:"context,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Corrected   bool          `json:"corrected"`
}

// UserActionType classifies an escalated action item.
type UserActionType string

const (
	UserActionApproval UserActionType = "approval"
	UserActionTask     UserActionType = "task"
	UserActionDecision UserActionType = "decision"
	UserActionReview   UserActionType = "review"
)

// UserActionStatus is the lifecycle state of an action item.
type UserActionStatus string

const (
	UserActionPending    UserActionStatus = "pending"
	UserActionInProgress UserActionStatus = "in_progress"
	UserActionCompleted  UserActionStatus = "completed"
	UserActionCancelled  UserActionStatus = "cancelled"
)

// UserAction is an item escalated to the human operator.
type UserAction struct {
	ID          string                 `json:"id"`
	ProjectID   string                 `json:"project_id,omitempty"`
	WorkflowID  string                 `json:"workflow_id,omitempty"`
	Type        UserActionType         `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Priority    Priority               `json:"priority"`
	Status      UserActionStatus       `json:"status"`
	Notes       string                 `json:"notes,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy   string                 `json:"created_by"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result is the structured outcome of a coordinator operation.
type Result struct {
	Success          bool           `json:"success"`
	WorkflowID       string         `json:"workflow_id"`
	CurrentAgent     AgentName      `json:"current_agent,omitempty"`
	Status           WorkflowStatus `json:"status"`
	RequiresApproval bool           `json:"requires_approval,omitempty"`
	Approval         *Approval      `json:"approval,omitempty"`
	Message          string         `json:"message,omitempty"`
	Error            string         `json:"error,omitempty"`
}
