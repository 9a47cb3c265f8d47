package workflow

import "errors"

// Sentinel errors for workflow store operations.
var (
	ErrNotFound           = errors.New("workflow not found")
	ErrApprovalNotFound   = errors.New("approval not found")
	ErrAlreadyResolved    = errors.New("approval already resolved")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotWaitingApproval = errors.New("workflow is not waiting for approval")
)
