package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrPromptRequired = errors.New("prompt is required")
	ErrUnknownAgent   = errors.New("unknown agent")
)
