// Package audit provides PDR (Process Decision Record) writing for Baton.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/baton/internal/models"
)

// Decision record actions written by the coordinator.
const (
	ActionStart    = "workflow.start"
	ActionHandoff  = "workflow.handoff"
	ActionApproval = "workflow.approval"
	ActionEscalate = "workflow.escalate"
	ActionStatus   = "workflow.status"
)

// Backend persists decision records.
type Backend interface {
	WritePDR(action, inputsHash, outcome, workflowID, details string) (*models.PDREntry, error)
}

// Recorder is satisfied by PDRWriter and by test doubles.
type Recorder interface {
	Record(action string, inputs interface{}, outcome, workflowID, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	backend Backend
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(b Backend) *PDRWriter {
	return &PDRWriter{backend: b}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, workflowID, details string) (*models.PDREntry, error) {
	return w.backend.WritePDR(action, HashInputs(inputs), outcome, workflowID, details)
}

// HashInputs returns the hex SHA-256 of the JSON encoding of inputs.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Nop discards every record.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(string, interface{}, string, string, string) (*models.PDREntry, error) {
	return nil, nil
}
