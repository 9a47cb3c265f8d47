// Package store provides SQLite-backed persistence for Baton.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/baton/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrActionNotFound indicates the action item does not exist.
var ErrActionNotFound = errors.New("action item not found")

// Store provides access to the Baton SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		current_agent TEXT,
		data TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS action_items (
		id TEXT PRIMARY KEY,
		project_id TEXT,
		workflow_id TEXT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		priority TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		notes TEXT,
		metadata TEXT,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		workflow_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
	CREATE INDEX IF NOT EXISTS idx_action_items_project ON action_items(project_id);
	CREATE INDEX IF NOT EXISTS idx_action_items_status ON action_items(status);
	CREATE INDEX IF NOT EXISTS idx_pdr_workflow_id ON pdr(workflow_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Workflow Snapshots ---

// SaveWorkflow upserts a full workflow snapshot.
func (s *Store) SaveWorkflow(ctx context.Context, w *models.Workflow) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, status, current_agent, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, current_agent = excluded.current_agent,
		 data = excluded.data, updated_at = excluded.updated_at`,
		w.ID, w.Status, w.CurrentAgent, string(data), w.CreatedAt.UTC(), w.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert workflow: %w", err)
	}
	return nil
}

// LoadWorkflows returns every persisted workflow, oldest first.
func (s *Store) LoadWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM workflows ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var out []*models.Workflow
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		var w models.Workflow
		if err := json.Unmarshal([]byte(data), &w); err != nil {
			return nil, fmt.Errorf("decode workflow: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// GetWorkflow loads a single snapshot. It returns nil when absent.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM workflows WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow: %w", err)
	}
	var w models.Workflow
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &w, nil
}

// DeleteWorkflows removes the given snapshots.
func (s *Store) DeleteWorkflows(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete workflows: %w", err)
	}
	return nil
}

// --- Action Items ---

// ActionFilter narrows ListActionItems. Empty fields match everything.
type ActionFilter struct {
	ProjectID string
	Status    models.UserActionStatus
	Type      models.UserActionType
}

// CreateActionItem inserts an action item, filling in id, status and
// timestamps when unset.
func (s *Store) CreateActionItem(ctx context.Context, a models.UserAction) (*models.UserAction, error) {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = models.UserActionPending
	}
	if a.Priority == "" {
		a.Priority = models.PriorityMedium
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	meta, err := encodeMetadata(a.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO action_items (id, project_id, workflow_id, type, title, description, priority, status, notes, metadata, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.WorkflowID, a.Type, a.Title, a.Description, a.Priority, a.Status, a.Notes, meta, a.CreatedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert action item: %w", err)
	}
	return &a, nil
}

const actionColumns = `id, project_id, workflow_id, type, title, description, priority, status, notes, metadata, created_by, created_at, updated_at, completed_at`

// GetActionItem retrieves an action item by ID. It returns nil when absent.
func (s *Store) GetActionItem(ctx context.Context, id string) (*models.UserAction, error) {
	a, err := scanAction(s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM action_items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query action item: %w", err)
	}
	return a, nil
}

// ListActionItems returns matching items ordered by priority, then newest
// first.
func (s *Store) ListActionItems(ctx context.Context, f ActionFilter) ([]models.UserAction, error) {
	query := `SELECT ` + actionColumns + ` FROM action_items`
	var (
		where []string
		args  []interface{}
	)
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query action items: %w", err)
	}
	defer rows.Close()

	var items []models.UserAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action item: %w", err)
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

// CompleteActionItem marks an item completed with optional notes.
func (s *Store) CompleteActionItem(ctx context.Context, id, notes string) (*models.UserAction, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE action_items SET status = ?, notes = CASE WHEN ? = '' THEN notes ELSE ? END, completed_at = ?, updated_at = ? WHERE id = ?`,
		models.UserActionCompleted, notes, notes, now, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("complete action item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrActionNotFound
	}
	return s.GetActionItem(ctx, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*models.UserAction, error) {
	var (
		a                                  models.UserAction
		projectID, workflowID, description sql.NullString
		notes, metadata                    sql.NullString
		completedAt                        sql.NullTime
	)
	err := row.Scan(&a.ID, &projectID, &workflowID, &a.Type, &a.Title, &description, &a.Priority, &a.Status,
		&notes, &metadata, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	a.ProjectID = projectID.String
	a.WorkflowID = workflowID.String
	a.Description = description.String
	a.Notes = notes.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

func encodeMetadata(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, workflowID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		WorkflowID: workflowID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, workflow_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.WorkflowID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the decision records for a workflow in write order.
func (s *Store) ListPDR(workflowID string) ([]models.PDREntry, error) {
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, workflow_id, details, timestamp FROM pdr WHERE workflow_id = ? ORDER BY timestamp ASC, rowid ASC`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var wfID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &wfID, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.WorkflowID = wfID.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PrunePDR deletes decision records older than cutoff.
func (s *Store) PrunePDR(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pdr WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune pdr: %w", err)
	}
	return res.RowsAffected()
}
