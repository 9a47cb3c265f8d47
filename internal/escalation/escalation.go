// Package escalation delivers user action items raised by the coordinator.
//
// Escalations are fire and forget: callers log a returned error and carry
// on. Implementations persist to SQLite, publish to NATS, or fan out.
package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fentz26/baton/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the NATS subject prefix for escalations.
const DefaultSubjectPrefix = "baton.escalations"

// Escalator accepts user action items.
type Escalator interface {
	Escalate(ctx context.Context, a models.UserAction) error
}

// ActionStore persists action items.
type ActionStore interface {
	CreateActionItem(ctx context.Context, a models.UserAction) (*models.UserAction, error)
}

// StoreEscalator writes action items to an ActionStore.
type StoreEscalator struct {
	store ActionStore
}

// NewStoreEscalator creates a StoreEscalator.
func NewStoreEscalator(s ActionStore) *StoreEscalator {
	return &StoreEscalator{store: s}
}

// Escalate implements Escalator.
func (e *StoreEscalator) Escalate(ctx context.Context, a models.UserAction) error {
	if _, err := e.store.CreateActionItem(ctx, a); err != nil {
		return fmt.Errorf("store action item: %w", err)
	}
	return nil
}

// NATSPublisher publishes action items as JSON on
// <prefix>.<priority>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher. An empty prefix uses
// DefaultSubjectPrefix.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject an item of priority p is published on.
func (p *NATSPublisher) Subject(priority models.Priority) string {
	if priority == "" {
		priority = models.PriorityMedium
	}
	return p.prefix + "." + string(priority)
}

// Escalate implements Escalator.
func (p *NATSPublisher) Escalate(_ context.Context, a models.UserAction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal action item: %w", err)
	}
	if err := p.nc.Publish(p.Subject(a.Priority), data); err != nil {
		return fmt.Errorf("publish escalation: %w", err)
	}
	return nil
}

// Multi fans an item out to every escalator and joins their errors.
type Multi []Escalator

// Escalate implements Escalator.
func (m Multi) Escalate(ctx context.Context, a models.UserAction) error {
	var errs []error
	for _, e := range m {
		if err := e.Escalate(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every item.
type Nop struct{}

// Escalate implements Escalator.
func (Nop) Escalate(context.Context, models.UserAction) error { return nil }

// Logging writes each item to a logger at warn level.
type Logging struct {
	logger *zap.Logger
}

// NewLogging creates a Logging escalator.
func NewLogging(logger *zap.Logger) *Logging {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logging{logger: logger.Named("escalation")}
}

// Escalate implements Escalator.
func (l *Logging) Escalate(_ context.Context, a models.UserAction) error {
	l.logger.Warn("user action required",
		zap.String("title", a.Title),
		zap.String("priority", string(a.Priority)),
		zap.String("type", string(a.Type)),
		zap.String("workflow_id", a.WorkflowID),
		zap.String("project_id", a.ProjectID),
	)
	return nil
}

// Recorder keeps items in memory.
type Recorder struct {
	mu    sync.Mutex
	items []models.UserAction
}

// Escalate implements Escalator.
func (r *Recorder) Escalate(_ context.Context, a models.UserAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, a)
	return nil
}

// Items returns a copy of every recorded item.
func (r *Recorder) Items() []models.UserAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.UserAction(nil), r.items...)
}
