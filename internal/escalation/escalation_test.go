package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/store"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func sampleAction() models.UserAction {
	return models.UserAction{
		ProjectID:   "proj-1",
		WorkflowID:  "wf-1",
		Type:        models.UserActionTask,
		Title:       "URGENT: Chloe has 3 violations - Workflow Stopped",
		Description: "Chloe violated rules three times.",
		Priority:    models.PriorityCritical,
		CreatedBy:   "jude",
	}
}

func TestNATSPublisher(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(DefaultSubjectPrefix + ".>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	pub := NewNATSPublisher(nc, "")
	require.NoError(t, pub.Escalate(context.Background(), sampleAction()))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "baton.escalations.critical", msg.Subject)

	var got models.UserAction
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, models.PriorityCritical, got.Priority)
}

func TestNATSPublisherSubject(t *testing.T) {
	p := NewNATSPublisher(nil, "ops.alerts.")
	assert.Equal(t, "ops.alerts.high", p.Subject(models.PriorityHigh))
	assert.Equal(t, "ops.alerts.medium", p.Subject(""))
}

func TestStoreEscalator(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "esc.db"))
	require.NoError(t, err)
	defer s.Close()

	e := NewStoreEscalator(s)
	require.NoError(t, e.Escalate(context.Background(), sampleAction()))

	items, err := s.ListActionItems(context.Background(), store.ActionFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.UserActionPending, items[0].Status)
	assert.Equal(t, "jude", items[0].CreatedBy)
}

type failing struct{}

func (failing) Escalate(context.Context, models.UserAction) error { return errors.New("boom") }

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, failing{}, b}

	err := m.Escalate(context.Background(), sampleAction())
	assert.EqualError(t, err, "boom")
	assert.Len(t, a.Items(), 1)
	assert.Len(t, b.Items(), 1)

	assert.NoError(t, Multi{a, Nop{}}.Escalate(context.Background(), sampleAction()))
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewLogging(zap.New(core))

	require.NoError(t, l.Escalate(context.Background(), sampleAction()))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "user action required", entry.Message)
	assert.Equal(t, "critical", entry.ContextMap()["priority"])
}
