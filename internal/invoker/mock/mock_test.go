package mock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fentz26/baton/internal/invoker"
	"github.com/fentz26/baton/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoke(t *testing.T, m *Invoker, agent models.AgentName) string {
	t.Helper()
	resp, err := m.Invoke(context.Background(), invoker.Request{Agent: agent, Prompt: "p"})
	require.NoError(t, err)
	return resp.Text
}

func TestQueueThenSticky(t *testing.T) {
	m := New().Queue(models.AgentChloe, "first", "second")

	assert.Equal(t, "first", invoke(t, m, models.AgentChloe))
	assert.Equal(t, "second", invoke(t, m, models.AgentChloe))
	assert.Equal(t, "second", invoke(t, m, models.AgentChloe))
	assert.Len(t, m.CallsFor(models.AgentChloe), 3)
}

func TestSetResponseReplacesQueue(t *testing.T) {
	m := New().Queue(models.AgentJude, "a", "b").SetResponse(models.AgentJude, "fixed")
	assert.Equal(t, "fixed", invoke(t, m, models.AgentJude))
	assert.Equal(t, "fixed", invoke(t, m, models.AgentJude))
}

func TestDefaultResponse(t *testing.T) {
	m := New()
	resp, err := m.Invoke(context.Background(), invoker.Request{
		Agent:  models.AgentWinsley,
		Prompt: "Document the new authentication middleware and its configuration options",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mock response from winsley for: Document the new authentication middleware and its...", resp.Text)
	assert.NotEmpty(t, resp.ConversationID)
}

func TestDefaultResponseKeepsRunesWhole(t *testing.T) {
	m := New()
	resp, err := m.Invoke(context.Background(), invoker.Request{
		Agent:  models.AgentWinsley,
		Prompt: strings.Repeat("é", 60),
	})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(resp.Text))
	assert.Equal(t, "Mock response from winsley for: "+strings.Repeat("é", 50)+"...", resp.Text)
}

func TestFailWith(t *testing.T) {
	boom := errors.New("network down")
	m := New().SetResponse(models.AgentCrystal, "ok").FailWith(models.AgentCrystal, boom)

	_, err := m.Invoke(context.Background(), invoker.Request{Agent: models.AgentCrystal})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, invoker.ErrInvocation)

	m.FailWith(models.AgentCrystal, nil)
	assert.Equal(t, "ok", invoke(t, m, models.AgentCrystal))
}

func TestEmptyScriptedResponse(t *testing.T) {
	m := New().SetResponse(models.AgentCrystal, "")
	_, err := m.Invoke(context.Background(), invoker.Request{Agent: models.AgentCrystal})
	assert.ErrorIs(t, err, invoker.ErrEmptyResponse)
}

func TestDelayRespectsContext(t *testing.T) {
	m := New().SetResponse(models.AgentCrystal, "slow").SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Invoke(ctx, invoker.Request{Agent: models.AgentCrystal})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
