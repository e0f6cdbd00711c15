package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coralbricks/internal/models"
	"coralbricks/internal/service/agent"
)

type stubBackend struct {
	reply *agent.Reply
	err   error
	got   agent.Request
}

func (s *stubBackend) Reply(_ context.Context, req agent.Request) (*agent.Reply, error) {
	s.got = req
	return s.reply, s.err
}

func TestSeedUsesScript(t *testing.T) {
	msgs := Seed()
	require.Greater(t, len(msgs), 1)
	assert.Equal(t, models.SenderAgent, msgs[0].Sender)
	assert.Equal(t, models.SenderUser, msgs[1].Sender)
	for i := 1; i < len(msgs); i++ {
		assert.Equal(t, time.Minute, msgs[i].Timestamp.Sub(msgs[i-1].Timestamp))
		assert.NotEqual(t, msgs[i].ID, msgs[i-1].ID)
	}
}

func TestSeedFallsBackToGreeting(t *testing.T) {
	now := time.Now()
	msgs := seedFrom([]byte("not json"), now)
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Text)
	assert.Equal(t, models.SenderAgent, msgs[0].Sender)
	assert.Equal(t, now, msgs[0].Timestamp)

	assert.Len(t, seedFrom([]byte("[]"), now), 1)
}

func TestNewUserMessage(t *testing.T) {
	_, err := NewUserMessage("  \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	msg, err := NewUserMessage("hello")
	require.NoError(t, err)
	assert.Equal(t, models.SenderUser, msg.Sender)
	assert.NotEmpty(t, msg.ID)
}

func TestRespondCopiesReply(t *testing.T) {
	backend := &stubBackend{reply: &agent.Reply{
		Text:        "ok [Agent plan]",
		Metadata:    map[string]any{"k": "v"},
		FlowDiagram: []byte(`{"nodes":[],"edges":[]}`),
	}}
	svc := NewService(backend, time.Second)
	msg := svc.Respond(context.Background(), agent.Request{Message: "hi", SessionID: "s1"})

	assert.Equal(t, models.SenderAgent, msg.Sender)
	assert.Equal(t, "ok [Agent plan]", msg.Text)
	assert.Equal(t, "v", msg.Metadata["k"])
	assert.NotEmpty(t, msg.FlowDiagram)
	assert.Equal(t, "s1", backend.got.SessionID)
}

func TestRespondFallsBackOnError(t *testing.T) {
	svc := NewService(&stubBackend{err: errors.New("connection refused")}, 0)
	msg := svc.Respond(context.Background(), agent.Request{Message: "hi"})
	assert.Equal(t, FallbackText, msg.Text)
	assert.Equal(t, models.SenderAgent, msg.Sender)
}
