// Package chat holds the rules for the demo transcript: how it is seeded
// and how one user turn becomes exactly one agent reply.
package chat

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"coralbricks/internal/models"
	"coralbricks/internal/service/agent"
)

const (
	Greeting     = "Hi! I'm your AI agent builder. Tell me what kind of agent you'd like to create and I'll help you build it step by step."
	FallbackText = "Sorry, I couldn't reach the agent builder right now. Please try again in a moment."
)

var ErrEmptyMessage = errors.New("message text is required")

//go:embed mock_convo.json
var mockConvo []byte

type scriptLine struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Seed returns the scripted opening transcript, one minute apart and ending now.
func Seed() []models.Message {
	return seedFrom(mockConvo, time.Now())
}

func seedFrom(raw []byte, now time.Time) []models.Message {
	var lines []scriptLine
	if err := json.Unmarshal(raw, &lines); err != nil || len(lines) == 0 {
		if err != nil {
			log.Printf("[chat] load demo script: %v", err)
		}
		return []models.Message{newMessage(Greeting, models.SenderAgent, now)}
	}
	out := make([]models.Message, 0, len(lines))
	for i, line := range lines {
		sender := models.SenderAgent
		if line.Role == "user" {
			sender = models.SenderUser
		}
		ts := now.Add(-time.Duration(len(lines)-1-i) * time.Minute)
		out = append(out, newMessage(line.Content, sender, ts))
	}
	return out
}

// NewUserMessage validates and wraps the visitor's text.
func NewUserMessage(text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	return newMessage(text, models.SenderUser, time.Now()), nil
}

// Service turns a user turn into an agent message.
type Service struct {
	backend agent.Backend
	timeout time.Duration
}

func NewService(backend agent.Backend, timeout time.Duration) *Service {
	return &Service{backend: backend, timeout: timeout}
}

// Respond always yields one agent message. Backend failures are logged and
// replaced by FallbackText.
func (s *Service) Respond(ctx context.Context, req agent.Request) models.Message {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	reply, err := s.backend.Reply(ctx, req)
	if err != nil || reply == nil {
		log.Printf("[chat] session %s: agent reply failed: %v", req.SessionID, err)
		return newMessage(FallbackText, models.SenderAgent, time.Now())
	}
	msg := newMessage(reply.Text, models.SenderAgent, time.Now())
	msg.Metadata = reply.Metadata
	msg.FlowDiagram = reply.FlowDiagram
	return msg
}

func newMessage(text string, sender models.Sender, ts time.Time) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: ts,
	}
}
