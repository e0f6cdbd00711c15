// Package agent connects the demo chat to whatever produces agent replies:
// a remote HTTP endpoint, an LLM through eino, or the scripted demo.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"coralbricks/internal/config"
	"coralbricks/internal/models"
)

var ErrEmptyResponse = errors.New("agent returned an empty response")

// Request is one user turn sent to a backend.
type Request struct {
	Message    string
	SessionID  string
	UserID     string
	AuthUserID int64
	History    []models.Message
}

// Reply is the backend's answer, already reduced to display text.
type Reply struct {
	Text        string
	Metadata    map[string]any
	FlowDiagram json.RawMessage
}

// Backend produces one reply per request.
type Backend interface {
	Reply(ctx context.Context, req Request) (*Reply, error)
}

// New picks the backend configured by agent.mode.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Agent.Mode {
	case config.AgentModeHTTP:
		return NewHTTPBackend(cfg.Agent), nil
	case config.AgentModeModel:
		provider, ok := cfg.Providers[cfg.Agent.Provider]
		if !ok {
			return nil, fmt.Errorf("provider %s not configured", cfg.Agent.Provider)
		}
		return NewModelBackend(ctx, cfg.Agent, provider)
	case config.AgentModeScripted, "":
		return NewScriptedBackend(cfg.Agent.ReplyDelay()), nil
	default:
		return nil, fmt.Errorf("unknown agent mode %q", cfg.Agent.Mode)
	}
}
