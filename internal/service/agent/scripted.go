package agent

import (
	"context"
	"time"
)

const ScriptedReply = "I understand you want to create an agent. Let me help you build this step by step. What specific functionality should this agent have?"

// ScriptedBackend answers every message with the canned builder reply.
type ScriptedBackend struct {
	delay time.Duration
}

func NewScriptedBackend(delay time.Duration) *ScriptedBackend {
	return &ScriptedBackend{delay: delay}
}

func (b *ScriptedBackend) Reply(ctx context.Context, _ Request) (*Reply, error) {
	if b.delay > 0 {
		timer := time.NewTimer(b.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return &Reply{Text: ScriptedReply}, nil
}
