package worker

import (
	"context"
	"sync"
	"time"

	"coralbricks/internal/models"
)

type sendResult struct {
	user  models.Message
	agent models.Message
}

type sendTask struct {
	ctx      context.Context
	message  models.Message
	resultCh chan sendResult
}

// sessionState is one transient transcript and the queue feeding it.
type sessionState struct {
	mu       sync.RWMutex
	session  models.Session
	history  []models.Message
	lastUsed time.Time
	pending  int

	taskCh   chan sendTask
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newSessionState(session models.Session, seed []models.Message, queueLen int) *sessionState {
	return &sessionState{
		session:  session,
		history:  seed,
		lastUsed: session.CreatedAt,
		taskCh:   make(chan sendTask, queueLen),
		stopCh:   make(chan struct{}),
	}
}

func (s *sessionState) snapshot() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *sessionState) appendHistory(msgs ...models.Message) {
	s.mu.Lock()
	s.history = append(s.history, msgs...)
	s.session.UpdatedAt = time.Now()
	s.mu.Unlock()
}

func (s *sessionState) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *sessionState) addPending(delta int) {
	s.mu.Lock()
	s.pending += delta
	if delta < 0 {
		s.lastUsed = time.Now()
	}
	s.mu.Unlock()
}

// idleSince reports whether nothing is queued and the session was last used before cutoff.
func (s *sessionState) idleSince(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending == 0 && s.lastUsed.Before(cutoff)
}

func (s *sessionState) info() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *sessionState) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
