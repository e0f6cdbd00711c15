// Package worker coordinates the transient demo chat sessions. Every session
// is drained by its own goroutine so a reply lands in the transcript once and
// in order.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"coralbricks/internal/models"
	"coralbricks/internal/redis"
	"coralbricks/internal/service/agent"
	"coralbricks/internal/service/chat"
)

const (
	defaultQueueLen    = 16
	defaultIdleTimeout = 30 * time.Minute
	minPurgeInterval   = time.Second
)

var (
	ErrBusy            = errors.New("chat session is busy, try again shortly")
	ErrSessionNotFound = errors.New("chat session not found")
	ErrStopped         = errors.New("chat manager stopped")
)

// Responder produces the agent message for one user turn.
type Responder interface {
	Respond(ctx context.Context, req agent.Request) models.Message
}

type Config struct {
	QueueLength int
	IdleTimeout time.Duration
	// Cache, when set, broadcasts session invalidations to other instances.
	Cache *redis.Client
}

// SendRequest is one user turn addressed to an open session.
type SendRequest struct {
	OwnerID   int64
	SessionID string
	Text      string
}

type Manager struct {
	responder Responder
	queueLen  int
	idle      time.Duration
	pubsub    *stateRedis

	mu       sync.Mutex
	sessions map[string]*sessionState
	stopped  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewManager(responder Responder, cfg Config) *Manager {
	if cfg.QueueLength <= 0 {
		cfg.QueueLength = defaultQueueLen
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	m := &Manager{
		responder: responder,
		queueLen:  cfg.QueueLength,
		idle:      cfg.IdleTimeout,
		pubsub:    newStateRedis(cfg.Cache),
		sessions:  make(map[string]*sessionState),
		stopCh:    make(chan struct{}),
	}
	m.pubsub.startListener(m.stopCh, m.handleInvalidation)
	go m.purgeIdle()
	return m
}

// Open starts a fresh transcript seeded with the demo script.
func (m *Manager) Open(ownerID int64, visitorID string) (models.Session, []models.Message, error) {
	now := time.Now()
	session := models.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		VisitorID: visitorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	state := newSessionState(session, chat.Seed(), m.queueLen)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return models.Session{}, nil, ErrStopped
	}
	m.sessions[session.ID] = state
	m.wg.Add(1)
	m.mu.Unlock()

	go m.runSession(state)
	debugLog("session %s opened for user %d", session.ID, ownerID)
	return session, state.snapshot(), nil
}

// Transcript returns a copy of the session's messages.
func (m *Manager) Transcript(ownerID int64, sessionID string) ([]models.Message, error) {
	state, err := m.lookup(ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	state.touch()
	return state.snapshot(), nil
}

// Send appends the user's message and, once the agent answers, exactly one
// agent message. If ctx ends first the turn still completes in the background.
func (m *Manager) Send(ctx context.Context, req SendRequest) (models.Message, models.Message, error) {
	userMsg, err := chat.NewUserMessage(req.Text)
	if err != nil {
		return models.Message{}, models.Message{}, err
	}
	state, err := m.lookup(req.OwnerID, req.SessionID)
	if err != nil {
		return models.Message{}, models.Message{}, err
	}

	task := sendTask{
		ctx:      context.WithoutCancel(ctx),
		message:  userMsg,
		resultCh: make(chan sendResult, 1),
	}
	state.addPending(1)
	select {
	case state.taskCh <- task:
	default:
		state.addPending(-1)
		return models.Message{}, models.Message{}, ErrBusy
	}

	select {
	case res := <-task.resultCh:
		return res.user, res.agent, nil
	case <-ctx.Done():
		return models.Message{}, models.Message{}, ctx.Err()
	case <-state.stopCh:
		select {
		case res := <-task.resultCh:
			return res.user, res.agent, nil
		default:
			return models.Message{}, models.Message{}, ErrSessionNotFound
		}
	}
}

// Close discards one session.
func (m *Manager) Close(ownerID int64, sessionID string) error {
	state, err := m.lookup(ownerID, sessionID)
	if err != nil {
		return err
	}
	m.remove(sessionID, state)
	m.pubsub.publishInvalidation(invalidateMessage{Scope: scopeSession, SessionID: sessionID})
	return nil
}

// CloseOwner discards every session of a user here and on other instances.
func (m *Manager) CloseOwner(ownerID int64) {
	m.closeOwnerLocal(ownerID)
	m.pubsub.publishInvalidation(invalidateMessage{Scope: scopeUser, UserID: ownerID})
}

// Stop ends every session goroutine and waits for in-flight turns.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopCh)
	for id, state := range m.sessions {
		state.stop()
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(ownerID int64, sessionID string) (*sessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}
	state, ok := m.sessions[sessionID]
	if !ok || state.info().OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (m *Manager) remove(sessionID string, state *sessionState) {
	m.mu.Lock()
	if current, ok := m.sessions[sessionID]; ok && current == state {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	state.stop()
}

func (m *Manager) closeOwnerLocal(ownerID int64) {
	m.mu.Lock()
	var victims []*sessionState
	for id, state := range m.sessions {
		if state.info().OwnerID == ownerID {
			victims = append(victims, state)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, state := range victims {
		state.stop()
	}
	if len(victims) > 0 {
		debugLog("closed %d sessions of user %d", len(victims), ownerID)
	}
}

func (m *Manager) handleInvalidation(msg invalidateMessage) {
	switch msg.Scope {
	case scopeUser:
		m.closeOwnerLocal(msg.UserID)
	case scopeSession:
		m.mu.Lock()
		state, ok := m.sessions[msg.SessionID]
		m.mu.Unlock()
		if ok {
			m.remove(msg.SessionID, state)
		}
	}
}

func (m *Manager) runSession(state *sessionState) {
	defer m.wg.Done()
	info := state.info()
	for {
		select {
		case <-state.stopCh:
			m.drain(state)
			debugLog("session %s stopped", info.ID)
			return
		case task := <-state.taskCh:
			m.handleSend(state, task)
		}
	}
}

// drain answers tasks that were queued before the stop.
func (m *Manager) drain(state *sessionState) {
	for {
		select {
		case task := <-state.taskCh:
			m.handleSend(state, task)
		default:
			return
		}
	}
}

func (m *Manager) handleSend(state *sessionState, task sendTask) {
	defer state.addPending(-1)
	info := state.info()
	history := state.snapshot()
	state.appendHistory(task.message)

	agentMsg := m.responder.Respond(task.ctx, agent.Request{
		Message:    task.message.Text,
		SessionID:  info.ID,
		UserID:     info.VisitorID,
		AuthUserID: info.OwnerID,
		History:    history,
	})
	state.appendHistory(agentMsg)
	task.resultCh <- sendResult{user: task.message, agent: agentMsg}
}

func (m *Manager) purgeIdle() {
	interval := m.idle / 2
	if interval < minPurgeInterval {
		interval = minPurgeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			m.purgeBefore(now.Add(-m.idle))
		}
	}
}

func (m *Manager) purgeBefore(cutoff time.Time) int {
	m.mu.Lock()
	var stale []*sessionState
	for id, state := range m.sessions {
		if state.idleSince(cutoff) {
			stale = append(stale, state)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, state := range stale {
		state.stop()
	}
	if len(stale) > 0 {
		log.Printf("[worker] purged %d idle chat sessions", len(stale))
	}
	return len(stale)
}
