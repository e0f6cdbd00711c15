package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coralbricks/internal/models"
	"coralbricks/internal/service/chat"
	"coralbricks/internal/widget"
	"coralbricks/internal/worker"
)

// messageView is a transcript record plus its rendered badges.
type messageView struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	HTML        template.HTML   `json:"html"`
	Sender      models.Sender   `json:"sender"`
	Timestamp   time.Time       `json:"timestamp"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	FlowDiagram json.RawMessage `json:"flow_diagram,omitempty"`
}

func newMessageView(m models.Message) messageView {
	return messageView{
		ID:          m.ID,
		Text:        m.Text,
		HTML:        widget.RenderHTML(m.Text),
		Sender:      m.Sender,
		Timestamp:   m.Timestamp,
		Metadata:    m.Metadata,
		FlowDiagram: m.FlowDiagram,
	}
}

func newMessageViews(msgs []models.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, newMessageView(m))
	}
	return out
}

// latestDiagram returns the newest flow diagram in the transcript.
func latestDiagram(msgs []models.Message) json.RawMessage {
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(msgs[i].FlowDiagram) > 0 {
			return msgs[i].FlowDiagram
		}
	}
	return nil
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, worker.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, worker.ErrBusy):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable, "server is shutting down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (h *Handler) openChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	session, msgs, err := h.chat.Open(userID, visitorID(c))
	if err != nil {
		status, msg := chatErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session":  session,
		"messages": newMessageViews(msgs),
	})
}

func (h *Handler) chatMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	msgs, err := h.chat.Transcript(userID, c.Param("session_id"))
	if err != nil {
		status, msg := chatErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": newMessageViews(msgs)})
}

type sendRequest struct {
	SessionID string `json:"session_id" form:"session_id"`
	Message   string `json:"message" form:"message"`
}

func (h *Handler) sendChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	userMsg, agentMsg, err := h.chat.Send(c.Request.Context(), worker.SendRequest{
		OwnerID:   userID,
		SessionID: req.SessionID,
		Text:      req.Message,
	})
	if err != nil {
		status, msg := chatErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_message":  newMessageView(userMsg),
		"agent_message": newMessageView(agentMsg),
	})
}

func (h *Handler) closeChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.chat.Close(userID, c.Param("session_id")); err != nil {
		status, msg := chatErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.Status(http.StatusNoContent)
}
