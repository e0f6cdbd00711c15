package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coralbricks/internal/config"
)

const (
	maxResponseBytes = 1 << 20
	assertionTTL     = 5 * time.Minute
)

// HTTPBackend forwards each message to a remote agent endpoint.
type HTTPBackend struct {
	endpoint   string
	signingKey []byte
	client     *http.Client
}

func NewHTTPBackend(cfg config.AgentConfig) *HTTPBackend {
	b := &HTTPBackend{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout()},
	}
	if cfg.SigningKey != "" {
		b.signingKey = []byte(cfg.SigningKey)
	}
	return b
}

type httpPayload struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	AuthUserID int64  `json:"auth_user_id"`
}

func (b *HTTPBackend) Reply(ctx context.Context, req Request) (*Reply, error) {
	body, err := json.Marshal(httpPayload{
		Message:    req.Message,
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		AuthUserID: req.AuthUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal agent request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if b.signingKey != nil {
		token, err := b.assertion(req)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call agent endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("agent endpoint: %s", resp.Status)
	}
	return ParseResponse(raw)
}

func (b *HTTPBackend) assertion(req Request) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(req.AuthUserID, 10),
		"sid": req.SessionID,
		"iat": now.Unix(),
		"exp": now.Add(assertionTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign agent assertion: %w", err)
	}
	return signed, nil
}
