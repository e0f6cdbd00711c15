package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"coralbricks/internal/redis"
)

const (
	redisInvalidateChannel = "coralbricks:chat:invalidate"
	subscribeTimeout       = 5 * time.Second
)

const (
	scopeUser    = "user"
	scopeSession = "session"
)

type invalidateMessage struct {
	UserID    int64  `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Scope     string `json:"scope"`
}

// stateRedis fans session invalidations out to every instance.
type stateRedis struct {
	client *redis.Client
}

func newStateRedis(client *redis.Client) *stateRedis {
	return &stateRedis{client: client}
}

func (r *stateRedis) startListener(stopCh <-chan struct{}, handler func(invalidateMessage)) {
	if r == nil || r.client == nil || handler == nil {
		return
	}
	raw := r.client.Raw()
	if raw == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	pubsub := raw.Subscribe(ctx, redisInvalidateChannel)
	// wait for the subscription so publishes right after start are not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[worker] subscribe %s failed: %v", redisInvalidateChannel, err)
		_ = pubsub.Close()
		return
	}
	go func() {
		<-stopCh
		_ = pubsub.Close()
	}()
	go func() {
		for msg := range pubsub.Channel() {
			var inv invalidateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				log.Printf("[worker] invalidation decode failed: %v", err)
				continue
			}
			handler(inv)
		}
	}()
}

func (r *stateRedis) publishInvalidation(msg invalidateMessage) {
	if r == nil || r.client == nil {
		return
	}
	raw := r.client.Raw()
	if raw == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[worker] invalidation marshal failed: %v", err)
		return
	}
	if err := raw.Publish(context.Background(), redisInvalidateChannel, payload).Err(); err != nil {
		log.Printf("[worker] publish invalidation failed: %v", err)
	}
}
