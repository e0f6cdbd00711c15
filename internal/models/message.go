package models

import (
	"encoding/json"
	"time"
)

// Sender tags who produced a chat message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Message is one entry of a demo chat transcript. It lives only in memory.
type Message struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	Sender      Sender          `json:"sender"`
	Timestamp   time.Time       `json:"timestamp"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	FlowDiagram json.RawMessage `json:"flow_diagram,omitempty"`
}
