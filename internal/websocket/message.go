package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to connected dashboards.
const (
	MessageTypeGovernanceEvent = "governance_event"
	MessageTypeNotification    = "notification"
	MessageTypeConnection      = "connection"
	MessageTypeHeartbeat       = "heartbeat"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}
