package websocket

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/core/governance"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestMessageToJSON(t *testing.T) {
	msg := Message{
		Type: MessageTypeGovernanceEvent,
		Data: map[string]interface{}{
			"event":    "alert_admitted",
			"alert_id": "a-1",
		},
	}

	raw := msg.ToJSON()
	var decoded Message
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("ToJSON produced invalid JSON: %v", err)
	}
	if decoded.Type != MessageTypeGovernanceEvent {
		t.Errorf("Expected type %s, got %s", MessageTypeGovernanceEvent, decoded.Type)
	}
	if decoded.Data["alert_id"] != "a-1" {
		t.Errorf("Data did not round trip: %+v", decoded.Data)
	}
	if decoded.Timestamp.IsZero() {
		t.Error("Expected timestamp to be stamped on serialization")
	}
}

func TestGovernanceFeedShapesMessages(t *testing.T) {
	hub := NewHub(testLogger(), HubOptions{})
	feed := NewGovernanceFeed(hub)

	feed.Publish(governance.Event{
		Type:      "alert_suppressed",
		AlertID:   "a-2",
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"reason": "rule_rate_limit"},
	})

	select {
	case raw := <-hub.broadcast:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("Broadcast message is not JSON: %v", err)
		}
		if msg.Type != MessageTypeGovernanceEvent {
			t.Errorf("Expected governance event, got %s", msg.Type)
		}
		if msg.Data["alert_id"] != "a-2" {
			t.Errorf("Unexpected payload: %+v", msg.Data)
		}
	default:
		t.Fatal("Expected a broadcast message")
	}
}
