package monitoring

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublishQueuesTypedMessage(t *testing.T) {
	hub := NewWebSocketHub()
	hub.Publish(AssessmentResult, map[string]float64{"probability": 0.55})

	select {
	case raw := <-hub.broadcast:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("invalid message: %v", err)
		}
		if msg.Type != AssessmentResult {
			t.Fatalf("expected %s message, got %s", AssessmentResult, msg.Type)
		}
		if len(msg.Data) == 0 {
			t.Fatal("expected a payload")
		}
	default:
		t.Fatal("expected a queued broadcast")
	}
}

func TestPublishStatusBroadcastsSnapshots(t *testing.T) {
	hub := NewWebSocketHub()
	t.Cleanup(hub.Stop)
	collector := NewCollector()
	collector.RecordAssessment("High Risk", 5*time.Millisecond)

	go hub.PublishStatus(collector, 10*time.Millisecond)

	select {
	case raw := <-hub.broadcast:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("invalid message: %v", err)
		}
		if msg.Type != SystemStatus {
			t.Fatalf("expected %s message, got %s", SystemStatus, msg.Type)
		}
		var stats Stats
		if err := json.Unmarshal(msg.Data, &stats); err != nil {
			t.Fatalf("invalid stats payload: %v", err)
		}
		if stats.AssessmentsTotal != 1 {
			t.Fatalf("expected 1 assessment in the snapshot, got %d", stats.AssessmentsTotal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a status broadcast")
	}
}
