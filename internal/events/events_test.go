package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(SubjectTurnCompleted, TurnCompleted{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Close()
}

func TestTurnCompleted_JSON(t *testing.T) {
	evt := TurnCompleted{
		SessionID: "s-1",
		Intent:    "weather",
		City:      "jakarta",
		Backends:  map[string]string{"mistral": "DONE"},
		At:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["session_id"] != "s-1" || decoded["city"] != "jakarta" {
		t.Fatalf("unexpected payload %s", data)
	}
	if _, ok := decoded["dual_mode"]; !ok {
		t.Fatalf("dual_mode must always be present: %s", data)
	}
}
