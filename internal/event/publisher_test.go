package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pavelanni/edulingo/internal/model"
)

func TestSessionCompletedJSON(t *testing.T) {
	e := NewSessionCompleted("alice", model.SessionResult{
		Subject:     "Math",
		Topic:       "Algebra",
		Score:       2,
		Total:       3,
		CompletedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	})

	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got["type"] != "session.completed" || got["identity"] != "alice" {
		t.Errorf("unexpected envelope: %s", b)
	}
	result, ok := got["result"].(map[string]any)
	if !ok {
		t.Fatalf("result missing: %s", b)
	}
	tests := []struct {
		field string
		want  any
	}{
		{"subject", "Math"},
		{"topic", "Algebra"},
		{"score", float64(2)},
		{"total", float64(3)},
		{"completedAt", "2026-03-14T10:00:00Z"},
	}
	for _, tt := range tests {
		if result[tt.field] != tt.want {
			t.Errorf("result.%s = %v, want %v", tt.field, result[tt.field], tt.want)
		}
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.PublishSessionCompleted(context.Background(), SessionCompleted{}); err != nil {
		t.Errorf("Nop publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Nop close: %v", err)
	}
}
