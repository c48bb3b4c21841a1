package session

import (
	"testing"
	"time"
)

func TestAppendToolResultsEnforcesI1(t *testing.T) {
	s := New(DefaultCompactionConfig(), 0)
	s.Append(Message{Role: RoleAssistant, ToolUses: []ToolUseBlock{{CallID: "c1"}, {CallID: "c2"}}})

	if err := s.AppendToolResults([]ToolResultBlock{{CallID: "c1"}}); err == nil {
		t.Fatalf("expected error for missing tool_result")
	}
	if err := s.AppendToolResults([]ToolResultBlock{{CallID: "c1"}, {CallID: "c2"}, {CallID: "c3"}}); err == nil {
		t.Fatalf("expected error for unknown call_id")
	}
	if err := s.AppendToolResults([]ToolResultBlock{{CallID: "c1"}, {CallID: "c2"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppendToolResultsRejectsDuplicateCallID(t *testing.T) {
	s := New(DefaultCompactionConfig(), 0)
	s.Append(Message{Role: RoleAssistant, ToolUses: []ToolUseBlock{{CallID: "c1"}}})
	err := s.AppendToolResults([]ToolResultBlock{{CallID: "c1"}, {CallID: "c1"}})
	if err == nil {
		t.Fatalf("expected error for duplicate call_id")
	}
}

func TestPinsSurviveAndExpireByTTL(t *testing.T) {
	s := New(DefaultCompactionConfig(), 1000)
	ttl := 10 * time.Millisecond
	s.AddPin(Pin{ID: "standards", Content: "use tabs", Priority: 10, TTL: &ttl})

	pins := s.Pins()
	if len(pins) != 1 {
		t.Fatalf("expected pin present before TTL elapses")
	}

	time.Sleep(20 * time.Millisecond)
	pins = s.Pins()
	if len(pins) != 0 {
		t.Fatalf("expected pin expired after TTL")
	}
}

func TestSnapshotForModelIncludesLivePins(t *testing.T) {
	s := New(DefaultCompactionConfig(), 1000)
	s.AddPin(Pin{ID: "standards", Content: "use tabs", Priority: 10})
	s.Append(Message{Role: RoleUser, Text: "hello"})

	snap := s.SnapshotForModel()
	found := false
	for _, m := range snap {
		if m.Pinned {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a pinned message in the snapshot")
	}
}
