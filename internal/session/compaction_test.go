package session

import (
	"strings"
	"testing"
)

func TestCompactionKeepsTokensUnderTargetAndPreservesPins(t *testing.T) {
	cfg := CompactionConfig{Auto: true, KeepLastTurns: 1, TargetTokens: 40}
	s := New(cfg, 1000)
	s.AddPin(Pin{ID: "standards", Content: "always write tests", Priority: 5})

	for i := 0; i < 20; i++ {
		s.Append(Message{Role: RoleUser, Text: strings.Repeat("word ", 20)})
		s.Append(Message{Role: RoleAssistant, Text: strings.Repeat("reply ", 20)})
	}

	if err := s.CompactIfNeeded(false, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.SnapshotForModel()
	total := 0
	for _, m := range snap {
		total += m.TokenCount
	}
	if total > cfg.TargetTokens {
		t.Fatalf("expected tokens under target after compaction, got %d", total)
	}

	pinFound := false
	for _, m := range snap {
		if m.Pinned {
			pinFound = true
		}
	}
	if !pinFound {
		t.Fatalf("expected pin to survive compaction")
	}
}

func TestCompactIfNeededIdempotentWithNoInterveningAppend(t *testing.T) {
	cfg := CompactionConfig{Auto: true, KeepLastTurns: 1, TargetTokens: 10}
	s := New(cfg, 0)
	s.Append(Message{Role: RoleUser, Text: strings.Repeat("word ", 50)})

	if err := s.CompactIfNeeded(false, ""); err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	firstLen := len(s.SnapshotForModel())

	if err := s.CompactIfNeeded(false, ""); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	secondLen := len(s.SnapshotForModel())

	if firstLen != secondLen {
		t.Fatalf("expected second call to be a no-op: %d vs %d", firstLen, secondLen)
	}
}

func TestCompactionDeferredWhileToolsInFlight(t *testing.T) {
	cfg := CompactionConfig{Auto: true, KeepLastTurns: 1, TargetTokens: 5}
	s := New(cfg, 0)
	s.Append(Message{Role: RoleUser, Text: strings.Repeat("word ", 50)})
	s.IncrementInFlight()

	if err := s.CompactIfNeeded(true, ""); err == nil {
		t.Fatalf("expected compaction to be deferred while tools are in flight")
	}
	s.DecrementInFlight()

	if err := s.CompactIfNeeded(true, ""); err != nil {
		t.Fatalf("unexpected error once drained: %v", err)
	}
}
