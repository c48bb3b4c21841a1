package session

import (
	"sync/atomic"
	"time"

	"agentcore/internal/errs"
)

// CompactIfNeeded runs compaction when the session is over its
// token budget. It is idempotent: called twice in a row with no
// intervening Append/AppendToolResults is a no-op on the second call.
func (s *Session) CompactIfNeeded(force bool, focus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	total := s.totalTokensLocked()
	needsCompaction := force || (s.cfg.Auto && s.cfg.TargetTokens > 0 && total > s.cfg.TargetTokens)
	s.dirty = false
	if !needsCompaction {
		return nil
	}

	if atomic.LoadInt32(&s.inFlight) > 0 {
		// Deferred: compaction cannot run while tools are in-flight.
		// The caller is expected to retry once the batch drains; we
		// mark dirty again so the retry is not swallowed by the
		// idempotence check above.
		s.dirty = true
		return errs.New(errs.Transient, "compaction deferred: tools in flight")
	}

	kept, older := s.partitionForCompactionLocked()
	summary, err := s.summarizer.Summarize(older, focus)
	if err != nil {
		return errs.Wrap(errs.System, "summarizer failed", err)
	}

	summaryMsg := Message{
		Role:       RoleUser,
		Text:       "Previous conversation summary:\n" + summary,
		TokenCount: s.counter.Count(summary),
		Timestamp:  time.Now(),
	}

	newMessages := make([]Message, 0, len(kept)+1)
	inserted := false
	for _, m := range kept {
		if !inserted && m.Role != RoleSystem {
			newMessages = append(newMessages, summaryMsg)
			inserted = true
		}
		newMessages = append(newMessages, m)
	}
	if !inserted {
		newMessages = append(newMessages, summaryMsg)
	}
	s.messages = newMessages

	if s.OnCompaction != nil {
		s.OnCompaction(CompactionEvent{PreTokens: total, PostTokens: s.totalTokensLocked(), At: time.Now()})
	}
	return nil
}

// partitionForCompactionLocked splits history into (kept, older):
// system message(s), the most recent keep_last_turns turns (each
// starting at a user message), and any existing synthetic summary
// message are kept verbatim;
// everything else is "older". Caller must hold s.mu.
func (s *Session) partitionForCompactionLocked() (kept []Message, older []Message) {
	keepFromIdx := len(s.messages)
	turnsSeen := 0
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			turnsSeen++
			if turnsSeen > s.cfg.KeepLastTurns {
				break
			}
		}
		keepFromIdx = i
	}

	for i, m := range s.messages {
		switch {
		case m.Role == RoleSystem:
			kept = append(kept, m)
		case isSyntheticSummary(m):
			kept = append(kept, m)
		case i >= keepFromIdx:
			kept = append(kept, m)
		default:
			older = append(older, m)
		}
	}
	return kept, older
}

func isSyntheticSummary(m Message) bool {
	return m.Role == RoleUser && len(m.Text) > 0 && hasSummaryPrefix(m.Text)
}

const summaryPrefix = "Previous conversation summary:\n"

func hasSummaryPrefix(text string) bool {
	if len(text) < len(summaryPrefix) {
		return false
	}
	return text[:len(summaryPrefix)] == summaryPrefix
}
