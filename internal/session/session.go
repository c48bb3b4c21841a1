package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"agentcore/internal/errs"
)

// CompactionConfig mirrors the [compaction] config section.
type CompactionConfig struct {
	Auto          bool
	KeepLastTurns int
	TargetTokens  int
}

// DefaultCompactionConfig matches the config defaults.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{Auto: true, KeepLastTurns: 4, TargetTokens: 0}
}

// CompactionEvent is emitted once per successful compaction pass.
type CompactionEvent struct {
	PreTokens  int
	PostTokens int
	At         time.Time
}

// Session holds message history, pins, and the MCP pool for one
// process lifetime.
type Session struct {
	mu       sync.Mutex
	messages []Message
	pins     *pinStore
	counter  TokenCounter
	cfg      CompactionConfig
	summarizer Summarizer

	inFlight int32

	dirty bool

	OnCompaction func(CompactionEvent)

	Pool *MCPPool
}

// New builds a Session with the 4-byte heuristic meter and the
// rule-based summarizer, the default stack this module ships with
// when no other TokenCounter or Summarizer is substituted.
func New(cfg CompactionConfig, pinsBudgetTokens int) *Session {
	return &Session{
		pins:       newPinStore(pinsBudgetTokens),
		counter:    HeuristicTokenCounter{},
		cfg:        cfg,
		summarizer: RuleBasedSummarizer{},
	}
}

// WithTokenCounter overrides the token counter (e.g. to plug in a
// native tokenizer, should one become available).
func (s *Session) WithTokenCounter(c TokenCounter) *Session {
	s.counter = c
	return s
}

// WithSummarizer overrides the compaction summarizer.
func (s *Session) WithSummarizer(sm Summarizer) *Session {
	s.summarizer = sm
	return s
}

// Append adds a message to history, computing its token count via the
// active counter.
func (s *Session) Append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.TokenCount == 0 {
		m.TokenCount = s.counter.Count(m.Text)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.messages = append(s.messages, m)
	s.dirty = true
}

// AppendToolResults appends one tool-result message, enforcing that
// every outstanding tool_use call_id in the most recent assistant
// message is satisfied exactly once, and no result carries an
// unknown call_id.
func (s *Session) AppendToolResults(results []ToolResultBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	outstanding := s.outstandingToolUseIDsLocked()
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if !outstanding[r.CallID] {
			return errs.New(errs.Protocol, fmt.Sprintf("tool_result for unknown or already-satisfied call_id %s", r.CallID))
		}
		if seen[r.CallID] {
			return errs.New(errs.Protocol, fmt.Sprintf("duplicate tool_result for call_id %s", r.CallID))
		}
		seen[r.CallID] = true
	}
	for id := range outstanding {
		if !seen[id] {
			return errs.New(errs.Protocol, fmt.Sprintf("missing tool_result for call_id %s", id))
		}
	}

	text := ""
	s.messages = append(s.messages, Message{
		Role:        RoleToolResult,
		Text:        text,
		ToolResults: results,
		TokenCount:  s.counter.Count(text),
		Timestamp:   time.Now(),
	})
	s.dirty = true
	return nil
}

// outstandingToolUseIDsLocked returns the call_ids from the most
// recent assistant message that have not yet been matched by a
// tool_result. Caller must hold s.mu.
func (s *Session) outstandingToolUseIDsLocked() map[string]bool {
	outstanding := map[string]bool{}
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.Role == RoleToolResult {
			break
		}
		if m.Role == RoleAssistant && len(m.ToolUses) > 0 {
			for _, id := range m.OutstandingToolUseIDs() {
				outstanding[id] = true
			}
			break
		}
		if m.Role == RoleAssistant {
			break
		}
	}
	return outstanding
}

// IncrementInFlight marks one scheduler batch as started; compaction
// cannot run while the in-flight counter is positive.
func (s *Session) IncrementInFlight() { atomic.AddInt32(&s.inFlight, 1) }

// DecrementInFlight marks one scheduler batch as finished.
func (s *Session) DecrementInFlight() { atomic.AddInt32(&s.inFlight, -1) }

// AddPin adds or replaces a pin.
func (s *Session) AddPin(p Pin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.pins.add(p)
}

// RemovePin removes a pin by id.
func (s *Session) RemovePin(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins.remove(id)
}

// SnapshotForModel returns the message list to send to the model;
// compaction may have fired as a side effect of the prior
// CompactIfNeeded call, but SnapshotForModel itself never mutates
// state.
func (s *Session) SnapshotForModel() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := s.pins.pruneExpired(time.Now())
	fitted := s.pins.fitToBudget(alive, s.counter)

	out := make([]Message, 0, len(s.messages)+1)
	insertedPins := false
	for _, m := range s.messages {
		if !insertedPins && m.Role != RoleSystem {
			if len(fitted) > 0 {
				out = append(out, pinsAsMessage(fitted, s.counter))
			}
			insertedPins = true
		}
		out = append(out, m)
	}
	if !insertedPins && len(fitted) > 0 {
		out = append(out, pinsAsMessage(fitted, s.counter))
	}
	return out
}

func pinsAsMessage(pins []Pin, counter TokenCounter) Message {
	text := "Pinned context:\n"
	for _, p := range pins {
		text += "- " + p.Content + "\n"
	}
	return Message{Role: RoleSystem, Text: text, Pinned: true, TokenCount: counter.Count(text), Timestamp: time.Now()}
}

// Pins returns the currently non-expired pins, budget-fitted, mainly
// useful for tests and for inspecting what survives a compaction pass.
func (s *Session) Pins() []Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	alive := s.pins.pruneExpired(time.Now())
	return s.pins.fitToBudget(alive, s.counter)
}

func (s *Session) totalTokensLocked() int {
	total := 0
	for _, m := range s.messages {
		total += m.TokenCount
	}
	return total
}
