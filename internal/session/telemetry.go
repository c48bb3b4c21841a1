package session

import (
	"encoding/json"
	"sync"
	"time"

	"agentcore/internal/tools"

	"github.com/tidwall/sjson"
)

// TelemetrySink is an append-only, thread-safe collector of tool
// dispatch and compaction events.
type TelemetrySink struct {
	mu     sync.Mutex
	events []json.RawMessage
}

// NewTelemetrySink builds an empty sink.
func NewTelemetrySink() *TelemetrySink {
	return &TelemetrySink{}
}

// RecordToolEvent appends a tool dispatch telemetry record, patching
// in fields with tidwall/sjson rather than re-marshaling a struct,
// matching the ad hoc JSON-shaping style of the original
// session/telemetry.py exporter.
func (s *TelemetrySink) RecordToolEvent(ev tools.Event) {
	raw := []byte("{}")
	raw, _ = sjson.SetBytes(raw, "timestamp", ev.Timestamp.Format(time.RFC3339Nano))
	raw, _ = sjson.SetBytes(raw, "tool_name", ev.ToolName)
	raw, _ = sjson.SetBytes(raw, "call_id", ev.CallID)
	raw, _ = sjson.SetBytes(raw, "turn_id", ev.TurnID)
	raw, _ = sjson.SetBytes(raw, "duration_ms", ev.Duration.Milliseconds())
	raw, _ = sjson.SetBytes(raw, "success", ev.Success)
	if ev.ErrorKind != "" {
		raw, _ = sjson.SetBytes(raw, "error_kind", ev.ErrorKind)
	}
	raw, _ = sjson.SetBytes(raw, "output_bytes", ev.OutputBytes)
	raw, _ = sjson.SetBytes(raw, "truncated", ev.Truncated)

	s.mu.Lock()
	s.events = append(s.events, raw)
	s.mu.Unlock()
}

// RecordCompaction appends a Compaction telemetry event.
func (s *TelemetrySink) RecordCompaction(ev CompactionEvent) {
	raw := []byte(`{"type":"compaction"}`)
	raw, _ = sjson.SetBytes(raw, "pre_tokens", ev.PreTokens)
	raw, _ = sjson.SetBytes(raw, "post_tokens", ev.PostTokens)
	raw, _ = sjson.SetBytes(raw, "timestamp", ev.At.Format(time.RFC3339Nano))

	s.mu.Lock()
	s.events = append(s.events, raw)
	s.mu.Unlock()
}

// Events returns a snapshot of recorded events as raw JSON lines,
// suitable for the audit writer to append verbatim.
func (s *TelemetrySink) Events() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, len(s.events))
	copy(out, s.events)
	return out
}
