package session

import (
	"github.com/tidwall/gjson"
)

// OTELSpan is the OTEL-shaped export of one telemetry record.
type OTELSpan struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
}

// ToOTELSpans converts the sink's recorded tool events into
// OTEL-shaped spans using gjson to pull fields out of the already-
// serialized records rather than re-decoding into a struct, matching
// how session/otel.py reshapes telemetry.py's records.
func (s *TelemetrySink) ToOTELSpans() []OTELSpan {
	spans := make([]OTELSpan, 0)
	for _, raw := range s.Events() {
		parsed := gjson.ParseBytes(raw)
		name := "tool_call"
		if parsed.Get("type").String() == "compaction" {
			name = "compaction"
		}
		attrs := map[string]string{}
		parsed.ForEach(func(key, value gjson.Result) bool {
			attrs[key.String()] = value.String()
			return true
		})
		spans = append(spans, OTELSpan{Name: name, Attributes: attrs})
	}
	return spans
}
