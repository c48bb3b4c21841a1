package format

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatUnderLimitUnchanged(t *testing.T) {
	content := "line one\nline two\n"
	r := Format(content)
	if r.Truncated {
		t.Fatalf("expected no truncation")
	}
	if r.Output != content {
		t.Fatalf("expected unchanged content")
	}
}

func TestFormatExactlyAtMaxBytesNoTruncation(t *testing.T) {
	content := strings.Repeat("a", MaxBytes)
	r := Format(content)
	if r.Truncated {
		t.Fatalf("expected no truncation exactly at MaxBytes")
	}
}

func TestFormatOverMaxLinesTruncates(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxLines+50; i++ {
		b.WriteString("x\n")
	}
	r := Format(b.String())
	if !r.Truncated {
		t.Fatalf("expected truncation")
	}
	if !strings.Contains(r.Output, "omitted") {
		t.Fatalf("expected elision marker")
	}
	if strings.Count(r.Output, "[... omitted") != 1 {
		t.Fatalf("expected exactly one elision marker")
	}
}

func TestFormatMultiByteBoundarySafe(t *testing.T) {
	// Build content just over MaxBytes with multi-byte runes straddling
	// the truncation boundary.
	var b strings.Builder
	for b.Len() < MaxBytes+100 {
		b.WriteString("héllo wörld 日本語 ")
	}
	content := b.String()
	r := Format(content)
	if !utf8.ValidString(r.Output) {
		t.Fatalf("expected valid utf-8 output")
	}
	if strings.ContainsRune(r.Output, '�') {
		t.Fatalf("expected no replacement characters")
	}
}

func TestFormatOutputNeverExceedsMaxBytes(t *testing.T) {
	content := strings.Repeat("line of text here\n", 2000)
	r := Format(content)
	if len(r.Output) > MaxBytes {
		t.Fatalf("formatter output %d bytes exceeds MaxBytes %d", len(r.Output), MaxBytes)
	}
}

func TestFormatTailWithNoInternalNewlineStaysWithinMaxBytes(t *testing.T) {
	// The tail window ends in one very long line with no internal
	// newline, so trimTailBytes falls back to a raw byte cut instead
	// of snapping to a line boundary. That raw cut must be sized
	// against the budget remaining after the elision marker, not just
	// after the head, or the final output overruns MaxBytes by
	// roughly the marker's length.
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("x\n")
	}
	b.WriteString(strings.Repeat("z", 20000))
	r := Format(b.String())
	if !r.Truncated {
		t.Fatalf("expected truncation")
	}
	if len(r.Output) > MaxBytes {
		t.Fatalf("formatter output %d bytes exceeds MaxBytes %d", len(r.Output), MaxBytes)
	}
}

func TestFormatDeterministic(t *testing.T) {
	content := strings.Repeat("deterministic\n", 500)
	a := Format(content)
	b := Format(content)
	if a.Output != b.Output || a.Truncated != b.Truncated {
		t.Fatalf("expected deterministic output")
	}
}

func TestEnvelopRoundsDuration(t *testing.T) {
	env := Envelop(Result{Output: "ok"}, 0, 1.2499, false)
	if env.Metadata.DurationSeconds != 1.2 {
		t.Fatalf("expected 1.2, got %v", env.Metadata.DurationSeconds)
	}
}
