// Package format implements deterministic head+tail output
// truncation for long tool output.
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxBytes  = 10 * 1024
	MaxLines  = 256
	HeadLines = 128
	TailLines = 128
	HeadBytes = 5 * 1024
)

// Metadata accompanies formatted output in the tool-result envelope
// for shell-like tools.
type Metadata struct {
	ExitCode        int     `json:"exit_code"`
	DurationSeconds float64 `json:"duration_seconds"`
	TimedOut        bool    `json:"timed_out"`
	Truncated       bool    `json:"truncated"`
}

// Envelope is the wire shape the model receives.
type Envelope struct {
	Output   string   `json:"output"`
	Metadata Metadata `json:"metadata"`
}

// Result is the pure formatter output before envelope wrapping.
type Result struct {
	Output    string
	Truncated bool
}

// Format applies the deterministic head+tail truncation algorithm.
// It is pure: identical input produces byte-identical output.
func Format(content string) Result {
	totalBytes := len(content)
	totalLines := countLines(content)
	if totalBytes <= MaxBytes && totalLines <= MaxLines {
		return Result{Output: content, Truncated: false}
	}

	lines := splitKeepEnds(content)
	headN := HeadLines
	if headN > len(lines) {
		headN = len(lines)
	}
	tailN := TailLines
	if tailN > len(lines)-headN {
		tailN = len(lines) - headN
	}
	if tailN < 0 {
		tailN = 0
	}
	omitted := totalLines - HeadLines - TailLines
	if omitted < 0 {
		omitted = 0
	}

	head := strings.Join(lines[:headN], "")
	tail := strings.Join(lines[len(lines)-tailN:], "")

	head = trimHeadBytes(head, HeadBytes)
	marker := fmt.Sprintf("\n[... omitted %d of %d lines ...]\n\n", omitted, totalLines)

	usedBytes := len(head) + len(marker)
	remaining := MaxBytes - usedBytes
	if remaining < 0 {
		remaining = 0
	}
	tail = trimTailBytes(tail, remaining)

	out := head + marker + tail
	if len(out) > MaxBytes {
		out = out[:safeUTF8Prefix(out, MaxBytes)]
	}
	return Result{Output: out, Truncated: true}
}

// Envelop wraps a Result in the wire envelope with the given exec
// metadata fields. duration is rounded to one decimal place.
func Envelop(r Result, exitCode int, duration float64, timedOut bool) Envelope {
	return Envelope{
		Output: r.Output,
		Metadata: Metadata{
			ExitCode:        exitCode,
			DurationSeconds: roundTo1dp(duration),
			TimedOut:        timedOut,
			Truncated:       r.Truncated,
		},
	}
}

func roundTo1dp(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// splitKeepEnds splits s into lines, each retaining its trailing "\n"
// (the final element may lack one).
func splitKeepEnds(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// trimHeadBytes trims s from its end, at the last newline within
// budget, falling back to a UTF-8-safe byte boundary if no newline
// fits. Never introduces U+FFFD.
func trimHeadBytes(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := safeUTF8Prefix(s, budget)
	if idx := strings.LastIndexByte(s[:cut], '\n'); idx >= 0 {
		return s[:idx+1]
	}
	return s[:cut]
}

// trimTailBytes trims s from its start, at the first newline within
// the remaining byte budget, falling back to a UTF-8-safe boundary.
func trimTailBytes(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	start := len(s) - budget
	start = safeUTF8SuffixStart(s, start)
	if idx := strings.IndexByte(s[start:], '\n'); idx >= 0 {
		return s[start+idx+1:]
	}
	return s[start:]
}

// safeUTF8Prefix returns the largest n <= budget such that s[:n] ends
// on a UTF-8 scalar boundary.
func safeUTF8Prefix(s string, budget int) int {
	if budget >= len(s) {
		return len(s)
	}
	n := budget
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// safeUTF8SuffixStart returns the smallest n >= start such that
// s[n:] begins on a UTF-8 scalar boundary.
func safeUTF8SuffixStart(s string, start int) int {
	if start <= 0 {
		return 0
	}
	if start >= len(s) {
		return len(s)
	}
	n := start
	for n < len(s) && !utf8.RuneStart(s[n]) {
		n++
	}
	return n
}
