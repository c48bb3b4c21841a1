package handlers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"agentcore/internal/tools"
	"agentcore/internal/tracker"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	return path
}

func TestLineEditInsertAfterByLineNumber(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "f.txt", "one\ntwo\nthree\n")

	h := NewLineEditHandler()
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"path":"f.txt","mode":"insert_after","line":2,"text":"inserted"}`),
	})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	_, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "one\ntwo\ninserted\nthree\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestLineEditDeleteByAnchor(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "f.txt", "a\nb\nc\n")

	h := NewLineEditHandler()
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"path":"f.txt","mode":"delete","anchor":"b"}`),
	})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	_, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a\nc\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestLineEditReplaceSpan(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "f.txt", "a\nb\nc\nd\n")

	h := NewLineEditHandler()
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"path":"f.txt","mode":"replace","line":2,"line_count":2,"text":"X"}`),
	})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	_, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a\nX\nd\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestLineEditRejectsUnknownAnchor(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "a\nb\n")

	h := NewLineEditHandler()
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"path":"f.txt","mode":"delete","anchor":"nope"}`),
	})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if out.(tools.FunctionResult).Success {
		t.Fatalf("expected failure for unknown anchor")
	}
}
