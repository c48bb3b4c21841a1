package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"agentcore/internal/tools"
	"agentcore/internal/tracker"
)

func TestCreateFileHandlerErrorsWhenExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("existing"), 0o644)

	h := NewCreateFileHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{"path":"f.txt","content":"new"}`)})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(tools.FunctionResult).Success {
		t.Fatalf("expected failure under default if_exists=error policy")
	}
}

func TestCreateFileHandlerOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("old"), 0o644)

	h := NewCreateFileHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{"path":"f.txt","content":"new","if_exists":"overwrite"}`)})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	_, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestDeleteFileHandlerNoopWhenMissing(t *testing.T) {
	dir := t.TempDir()
	h := NewDeleteFileHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{"path":"missing.txt"}`)})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.(tools.FunctionResult).Success {
		t.Fatalf("expected graceful success for missing file")
	}
}

func TestDeleteFileHandlerRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("x"), 0o644)

	h := NewDeleteFileHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{"path":"f.txt"}`)})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	_, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected file to be removed")
	}
}

func TestRenameFileHandlerRefusesOverwriteByDefault(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644)

	h := NewRenameFileHandler()
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(fmt.Sprintf(`{"source_path":%q,"dest_path":%q}`, "a.txt", "b.txt")),
	})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(tools.FunctionResult).Success {
		t.Fatalf("expected rename to refuse overwrite by default")
	}
}

func TestRenameFileHandlerMovesFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("content"), 0o644)

	h := NewRenameFileHandler()
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(fmt.Sprintf(`{"source_path":%q,"dest_path":%q}`, "a.txt", "sub/b.txt")),
	})
	inv.Cwd = dir
	inv.Tracker = tracker.New(1)

	_, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, readErr := os.ReadFile(filepath.Join(dir, "sub", "b.txt"))
	if readErr != nil {
		t.Fatalf("expected destination file: %v", readErr)
	}
	if string(data) != "content" {
		t.Fatalf("unexpected content: %q", data)
	}
}
