package handlers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"agentcore/internal/tools"
)

func TestListFilesHandlerListsEntries(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0o644)

	h := NewListFilesHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{}`)})
	inv.Cwd = dir

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded struct{ Entries []fileEntry `json:"entries"` }
	json.Unmarshal([]byte(out.(tools.FunctionResult).Content), &decoded)
	if len(decoded.Entries) != 3 {
		t.Fatalf("expected 3 entries (a.txt, sub, sub/b.txt), got %d", len(decoded.Entries))
	}
}

func TestListFilesHandlerRespectsMaxDepth(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "deep.txt"), []byte("x"), 0o644)

	h := NewListFilesHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{"max_depth":1}`)})
	inv.Cwd = dir

	out, _ := h.Handle(context.Background(), inv)
	var decoded struct{ Entries []fileEntry `json:"entries"` }
	json.Unmarshal([]byte(out.(tools.FunctionResult).Content), &decoded)
	for _, e := range decoded.Entries {
		if e.Path == filepath.Join("sub", "deep.txt") {
			t.Fatalf("expected max_depth=1 to exclude nested file")
		}
	}
}

func TestGlobFileSearchHandlerMatchesPattern(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "pkg"), 0o755)
	os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644)

	h := NewGlobFileSearchHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{"glob_pattern":"*.go"}`)})
	inv.Cwd = dir

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded struct{ Paths []string `json:"paths"` }
	json.Unmarshal([]byte(out.(tools.FunctionResult).Content), &decoded)
	if len(decoded.Paths) != 1 || decoded.Paths[0] != filepath.Join("pkg", "a.go") {
		t.Fatalf("unexpected matches: %v", decoded.Paths)
	}
}

func TestGlobFileSearchHandlerRejectsEmptyPattern(t *testing.T) {
	h := NewGlobFileSearchHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{"glob_pattern":""}`)})
	inv.Cwd = t.TempDir()

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if out.(tools.FunctionResult).Success {
		t.Fatalf("expected failure for empty glob_pattern")
	}
}
