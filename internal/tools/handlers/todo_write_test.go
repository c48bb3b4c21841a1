package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"agentcore/internal/tools"
)

func TestTodoWriteHandlerReplacesList(t *testing.T) {
	h := NewTodoWriteHandler(nil)
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"todos":[{"id":"1","content":"first","status":"pending"}]}`),
	})

	if _, err := h.Handle(context.Background(), inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.Store.snapshot()) != 1 {
		t.Fatalf("expected one todo after replace")
	}

	inv2 := invocationFor("c2", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"todos":[{"id":"2","content":"second","status":"pending"}]}`),
	})
	if _, err := h.Handle(context.Background(), inv2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := h.Store.snapshot()
	if len(snap) != 1 || snap[0].ID != "2" {
		t.Fatalf("expected replace to drop the prior list, got: %+v", snap)
	}
}

func TestTodoWriteHandlerMergeUpdatesExistingAndAppendsNew(t *testing.T) {
	h := NewTodoWriteHandler(nil)
	seed := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"todos":[{"id":"1","content":"first","status":"pending"}]}`),
	})
	if _, err := h.Handle(context.Background(), seed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	merge := invocationFor("c2", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"merge":true,"todos":[{"id":"1","status":"completed"},{"id":"2","content":"second"}]}`),
	})
	if _, err := h.Handle(context.Background(), merge); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := h.Store.snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected merge to keep existing and add new, got: %+v", snap)
	}
	if snap[0].Status != "completed" || snap[0].Content != "first" {
		t.Fatalf("expected merge to update status while preserving content, got: %+v", snap[0])
	}
}

func TestTodoWriteHandlerRejectsMissingID(t *testing.T) {
	h := NewTodoWriteHandler(nil)
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"todos":[{"content":"no id"}]}`),
	})
	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if out.(tools.FunctionResult).Success {
		t.Fatalf("expected failure for a todo with no id")
	}
}

func TestTodoWriteHandlerRejectsInvalidStatus(t *testing.T) {
	h := NewTodoWriteHandler(nil)
	inv := invocationFor("c1", tools.FunctionPayload{
		RawArguments: json.RawMessage(`{"todos":[{"id":"1","status":"bogus"}]}`),
	})
	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if out.(tools.FunctionResult).Success {
		t.Fatalf("expected failure for an invalid status")
	}
}
