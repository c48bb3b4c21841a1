package llm

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMockClientFirstCallIssuesGrepToolCall(t *testing.T) {
	m := NewMockClient()
	resp, err := m.Create(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "grep" {
		t.Fatalf("expected a single grep tool call on the first turn, got %+v", resp.ToolCalls)
	}
	var args map[string]any
	if err := json.Unmarshal(resp.ToolCalls[0].Arguments, &args); err != nil {
		t.Fatalf("expected valid json arguments: %v", err)
	}
	if args["pattern"] == "" || args["pattern"] == nil {
		t.Fatalf("expected a non-empty pattern argument, got %+v", args)
	}
}

func TestMockClientSecondCallReturnsFinalAnswer(t *testing.T) {
	m := NewMockClient()
	if _, err := m.Create(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := m.Create(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls on the second turn, got %+v", resp.ToolCalls)
	}
	if resp.Content == "" {
		t.Fatalf("expected a non-empty final answer")
	}
}

func TestMockClientStreamReturnsContentAndInvokesCallback(t *testing.T) {
	m := NewMockClient()
	var got string
	resp, err := m.Stream(context.Background(), Request{}, func(delta string) {
		got += delta
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != resp.Content {
		t.Fatalf("expected onDelta to receive the full response content, got %q vs %q", got, resp.Content)
	}
}
