package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"agentcore/internal/mcp"
	"agentcore/internal/tools"
)

type fakeMCPClient struct {
	err    error
	result mcp.CallToolResult
}

func (c *fakeMCPClient) CallTool(ctx context.Context, tool string, raw []byte) (mcp.CallToolResult, error) {
	if c.err != nil {
		return mcp.CallToolResult{}, c.err
	}
	return c.result, nil
}
func (c *fakeMCPClient) HealthCheck(ctx context.Context) error { return nil }
func (c *fakeMCPClient) Close(ctx context.Context) error       { return nil }

type fakeMCPPool struct {
	client    mcp.Client
	getErr    error
	unhealthy []string
	getCalls  int
}

func (p *fakeMCPPool) GetClient(ctx context.Context, server string) (mcp.Client, error) {
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.client, nil
}

func (p *fakeMCPPool) MarkUnhealthy(server string) {
	p.unhealthy = append(p.unhealthy, server)
}

func TestMCPHandlerWithoutPoolRespondsToModel(t *testing.T) {
	h := NewMCPHandler()
	inv := invocationFor("c1", tools.MCPPayload{Server: "playwright", Tool: "navigate", RawArguments: json.RawMessage(`{}`)})

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fr := out.(tools.FunctionResult)
	if fr.Success {
		t.Fatalf("expected failure when no MCP pool is configured")
	}
}

func TestMCPHandlerProxiesSuccessfulCall(t *testing.T) {
	pool := &fakeMCPPool{client: &fakeMCPClient{result: mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: "navigated"}},
	}}}
	h := NewMCPHandler()
	inv := invocationFor("c1", tools.MCPPayload{Server: "playwright", Tool: "navigate", RawArguments: json.RawMessage(`{}`)})
	inv.MCPPool = pool

	out, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr := out.(tools.McpResult)
	if mr.Content.IsError {
		t.Fatalf("expected a successful result")
	}
	if mr.Content.Content[0].Text != "navigated" {
		t.Fatalf("unexpected content: %+v", mr.Content)
	}
	if pool.getCalls != 1 {
		t.Fatalf("expected exactly one GetClient call on success, got %d", pool.getCalls)
	}
}

func TestMCPHandlerWithWrongPayloadIsProtocolError(t *testing.T) {
	h := NewMCPHandler()
	inv := invocationFor("c1", tools.FunctionPayload{RawArguments: json.RawMessage(`{}`)})
	inv.MCPPool = &fakeMCPPool{client: &fakeMCPClient{}}

	_, err := h.Handle(context.Background(), inv)
	if err == nil {
		t.Fatalf("expected a protocol error for a non-MCP payload")
	}
}
