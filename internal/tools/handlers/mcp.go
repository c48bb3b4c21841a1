package handlers

import (
	"context"
	"fmt"
	"time"

	"agentcore/internal/errs"
	"agentcore/internal/mcp"
	"agentcore/internal/tools"
)

// MCPHandler proxies tool calls to a pooled MCP server client, with a
// one-shot retry against a freshly created client when the first call
// fails Transient, marking the client unhealthy first.
type MCPHandler struct{}

func NewMCPHandler() *MCPHandler { return &MCPHandler{} }

func (h *MCPHandler) Kind() tools.Kind { return tools.KindMcp }

func (h *MCPHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.MCPPayload)
	return ok
}

func (h *MCPHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	payload, isMCP := inv.Call.Payload.(tools.MCPPayload)
	if !isMCP {
		return nil, errs.New(errs.Protocol, "mcp handler received a non-mcp payload")
	}
	callID := inv.Call.CallID
	if inv.MCPPool == nil {
		return tools.FunctionResult{ID: callID, Content: "session does not support MCP clients", Success: false}, nil
	}

	result, err := h.callOnce(ctx, inv, payload)
	if err != nil {
		if te, isTE := errs.As(err); isTE && te.Kind == errs.Transient {
			inv.MCPPool.MarkUnhealthy(payload.Server)
			result, err = h.callOnce(ctx, inv, payload)
		}
	}
	if err != nil {
		return tools.McpResult{ID: callID, Content: mcp.CallToolResult{
			Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf("MCP tool call failed: %v", err)}},
			IsError: true,
		}}, nil
	}

	return tools.McpResult{ID: callID, Content: result}, nil
}

func (h *MCPHandler) callOnce(ctx context.Context, inv tools.Invocation, payload tools.MCPPayload) (mcp.CallToolResult, error) {
	client, err := inv.MCPPool.GetClient(ctx, payload.Server)
	if err != nil {
		return mcp.CallToolResult{}, errs.Wrap(errs.Transient, fmt.Sprintf("MCP server '%s' not available", payload.Server), err)
	}
	runCtx, cancel := context.WithTimeout(ctx, tools.EffectiveTimeout(inv, 30*time.Second))
	defer cancel()
	result, err := client.CallTool(runCtx, payload.Tool, payload.RawArguments)
	if err != nil {
		return mcp.CallToolResult{}, errs.Wrap(errs.Transient, "mcp call_tool failed", err)
	}
	return result, nil
}
