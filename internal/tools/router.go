package tools

import (
	"encoding/json"
	"strings"

	"agentcore/internal/errs"
)

// BlockKind tags the recognized model-response block shapes.
type BlockKind string

const (
	BlockToolUse        BlockKind = "tool_use"
	BlockLocalShellCall  BlockKind = "local_shell_call"
	BlockCustomToolCall  BlockKind = "custom_tool_call"
)

// Block is the router's input: one block from an assistant message.
// The router is schema-agnostic; it only inspects Kind, identifiers,
// and the tool name.
type Block struct {
	Kind BlockKind

	// tool_use
	ID    string
	Name  string
	Input json.RawMessage

	// local_shell_call (legacy: accepts either CallID or ID, one required)
	CallID  string
	Command []string
	Env     map[string]string
	Timeout *float64

	// custom_tool_call
	RawInput string
}

// Router parses model response blocks into typed Calls.
type Router struct {
	registry *Registry
}

// NewRouter builds a Router holding registry; parsing itself does not
// consult it.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// ParseBlock converts one block into at most one Call.
func (r *Router) ParseBlock(b Block) (Call, error) {
	switch b.Kind {
	case BlockToolUse:
		return r.parseToolUse(b)
	case BlockLocalShellCall:
		return r.parseLocalShellCall(b)
	case BlockCustomToolCall:
		return r.parseCustomToolCall(b)
	default:
		return Call{}, errs.New(errs.Protocol, "unrecognized block kind")
	}
}

func (r *Router) parseToolUse(b Block) (Call, error) {
	if b.ID == "" {
		return Call{}, errs.New(errs.Protocol, "tool_use block missing id")
	}
	if b.Name == "" {
		return Call{}, errs.New(errs.Protocol, "tool_use block missing name")
	}

	if server, tool, ok := splitMCPName(b.Name); ok {
		return Call{
			ToolName: b.Name,
			CallID:   b.ID,
			Payload:  MCPPayload{Server: server, Tool: tool, RawArguments: b.Input},
		}, nil
	}

	return Call{
		ToolName: b.Name,
		CallID:   b.ID,
		Payload:  FunctionPayload{RawArguments: b.Input},
	}, nil
}

func (r *Router) parseLocalShellCall(b Block) (Call, error) {
	callID := b.CallID
	if callID == "" {
		callID = b.ID
	}
	if callID == "" {
		return Call{}, errs.New(errs.Protocol, "local_shell_call missing both call_id and id")
	}
	return Call{
		ToolName: "local_shell",
		CallID:   callID,
		Payload: LocalShellPayload{Action: LocalShellAction{
			Command: b.Command,
			Env:     b.Env,
			Timeout: b.Timeout,
		}},
	}, nil
}

func (r *Router) parseCustomToolCall(b Block) (Call, error) {
	if b.ID == "" {
		return Call{}, errs.New(errs.Protocol, "custom_tool_call missing id")
	}
	if b.Name == "" {
		return Call{}, errs.New(errs.Protocol, "custom_tool_call missing name")
	}
	return Call{
		ToolName: b.Name,
		CallID:   b.ID,
		Payload:  CustomPayload{Name: b.Name, RawInput: b.RawInput},
	}, nil
}

// splitMCPName detects MCP-routed tool names: exactly one "/" splits
// into server/tool; zero or multiple "/" means a plain function call.
func splitMCPName(name string) (server, tool string, ok bool) {
	parts := strings.Split(name, "/")
	if len(parts) != 2 {
		return "", "", false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseBatch parses an ordered batch of blocks, preserving order.
// A block that fails to parse with a Protocol error aborts the whole
// batch, since Protocol errors are always Fatal.
func (r *Router) ParseBatch(blocks []Block) ([]Call, error) {
	calls := make([]Call, 0, len(blocks))
	for _, b := range blocks {
		call, err := r.ParseBlock(b)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}
