// Package tools implements the dispatch pipeline: tool specs, typed
// call payloads, the handler registry, and the model-response
// router, built around a capability-set handler contract rather than
// a single flat Tool interface.
package tools

import "encoding/json"

// PayloadKind tags a ToolPayload variant. Routing depends on this tag
// alone, never on string inspection outside the router.
type PayloadKind string

const (
	PayloadFunction    PayloadKind = "function"
	PayloadUnifiedExec PayloadKind = "unified_exec"
	PayloadMcp         PayloadKind = "mcp"
	PayloadLocalShell  PayloadKind = "local_shell"
	PayloadCustom      PayloadKind = "custom"
)

// Payload is the tagged-variant tool call payload. Raw arguments stay
// unparsed until a handler decodes them, keeping the router
// schema-agnostic.
type Payload interface {
	Kind() PayloadKind
}

// FunctionPayload is a modern tool_use call against a registered
// function-style tool.
type FunctionPayload struct {
	RawArguments json.RawMessage
}

func (FunctionPayload) Kind() PayloadKind { return PayloadFunction }

// UnifiedExecPayload is a tool_use call against the unified exec tool
// family (shell execution funneled through one schema).
type UnifiedExecPayload struct {
	RawArguments json.RawMessage
}

func (UnifiedExecPayload) Kind() PayloadKind { return PayloadUnifiedExec }

// MCPPayload targets a tool exposed by a pooled MCP server.
type MCPPayload struct {
	Server       string
	Tool         string
	RawArguments json.RawMessage
}

func (MCPPayload) Kind() PayloadKind { return PayloadMcp }

// LocalShellAction mirrors the legacy local_shell_call action shape.
type LocalShellAction struct {
	Command []string
	Env     map[string]string
	Timeout *float64
}

// LocalShellPayload is the legacy local_shell_call block shape.
type LocalShellPayload struct {
	Action LocalShellAction
}

func (LocalShellPayload) Kind() PayloadKind { return PayloadLocalShell }

// CustomPayload is a custom_tool_call block carrying a raw, non-JSON
// input string (the model's custom-tool wire format).
type CustomPayload struct {
	Name     string
	RawInput string
}

func (CustomPayload) Kind() PayloadKind { return PayloadCustom }
