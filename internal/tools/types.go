package tools

import (
	"context"
	"time"

	"agentcore/internal/mcp"
	"agentcore/internal/policy"
	"agentcore/internal/tracker"
)

// Call is a single model-requested tool invocation. call_id is
// server-issued and opaque; no two in-flight calls share one.
type Call struct {
	ToolName string
	CallID   string
	Payload  Payload
}

// MCPPool is the subset of the Context Session's MCP pool a handler
// needs. Defined here (rather than importing internal/session) to
// keep tools free of a dependency on the session package.
type MCPPool interface {
	GetClient(ctx context.Context, server string) (mcp.Client, error)
	MarkUnhealthy(server string)
}

// Invocation is the short-lived context passed to a handler. It does
// not outlive the Handle call.
type Invocation struct {
	Call Call

	Cwd          string
	Env          map[string]string
	Policy       policy.Policy
	ApprovalFunc policy.ApprovalFunc
	Tracker      *tracker.Tracker
	MCPPool      MCPPool
	SubID        string
	TurnID       int

	MaxOutputBytes int
	MaxResults     int
}

// OutputKind classifies a tool-output variant.
type OutputKind string

const (
	OutputFunction OutputKind = "function_result"
	OutputMcp      OutputKind = "mcp_result"
)

// Output is the tagged-variant result of a handler call, convertible
// to a wire tool-result block carrying the call's CallID.
type Output interface {
	Kind() OutputKind
	CallID() string
}

// FunctionResult is the output of a function/shell/file-family
// handler.
type FunctionResult struct {
	ID       string
	Content  string
	Success  bool
	Metadata map[string]any
}

func (f FunctionResult) Kind() OutputKind { return OutputFunction }
func (f FunctionResult) CallID() string   { return f.ID }

// McpResult is the output of an MCP handler.
type McpResult struct {
	ID      string
	Content mcp.CallToolResult
}

func (m McpResult) Kind() OutputKind { return OutputMcp }
func (m McpResult) CallID() string   { return m.ID }

// WireResult is the tool_result block the core emits back to the
// model.
type WireResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// ToWire converts an Output to its wire shape.
func ToWire(o Output, isError bool) WireResult {
	switch v := o.(type) {
	case FunctionResult:
		return WireResult{ToolUseID: v.ID, Content: v.Content, IsError: isError || !v.Success}
	case McpResult:
		text := ""
		for _, block := range v.Content.Content {
			text += block.Text
		}
		return WireResult{ToolUseID: v.ID, Content: text, IsError: isError || v.Content.IsError}
	default:
		return WireResult{ToolUseID: o.CallID(), IsError: true, Content: "unknown output variant"}
	}
}

// Kind classifies a handler's capability family. The registry selects
// handlers by tool name and takes supports_parallel from the Spec;
// neither it nor the router reads Kind.
type Kind string

const (
	KindShell          Kind = "shell"
	KindRead           Kind = "read"
	KindEdit           Kind = "edit"
	KindApplyPatch     Kind = "apply_patch"
	KindCreateFile     Kind = "create_file"
	KindDeleteFile     Kind = "delete_file"
	KindRenameFile     Kind = "rename_file"
	KindLineEdit       Kind = "line_edit"
	KindTemplateBlock  Kind = "template_block"
	KindGrep           Kind = "grep"
	KindListFiles      Kind = "list_files"
	KindGlobFileSearch Kind = "glob_file_search"
	KindCodebaseSearch Kind = "codebase_search"
	KindTodoWrite      Kind = "todo_write"
	KindWebSearch      Kind = "web_search"
	KindMcp            Kind = "mcp"
)

// Handler is the capability-set contract every tool family
// implements. Stateless and reentrant; any per-call state lives in
// the Invocation.
type Handler interface {
	Kind() Kind
	MatchesKind(p Payload) bool
	Handle(ctx context.Context, inv Invocation) (Output, error)
}

// EffectiveTimeout resolves the effective timeout for a handler call
// given a handler-local default and the active execution policy's cap.
func EffectiveTimeout(inv Invocation, handlerTimeout time.Duration) time.Duration {
	return inv.Policy.EffectiveTimeout(handlerTimeout)
}
