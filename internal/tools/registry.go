package tools

import (
	"context"
	"sort"
	"time"

	"agentcore/internal/errs"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

// TelemetryFunc receives one dispatch's telemetry fields, independent
// of how the host chooses to persist it.
type TelemetryFunc func(Event)

// Event is the telemetry record emitted once per dispatch.
type Event struct {
	Timestamp   time.Time
	ToolName    string
	CallID      string
	TurnID      int
	Duration    time.Duration
	Success     bool
	ErrorKind   string
	InputBytes  int
	OutputBytes int
	Truncated   bool
}

type registration struct {
	spec    Spec
	handler Handler
}

// Registry maps tool names to handlers with uniform dispatch,
// telemetry, and error classification. Entries are name-to-
// (spec,handler) pairs, since one Handler may serve several tool
// names (e.g. the MCP handler serves every "server/tool" name).
type Registry struct {
	entries   map[string]registration
	mcp       Handler
	Telemetry TelemetryFunc
}

// RegisterMCP installs the handler consulted for any call whose
// payload is MCPPayload and whose "server/tool" name has no direct
// registration: MCP tool names are not individually pre-registered,
// since the server owns its own tool list.
func (r *Registry) RegisterMCP(handler Handler) {
	r.mcp = handler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]registration{}}
}

// Register associates a tool name with its spec and handler.
// Duplicate registrations overwrite the prior entry; last
// registration wins.
func (r *Registry) Register(spec Spec, handler Handler) {
	r.entries[spec.Name] = registration{spec: spec, handler: handler}
}

// Names returns sorted, registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SpecFor returns the spec registered under name.
func (r *Registry) SpecFor(name string) (Spec, bool) {
	reg, ok := r.entries[name]
	return reg.spec, ok
}

// SupportsParallel looks up whether name supports parallel execution,
// defaulting to false for unknown names.
func (r *Registry) SupportsParallel(name string) bool {
	reg, ok := r.entries[name]
	if !ok {
		return false
	}
	return reg.spec.SupportsParallel
}

// OpenAITools converts registered specs into the model-facing tool
// schema list, normalizing each schema first.
func (r *Registry) OpenAITools() []openai.ChatCompletionToolUnionParam {
	var defs []openai.ChatCompletionToolUnionParam
	for _, name := range r.Names() {
		spec := r.entries[name].spec
		defs = append(defs, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        spec.Name,
					Description: param.NewOpt(spec.Description),
					Parameters:  spec.NormalizedSchema(),
					Strict:      param.NewOpt(true),
				},
			},
		})
	}
	return defs
}

// Dispatch is the registry's single entry point. A non-nil returned
// error is always Fatal; the caller must abort the turn. Otherwise
// the WireResult carries IsError for handler-reported, model-visible
// failures ("RespondToModel").
func (r *Registry) Dispatch(ctx context.Context, inv Invocation) (WireResult, error) {
	start := time.Now()
	callID := inv.Call.CallID

	handler := r.mcp
	reg, ok := r.entries[inv.Call.ToolName]
	if ok {
		handler = reg.handler
	} else if _, isMCP := inv.Call.Payload.(MCPPayload); !isMCP || handler == nil {
		r.emit(inv, start, false, string(errs.NotFound), 0, false)
		return WireResult{ToolUseID: callID, IsError: true, Content: "tool not found: " + inv.Call.ToolName}, nil
	}

	if !handler.MatchesKind(inv.Call.Payload) {
		r.emit(inv, start, false, string(errs.Protocol), 0, false)
		return WireResult{}, errs.New(errs.Protocol, "payload kind does not match handler for "+inv.Call.ToolName)
	}

	output, err := handler.Handle(ctx, inv)
	duration := time.Since(start)

	if err != nil {
		toolErr, isToolErr := errs.As(err)
		if !isToolErr {
			toolErr = errs.Wrap(errs.System, "unclassified handler error", err)
		}
		r.emit(inv, start, false, string(toolErr.Kind), 0, false)
		if toolErr.Kind.Fatal() {
			return WireResult{}, toolErr
		}
		return WireResult{ToolUseID: callID, IsError: true, Content: toolErr.Error()}, nil
	}

	wire := ToWire(output, false)
	r.emit(inv, start, !wire.IsError, "", len(wire.Content), truncatedFlag(output))
	_ = duration
	return wire, nil
}

// truncatedFlag reads the handler-reported truncation marker off a
// FunctionResult's metadata, if present. MCP results carry no such
// signal from this side of the wire.
func truncatedFlag(o Output) bool {
	fr, ok := o.(FunctionResult)
	if !ok || fr.Metadata == nil {
		return false
	}
	truncated, _ := fr.Metadata["truncated"].(bool)
	return truncated
}

func (r *Registry) emit(inv Invocation, start time.Time, success bool, errorKind string, outputBytes int, truncated bool) {
	if r.Telemetry == nil {
		return
	}
	r.Telemetry(Event{
		Timestamp:   start,
		ToolName:    inv.Call.ToolName,
		CallID:      inv.Call.CallID,
		TurnID:      inv.TurnID,
		Duration:    time.Since(start),
		Success:     success,
		ErrorKind:   errorKind,
		OutputBytes: outputBytes,
		Truncated:   truncated,
	})
}
