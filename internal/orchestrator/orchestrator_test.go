package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"agentcore/internal/config"
	"agentcore/internal/events"
	"agentcore/internal/llm"
	"agentcore/internal/policy"
	"agentcore/internal/repo"
	"agentcore/internal/session"
	"agentcore/internal/tools"

	"go.uber.org/zap"
)

// fakeClient scripts a fixed sequence of Create responses: one tool
// call, then a final answer with none. Stream is not exercised since
// tests run with cfg.JSON true to skip the streaming path.
type fakeClient struct {
	responses []llm.Response
	calls     int
}

func (f *fakeClient) Create(ctx context.Context, req llm.Request) (llm.Response, error) {
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func (f *fakeClient) Stream(ctx context.Context, req llm.Request, onDelta func(string)) (llm.Response, error) {
	return llm.Response{}, nil
}

// echoHandler is a minimal Handler that echoes its input back.
type echoHandler struct{}

func (echoHandler) Kind() tools.Kind { return tools.KindRead }
func (echoHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}
func (echoHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	return tools.FunctionResult{ID: inv.Call.CallID, Content: "echoed", Success: true}, nil
}

func testConfig() config.Config {
	return config.Config{
		Model:     "test-model",
		MaxSteps:  4,
		JSON:      true,
		NoHistory: true,
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestOrchestrator(client *fakeClient, registry *tools.Registry) *Orchestrator {
	sess := session.New(session.DefaultCompactionConfig(), 0)
	pol := policy.New("", "", nil, nil, 0, nil)
	return New(client, registry, sess, nil, nil, testLogger(), testConfig(), pol)
}

func TestRunReturnsFinalAnswerWhenNoToolCalls(t *testing.T) {
	reg := tools.NewRegistry()
	client := &fakeClient{responses: []llm.Response{{Content: "all done"}}}
	orc := newTestOrchestrator(client, reg)

	result, err := orc.Run(context.Background(), "what is up", "/repo", repo.RepoContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "success" {
		t.Fatalf("expected success, got %q", result.Status)
	}
	if result.FinalAnswer != "all done" {
		t.Fatalf("unexpected final answer: %q", result.FinalAnswer)
	}
	if result.StepsUsed != 1 {
		t.Fatalf("expected 1 step, got %d", result.StepsUsed)
	}
}

func TestRunDispatchesToolCallThenReturnsFinalAnswer(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Spec{Name: "read_file", SupportsParallel: true}, echoHandler{})

	client := &fakeClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)}}},
		{Content: "read the file"},
	}}
	orc := newTestOrchestrator(client, reg)

	var gotEvents []events.Type

	result, err := orc.Run(context.Background(), "read a.go", "/repo", repo.RepoContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "success" {
		t.Fatalf("expected success, got %q", result.Status)
	}
	if result.FinalAnswer != "read the file" {
		t.Fatalf("unexpected final answer: %q", result.FinalAnswer)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].ToolName != "read_file" {
		t.Fatalf("expected one recorded read_file call, got %+v", result.ToolCalls)
	}
	if result.ToolCalls[0].Status != "success" {
		t.Fatalf("expected successful tool call status, got %q", result.ToolCalls[0].Status)
	}
	if result.StepsUsed != 2 {
		t.Fatalf("expected 2 steps, got %d", result.StepsUsed)
	}

	for _, ev := range result.Events {
		gotEvents = append(gotEvents, ev.Type)
	}
	if !containsType(gotEvents, events.ToolCallStarted) || !containsType(gotEvents, events.ToolCallFinished) {
		t.Fatalf("expected tool call lifecycle events, got %v", gotEvents)
	}
}

func TestRunStopsAtMaxStepsWithPartialStatus(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Spec{Name: "read_file", SupportsParallel: true}, echoHandler{})

	var responses []llm.Response
	for i := 0; i < 4; i++ {
		responses = append(responses, llm.Response{ToolCalls: []llm.ToolCall{{ID: "call_x", Name: "read_file", Arguments: json.RawMessage(`{}`)}}})
	}
	client := &fakeClient{responses: responses}
	orc := newTestOrchestrator(client, reg)
	orc.cfg.MaxSteps = 2

	result, err := orc.Run(context.Background(), "keep going forever", "/repo", repo.RepoContext{})
	if err == nil {
		t.Fatalf("expected an error when max steps is exhausted")
	}
	if result.Status != "partial" {
		t.Fatalf("expected partial status, got %q", result.Status)
	}
	if result.StepsUsed != 2 {
		t.Fatalf("expected StepsUsed to equal MaxSteps (2), got %d", result.StepsUsed)
	}
}

func TestRunFailsFastOnUnparsableToolBlock(t *testing.T) {
	reg := tools.NewRegistry()
	client := &fakeClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "", Name: "read_file", Arguments: json.RawMessage(`{}`)}}},
	}}
	orc := newTestOrchestrator(client, reg)

	result, err := orc.Run(context.Background(), "break the router", "/repo", repo.RepoContext{})
	if err == nil {
		t.Fatalf("expected an error for a tool_use block missing an id")
	}
	if result.Status != "failure" {
		t.Fatalf("expected failure status, got %q", result.Status)
	}
}

func TestRunRecordsToolTelemetrySpans(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Spec{Name: "read_file", SupportsParallel: true}, echoHandler{})

	client := &fakeClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)}}},
		{Content: "read the file"},
	}}
	orc := newTestOrchestrator(client, reg)

	result, err := orc.Run(context.Background(), "read a.go", "/repo", repo.RepoContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, span := range result.Telemetry {
		if span.Name == "tool_call" && span.Attributes["tool_name"] == "read_file" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a tool_call telemetry span for read_file, got %+v", result.Telemetry)
	}
}

func containsType(types []events.Type, want events.Type) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
