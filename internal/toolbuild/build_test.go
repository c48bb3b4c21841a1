package toolbuild

import (
	"context"
	"testing"

	"agentcore/internal/tools"
)

func TestBuildRegistersCoreHandlersWithoutOptionalExtras(t *testing.T) {
	reg := Build(RegistryOptions{})

	want := map[string]bool{
		"shell":            false,
		"read_file":        true,
		"edit_file":        false,
		"apply_patch":      false,
		"create_file":      false,
		"delete_file":      false,
		"rename_file":      false,
		"line_edit":        false,
		"template_block":   false,
		"grep":             true,
		"list_files":       true,
		"glob_file_search": true,
		"codebase_search":  true,
		"todo_write":       false,
	}

	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d registered tools, got %d: %v", len(want), len(got), got)
	}
	for name, wantParallel := range want {
		spec, ok := reg.SpecFor(name)
		if !ok {
			t.Fatalf("expected %q to be registered", name)
		}
		if spec.SupportsParallel != wantParallel {
			t.Errorf("%q: expected SupportsParallel=%v, got %v", name, wantParallel, spec.SupportsParallel)
		}
		if reg.SupportsParallel(name) != wantParallel {
			t.Errorf("%q: Registry.SupportsParallel disagrees with spec", name)
		}
	}
}

func TestBuildWithExaKeyRegistersWebSearch(t *testing.T) {
	reg := Build(RegistryOptions{ExaAPIKey: "key"})
	if _, ok := reg.SpecFor("web_search"); !ok {
		t.Fatalf("expected web_search to be registered when ExaAPIKey is set")
	}
	if !reg.SupportsParallel("web_search") {
		t.Fatalf("expected web_search to support parallel execution")
	}
}

func TestBuildWithoutExaKeyOmitsWebSearch(t *testing.T) {
	reg := Build(RegistryOptions{})
	if _, ok := reg.SpecFor("web_search"); ok {
		t.Fatalf("expected web_search to be absent without an Exa API key")
	}
}

func TestBuildWithMCPEnabledRoutesUnregisteredNamesToMCPHandler(t *testing.T) {
	reg := Build(RegistryOptions{EnableMCP: true})
	wire, err := reg.Dispatch(context.Background(), tools.Invocation{
		Call: tools.Call{ToolName: "somehow/not/a/tool", CallID: "c1", Payload: tools.MCPPayload{Server: "somehow", Tool: "not/a/tool"}},
	})
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if wire.Content != "session does not support MCP clients" {
		t.Fatalf("expected MCP handler to run without a pool, got: %+v", wire)
	}
}

func TestBuildWithoutMCPEnabledTreatsMCPPayloadAsNotFound(t *testing.T) {
	reg := Build(RegistryOptions{})
	wire, err := reg.Dispatch(context.Background(), tools.Invocation{
		Call: tools.Call{ToolName: "somehow/not/a/tool", CallID: "c1", Payload: tools.MCPPayload{Server: "somehow", Tool: "not/a/tool"}},
	})
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if !wire.IsError {
		t.Fatalf("expected tool-not-found error when MCP is disabled")
	}
}

func TestBuildEverySchemaIsNonNil(t *testing.T) {
	reg := Build(RegistryOptions{ExaAPIKey: "key"})
	for _, name := range reg.Names() {
		spec, _ := reg.SpecFor(name)
		if spec.Schema == nil {
			t.Errorf("%q: expected a non-nil schema", name)
		}
	}
}
