// Package handlers implements the archetype tool handlers: one
// Handler per tool family, each satisfying the capability-set
// contract. This file holds the helpers shared across those
// handlers: path resolution, payload decoding, approval prompts, and
// Output construction.
package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentcore/internal/errs"
	"agentcore/internal/policy"
	"agentcore/internal/tools"
)

// resolvePath joins a possibly-relative path against the invocation's
// cwd.
func resolvePath(inv tools.Invocation, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	base := inv.Cwd
	if base == "" {
		base = "."
	}
	return filepath.Join(base, path)
}

// decode unmarshals a FunctionPayload's raw arguments into dst,
// returning a Validation ToolError on malformed JSON.
func decode(p tools.Payload, dst any) error {
	fp, ok := p.(tools.FunctionPayload)
	if !ok {
		return errs.New(errs.Protocol, "handler received a non-function payload")
	}
	if len(fp.RawArguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(fp.RawArguments, dst); err != nil {
		return errs.Wrap(errs.Validation, "invalid tool arguments", err)
	}
	return nil
}

// ok builds a successful FunctionResult from any JSON-serializable
// payload, returned to the model as a structured JSON string.
func ok(callID string, payload any) (tools.Output, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.System, "failed to encode tool result", err)
	}
	return tools.FunctionResult{ID: callID, Content: string(raw), Success: true}, nil
}

// okMeta is ok with an attached Metadata map, for handlers that need
// to surface a signal (e.g. truncation) to the registry's telemetry
// without encoding it into the JSON content itself.
func okMeta(callID string, payload any, metadata map[string]any) (tools.Output, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.System, "failed to encode tool result", err)
	}
	return tools.FunctionResult{ID: callID, Content: string(raw), Success: true, Metadata: metadata}, nil
}

// okText builds a successful FunctionResult carrying plain text
// content (grep/web_search/shell-style tools where content is not a
// JSON envelope).
func okText(callID, content string) (tools.Output, error) {
	return tools.FunctionResult{ID: callID, Content: content, Success: true}, nil
}

// fail builds a RespondToModel-shaped FunctionResult: success=false
// but not propagated as a handler error, so the model sees a failure
// envelope it can react to rather than the turn aborting.
func fail(callID, content string) (tools.Output, error) {
	return tools.FunctionResult{ID: callID, Content: content, Success: false}, nil
}

// requestApproval consults the invocation's approval function when the
// policy requires it for the given capabilities. It never blocks on a
// held lock; the caller must not hold the tracker mutex when calling
// this.
func requestApproval(inv tools.Invocation, summary string, caps ...policy.Capability) (bool, error) {
	if !inv.Policy.RequiresApproval(caps...) {
		return true, nil
	}
	if inv.ApprovalFunc == nil {
		return false, nil
	}
	return inv.ApprovalFunc(summary)
}

// requestApprovalForced always consults the approval function,
// bypassing the policy's capability-based RequiresApproval gate. Used
// for calls that explicitly request elevated permissions, where the
// request itself must be confirmed regardless of what the ambient
// policy would otherwise require.
func requestApprovalForced(inv tools.Invocation, summary string) (bool, error) {
	if inv.ApprovalFunc == nil {
		return false, nil
	}
	return inv.ApprovalFunc(summary)
}

// readFile reads a file as UTF-8 text, returning a NotFound ToolError
// when it does not exist.
func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.New(errs.NotFound, fmt.Sprintf("file not found: %s", path))
		}
		return "", errs.Wrap(errs.System, "failed to read file", err)
	}
	return string(data), nil
}

// contentOrNil converts a missing-file read into a nil *string for
// tracker pre-image bookkeeping.
func contentOrNil(path string) *string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func ptr(s string) *string { return &s }

func pathWithinCwd(inv tools.Invocation, abs string) bool {
	if inv.Cwd == "" {
		return true
	}
	rel, err := filepath.Rel(inv.Cwd, abs)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}
