package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"agentcore/internal/errs"
	"agentcore/internal/policy"
	"agentcore/internal/tools"
	"agentcore/internal/tracker"
)

// TemplateBlockHandler inserts or replaces a block of text anchored to
// a marker line, with an optional pre-image check against
// expected_block before mutating, following the same anchor+pre-image
// pattern as the line-edit and exact-replace handlers.
type TemplateBlockHandler struct{}

func NewTemplateBlockHandler() *TemplateBlockHandler { return &TemplateBlockHandler{} }

func (h *TemplateBlockHandler) Kind() tools.Kind { return tools.KindTemplateBlock }

func (h *TemplateBlockHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type templateBlockInput struct {
	Path          string `json:"path"`
	Anchor        string `json:"anchor"`
	Mode          string `json:"mode"` // insert_after | replace_block
	Block         string `json:"block"`
	ExpectedBlock string `json:"expected_block"`
	DryRun        bool   `json:"dry_run"`
}

func (h *TemplateBlockHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in templateBlockInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	if strings.TrimSpace(in.Path) == "" || strings.TrimSpace(in.Anchor) == "" {
		return fail(callID, "path and anchor are required")
	}
	if in.Mode != "insert_after" && in.Mode != "replace_block" {
		return fail(callID, "mode must be insert_after or replace_block")
	}

	target := resolvePath(inv, in.Path)
	original, err := readFile(target)
	if err != nil {
		return nil, err
	}

	anchorIdx := strings.Index(original, in.Anchor)
	if anchorIdx < 0 {
		return fail(callID, "anchor not found in file")
	}

	var updated string
	switch in.Mode {
	case "insert_after":
		insertAt := anchorIdx + len(in.Anchor)
		updated = original[:insertAt] + "\n" + in.Block + original[insertAt:]
	case "replace_block":
		start := anchorIdx + len(in.Anchor)
		end := strings.Index(original[start:], in.Anchor)
		if end < 0 {
			return fail(callID, "matching closing anchor not found for replace_block")
		}
		end += start
		existing := strings.TrimSpace(original[start:end])
		if in.ExpectedBlock != "" && existing != strings.TrimSpace(in.ExpectedBlock) {
			return fail(callID, "expected_block does not match current file contents")
		}
		updated = original[:start] + "\n" + in.Block + "\n" + original[end:]
	}

	if in.DryRun {
		return ok(callID, map[string]any{"ok": true, "action": in.Mode, "path": in.Path, "dry_run": true})
	}

	if err := inv.Policy.CanWritePath(target); err != nil {
		return nil, err
	}
	approved, approveErr := requestApproval(inv, fmt.Sprintf("template block edit: %s", in.Path), policy.CapWriteFS)
	if approveErr != nil {
		return nil, errs.Wrap(errs.System, "approval flow failed", approveErr)
	}
	if !approved {
		return fail(callID, "template block edit denied by policy")
	}

	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(target); err != nil {
			return nil, err
		}
		defer inv.Tracker.UnlockFile(target)
	}
	if err := os.WriteFile(target, []byte(updated), 0o644); err != nil {
		return nil, errs.Wrap(errs.System, "failed to write file", err)
	}
	if inv.Tracker != nil {
		inv.Tracker.RecordEdit(target, "template_block", tracker.ActionUpdate, ptr(original), ptr(updated), nil)
	}
	return ok(callID, map[string]any{"ok": true, "action": in.Mode, "path": in.Path})
}
