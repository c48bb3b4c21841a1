package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentcore/internal/errs"
	"agentcore/internal/policy"
	"agentcore/internal/tools"
	"agentcore/internal/tracker"
)

// EditHandler replaces every exact occurrence of old_str with new_str
// in a file, creating it when old_str is empty and the file is
// missing.
type EditHandler struct{}

func NewEditHandler() *EditHandler { return &EditHandler{} }

func (h *EditHandler) Kind() tools.Kind { return tools.KindEdit }

func (h *EditHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type editInput struct {
	Path   string `json:"path"`
	OldStr string `json:"old_str"`
	NewStr string `json:"new_str"`
	DryRun bool   `json:"dry_run"`
}

type editOutput struct {
	OK           bool   `json:"ok"`
	Action       string `json:"action"`
	Path         string `json:"path"`
	DryRun       bool   `json:"dry_run,omitempty"`
	Replacements int    `json:"replacements,omitempty"`
	Warning      string `json:"warning,omitempty"`
}

func (h *EditHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in editInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	if strings.TrimSpace(in.Path) == "" {
		return fail(callID, "path is required")
	}
	if in.OldStr == in.NewStr {
		return fail(callID, "old_str and new_str must be different")
	}

	target := resolvePath(inv, in.Path)
	if err := inv.Policy.CanWritePath(target); err != nil {
		return nil, err
	}
	approved, err := requestApproval(inv, fmt.Sprintf("edit file: %s", in.Path), policy.CapWriteFS)
	if err != nil {
		return nil, errs.Wrap(errs.System, "approval flow failed", err)
	}
	if !approved {
		return fail(callID, "edit denied by policy")
	}

	_, statErr := os.Stat(target)
	missing := os.IsNotExist(statErr)

	if missing && in.OldStr == "" {
		if in.DryRun {
			return ok(callID, editOutput{OK: true, Action: "create", Path: in.Path, DryRun: true})
		}
		if err := h.write(inv, target, nil, in.NewStr); err != nil {
			return nil, err
		}
		return ok(callID, editOutput{OK: true, Action: "create", Path: in.Path})
	}
	if missing {
		return fail(callID, fmt.Sprintf("file not found: %s", in.Path))
	}

	content, err := readFile(target)
	if err != nil {
		return nil, err
	}
	count := strings.Count(content, in.OldStr)
	if count == 0 {
		return fail(callID, fmt.Sprintf("old_str not found in %s", in.Path))
	}

	updated := strings.ReplaceAll(content, in.OldStr, in.NewStr)
	out := editOutput{OK: true, Action: "update", Path: in.Path, Replacements: count}
	if count > 1 {
		out.Warning = fmt.Sprintf("replaced %d occurrences", count)
	}
	if in.DryRun {
		out.DryRun = true
		return ok(callID, out)
	}

	if err := h.write(inv, target, &content, updated); err != nil {
		return nil, err
	}
	return ok(callID, out)
}

func (h *EditHandler) write(inv tools.Invocation, target string, oldContent *string, newContent string) error {
	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(target); err != nil {
			return err
		}
		defer inv.Tracker.UnlockFile(target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.Wrap(errs.System, "failed to create parent directories", err)
	}
	if err := os.WriteFile(target, []byte(newContent), 0o644); err != nil {
		return errs.Wrap(errs.System, "failed to write file", err)
	}
	action := tracker.ActionUpdate
	if oldContent == nil {
		action = tracker.ActionCreate
	}
	if inv.Tracker != nil {
		inv.Tracker.RecordEdit(target, "edit_file", action, oldContent, ptr(newContent), nil)
	}
	return nil
}
