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

// ApplyPatchHandler applies a V4A-style structured diff (Add, Update,
// Delete) to a single file.
type ApplyPatchHandler struct{}

func NewApplyPatchHandler() *ApplyPatchHandler { return &ApplyPatchHandler{} }

func (h *ApplyPatchHandler) Kind() tools.Kind { return tools.KindApplyPatch }

func (h *ApplyPatchHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type applyPatchInput struct {
	FilePath string `json:"file_path"`
	Patch    string `json:"patch"`
}

const (
	headerPrefix = "*** "
	fileMarker   = " File: "
)

func parsePatchHeader(patch string) (action, path string) {
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, headerPrefix) && strings.Contains(line, fileMarker) {
			rest := strings.SplitN(line[len(headerPrefix):], fileMarker, 2)
			if len(rest) == 2 {
				fields := strings.Fields(rest[0])
				if len(fields) > 0 {
					return fields[0], strings.TrimSpace(rest[1])
				}
			}
		}
	}
	return "", ""
}

func extractAddContent(patch string) string {
	var lines []string
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, headerPrefix) || strings.HasPrefix(line, "@@") {
			continue
		}
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "+ ") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}

type linePair struct{ old, new string }

func collectLineReplacements(patch string) []linePair {
	var oldLines, newLines []string
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "- "):
			oldLines = append(oldLines, line[2:])
		case strings.HasPrefix(line, "+ "):
			newLines = append(newLines, line[2:])
		}
	}
	n := len(oldLines)
	if len(newLines) < n {
		n = len(newLines)
	}
	pairs := make([]linePair, n)
	for i := 0; i < n; i++ {
		pairs[i] = linePair{old: oldLines[i], new: newLines[i]}
	}
	return pairs
}

func (h *ApplyPatchHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in applyPatchInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	filePath := strings.TrimSpace(in.FilePath)
	if filePath == "" || in.Patch == "" {
		return fail(callID, "missing 'file_path' or 'patch'")
	}

	action, _ := parsePatchHeader(in.Patch)
	target := resolvePath(inv, filePath)

	if err := inv.Policy.CanWritePath(target); err != nil {
		return nil, err
	}
	approved, err := requestApproval(inv, fmt.Sprintf("apply patch to: %s", filePath), policy.CapWriteFS)
	if err != nil {
		return nil, errs.Wrap(errs.System, "approval flow failed", err)
	}
	if !approved {
		return fail(callID, "patch application denied by policy")
	}

	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(target); err != nil {
			return nil, err
		}
		defer inv.Tracker.UnlockFile(target)
	}

	switch strings.ToLower(action) {
	case "add":
		content := extractAddContent(in.Patch)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, errs.Wrap(errs.System, "failed to create parent directories", err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return nil, errs.Wrap(errs.System, "failed to write file", err)
		}
		if inv.Tracker != nil {
			inv.Tracker.RecordEdit(target, "apply_patch", tracker.ActionCreate, nil, ptr(content), nil)
		}
		return ok(callID, map[string]any{"ok": true, "action": "add", "path": filePath})

	case "delete":
		old := contentOrNil(target)
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return nil, errs.Wrap(errs.System, "failed to delete file", err)
		}
		if inv.Tracker != nil {
			inv.Tracker.RecordEdit(target, "apply_patch", tracker.ActionDelete, old, nil, nil)
		}
		return ok(callID, map[string]any{"ok": true, "action": "delete", "path": filePath})

	case "update":
		old, readErr := readFile(target)
		if readErr != nil {
			return nil, readErr
		}

		pairs := collectLineReplacements(in.Patch)
		updated := old
		for _, pair := range pairs {
			if !strings.Contains(updated, pair.old) {
				return fail(callID, fmt.Sprintf("conflict: expected pre-image line not found in %s: %q", filePath, pair.old))
			}
			updated = strings.Replace(updated, pair.old, pair.new, 1)
		}
		if len(pairs) == 0 {
			updated = extractAddContent(in.Patch)
		}
		if updated == old {
			return fail(callID, fmt.Sprintf("conflict: update patch applied no change to %s", filePath))
		}

		if err := os.WriteFile(target, []byte(updated), 0o644); err != nil {
			return nil, errs.Wrap(errs.System, "failed to write file", err)
		}
		if inv.Tracker != nil {
			inv.Tracker.RecordEdit(target, "apply_patch", tracker.ActionUpdate, ptr(old), ptr(updated), nil)
		}
		return ok(callID, map[string]any{"ok": true, "action": "update", "path": filePath, "replacements": len(pairs)})

	default:
		return fail(callID, "patch header must declare Add, Update, or Delete File")
	}
}
