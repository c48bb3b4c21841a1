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

// LineEditHandler performs precise line-addressed edits (insert
// before/after, replace a span, delete) located by 1-based line number
// or anchor text.
type LineEditHandler struct{}

func NewLineEditHandler() *LineEditHandler { return &LineEditHandler{} }

func (h *LineEditHandler) Kind() tools.Kind { return tools.KindLineEdit }

func (h *LineEditHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type lineEditInput struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Line       int    `json:"line"`
	Anchor     string `json:"anchor"`
	Occurrence int    `json:"occurrence"`
	LineCount  int    `json:"line_count"`
	Text       string `json:"text"`
	DryRun     bool   `json:"dry_run"`
}

var lineEditModes = map[string]bool{
	"insert_before": true, "insert_after": true, "replace": true, "delete": true,
}

func normalizeTextBlock(text string) []string {
	if text == "" {
		return nil
	}
	lines := splitKeepNewlines(text)
	if len(lines) > 0 && !strings.HasSuffix(lines[len(lines)-1], "\n") {
		lines[len(lines)-1] += "\n"
	}
	return lines
}

func splitKeepNewlines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func locateLine(lines []string, anchor string, occurrence int) (int, error) {
	if occurrence < 1 {
		occurrence = 1
	}
	seen := 0
	for i, l := range lines {
		if strings.TrimSuffix(l, "\n") == anchor {
			seen++
			if seen == occurrence {
				return i, nil
			}
		}
	}
	return -1, errs.New(errs.NotFound, fmt.Sprintf("anchor occurrence %d not found", occurrence))
}

func (h *LineEditHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in lineEditInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	if strings.TrimSpace(in.Path) == "" {
		return fail(callID, "path is required")
	}
	if !lineEditModes[in.Mode] {
		return fail(callID, "mode must be one of insert_before, insert_after, replace, delete")
	}
	if in.Line == 0 && in.Anchor == "" {
		return fail(callID, "either line or anchor is required")
	}

	target := resolvePath(inv, in.Path)
	original, err := readFile(target)
	if err != nil {
		return nil, err
	}
	lines := splitKeepNewlines(original)

	idx := in.Line - 1
	if in.Anchor != "" {
		idx, err = locateLine(lines, in.Anchor, in.Occurrence)
		if err != nil {
			return fail(callID, err.Error())
		}
	}
	if idx < 0 || idx >= len(lines) {
		return fail(callID, "line out of range")
	}

	count := in.LineCount
	if count < 1 {
		count = 1
	}
	insertion := normalizeTextBlock(in.Text)

	var updatedLines []string
	switch in.Mode {
	case "insert_before":
		updatedLines = append(updatedLines, lines[:idx]...)
		updatedLines = append(updatedLines, insertion...)
		updatedLines = append(updatedLines, lines[idx:]...)
	case "insert_after":
		end := idx + 1
		updatedLines = append(updatedLines, lines[:end]...)
		updatedLines = append(updatedLines, insertion...)
		updatedLines = append(updatedLines, lines[end:]...)
	case "replace":
		end := idx + count
		if end > len(lines) {
			end = len(lines)
		}
		updatedLines = append(updatedLines, lines[:idx]...)
		updatedLines = append(updatedLines, insertion...)
		updatedLines = append(updatedLines, lines[end:]...)
	case "delete":
		end := idx + count
		if end > len(lines) {
			end = len(lines)
		}
		updatedLines = append(updatedLines, lines[:idx]...)
		updatedLines = append(updatedLines, lines[end:]...)
	}

	updated := strings.Join(updatedLines, "")
	if in.DryRun {
		return ok(callID, map[string]any{"ok": true, "action": in.Mode, "path": in.Path, "dry_run": true})
	}

	if err := inv.Policy.CanWritePath(target); err != nil {
		return nil, err
	}
	approved, approveErr := requestApproval(inv, fmt.Sprintf("line edit: %s", in.Path), policy.CapWriteFS)
	if approveErr != nil {
		return nil, errs.Wrap(errs.System, "approval flow failed", approveErr)
	}
	if !approved {
		return fail(callID, "line edit denied by policy")
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
		inv.Tracker.RecordEdit(target, "line_edit", tracker.ActionUpdate, ptr(original), ptr(updated), &tracker.LineRange{Start: idx + 1, End: idx + count})
	}
	return ok(callID, map[string]any{"ok": true, "action": in.Mode, "path": in.Path})
}
