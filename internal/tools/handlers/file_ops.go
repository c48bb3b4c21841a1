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

// CreateFileHandler creates or ensures a file with the provided
// content, honoring an if-exists policy.
type CreateFileHandler struct{}

func NewCreateFileHandler() *CreateFileHandler { return &CreateFileHandler{} }

func (h *CreateFileHandler) Kind() tools.Kind { return tools.KindCreateFile }

func (h *CreateFileHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type createFileInput struct {
	Path          string `json:"path"`
	Content       string `json:"content"`
	IfExists      string `json:"if_exists"`
	CreateParents *bool  `json:"create_parents"`
	DryRun        bool   `json:"dry_run"`
}

var createFileIfExists = map[string]bool{"error": true, "overwrite": true, "skip": true}

func (h *CreateFileHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in createFileInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	path := strings.TrimSpace(in.Path)
	if path == "" {
		return fail(callID, "'path' is required")
	}
	policyName := strings.ToLower(strings.TrimSpace(in.IfExists))
	if policyName == "" {
		policyName = "error"
	}
	if !createFileIfExists[policyName] {
		return fail(callID, "invalid if_exists policy")
	}
	createParents := true
	if in.CreateParents != nil {
		createParents = *in.CreateParents
	}

	target := resolvePath(inv, path)
	_, statErr := os.Stat(target)
	exists := statErr == nil
	if exists {
		switch policyName {
		case "error":
			return fail(callID, fmt.Sprintf("file already exists: %s", path))
		case "skip":
			return ok(callID, map[string]any{"ok": true, "action": "skip", "path": path})
		}
	}

	if in.DryRun {
		return ok(callID, map[string]any{"ok": true, "action": "create", "path": path, "dry_run": true})
	}

	if err := inv.Policy.CanWritePath(target); err != nil {
		return nil, err
	}
	approved, approveErr := requestApproval(inv, fmt.Sprintf("create file: %s", path), policy.CapWriteFS)
	if approveErr != nil {
		return nil, errs.Wrap(errs.System, "approval flow failed", approveErr)
	}
	if !approved {
		return fail(callID, "file creation denied by policy")
	}

	if createParents {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, errs.Wrap(errs.System, "failed to create parent directories", err)
		}
	}
	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(target); err != nil {
			return nil, err
		}
		defer inv.Tracker.UnlockFile(target)
	}
	if err := os.WriteFile(target, []byte(in.Content), 0o644); err != nil {
		return nil, errs.Wrap(errs.System, "failed to write file", err)
	}
	if inv.Tracker != nil {
		inv.Tracker.RecordEdit(target, "create_file", tracker.ActionCreate, nil, ptr(in.Content), nil)
	}
	return ok(callID, map[string]any{"ok": true, "action": "create", "path": path})
}

// DeleteFileHandler deletes a file, failing gracefully if it is
// missing or a directory.
type DeleteFileHandler struct{}

func NewDeleteFileHandler() *DeleteFileHandler { return &DeleteFileHandler{} }

func (h *DeleteFileHandler) Kind() tools.Kind { return tools.KindDeleteFile }

func (h *DeleteFileHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type deleteFileInput struct {
	Path string `json:"path"`
}

func (h *DeleteFileHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in deleteFileInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	path := strings.TrimSpace(in.Path)
	if path == "" {
		return fail(callID, "path is required")
	}
	target := resolvePath(inv, path)

	info, statErr := os.Stat(target)
	if statErr == nil && info.IsDir() {
		return ok(callID, map[string]any{"ok": false, "error": "path is a directory", "path": path})
	}
	if os.IsNotExist(statErr) {
		return ok(callID, map[string]any{"ok": true, "action": "noop", "path": path})
	}

	if err := inv.Policy.CanWritePath(target); err != nil {
		return nil, err
	}
	approved, approveErr := requestApproval(inv, fmt.Sprintf("delete file: %s", path), policy.CapWriteFS)
	if approveErr != nil {
		return nil, errs.Wrap(errs.System, "approval flow failed", approveErr)
	}
	if !approved {
		return fail(callID, "delete denied by policy")
	}

	old := contentOrNil(target)
	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(target); err != nil {
			return nil, err
		}
		defer inv.Tracker.UnlockFile(target)
	}
	if err := os.Remove(target); err != nil {
		return nil, errs.Wrap(errs.System, "failed to delete file", err)
	}
	if inv.Tracker != nil {
		inv.Tracker.RecordEdit(target, "delete_file", tracker.ActionDelete, old, nil, nil)
	}
	return ok(callID, map[string]any{"ok": true, "action": "delete", "path": path})
}

// RenameFileHandler renames or moves a file.
type RenameFileHandler struct{}

func NewRenameFileHandler() *RenameFileHandler { return &RenameFileHandler{} }

func (h *RenameFileHandler) Kind() tools.Kind { return tools.KindRenameFile }

func (h *RenameFileHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type renameFileInput struct {
	SourcePath       string `json:"source_path"`
	DestPath         string `json:"dest_path"`
	Overwrite        bool   `json:"overwrite"`
	CreateDestParent *bool  `json:"create_dest_parent"`
	DryRun           bool   `json:"dry_run"`
}

func (h *RenameFileHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in renameFileInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	source := strings.TrimSpace(in.SourcePath)
	dest := strings.TrimSpace(in.DestPath)
	if source == "" || dest == "" {
		return fail(callID, "'source_path' and 'dest_path' are required")
	}

	sourceTarget := resolvePath(inv, source)
	destTarget := resolvePath(inv, dest)

	if _, err := os.Stat(sourceTarget); os.IsNotExist(err) {
		return fail(callID, fmt.Sprintf("source does not exist: %s", source))
	}
	if _, err := os.Stat(destTarget); err == nil && !in.Overwrite {
		return fail(callID, fmt.Sprintf("destination already exists: %s", dest))
	}

	if in.DryRun {
		return ok(callID, map[string]any{"ok": true, "action": "rename", "source_path": source, "dest_path": dest, "dry_run": true})
	}

	if err := inv.Policy.CanWritePath(destTarget); err != nil {
		return nil, err
	}
	approved, approveErr := requestApproval(inv, fmt.Sprintf("rename %s to %s", source, dest), policy.CapWriteFS)
	if approveErr != nil {
		return nil, errs.Wrap(errs.System, "approval flow failed", approveErr)
	}
	if !approved {
		return fail(callID, "rename denied by policy")
	}

	createParents := true
	if in.CreateDestParent != nil {
		createParents = *in.CreateDestParent
	}
	if createParents {
		if err := os.MkdirAll(filepath.Dir(destTarget), 0o755); err != nil {
			return nil, errs.Wrap(errs.System, "failed to create destination parent directories", err)
		}
	}

	old := contentOrNil(sourceTarget)
	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(sourceTarget); err != nil {
			return nil, err
		}
		defer inv.Tracker.UnlockFile(sourceTarget)
	}
	if err := os.Rename(sourceTarget, destTarget); err != nil {
		return nil, errs.Wrap(errs.System, "failed to rename file", err)
	}
	if inv.Tracker != nil {
		inv.Tracker.RecordEdit(sourceTarget, "rename_file", tracker.ActionDelete, old, nil, nil)
		inv.Tracker.RecordEdit(destTarget, "rename_file", tracker.ActionCreate, nil, old, nil)
	}
	return ok(callID, map[string]any{"ok": true, "action": "rename", "source_path": source, "dest_path": dest})
}
