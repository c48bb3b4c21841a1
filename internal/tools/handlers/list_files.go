package handlers

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agentcore/internal/errs"
	"agentcore/internal/repo"
	"agentcore/internal/tools"
)

// ListFilesHandler walks a directory depth-bounded and returns entries
// sorted by name or modification time.
type ListFilesHandler struct{}

func NewListFilesHandler() *ListFilesHandler { return &ListFilesHandler{} }

func (h *ListFilesHandler) Kind() tools.Kind { return tools.KindListFiles }

func (h *ListFilesHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type listFilesInput struct {
	TargetDirectory string `json:"target_directory"`
	MaxDepth        int    `json:"max_depth"`
	SortBy          string `json:"sort_by"`  // name | mtime
	SortOrder       string `json:"sort_order"` // asc | desc
	HeadLimit       int    `json:"head_limit"`
}

type fileEntry struct {
	Path    string `json:"path"`
	IsDir   bool   `json:"is_dir"`
	ModTime int64  `json:"mod_time"`
}

func (h *ListFilesHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in listFilesInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	root := inv.Cwd
	if in.TargetDirectory != "" {
		root = resolvePath(inv, in.TargetDirectory)
	}
	if root == "" {
		root = "."
	}

	var entries []fileEntry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		if repo.IsDenylisted(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if in.MaxDepth > 0 && strings.Count(rel, string(filepath.Separator))+1 > in.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, statErr := d.Info()
		var mod int64
		if statErr == nil {
			mod = info.ModTime().Unix()
		}
		entries = append(entries, fileEntry{Path: rel, IsDir: d.IsDir(), ModTime: mod})
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.System, "failed to list files", err)
	}

	sortEntries(entries, in.SortBy, in.SortOrder)
	if in.HeadLimit > 0 && len(entries) > in.HeadLimit {
		entries = entries[:in.HeadLimit]
	}
	return ok(callID, map[string]any{"entries": entries})
}

func sortEntries(entries []fileEntry, sortBy, order string) {
	desc := order == "desc"
	switch sortBy {
	case "mtime":
		sort.Slice(entries, func(i, j int) bool {
			if desc {
				return entries[i].ModTime > entries[j].ModTime
			}
			return entries[i].ModTime < entries[j].ModTime
		})
	default:
		sort.Slice(entries, func(i, j int) bool {
			if desc {
				return entries[i].Path > entries[j].Path
			}
			return entries[i].Path < entries[j].Path
		})
	}
}

// GlobFileSearchHandler finds files by glob pattern, auto-prepending
// "**/" and sorting matches by modification time, newest first.
type GlobFileSearchHandler struct{}

func NewGlobFileSearchHandler() *GlobFileSearchHandler { return &GlobFileSearchHandler{} }

func (h *GlobFileSearchHandler) Kind() tools.Kind { return tools.KindGlobFileSearch }

func (h *GlobFileSearchHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type globFileSearchInput struct {
	TargetDirectory string `json:"target_directory"`
	GlobPattern     string `json:"glob_pattern"`
	HeadLimit       int    `json:"head_limit"`
}

func (h *GlobFileSearchHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in globFileSearchInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	if strings.TrimSpace(in.GlobPattern) == "" {
		return fail(callID, "glob_pattern is required")
	}

	root := inv.Cwd
	if in.TargetDirectory != "" {
		root = resolvePath(inv, in.TargetDirectory)
	}
	if root == "" {
		root = "."
	}

	pattern := strings.TrimSpace(in.GlobPattern)
	if !strings.HasPrefix(pattern, "**/") {
		pattern = "**/" + pattern
	}

	var matched []fileEntry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if repo.IsDenylisted(path) {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if !globMatch(pattern, filepath.ToSlash(rel)) {
			return nil
		}
		info, statErr := d.Info()
		var mod int64
		if statErr == nil {
			mod = info.ModTime().Unix()
		}
		matched = append(matched, fileEntry{Path: rel, ModTime: mod})
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.System, "glob search failed", err)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ModTime > matched[j].ModTime })
	if in.HeadLimit > 0 && len(matched) > in.HeadLimit {
		matched = matched[:in.HeadLimit]
	}

	paths := make([]string, len(matched))
	for i, m := range matched {
		paths[i] = m.Path
	}
	return ok(callID, map[string]any{"paths": paths})
}

// globMatch supports "**/" as a recursive-directory wildcard, which
// filepath.Match cannot express directly: it strips the "**/" prefix
// and matches the remaining pattern against any path suffix.
func globMatch(pattern, path string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		segments := strings.Split(path, "/")
		for i := range segments {
			candidate := strings.Join(segments[i:], "/")
			if ok, _ := filepath.Match(suffix, candidate); ok {
				return true
			}
		}
		return false
	}
	ok, _ := filepath.Match(pattern, path)
	return ok
}
