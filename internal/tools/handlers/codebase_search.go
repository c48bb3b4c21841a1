package handlers

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agentcore/internal/errs"
	"agentcore/internal/repo"
	"agentcore/internal/tools"
)

// CodebaseSearchHandler is a deliberately simple stand-in for semantic
// search: it scores files by how many query keywords appear in their
// path and content, returning the top matches with a snippet.
type CodebaseSearchHandler struct{}

func NewCodebaseSearchHandler() *CodebaseSearchHandler { return &CodebaseSearchHandler{} }

func (h *CodebaseSearchHandler) Kind() tools.Kind { return tools.KindCodebaseSearch }

func (h *CodebaseSearchHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type codebaseSearchInput struct {
	Query              string   `json:"query"`
	TargetDirectories  []string `json:"target_directories"`
	GlobPattern        string   `json:"glob_pattern"`
	MaxResults         int      `json:"max_results"`
	SnippetLines       int      `json:"snippet_lines"`
}

type codebaseSearchMatch struct {
	Path    string `json:"path"`
	Score   int    `json:"score"`
	Snippet string `json:"snippet"`
}

var codebaseSearchAllowedExts = map[string]bool{
	".go": true, ".rs": true, ".py": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".java": true, ".kt": true, ".swift": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".cs": true, ".rb": true, ".php": true, ".sh": true, ".md": true, ".toml": true, ".yaml": true, ".yml": true,
}

var codebaseSearchIgnoredDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, "node_modules": true, "target": true,
	"dist": true, "build": true, ".venv": true, "__pycache__": true,
}

func (h *CodebaseSearchHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in codebaseSearchInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	if strings.TrimSpace(in.Query) == "" {
		return fail(callID, "query is required")
	}
	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	snippetLines := in.SnippetLines
	if snippetLines <= 0 {
		snippetLines = 2
	}

	roots := in.TargetDirectories
	if len(roots) == 0 {
		roots = []string{inv.Cwd}
	}
	keywords := keywordsOf(in.Query)

	var matches []codebaseSearchMatch
	for _, dir := range roots {
		root := resolvePath(inv, dir)
		if root == "" {
			root = "."
		}
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if codebaseSearchIgnoredDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if repo.IsDenylisted(path) || !codebaseSearchAllowedExts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			if in.GlobPattern != "" {
				rel, _ := filepath.Rel(root, path)
				if !globMatch(in.GlobPattern, filepath.ToSlash(rel)) {
					return nil
				}
			}
			score, snippet := scoreFile(path, keywords, snippetLines)
			if score > 0 {
				rel, _ := filepath.Rel(root, path)
				matches = append(matches, codebaseSearchMatch{Path: rel, Score: score, Snippet: snippet})
			}
			return nil
		})
		if err != nil {
			return nil, errs.Wrap(errs.System, "codebase search failed", err)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return ok(callID, map[string]any{"matches": matches})
}

func keywordsOf(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func scoreFile(path string, keywords []string, snippetLines int) (int, string) {
	lowerPath := strings.ToLower(path)
	score := 0
	for _, kw := range keywords {
		if strings.Contains(lowerPath, kw) {
			score += 3
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return score, ""
	}
	defer f.Close()

	var lines []string
	bestLine := -1
	bestLineScore := 0
	scanner := bufio.NewScanner(f)
	for lineNum := 0; scanner.Scan(); lineNum++ {
		line := scanner.Text()
		lines = append(lines, line)
		lower := strings.ToLower(line)
		lineScore := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				lineScore++
			}
		}
		if lineScore > 0 {
			score += lineScore
			if lineScore > bestLineScore {
				bestLineScore = lineScore
				bestLine = lineNum
			}
		}
	}
	if bestLine < 0 {
		return score, ""
	}
	start := bestLine - snippetLines
	if start < 0 {
		start = 0
	}
	end := bestLine + snippetLines + 1
	if end > len(lines) {
		end = len(lines)
	}
	return score, strings.Join(lines[start:end], "\n")
}
