package handlers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"agentcore/internal/errs"
	"agentcore/internal/repo"
	"agentcore/internal/tools"
	"agentcore/internal/util"
)

// GrepHandler searches repository files for a regex pattern, ripgrep
// first with a Go fallback scanner when rg is unavailable, denylisting
// secret-bearing paths and redacting matched lines. Generalizes the
// teacher's internal/tools.GrepTool into the Handler contract.
type GrepHandler struct {
	rgPath         string
	DefaultTimeout time.Duration
}

func NewGrepHandler() *GrepHandler {
	rg, _ := exec.LookPath("rg")
	return &GrepHandler{rgPath: rg, DefaultTimeout: 20 * time.Second}
}

func (h *GrepHandler) Kind() tools.Kind { return tools.KindGrep }

func (h *GrepHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type grepInput struct {
	Pattern       string   `json:"pattern"`
	Paths         []string `json:"paths"`
	Glob          []string `json:"glob"`
	CaseSensitive bool     `json:"case_sensitive"`
	MaxResults    int      `json:"max_results"`
}

type grepOutput struct {
	Matches   []string `json:"matches"`
	Truncated bool     `json:"truncated"`
	Warning   string   `json:"warning,omitempty"`
}

func (h *GrepHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in grepInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	if strings.TrimSpace(in.Pattern) == "" {
		return fail(callID, "pattern is required")
	}
	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = inv.MaxResults
	}

	timeout := tools.EffectiveTimeout(inv, h.DefaultTimeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	root := inv.Cwd
	if root == "" {
		root = "."
	}

	var matches []string
	var warning string
	var err error
	if h.rgPath != "" {
		matches, warning, err = h.runRipgrep(runCtx, in, root)
	} else {
		warning = "rg not found; using Go fallback"
		matches, err = h.runFallback(runCtx, in, root, maxResults)
	}
	if err != nil {
		return nil, errs.Wrap(errs.System, "grep failed", err)
	}

	redacted := make([]string, len(matches))
	for i, m := range matches {
		redacted[i] = util.RedactSecrets(m)
	}
	truncated := false
	if maxResults > 0 && len(redacted) > maxResults {
		redacted = redacted[:maxResults]
		truncated = true
	}

	return okMeta(callID, grepOutput{Matches: redacted, Truncated: truncated, Warning: warning}, map[string]any{"truncated": truncated})
}

func (h *GrepHandler) runRipgrep(ctx context.Context, in grepInput, root string) ([]string, string, error) {
	args := []string{"--no-heading", "--line-number"}
	if !in.CaseSensitive {
		args = append(args, "--ignore-case")
	}
	for _, g := range in.Glob {
		if strings.TrimSpace(g) != "" {
			args = append(args, "--glob", g)
		}
	}
	for _, deny := range denylistGlobs() {
		args = append(args, "--glob", deny)
	}
	args = append(args, in.Pattern)

	paths := sanitizePaths(in.Paths, root)
	if len(paths) == 0 {
		paths = []string{"."}
	}
	args = append(args, paths...)

	cmd := exec.CommandContext(ctx, h.rgPath, args...)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return []string{}, "", nil
		}
		return nil, "", fmt.Errorf("rg failed: %w: %s", err, stderr.String())
	}
	out := strings.TrimSuffix(stdout.String(), "\n")
	if out == "" {
		return []string{}, "", nil
	}
	return strings.Split(out, "\n"), "", nil
}

var errStopWalk = errors.New("stop-walk")

func (h *GrepHandler) runFallback(ctx context.Context, in grepInput, root string, maxResults int) ([]string, error) {
	pattern := in.Pattern
	if !in.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	paths := sanitizePaths(in.Paths, root)
	if len(paths) == 0 {
		paths = []string{root}
	}

	var matches []string
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return matches, ctx.Err()
		default:
		}
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, p)
		}
		walkErr := filepath.WalkDir(full, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
					return filepath.SkipDir
				}
				return nil
			}
			if repo.IsDenylisted(path) {
				return nil
			}
			if len(in.Glob) > 0 && !matchAnyGlob(path, root, in.Glob) {
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return nil
			}
			defer f.Close()
			if isBinaryFile(f) {
				return nil
			}
			_, _ = f.Seek(0, io.SeekStart)
			scanner := bufio.NewScanner(f)
			lineNum := 1
			for scanner.Scan() {
				line := scanner.Text()
				if re.MatchString(line) {
					rel, _ := filepath.Rel(root, path)
					matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, lineNum, line))
					if maxResults > 0 && len(matches) >= maxResults {
						return errStopWalk
					}
				}
				lineNum++
			}
			return nil
		})
		if walkErr != nil {
			if errors.Is(walkErr, errStopWalk) {
				return matches, nil
			}
			return matches, walkErr
		}
	}
	return matches, nil
}

func sanitizePaths(paths []string, root string) []string {
	var out []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs := p
		if !filepath.IsAbs(p) {
			abs = filepath.Join(root, p)
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func denylistGlobs() []string {
	return []string{
		"!.env*", "!*.pem", "!*.key", "!*.p12", "!*.pfx",
		"!id_rsa*", "!.aws/credentials", "!.npmrc", "!.docker/config.json",
	}
}

func matchAnyGlob(pathValue, root string, globs []string) bool {
	rel, err := filepath.Rel(root, pathValue)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range globs {
		clean := strings.ReplaceAll(g, "**", "*")
		if ok, _ := filepath.Match(clean, rel); ok {
			return true
		}
	}
	return false
}

func isBinaryFile(f *os.File) bool {
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
	}
	return false
}
