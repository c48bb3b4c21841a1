package handlers

import (
	"context"
	"fmt"
	"strings"

	"agentcore/internal/errs"
	"agentcore/internal/tools"
)

// ReadHandler reads a text file, optionally restricted to a 1-based
// inclusive line range, and records the read with the turn's tracker.
type ReadHandler struct{}

func NewReadHandler() *ReadHandler { return &ReadHandler{} }

func (h *ReadHandler) Kind() tools.Kind { return tools.KindRead }

func (h *ReadHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type readInput struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type readOutput struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	TotalLines int    `json:"total_lines"`
}

func (h *ReadHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in readInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	if strings.TrimSpace(in.Path) == "" {
		return fail(callID, "path is required")
	}
	target := resolvePath(inv, in.Path)

	content, err := readFile(target)
	if err != nil {
		if te, ok := errs.As(err); ok && te.Kind == errs.NotFound {
			return fail(callID, fmt.Sprintf("file not found: %s", in.Path))
		}
		return nil, err
	}

	lines := strings.Split(content, "\n")
	total := len(lines)
	selected := content
	if in.StartLine > 0 || in.EndLine > 0 {
		start := in.StartLine
		if start < 1 {
			start = 1
		}
		end := in.EndLine
		if end < 1 || end > total {
			end = total
		}
		if start > end {
			return fail(callID, "start_line must not exceed end_line")
		}
		selected = strings.Join(lines[start-1:end], "\n")
	}

	if inv.Tracker != nil {
		inv.Tracker.RecordRead(target, "read_file", content)
	}

	return ok(callID, readOutput{Path: in.Path, Content: selected, TotalLines: total})
}
