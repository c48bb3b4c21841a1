package session

import (
	"fmt"
	"sort"
	"strings"
)

// Summarizer produces a textual summary of the "older" portion of
// history during compaction.
type Summarizer interface {
	Summarize(older []Message, focus string) (string, error)
}

// keywordBuckets groups message text into coarse topical buckets by
// substring match: a rule-based approach with no LLM call, used as
// the deterministic fallback summarizer every host gets by default.
var keywordBuckets = []struct {
	label    string
	keywords []string
}{
	{"file changes", []string{"create_file", "edit_file", "apply_patch", "delete_file", "rename_file", "line_edit"}},
	{"shell commands", []string{"run_terminal_cmd", "shell", "exec"}},
	{"searches", []string{"grep", "codebase_search", "glob_file_search", "web_search"}},
	{"errors", []string{"error", "failed", "exception", "traceback"}},
}

// RuleBasedSummarizer buckets older messages by keyword and emits one
// short paragraph per non-empty bucket plus an optional focus line.
type RuleBasedSummarizer struct{}

func (RuleBasedSummarizer) Summarize(older []Message, focus string) (string, error) {
	buckets := make(map[string][]string)
	var unbucketed []string

	for _, m := range older {
		text := m.Text
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		matched := false
		for _, b := range keywordBuckets {
			for _, kw := range b.keywords {
				if strings.Contains(lower, kw) {
					buckets[b.label] = append(buckets[b.label], truncateToWords(text, 30))
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			unbucketed = append(unbucketed, truncateToWords(text, 30))
		}
	}

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Summary of %d earlier messages:\n", len(older)))
	for _, label := range labels {
		items := buckets[label]
		b.WriteString(fmt.Sprintf("- %s (%d): %s\n", label, len(items), strings.Join(firstN(items, 3), "; ")))
	}
	if len(unbucketed) > 0 {
		b.WriteString(fmt.Sprintf("- other (%d): %s\n", len(unbucketed), strings.Join(firstN(unbucketed, 3), "; ")))
	}
	if focus != "" {
		b.WriteString("Focus: " + focus + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func truncateToWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + " ..."
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
