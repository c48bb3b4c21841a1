package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentcore/internal/errs"
	"agentcore/internal/tools"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// WebSearchHandler queries Exa for real-time web results, accepting a
// search_term/explanation/max_results input shape through the
// Handler contract.
type WebSearchHandler struct {
	apiKey         string
	client         *retryablehttp.Client
	DefaultTimeout time.Duration
}

func NewWebSearchHandler(apiKey string) *WebSearchHandler {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &WebSearchHandler{apiKey: apiKey, client: client, DefaultTimeout: 15 * time.Second}
}

func (h *WebSearchHandler) Kind() tools.Kind { return tools.KindWebSearch }

func (h *WebSearchHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type webSearchInput struct {
	SearchTerm  string `json:"search_term"`
	Explanation string `json:"explanation"`
	MaxResults  int    `json:"max_results"`
}

type webSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type webSearchOutput struct {
	Results   []webSearchResult `json:"results"`
	Truncated bool              `json:"truncated"`
}

func (h *WebSearchHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in webSearchInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	if strings.TrimSpace(in.SearchTerm) == "" {
		return fail(callID, "search_term is required")
	}
	if strings.TrimSpace(h.apiKey) == "" {
		return nil, errs.New(errs.System, "web search API key is not configured")
	}

	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 10 {
		maxResults = 10
	}

	timeout := tools.EffectiveTimeout(inv, h.DefaultTimeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := map[string]any{
		"query":      in.SearchTerm,
		"numResults": maxResults,
		"contents":   map[string]any{"text": true},
	}
	body, _ := json.Marshal(payload)
	req, err := retryablehttp.NewRequestWithContext(runCtx, http.MethodPost, "https://api.exa.ai/search", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.System, "failed to build search request", err)
	}
	req.Header.Set("x-api-key", h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "web search request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, errs.New(errs.Transient, fmt.Sprintf("web search failed: %s", string(b)))
	}

	var raw struct {
		Results []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
			Text  string `json:"text"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errs.Wrap(errs.System, "failed to decode search response", err)
	}

	results := make([]webSearchResult, 0, len(raw.Results))
	for _, r := range raw.Results {
		results = append(results, webSearchResult{Title: r.Title, URL: r.URL, Snippet: r.Text})
	}
	truncated := fitSnippets(results, inv.MaxOutputBytes)

	return okMeta(callID, webSearchOutput{Results: results, Truncated: truncated}, map[string]any{"truncated": truncated})
}

func fitSnippets(results []webSearchResult, maxBytes int) bool {
	if maxBytes <= 0 {
		return false
	}
	truncated := false
	for limit := 1200; limit >= 200; limit /= 2 {
		for i := range results {
			if len(results[i].Snippet) > limit {
				results[i].Snippet = results[i].Snippet[:limit]
				truncated = true
			}
		}
		data, _ := json.Marshal(webSearchOutput{Results: results})
		if len(data) <= maxBytes {
			return truncated
		}
	}
	return truncated
}
