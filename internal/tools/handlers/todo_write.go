package handlers

import (
	"context"
	"sync"
	"time"

	"agentcore/internal/tools"
)

// TodoItem is one entry in the session-scoped todo store.
type TodoItem struct {
	ID      string `json:"id"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
}

var todoStatuses = map[string]bool{"pending": true, "in_progress": true, "completed": true, "cancelled": true}

// TodoStore holds the in-memory, session-scoped todo list, modeled
// on a file-backed store but scoped in-process to one Context Session
// rather than a file, since the Go core has no equivalent of the
// original's single-process-per-run assumption.
type TodoStore struct {
	mu        sync.Mutex
	todos     []TodoItem
	updatedAt time.Time
}

func NewTodoStore() *TodoStore { return &TodoStore{} }

func (s *TodoStore) snapshot() []TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TodoItem, len(s.todos))
	copy(out, s.todos)
	return out
}

// TodoWriteHandler maintains the lightweight session todo list.
type TodoWriteHandler struct {
	Store *TodoStore
}

func NewTodoWriteHandler(store *TodoStore) *TodoWriteHandler {
	if store == nil {
		store = NewTodoStore()
	}
	return &TodoWriteHandler{Store: store}
}

func (h *TodoWriteHandler) Kind() tools.Kind { return tools.KindTodoWrite }

func (h *TodoWriteHandler) MatchesKind(p tools.Payload) bool {
	_, ok := p.(tools.FunctionPayload)
	return ok
}

type todoWriteInput struct {
	Merge bool       `json:"merge"`
	Todos []TodoItem `json:"todos"`
}

func (h *TodoWriteHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	var in todoWriteInput
	if err := decode(inv.Call.Payload, &in); err != nil {
		return nil, err
	}
	callID := inv.Call.CallID
	for _, t := range in.Todos {
		if t.ID == "" {
			return fail(callID, "every todo requires an id")
		}
		if t.Status != "" && !todoStatuses[t.Status] {
			return fail(callID, "invalid status: "+t.Status)
		}
	}

	h.Store.mu.Lock()
	if in.Merge {
		byID := make(map[string]int, len(h.Store.todos))
		for i, t := range h.Store.todos {
			byID[t.ID] = i
		}
		for _, incoming := range in.Todos {
			if idx, exists := byID[incoming.ID]; exists {
				existing := h.Store.todos[idx]
				if incoming.Content != "" {
					existing.Content = incoming.Content
				}
				if incoming.Status != "" {
					existing.Status = incoming.Status
				}
				h.Store.todos[idx] = existing
			} else {
				h.Store.todos = append(h.Store.todos, incoming)
				byID[incoming.ID] = len(h.Store.todos) - 1
			}
		}
	} else {
		h.Store.todos = append([]TodoItem{}, in.Todos...)
	}
	h.Store.updatedAt = time.Now()
	snapshot := append([]TodoItem{}, h.Store.todos...)
	h.Store.mu.Unlock()

	return ok(callID, map[string]any{"todos": snapshot, "updated_at": h.Store.updatedAt.UnixMilli()})
}
