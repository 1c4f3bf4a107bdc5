package buildertools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/drover-ai/drover/pkg/tool"
	"github.com/drover-ai/drover/pkg/tool/functiontool"
)

// TodoItem is a single entry in the session task list.
type TodoItem struct {
	ID      string `json:"id" jsonschema:"required,description=Unique identifier for the todo"`
	Content string `json:"content" jsonschema:"required,description=Description of the task"`
	Status  string `json:"status" jsonschema:"required,description=Current status of the task,enum=pending|in_progress|completed|canceled"`
}

// TodoWriteArgs are the parameters of the todo_write tool.
type TodoWriteArgs struct {
	Merge bool       `json:"merge" jsonschema:"required,description=If true merge with existing todos (for updates). If false replace all todos (for a new plan)."`
	Todos []TodoItem `json:"todos" jsonschema:"required,description=Array of todo items. Must contain at least one item. Completed todos remain in the list.,minItems=1"`
}

// TodoStore keeps per-session task lists behind the todo_write tool. The
// zero value is not usable, construct with NewTodoStore.
type TodoStore struct {
	mu    sync.RWMutex
	todos map[string][]TodoItem
}

// NewTodoStore creates an empty store.
func NewTodoStore() *TodoStore {
	return &TodoStore{todos: make(map[string][]TodoItem)}
}

// Tool builds the todo_write descriptor backed by this store.
func (s *TodoStore) Tool() (tool.Descriptor, error) {
	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "todo_write",
			Description: "Create and manage a structured task list for tracking progress. Use for multi-step tasks. The todos array must always contain at least one item; completed todos remain in the list.",
			Tags:        []string{"planning"},
		},
		func(ctx context.Context, ac *tool.ActionContext, args TodoWriteArgs) (map[string]any, error) {
			return s.write(ac, args)
		},
		func(args TodoWriteArgs) error {
			if len(args.Todos) == 0 {
				return fmt.Errorf("todos array cannot be empty; include at least one item with id, content, and status")
			}
			for i, td := range args.Todos {
				if td.ID == "" || td.Content == "" || td.Status == "" {
					return fmt.Errorf("todo item %d is missing required fields (id, content, status)", i)
				}
				if !validTodoStatus(td.Status) {
					return fmt.Errorf("todo item %d has invalid status %q (must be pending, in_progress, completed, or canceled)", i, td.Status)
				}
			}
			return nil
		},
	)
}

func (s *TodoStore) write(ac *tool.ActionContext, args TodoWriteArgs) (map[string]any, error) {
	sessionID := sessionKey(ac)

	s.mu.Lock()
	defer s.mu.Unlock()

	if args.Merge {
		existing := s.todos[sessionID]
		byID := make(map[string]*TodoItem, len(existing))
		for i := range existing {
			byID[existing[i].ID] = &existing[i]
		}
		for _, incoming := range args.Todos {
			if cur, ok := byID[incoming.ID]; ok {
				cur.Content = incoming.Content
				cur.Status = incoming.Status
			} else {
				existing = append(existing, incoming)
			}
		}
		s.todos[sessionID] = existing
	} else {
		s.todos[sessionID] = args.Todos
	}

	return map[string]any{
		"summary": s.summaryLocked(sessionID),
		"count":   len(s.todos[sessionID]),
		"merge":   args.Merge,
	}, nil
}

// Todos returns a copy of the session's task list.
func (s *TodoStore) Todos(sessionID string) []TodoItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.todos[sessionID]
	out := make([]TodoItem, len(src))
	copy(out, src)
	return out
}

// Summary renders the session's task list as a short progress report.
func (s *TodoStore) Summary(sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked(sessionID)
}

func (s *TodoStore) summaryLocked(sessionID string) string {
	todos := s.todos[sessionID]
	if len(todos) == 0 {
		return "No todos."
	}

	marks := map[string]string{
		"pending":     "[ ]",
		"in_progress": "[~]",
		"completed":   "[x]",
		"canceled":    "[-]",
	}

	done := 0
	var b strings.Builder
	for _, td := range todos {
		mark, ok := marks[td.Status]
		if !ok {
			mark = "[?]"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, td.Content)
		if td.Status == "completed" {
			done++
		}
	}
	fmt.Fprintf(&b, "%d/%d completed", done, len(todos))
	return b.String()
}

func validTodoStatus(s string) bool {
	switch s {
	case "pending", "in_progress", "completed", "canceled":
		return true
	}
	return false
}

func sessionKey(ac *tool.ActionContext) string {
	if ac == nil || ac.SessionID == "" {
		return "default"
	}
	return ac.SessionID
}
