package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/memory"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess, err := store.Create(ctx, "researcher", "user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected generated session id")
	}
	if sess.Agent != "researcher" || sess.Principal != "user-1" {
		t.Errorf("unexpected session: %+v", sess)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("expected same session back, got %+v", got)
	}

	if err := store.AppendEntry(ctx, sess.ID, memory.Entry{Type: memory.EntryUser, Content: "find sources"}); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}
	if err := store.AppendEntry(ctx, sess.ID, memory.Entry{
		Type:    memory.EntryAssistant,
		Payload: map[string]any{"tool": "search", "args": map[string]any{"q": "go"}},
	}); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	entries, err := store.Entries(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != memory.EntryUser || entries[0].Content != "find sources" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Payload["tool"] != "search" {
		t.Errorf("expected payload preserved, got %+v", entries[1].Payload)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore_AppendEntry_UnknownSession(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendEntry(context.Background(), "missing", memory.Entry{Type: memory.EntryUser, Content: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _ := store.Create(ctx, "researcher", "user-1")
	b, _ := store.Create(ctx, "researcher", "user-2")

	// Appending touches the session, so a becomes the most recent.
	if err := store.AppendEntry(ctx, a.ID, memory.Entry{Type: memory.EntryUser, Content: "x"}); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
	if all[0].ID != a.ID {
		t.Errorf("expected most recently updated first, got %s", all[0].ID)
	}

	mine, err := store.List(ctx, "user-2")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != b.ID {
		t.Errorf("expected only user-2 sessions, got %+v", mine)
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	store, err := New(config.SessionConfig{Store: config.SessionStoreMemory})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected memory store, got %T", store)
	}

	if _, err := New(config.SessionConfig{Store: "redis"}); err == nil {
		t.Error("expected error for unsupported store")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Each pooled connection would otherwise get its own empty in-memory
	// database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLStoreWithDB(openTestDB(t), "sqlite3")
	if err != nil {
		t.Fatalf("NewSQLStoreWithDB failed: %v", err)
	}

	sess, err := store.Create(ctx, "researcher", "user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.AppendEntry(ctx, sess.ID, memory.Entry{Type: memory.EntryUser, Content: "find sources"}); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}
	if err := store.AppendEntry(ctx, sess.ID, memory.Entry{
		Type:    memory.EntryEnvironment,
		Payload: map[string]any{"result": "3 hits"},
	}); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	entries, err := store.Entries(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Content != "find sources" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Payload["result"] != "3 hits" {
		t.Errorf("expected payload round trip, got %+v", entries[1].Payload)
	}

	listed, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != sess.ID {
		t.Errorf("unexpected list result: %+v", listed)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := store.Entries(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted session entries, got %v", err)
	}
}

func TestSQLStore_RejectsUnknownDriver(t *testing.T) {
	if _, err := NewSQLStoreWithDB(openTestDB(t), "oracle"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestSQLStore_BindPlaceholders(t *testing.T) {
	pg := &SQLStore{dialect: "postgres"}
	got := pg.bind(`INSERT INTO sessions (id, agent) VALUES (?, ?)`)
	want := `INSERT INTO sessions (id, agent) VALUES ($1, $2)`
	if got != want {
		t.Errorf("bind() = %q, want %q", got, want)
	}

	lite := &SQLStore{dialect: "sqlite3"}
	query := `SELECT * FROM sessions WHERE id = ?`
	if got := lite.bind(query); got != query {
		t.Errorf("expected sqlite query untouched, got %q", got)
	}
}
