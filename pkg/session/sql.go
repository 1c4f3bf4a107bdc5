package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/memory"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists sessions in a relational database. SQLite, MySQL,
// and PostgreSQL are supported through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore opens the configured database, verifies connectivity, and
// ensures the schema exists.
func NewSQLStore(cfg config.SQLConfig) (*SQLStore, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sql session config: %w", err)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store, err := NewSQLStoreWithDB(db, cfg.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStoreWithDB wraps an already-open connection. The caller keeps
// ownership of pool settings; the store still initialises the schema.
func NewSQLStoreWithDB(db *sql.DB, driver string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported driver: %s (supported: sqlite3, mysql, postgres)", driver)
	}

	s := &SQLStore{db: db, dialect: driver}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialise schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) schemaStatements() []string {
	seq := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch s.dialect {
	case "postgres":
		seq = "BIGSERIAL PRIMARY KEY"
	case "mysql":
		seq = "BIGINT AUTO_INCREMENT PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(255) PRIMARY KEY,
    agent VARCHAR(255) NOT NULL,
    principal VARCHAR(255) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_entries (
    seq %s,
    session_id VARCHAR(255) NOT NULL,
    entry_type VARCHAR(32) NOT NULL,
    content TEXT,
    payload TEXT,
    created_at TIMESTAMP NOT NULL
)`, seq),
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if s.dialect != "mysql" {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_session_entries_session ON session_entries(session_id)`)
	}
	return stmts
}

// bind rewrites ? placeholders to $n for the postgres dialect.
func (s *SQLStore) bind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Create(ctx context.Context, agent, principal string) (Session, error) {
	now := time.Now().UTC()
	info := Session{
		ID:        uuid.NewString(),
		Agent:     agent,
		Principal: principal,
		Created:   now,
		Updated:   now,
	}

	query := s.bind(`INSERT INTO sessions (id, agent, principal, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, info.ID, info.Agent, info.Principal, info.Created, info.Updated); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return info, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Session, error) {
	query := s.bind(`SELECT id, agent, principal, created_at, updated_at FROM sessions WHERE id = ?`)

	var info Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&info.ID, &info.Agent, &info.Principal, &info.Created, &info.Updated)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	return info, nil
}

func (s *SQLStore) List(ctx context.Context, principal string) ([]Session, error) {
	query := `SELECT id, agent, principal, created_at, updated_at FROM sessions ORDER BY updated_at DESC`
	args := []any{}
	if principal != "" {
		query = `SELECT id, agent, principal, created_at, updated_at FROM sessions WHERE principal = ? ORDER BY updated_at DESC`
		args = append(args, principal)
	}

	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var info Session
		if err := rows.Scan(&info.ID, &info.Agent, &info.Principal, &info.Created, &info.Updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM session_entries WHERE session_id = ?`), id); err != nil {
		return fmt.Errorf("delete session entries: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLStore) AppendEntry(ctx context.Context, id string, e memory.Entry) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	var payload sql.NullString
	if len(e.Payload) > 0 {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode entry payload: %w", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().UTC()
	query := s.bind(`INSERT INTO session_entries (session_id, entry_type, content, payload, created_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, id, string(e.Type), e.Content, payload, now); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	update := s.bind(`UPDATE sessions SET updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, update, now, id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *SQLStore) Entries(ctx context.Context, id string) ([]memory.Entry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	query := s.bind(`SELECT entry_type, content, payload FROM session_entries WHERE session_id = ? ORDER BY seq`)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []memory.Entry
	for rows.Next() {
		var (
			entryType string
			content   sql.NullString
			payload   sql.NullString
		)
		if err := rows.Scan(&entryType, &content, &payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e := memory.Entry{Type: memory.EntryType(entryType), Content: content.String}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode entry payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
