// Package management persists the users and tenants of the instance in a
// local SQLite database and exposes the store as a lifecycle component.
package management

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"github.com/containerd/errdefs"
	_ "modernc.org/sqlite"
)

const Name = "management-store"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	authorities_json TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tenants (
	token TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	authentication_token TEXT NOT NULL DEFAULT '',
	authorized_users_json TEXT NOT NULL DEFAULT '[]',
	template TEXT NOT NULL DEFAULT '',
	metadata_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
)`

// Store is the persistence-backed management store. The database is opened
// on initialize and closed on stop.
type Store struct {
	*lifecycle.Base

	path string

	mu sync.RWMutex
	db *sql.DB
}

// New creates a store backed by the database file at path.
func New(path string) *Store {
	s := &Store{path: path}
	s.Base = lifecycle.NewBase(Name, lifecycle.Hooks{
		Initialize: s.initialize,
		Start:      s.start,
		Stop:       s.stop,
	})
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) initialize(ctx context.Context, m lifecycle.Monitor) error {
	if strings.TrimSpace(s.path) == "" {
		return lifecycle.ConfigurationErrorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return lifecycle.ConfigurationErrorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return lifecycle.ConfigurationErrorf("open store db: %w", err)
	}
	for _, stmt := range []struct{ what, sql string }{
		{"journal mode", `PRAGMA journal_mode = WAL`},
		{"busy timeout", `PRAGMA busy_timeout = 5000`},
		{"schema", schema},
	} {
		if _, err := db.ExecContext(ctx, stmt.sql); err != nil {
			_ = db.Close()
			return lifecycle.Wrap(lifecycle.ClassConfiguration, fmt.Errorf("set store db %s: %w", stmt.what, err))
		}
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	m.Notify("management store opened at " + s.path)
	return nil
}

func (s *Store) start(ctx context.Context, _ lifecycle.Monitor) error {
	if err := s.Ping(ctx); err != nil {
		return lifecycle.Wrap(lifecycle.ClassConnectivity, err)
	}
	return nil
}

func (s *Store) stop(context.Context, lifecycle.Monitor) error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("management store is not open: %w", errdefs.ErrUnavailable)
	}
	return s.db, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store db: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	if u.Status == "" {
		u.Status = StatusActive
	}
	if err := validateEntity("user", u); err != nil {
		return User{}, err
	}
	db, err := s.conn()
	if err != nil {
		return User{}, err
	}
	authorities, err := json.Marshal(nonNil(u.Authorities))
	if err != nil {
		return User{}, fmt.Errorf("marshal user authorities: %w", err)
	}
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)

	res, err := db.ExecContext(ctx, `
INSERT INTO users (username, first_name, last_name, authorities_json, status, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(username) DO NOTHING`,
		u.Username, u.FirstName, u.LastName, string(authorities), u.Status, u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return User{}, fmt.Errorf("insert user %q: %w", u.Username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return User{}, fmt.Errorf("user %q: %w", u.Username, errdefs.ErrAlreadyExists)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (User, error) {
	db, err := s.conn()
	if err != nil {
		return User{}, err
	}
	row := db.QueryRowContext(ctx, `
SELECT username, first_name, last_name, authorities_json, status, created_at
FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", username, errdefs.ErrNotFound)
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
SELECT username, first_name, last_name, authorities_json, status, created_at
FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, "users")
}

func (s *Store) CreateTenant(ctx context.Context, t Tenant) (Tenant, error) {
	if err := validateEntity("tenant", t); err != nil {
		return Tenant{}, err
	}
	db, err := s.conn()
	if err != nil {
		return Tenant{}, err
	}
	users, err := json.Marshal(nonNil(t.AuthorizedUsers))
	if err != nil {
		return Tenant{}, fmt.Errorf("marshal tenant users: %w", err)
	}
	meta := t.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metadata, err := json.Marshal(meta)
	if err != nil {
		return Tenant{}, fmt.Errorf("marshal tenant metadata: %w", err)
	}
	t.CreatedAt = time.Now().UTC().Truncate(time.Second)

	res, err := db.ExecContext(ctx, `
INSERT INTO tenants (token, name, authentication_token, authorized_users_json, template, metadata_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(token) DO NOTHING`,
		t.Token, t.Name, t.AuthenticationToken, string(users), t.Template, string(metadata), t.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return Tenant{}, fmt.Errorf("insert tenant %q: %w", t.Token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Tenant{}, fmt.Errorf("tenant %q: %w", t.Token, errdefs.ErrAlreadyExists)
	}
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, token string) (Tenant, error) {
	db, err := s.conn()
	if err != nil {
		return Tenant{}, err
	}
	row := db.QueryRowContext(ctx, `
SELECT token, name, authentication_token, authorized_users_json, template, metadata_json, created_at
FROM tenants WHERE token = ?`, token)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, fmt.Errorf("tenant %q: %w", token, errdefs.ErrNotFound)
	}
	return t, err
}

func (s *Store) ListTenants(ctx context.Context) ([]Tenant, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
SELECT token, name, authentication_token, authorized_users_json, template, metadata_json, created_at
FROM tenants ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	out := make([]Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountTenants(ctx context.Context) (int, error) {
	return s.count(ctx, "tenants")
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var u User
	var authorities, created string
	if err := row.Scan(&u.Username, &u.FirstName, &u.LastName, &authorities, &u.Status, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("scan user row: %w", err)
	}
	if err := json.Unmarshal([]byte(authorities), &u.Authorities); err != nil {
		return User{}, fmt.Errorf("unmarshal authorities of %q: %w", u.Username, err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return u, nil
}

func scanTenant(row scanner) (Tenant, error) {
	var t Tenant
	var users, metadata, created string
	if err := row.Scan(&t.Token, &t.Name, &t.AuthenticationToken, &users, &t.Template, &metadata, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, err
		}
		return Tenant{}, fmt.Errorf("scan tenant row: %w", err)
	}
	if err := json.Unmarshal([]byte(users), &t.AuthorizedUsers); err != nil {
		return Tenant{}, fmt.Errorf("unmarshal users of tenant %q: %w", t.Token, err)
	}
	if err := json.Unmarshal([]byte(metadata), &t.Metadata); err != nil {
		return Tenant{}, fmt.Errorf("unmarshal metadata of tenant %q: %w", t.Token, err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
