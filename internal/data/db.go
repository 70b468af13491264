package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("record not found")

// Role names seeded at open
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Store is the relational store for users, games and matches
type Store struct {
	db      *sql.DB
	dialect dialect
	log     logrus.FieldLogger
}

// Open connects to the database named by url and applies the schema.
// Plain paths and file: URLs use SQLite, libsql:// and https:// use Turso,
// postgres:// uses pgx.
func Open(ctx context.Context, url, authToken string, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	driver, dsn, d, err := resolveDSN(url, authToken)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d == dialectSQLite && driver == "sqlite" {
		// One writer at a time keeps SQLite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dialect: d, log: logger.WithField("component", "store")}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.log.WithField("driver", driver).Info("database ready")
	return s, nil
}

func resolveDSN(url, authToken string) (driver, dsn string, d dialect, err error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return "", "", 0, fmt.Errorf("database url is empty")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "pgx", url, dialectPostgres, nil
	case strings.HasPrefix(url, "libsql://"), strings.HasPrefix(url, "https://"):
		dsn = url
		if authToken != "" {
			dsn = fmt.Sprintf("%s?authToken=%s", url, authToken)
		}
		return "libsql", dsn, dialectSQLite, nil
	default:
		path := strings.TrimPrefix(url, "file:")
		if path != ":memory:" {
			path = filepath.Clean(path)
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return "", "", 0, fmt.Errorf("failed to create db directory: %w", err)
				}
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		return "sqlite", dsn, dialectSQLite, nil
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// rebind rewrites ? placeholders to $n for postgres
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// init creates the schema and seeds the roles
func (s *Store) init(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == dialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	roles := []Role{
		{ID: 1, Name: RoleAdmin, Description: "Full access to user management"},
		{ID: 2, Name: RoleUser, Description: "Regular player"},
	}
	for _, r := range roles {
		_, err := s.exec(ctx, `
			INSERT INTO roles (id, name, description) VALUES (?, ?, ?)
			ON CONFLICT (name) DO NOTHING
		`, r.ID, r.Name, r.Description)
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.Name, err)
		}
	}
	return nil
}

// Timestamps are stored as unix milliseconds so both dialects scan them the same way
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		role_id INTEGER NOT NULL DEFAULT 2 REFERENCES roles(id),
		puuid TEXT UNIQUE,
		game_name TEXT NOT NULL DEFAULT '',
		tag_line TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		composition TEXT NOT NULL,
		victory BOOLEAN NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_games_user ON games(user_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL,
		puuid TEXT NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		placement INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 0,
		gold_left INTEGER NOT NULL DEFAULT 0,
		last_round INTEGER NOT NULL DEFAULT 0,
		traits TEXT NOT NULL DEFAULT '[]',
		units TEXT NOT NULL DEFAULT '[]',
		played_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE (match_id, puuid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_user ON matches(user_id, played_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		role_id BIGINT NOT NULL DEFAULT 2 REFERENCES roles(id),
		puuid TEXT UNIQUE,
		game_name TEXT NOT NULL DEFAULT '',
		tag_line TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		composition TEXT NOT NULL,
		victory BOOLEAN NOT NULL DEFAULT FALSE,
		timestamp BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_games_user ON games(user_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id BIGSERIAL PRIMARY KEY,
		match_id TEXT NOT NULL,
		puuid TEXT NOT NULL,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		placement INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 0,
		gold_left INTEGER NOT NULL DEFAULT 0,
		last_round INTEGER NOT NULL DEFAULT 0,
		traits TEXT NOT NULL DEFAULT '[]',
		units TEXT NOT NULL DEFAULT '[]',
		played_at BIGINT NOT NULL DEFAULT 0,
		UNIQUE (match_id, puuid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_user ON matches(user_id, played_at)`,
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
