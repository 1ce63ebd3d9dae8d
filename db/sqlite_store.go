package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"lottery-server-go/models"
	_ "modernc.org/sqlite"
)

const (
	stateKey  = "lotteryState" // JSON models.PersistedState
	rosterKey = "studentMap"   // JSON []models.Student in import order
)

const schema = `CREATE TABLE IF NOT EXISTS lottery_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps the local copy of the lottery state.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the state database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Printf("Opened local state store %s", path)
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO lottery_kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, key string, target any) (bool, error) {
	var raw string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM lottery_kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SaveState overwrites the persisted winners and current stage.
func (s *SQLiteStore) SaveState(ctx context.Context, st models.PersistedState) error {
	return s.put(ctx, stateKey, st)
}

// LoadState returns the persisted state; ok is false when nothing was saved.
func (s *SQLiteStore) LoadState(ctx context.Context) (st models.PersistedState, ok bool, err error) {
	ok, err = s.get(ctx, stateKey, &st)
	return st, ok, err
}

// ClearState deletes the persisted winners. The roster is kept.
func (s *SQLiteStore) ClearState(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM lottery_kv WHERE key = ?`, stateKey); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}

// SaveRoster stores the imported roster so it survives restarts.
func (s *SQLiteStore) SaveRoster(ctx context.Context, students []models.Student) error {
	return s.put(ctx, rosterKey, students)
}

// LoadRoster returns the saved roster in import order, or nil.
func (s *SQLiteStore) LoadRoster(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if _, err := s.get(ctx, rosterKey, &students); err != nil {
		return nil, err
	}
	return students, nil
}
