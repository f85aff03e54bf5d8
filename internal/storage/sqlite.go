package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/sentinela-br/sentinela/internal/models"
)

// SQLiteStore implements storage using SQLite (for local/development)
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if logger == nil {
		logger = logrus.New()
	}
	store := &SQLiteStore{db: db, logger: logger}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS investigations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		query TEXT NOT NULL,
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		phase TEXT,
		payload BLOB NOT NULL,
		error TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_investigations_user
		ON investigations(user_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveInvestigation(ctx context.Context, result *models.InvestigationResult) error {
	row, err := toRow(result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO investigations (id, user_id, session_id, query, status, progress,
			phase, payload, error, created_at, started_at, completed_at, duration_ms)
		VALUES (:id, :user_id, :session_id, :query, :status, :progress,
			:phase, :payload, :error, :created_at, :started_at, :completed_at, :duration_ms)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			phase = excluded.phase,
			payload = excluded.payload,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms
	`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("save investigation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetInvestigation(ctx context.Context, id string) (*models.InvestigationResult, error) {
	var row investigationRow
	query := `SELECT * FROM investigations WHERE id = ?`

	err := s.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get investigation: %w", err)
	}
	return fromRow(&row)
}

func (s *SQLiteStore) ListInvestigations(ctx context.Context, userID string, limit int) ([]*models.InvestigationResult, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []investigationRow
	query := `SELECT * FROM investigations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`

	if err := s.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}

	results := make([]*models.InvestigationResult, 0, len(rows))
	for i := range rows {
		result, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
