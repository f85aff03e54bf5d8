package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/sentinela-br/sentinela/internal/models"
)

// PostgresStore implements storage using PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore creates a new PostgreSQL storage
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveInvestigation(ctx context.Context, result *models.InvestigationResult) error {
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
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			phase = EXCLUDED.phase,
			payload = EXCLUDED.payload,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms
	`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("save investigation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"investigation_id": result.InvestigationID,
		"status":           result.Status,
	}).Debug("investigation persisted")
	return nil
}

func (s *PostgresStore) GetInvestigation(ctx context.Context, id string) (*models.InvestigationResult, error) {
	var row investigationRow
	query := `SELECT * FROM investigations WHERE id = $1`

	err := s.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get investigation: %w", err)
	}
	return fromRow(&row)
}

func (s *PostgresStore) ListInvestigations(ctx context.Context, userID string, limit int) ([]*models.InvestigationResult, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []investigationRow
	query := `SELECT * FROM investigations WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

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
