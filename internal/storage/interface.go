// Package storage persists finalized investigation results. The aggregator
// is its only caller.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentinela-br/sentinela/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Store defines the storage interface
type Store interface {
	SaveInvestigation(ctx context.Context, result *models.InvestigationResult) error
	GetInvestigation(ctx context.Context, id string) (*models.InvestigationResult, error)
	ListInvestigations(ctx context.Context, userID string, limit int) ([]*models.InvestigationResult, error)
	Close() error
}

// investigationRow is the persisted shape. The analytical payload
// (entities, stage results, graph, anomalies, metadata) travels as one
// JSON document; the query/lifecycle columns stay relational so status
// lookups and per-user listings never parse the payload.
type investigationRow struct {
	ID          string     `db:"id"`
	UserID      string     `db:"user_id"`
	SessionID   string     `db:"session_id"`
	Query       string     `db:"query"`
	Status      string     `db:"status"`
	Progress    float64    `db:"progress"`
	Phase       string     `db:"phase"`
	Payload     []byte     `db:"payload"`
	Error       *string    `db:"error"`
	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	DurationMS  int64      `db:"duration_ms"`
}

func toRow(result *models.InvestigationResult) (*investigationRow, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal investigation payload: %w", err)
	}
	row := &investigationRow{
		ID:          result.InvestigationID,
		UserID:      result.UserID,
		SessionID:   result.SessionID,
		Query:       result.Query,
		Status:      string(result.Status),
		Progress:    result.Progress,
		Phase:       string(result.Phase),
		Payload:     payload,
		CreatedAt:   result.CreatedAt,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		DurationMS:  result.Duration.Milliseconds(),
	}
	if result.Error != "" {
		row.Error = &result.Error
	}
	return row, nil
}

func fromRow(row *investigationRow) (*models.InvestigationResult, error) {
	var result models.InvestigationResult
	if err := json.Unmarshal(row.Payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal investigation payload: %w", err)
	}
	// The relational columns are authoritative for lifecycle fields
	result.InvestigationID = row.ID
	result.Status = models.InvestigationStatus(row.Status)
	result.Progress = row.Progress
	result.Phase = models.Phase(row.Phase)
	return &result, nil
}
