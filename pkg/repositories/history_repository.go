package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ieu-analytics/event2table/pkg/database"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// HistoryRepository appends generation records. The core never reads its own
// history; the listing methods exist for the surrounding application.
type HistoryRepository interface {
	Append(ctx context.Context, record *models.HQLHistory) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.HQLHistory, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.HQLHistory, error)
}

type historyRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *database.DB) HistoryRepository {
	return &historyRepository{db: db}
}

var _ HistoryRepository = (*historyRepository)(nil)

func (r *historyRepository) Append(ctx context.Context, record *models.HQLHistory) error {
	record.ID = uuid.New()
	record.CreatedAt = time.Now()

	sql := `
		INSERT INTO hql_history (
			id, user_id, session_id, events_json, fields_json, conditions_json,
			mode, hql, performance_score, metadata_json, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, sql,
		record.ID, record.UserID, record.SessionID,
		record.EventsJSON, record.FieldsJSON, record.ConditionsJSON,
		record.Mode, record.HQL, record.PerformanceScore, record.MetadataJSON, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	return nil
}

const historyColumns = `id, user_id, session_id, events_json, fields_json, conditions_json,
	       mode, hql, performance_score, metadata_json, created_at`

func (r *historyRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.HQLHistory, error) {
	sql := `
		SELECT ` + historyColumns + `
		FROM hql_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryHistory(ctx, sql, userID, normalizeLimit(limit))
}

func (r *historyRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.HQLHistory, error) {
	sql := `
		SELECT ` + historyColumns + `
		FROM hql_history
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryHistory(ctx, sql, sessionID, normalizeLimit(limit))
}

func (r *historyRepository) queryHistory(ctx context.Context, sql string, args ...any) ([]*models.HQLHistory, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	records := make([]*models.HQLHistory, 0)
	for rows.Next() {
		var h models.HQLHistory
		if err := rows.Scan(
			&h.ID, &h.UserID, &h.SessionID, &h.EventsJSON, &h.FieldsJSON, &h.ConditionsJSON,
			&h.Mode, &h.HQL, &h.PerformanceScore, &h.MetadataJSON, &h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		records = append(records, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return records, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
