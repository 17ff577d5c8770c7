package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/database"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// EventRepository provides data access for raw event types.
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, eventID int64) (*models.Event, error)
	// GetByIDs batch-resolves events; missing ids are simply absent from
	// the result map.
	GetByIDs(ctx context.Context, eventIDs []int64) (map[int64]*models.Event, error)
	ListByGID(ctx context.Context, gid int64) ([]*models.Event, error)
	// Delete removes an event; it fails with a conflict while parameters
	// reference it.
	Delete(ctx context.Context, eventID int64) error
	// HasParameters efficiently checks whether any parameters reference
	// the event.
	HasParameters(ctx context.Context, eventID int64) (bool, error)
}

type eventRepository struct {
	db *database.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *database.DB) EventRepository {
	return &eventRepository{db: db}
}

var _ EventRepository = (*eventRepository)(nil)

const eventColumns = `id, game_gid, event_name, display_name, category, created_at, updated_at`

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now

	sql := `
		INSERT INTO log_events (game_gid, event_name, display_name, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRow(ctx, sql,
		event.GameGID, event.Name, event.DisplayName, event.Category, event.CreatedAt, event.UpdatedAt,
	).Scan(&event.ID)
	if err != nil {
		if translated := translateConstraint(err, fmt.Sprintf("event %q already exists for game %d", event.Name, event.GameGID)); translated != err {
			return translated
		}
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, eventID int64) (*models.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM log_events WHERE id = $1`

	var e models.Event
	err := r.db.QueryRow(ctx, sql, eventID).Scan(
		&e.ID, &e.GameGID, &e.Name, &e.DisplayName, &e.Category, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("event %d", eventID)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return &e, nil
}

func (r *eventRepository) GetByIDs(ctx context.Context, eventIDs []int64) (map[int64]*models.Event, error) {
	if len(eventIDs) == 0 {
		return map[int64]*models.Event{}, nil
	}

	sql := `SELECT ` + eventColumns + ` FROM log_events WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, sql, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-get events: %w", err)
	}
	defer rows.Close()

	events := make(map[int64]*models.Event, len(eventIDs))
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.GameGID, &e.Name, &e.DisplayName, &e.Category, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events[e.ID] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func (r *eventRepository) ListByGID(ctx context.Context, gid int64) ([]*models.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM log_events WHERE game_gid = $1 ORDER BY event_name`

	rows, err := r.db.Query(ctx, sql, gid)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.Event, 0)
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.GameGID, &e.Name, &e.DisplayName, &e.Category, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func (r *eventRepository) Delete(ctx context.Context, eventID int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM log_events WHERE id = $1`, eventID)
	if err != nil {
		if translated := translateConstraint(err, fmt.Sprintf("event %d still has parameters", eventID)); translated != err {
			return translated
		}
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFoundf("event %d", eventID)
	}

	return nil
}

func (r *eventRepository) HasParameters(ctx context.Context, eventID int64) (bool, error) {
	sql := `SELECT 1 FROM event_params WHERE event_id = $1 LIMIT 1`

	var exists int
	err := r.db.QueryRow(ctx, sql, eventID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check event parameters: %w", err)
	}

	return true, nil
}
