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

// GameRepository provides data access for registered games. All lookups key
// on the business gid, never on the surrogate id.
type GameRepository interface {
	Create(ctx context.Context, game *models.Game) error
	GetByGID(ctx context.Context, gid int64) (*models.Game, error)
	List(ctx context.Context) ([]*models.Game, error)
	UpdateName(ctx context.Context, gid int64, name string) error
	// Delete removes a game; it fails with a conflict while dependent
	// events exist.
	Delete(ctx context.Context, gid int64) error
	// HasEvents efficiently checks whether any events reference the game.
	HasEvents(ctx context.Context, gid int64) (bool, error)
}

type gameRepository struct {
	db *database.DB
}

// NewGameRepository creates a new GameRepository.
func NewGameRepository(db *database.DB) GameRepository {
	return &gameRepository{db: db}
}

var _ GameRepository = (*gameRepository)(nil)

func (r *gameRepository) Create(ctx context.Context, game *models.Game) error {
	now := time.Now()
	game.CreatedAt = now
	game.UpdatedAt = now

	sql := `
		INSERT INTO games (gid, name, ods_db, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, sql, game.GID, game.Name, game.OdsDB, game.CreatedAt, game.UpdatedAt).Scan(&game.ID)
	if err != nil {
		if translated := translateConstraint(err, fmt.Sprintf("game with gid %d already exists", game.GID)); translated != err {
			return translated
		}
		return fmt.Errorf("failed to create game: %w", err)
	}

	return nil
}

func (r *gameRepository) GetByGID(ctx context.Context, gid int64) (*models.Game, error) {
	sql := `
		SELECT id, gid, name, ods_db, created_at, updated_at
		FROM games
		WHERE gid = $1`

	var g models.Game
	err := r.db.QueryRow(ctx, sql, gid).Scan(&g.ID, &g.GID, &g.Name, &g.OdsDB, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("game %d", gid)
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return &g, nil
}

func (r *gameRepository) List(ctx context.Context) ([]*models.Game, error) {
	sql := `
		SELECT id, gid, name, ods_db, created_at, updated_at
		FROM games
		ORDER BY gid`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	games := make([]*models.Game, 0)
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.GID, &g.Name, &g.OdsDB, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	return games, nil
}

func (r *gameRepository) UpdateName(ctx context.Context, gid int64, name string) error {
	sql := `
		UPDATE games
		SET name = $2, updated_at = NOW()
		WHERE gid = $1`

	result, err := r.db.Exec(ctx, sql, gid, name)
	if err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFoundf("game %d", gid)
	}

	return nil
}

func (r *gameRepository) Delete(ctx context.Context, gid int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM games WHERE gid = $1`, gid)
	if err != nil {
		if translated := translateConstraint(err, fmt.Sprintf("game %d still has events", gid)); translated != err {
			return translated
		}
		return fmt.Errorf("failed to delete game: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFoundf("game %d", gid)
	}

	return nil
}

func (r *gameRepository) HasEvents(ctx context.Context, gid int64) (bool, error) {
	sql := `SELECT 1 FROM log_events WHERE game_gid = $1 LIMIT 1`

	var exists int
	err := r.db.QueryRow(ctx, sql, gid).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check game events: %w", err)
	}

	return true, nil
}
