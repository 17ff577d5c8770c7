package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/database"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// FlowRepository provides data access for saved canvases.
type FlowRepository interface {
	// Save creates the flow when its id is nil and upserts otherwise.
	Save(ctx context.Context, flow *models.Flow) error
	GetByID(ctx context.Context, flowID uuid.UUID) (*models.Flow, error)
	ListByGID(ctx context.Context, gid int64) ([]*models.Flow, error)
	Delete(ctx context.Context, flowID uuid.UUID) error
}

type flowRepository struct {
	db *database.DB
}

// NewFlowRepository creates a new FlowRepository.
func NewFlowRepository(db *database.DB) FlowRepository {
	return &flowRepository{db: db}
}

var _ FlowRepository = (*flowRepository)(nil)

func (r *flowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now()
	if flow.ID == uuid.Nil {
		flow.ID = uuid.New()
		flow.CreatedAt = now
	}
	flow.UpdatedAt = now

	graph, err := json.Marshal(flow.Graph)
	if err != nil {
		return fmt.Errorf("failed to encode flow graph: %w", err)
	}

	sql := `
		INSERT INTO flows (id, gid, name, graph, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    graph = EXCLUDED.graph,
		    updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, sql, flow.ID, flow.GID, flow.Name, graph, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		if translated := translateConstraint(err, fmt.Sprintf("flow references unknown game %d", flow.GID)); translated != err {
			return translated
		}
		return fmt.Errorf("failed to save flow: %w", err)
	}

	return nil
}

func (r *flowRepository) GetByID(ctx context.Context, flowID uuid.UUID) (*models.Flow, error) {
	sql := `
		SELECT id, gid, name, graph, created_at, updated_at
		FROM flows
		WHERE id = $1`

	var f models.Flow
	var graph []byte
	err := r.db.QueryRow(ctx, sql, flowID).Scan(&f.ID, &f.GID, &f.Name, &graph, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("flow %s", flowID)
		}
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}
	if err := json.Unmarshal(graph, &f.Graph); err != nil {
		return nil, fmt.Errorf("failed to decode flow graph: %w", err)
	}

	return &f, nil
}

func (r *flowRepository) ListByGID(ctx context.Context, gid int64) ([]*models.Flow, error) {
	sql := `
		SELECT id, gid, name, graph, created_at, updated_at
		FROM flows
		WHERE gid = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, sql, gid)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	flows := make([]*models.Flow, 0)
	for rows.Next() {
		var f models.Flow
		var graph []byte
		if err := rows.Scan(&f.ID, &f.GID, &f.Name, &graph, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		if err := json.Unmarshal(graph, &f.Graph); err != nil {
			return nil, fmt.Errorf("failed to decode flow graph: %w", err)
		}
		flows = append(flows, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func (r *flowRepository) Delete(ctx context.Context, flowID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM flows WHERE id = $1`, flowID)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFoundf("flow %s", flowID)
	}

	return nil
}
