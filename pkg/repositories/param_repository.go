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

// ParamRepository provides data access for parameter templates and the
// per-event parameter bindings that reference them.
type ParamRepository interface {
	CreateTemplate(ctx context.Context, tmpl *models.ParamTemplate) error
	GetTemplate(ctx context.Context, templateID int64) (*models.ParamTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.ParamTemplate, error)

	CreateParam(ctx context.Context, param *models.EventParam) error
	ListByEvent(ctx context.Context, eventID int64) ([]*models.EventParam, error)
	// ListByEvents batch-loads active bindings for a set of events.
	ListByEvents(ctx context.Context, eventIDs []int64) ([]*models.EventParam, error)
	// TemplatesByIDs batch-resolves templates for compilation.
	TemplatesByIDs(ctx context.Context, templateIDs []int64) (map[int64]*models.ParamTemplate, error)
	DeleteParam(ctx context.Context, paramID int64) error
}

type paramRepository struct {
	db *database.DB
}

// NewParamRepository creates a new ParamRepository.
func NewParamRepository(db *database.DB) ParamRepository {
	return &paramRepository{db: db}
}

var _ ParamRepository = (*paramRepository)(nil)

func (r *paramRepository) CreateTemplate(ctx context.Context, tmpl *models.ParamTemplate) error {
	now := time.Now()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now

	sql := `
		INSERT INTO param_templates (name, base_type, hql_template, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, sql, tmpl.Name, tmpl.BaseType, tmpl.HQLTemplate, tmpl.CreatedAt, tmpl.UpdatedAt).Scan(&tmpl.ID)
	if err != nil {
		if translated := translateConstraint(err, fmt.Sprintf("template %q already exists", tmpl.Name)); translated != err {
			return translated
		}
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

func (r *paramRepository) GetTemplate(ctx context.Context, templateID int64) (*models.ParamTemplate, error) {
	sql := `
		SELECT id, name, base_type, hql_template, created_at, updated_at
		FROM param_templates
		WHERE id = $1`

	var t models.ParamTemplate
	err := r.db.QueryRow(ctx, sql, templateID).Scan(&t.ID, &t.Name, &t.BaseType, &t.HQLTemplate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("template %d", templateID)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return &t, nil
}

func (r *paramRepository) ListTemplates(ctx context.Context) ([]*models.ParamTemplate, error) {
	sql := `
		SELECT id, name, base_type, hql_template, created_at, updated_at
		FROM param_templates
		ORDER BY name`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := make([]*models.ParamTemplate, 0)
	for rows.Next() {
		var t models.ParamTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.BaseType, &t.HQLTemplate, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

func (r *paramRepository) CreateParam(ctx context.Context, param *models.EventParam) error {
	now := time.Now()
	param.CreatedAt = now
	param.UpdatedAt = now
	if param.Version == 0 {
		param.Version = 1
	}

	sql := `
		INSERT INTO event_params (event_id, param_name, display_name, template_id, json_path, active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRow(ctx, sql,
		param.EventID, param.Name, param.DisplayName, param.TemplateID,
		param.JSONPath, param.Active, param.Version, param.CreatedAt, param.UpdatedAt,
	).Scan(&param.ID)
	if err != nil {
		if translated := translateConstraint(err, fmt.Sprintf("parameter %q already exists for event %d", param.Name, param.EventID)); translated != err {
			return translated
		}
		return fmt.Errorf("failed to create parameter: %w", err)
	}

	return nil
}

const paramColumns = `id, event_id, param_name, display_name, template_id, json_path, active, version, created_at, updated_at`

func (r *paramRepository) ListByEvent(ctx context.Context, eventID int64) ([]*models.EventParam, error) {
	sql := `SELECT ` + paramColumns + ` FROM event_params WHERE event_id = $1 ORDER BY param_name`
	return r.queryParams(ctx, sql, eventID)
}

func (r *paramRepository) ListByEvents(ctx context.Context, eventIDs []int64) ([]*models.EventParam, error) {
	if len(eventIDs) == 0 {
		return []*models.EventParam{}, nil
	}
	sql := `SELECT ` + paramColumns + ` FROM event_params WHERE event_id = ANY($1) AND active ORDER BY event_id, param_name`
	return r.queryParams(ctx, sql, eventIDs)
}

func (r *paramRepository) TemplatesByIDs(ctx context.Context, templateIDs []int64) (map[int64]*models.ParamTemplate, error) {
	if len(templateIDs) == 0 {
		return map[int64]*models.ParamTemplate{}, nil
	}

	sql := `
		SELECT id, name, base_type, hql_template, created_at, updated_at
		FROM param_templates
		WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, sql, templateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-get templates: %w", err)
	}
	defer rows.Close()

	templates := make(map[int64]*models.ParamTemplate, len(templateIDs))
	for rows.Next() {
		var t models.ParamTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.BaseType, &t.HQLTemplate, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates[t.ID] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

func (r *paramRepository) DeleteParam(ctx context.Context, paramID int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM event_params WHERE id = $1`, paramID)
	if err != nil {
		return fmt.Errorf("failed to delete parameter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFoundf("parameter %d", paramID)
	}

	return nil
}

func (r *paramRepository) queryParams(ctx context.Context, sql string, args ...any) ([]*models.EventParam, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list parameters: %w", err)
	}
	defer rows.Close()

	params := make([]*models.EventParam, 0)
	for rows.Next() {
		var p models.EventParam
		if err := rows.Scan(
			&p.ID, &p.EventID, &p.Name, &p.DisplayName, &p.TemplateID,
			&p.JSONPath, &p.Active, &p.Version, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan parameter: %w", err)
		}
		params = append(params, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parameters: %w", err)
	}

	return params, nil
}
