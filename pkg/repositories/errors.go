package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
)

// Postgres error codes the catalog maps onto domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// translateConstraint maps constraint violations to domain conflicts so that
// callers never see raw driver errors for integrity failures.
func translateConstraint(err error, conflictMsg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation:
			return apperrors.Conflictf("%s", conflictMsg)
		case pgCheckViolation:
			return apperrors.Validationf("%s", conflictMsg)
		}
	}
	return err
}
