package hql

import (
	"fmt"
	"strings"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// Predicate is one rendered WHERE fragment plus the connector that joins it
// to the predicate before it.
type Predicate struct {
	SQL       string
	Connector models.LogicalOp
}

// TemplateResolver looks up the parameter template for a param field by its
// machine name. A nil return means no template is known.
type TemplateResolver func(paramName string) *models.ParamTemplate

// CompileCondition renders one condition into an HQL predicate. The left-hand
// side reuses the field compiler; aggregates are ignored on predicates.
func CompileCondition(cond models.WhereCondition, tmpl *models.ParamTemplate) (string, error) {
	if !cond.Operator.Valid() {
		return "", apperrors.Validationf("unknown operator %q", cond.Operator)
	}

	lhsField := cond.Field
	lhsField.AggregateFunction = ""
	lhs, err := CompileField(lhsField, tmpl)
	if err != nil {
		return "", err
	}

	baseType := lhs.BaseType
	if baseType == "" {
		baseType = models.BaseTypeString
	}

	switch cond.Operator {
	case models.OpIsNull, models.OpIsNotNull:
		return fmt.Sprintf("%s %s", lhs.Expr, cond.Operator), nil

	case models.OpIn, models.OpNotIn:
		if len(cond.Values) == 0 {
			return "", apperrors.Validationf("%s requires at least one value for field %q", cond.Operator, cond.Field.FieldName)
		}
		rendered := make([]string, 0, len(cond.Values))
		for _, v := range cond.Values {
			rendered = append(rendered, renderValue(v, baseType))
		}
		return fmt.Sprintf("%s %s (%s)", lhs.Expr, cond.Operator, strings.Join(rendered, ", ")), nil

	case models.OpBetween, models.OpNotBetween:
		if len(cond.Values) < 2 {
			return "", apperrors.Validationf("%s requires two values for field %q", cond.Operator, cond.Field.FieldName)
		}
		lo := renderValue(cond.Values[0], baseType)
		hi := renderValue(cond.Values[1], baseType)
		return fmt.Sprintf("%s %s %s AND %s", lhs.Expr, cond.Operator, lo, hi), nil

	case models.OpLike:
		if len(cond.Values) == 0 {
			return "", apperrors.Validationf("LIKE requires a value for field %q", cond.Field.FieldName)
		}
		pattern := fmt.Sprintf("%%%s%%", rawValue(cond.Values[0]))
		return fmt.Sprintf("%s LIKE %s", lhs.Expr, QuoteString(pattern)), nil

	default:
		if len(cond.Values) == 0 {
			return "", apperrors.Validationf("operator %s requires a value for field %q", cond.Operator, cond.Field.FieldName)
		}
		return fmt.Sprintf("%s %s %s", lhs.Expr, cond.Operator, renderValue(cond.Values[0], baseType)), nil
	}
}

// CompileConditions renders a condition list left-to-right. It also reports
// whether the caller filtered on the ds partition column literally, which
// suppresses the implicit partition predicate.
func CompileConditions(conds []models.WhereCondition, resolve TemplateResolver) ([]Predicate, bool, error) {
	preds := make([]Predicate, 0, len(conds))
	hasDSFilter := false

	for _, cond := range conds {
		var tmpl *models.ParamTemplate
		if cond.Field.FieldType == models.FieldTypeParam && resolve != nil {
			tmpl = resolve(cond.Field.FieldName)
		}

		sql, err := CompileCondition(cond, tmpl)
		if err != nil {
			return nil, false, err
		}

		connector := cond.LogicalOp
		if connector == "" {
			connector = models.LogicalAnd
		}

		if cond.Field.FieldType == models.FieldTypeBase && cond.Field.FieldName == "ds" {
			hasDSFilter = true
		}

		preds = append(preds, Predicate{SQL: sql, Connector: connector})
	}

	return preds, hasDSFilter, nil
}

// JoinPredicates folds predicates left-to-right using each predicate's
// declared connector.
func JoinPredicates(preds []Predicate) string {
	var b strings.Builder
	for i, p := range preds {
		if i > 0 {
			b.WriteString(" ")
			b.WriteString(string(p.Connector))
			b.WriteString(" ")
		}
		b.WriteString(p.SQL)
	}
	return b.String()
}

// renderValue renders a literal for the given base type: numeric types are
// unquoted, everything else is single-quoted with embedded quotes doubled.
func renderValue(v any, t models.BaseType) string {
	raw := rawValue(v)
	if t.IsNumeric() || t == models.BaseTypeBoolean {
		return raw
	}
	return QuoteString(raw)
}

// rawValue formats a JSON-decoded value without quoting. Whole floats render
// as integers so that JSON numbers round-trip cleanly.
func rawValue(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	case float32:
		return rawValue(float64(n))
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", v)
	}
}
