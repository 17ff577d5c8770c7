package hql

import (
	"fmt"
	"strings"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// CompiledField is one column expression ready for projection, together with
// the metadata the assembler needs for alias reconciliation.
type CompiledField struct {
	Expr       string
	Name       string
	Alias      string
	Type       models.FieldType
	BaseType   models.BaseType
	Aggregated bool
}

// SelectExpr renders the projection item. Base columns whose alias matches
// the raw column name are projected bare; everything else carries an AS
// clause, with param and custom aliases wrapped in backticks.
func (f CompiledField) SelectExpr() string {
	if f.Type == models.FieldTypeBase && !f.Aggregated && f.Expr == f.Alias {
		return f.Expr
	}
	return f.Expr + " AS " + f.AliasIdent()
}

// AliasIdent renders the alias with the escaping rules of the field type.
func (f CompiledField) AliasIdent() string {
	if f.Type == models.FieldTypeParam || f.Type == models.FieldTypeCustom {
		return BacktickIdent(f.Alias)
	}
	return f.Alias
}

// CompileField translates one field descriptor into an HQL column expression.
// tmpl is the resolved parameter template for param fields and may be nil for
// every other field type.
func CompileField(f models.FieldDescriptor, tmpl *models.ParamTemplate) (CompiledField, error) {
	if !f.FieldType.Valid() {
		return CompiledField{}, apperrors.Validationf("unknown field type %q for field %q", f.FieldType, f.FieldName)
	}

	alias := f.Alias
	if alias == "" {
		alias = f.FieldName
	}
	if alias == "" {
		return CompiledField{}, apperrors.Validationf("field has neither a name nor an alias")
	}

	out := CompiledField{
		Name:     f.FieldName,
		Alias:    alias,
		Type:     f.FieldType,
		BaseType: f.BaseType,
	}

	switch f.FieldType {
	case models.FieldTypeBase:
		if f.FieldName == "" {
			return CompiledField{}, apperrors.Validationf("base field requires a field name")
		}
		out.Expr = f.FieldName
		if out.BaseType == "" {
			out.BaseType = models.BaseTypeString
		}

	case models.FieldTypeParam:
		expr, baseType, err := compileParamExpr(f, tmpl)
		if err != nil {
			return CompiledField{}, err
		}
		out.Expr = expr
		out.BaseType = baseType

	case models.FieldTypeCustom:
		if f.CustomExpression == "" {
			return CompiledField{}, apperrors.Validationf("custom field %q requires an expression", f.FieldName)
		}
		out.Expr = f.CustomExpression
		if out.BaseType == "" {
			out.BaseType = models.BaseTypeString
		}

	case models.FieldTypeFixed:
		literal := f.FixedValue
		if literal == "" {
			literal = f.FieldName
		}
		if literal == "" {
			return CompiledField{}, apperrors.Validationf("fixed field requires a literal value")
		}
		out.Expr = QuoteString(literal)
		out.BaseType = models.BaseTypeString
	}

	if f.AggregateFunction != "" {
		out.Expr = wrapAggregate(f.AggregateFunction, out.Expr)
		out.Aggregated = true
	}

	return out, nil
}

// compileParamExpr builds the get_json_object extraction for a param field.
// The template's hql_template wins when present; otherwise numeric base types
// get a CAST around the extraction.
func compileParamExpr(f models.FieldDescriptor, tmpl *models.ParamTemplate) (string, models.BaseType, error) {
	baseType := f.BaseType
	if baseType == "" && tmpl != nil {
		baseType = tmpl.BaseType
	}
	if baseType == "" {
		return "", "", apperrors.Validationf("param field %q has no resolvable template or base type", f.FieldName)
	}
	if !baseType.Valid() {
		return "", "", apperrors.HQLGenerationf("param field %q resolved to unrecognized base type %q", f.FieldName, baseType)
	}

	if tmpl != nil && tmpl.HQLTemplate != nil && *tmpl.HQLTemplate != "" {
		return *tmpl.HQLTemplate, baseType, nil
	}

	path, err := jsonPathFor(f)
	if err != nil {
		return "", "", apperrors.Validationf("param field %q: %v", f.FieldName, err)
	}

	expr := fmt.Sprintf("get_json_object(params, '%s')", path)
	if cast, ok := CastType(baseType); ok {
		expr = fmt.Sprintf("CAST(%s AS %s)", expr, cast)
	}
	return expr, baseType, nil
}

// wrapAggregate applies an aggregate function template to an expression.
// Unknown functions fall back to FN(expr).
func wrapAggregate(fn, expr string) string {
	switch strings.ToUpper(strings.TrimSpace(fn)) {
	case "COUNT":
		if expr == "*" {
			return "COUNT(*)"
		}
		return fmt.Sprintf("COUNT(%s)", expr)
	case "SUM":
		return fmt.Sprintf("SUM(CAST(%s AS DOUBLE))", expr)
	case "AVG":
		return fmt.Sprintf("AVG(CAST(%s AS DOUBLE))", expr)
	case "MIN":
		return fmt.Sprintf("MIN(%s)", expr)
	case "MAX":
		return fmt.Sprintf("MAX(%s)", expr)
	case "COUNT_DISTINCT", "COUNT DISTINCT":
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr)
	default:
		return fmt.Sprintf("%s(%s)", strings.ToUpper(strings.TrimSpace(fn)), expr)
	}
}
