package hql

import (
	"fmt"
	"strings"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// EventQuery is one event's compiled contribution to a query: the resolved
// event, its source database, and the compiled projection and filters.
type EventQuery struct {
	Event       models.Event
	OdsDB       string
	Fields      []CompiledField
	Predicates  []Predicate
	CustomWhere string
	// HasDSFilter suppresses the implicit partition predicate when the
	// caller already filtered on ds literally.
	HasDSFilter bool
}

// Assemble combines compiled event queries into the final HQL text for the
// given mode and frames it as a view definition when out is set.
func Assemble(mode models.GenerateMode, queries []EventQuery, joins []models.JoinSpec, out *models.OutputSpec) (string, error) {
	if len(queries) == 0 {
		return "", apperrors.Validationf("at least one event is required")
	}

	var sel string
	var err error
	switch mode {
	case models.ModeSingle:
		if len(queries) != 1 {
			return "", apperrors.Validationf("single mode requires exactly one event, got %d", len(queries))
		}
		sel, err = assembleSingle(queries[0])
	case models.ModeUnion:
		sel, err = assembleUnion(queries)
	case models.ModeJoin:
		sel, err = assembleJoin(queries, joins)
	default:
		return "", apperrors.Validationf("unknown generation mode %q", mode)
	}
	if err != nil {
		return "", err
	}

	return frameOutput(sel, out), nil
}

// DefaultMode selects the mode when the caller leaves it unset: single for
// one event, union otherwise.
func DefaultMode(eventCount int) models.GenerateMode {
	if eventCount == 1 {
		return models.ModeSingle
	}
	return models.ModeUnion
}

func assembleSingle(q EventQuery) (string, error) {
	if len(q.Fields) == 0 {
		return "", apperrors.Validationf("event %q has no fields to project", q.Event.Name)
	}
	return buildSelect(q, q.Fields), nil
}

// assembleUnion emits the CTE envelope mandated for union output. All events
// must agree on the projected alias set; the intersection is ordered by the
// first event's declaration.
func assembleUnion(queries []EventQuery) (string, error) {
	if len(queries) < 2 {
		return "", apperrors.Validationf("union mode requires at least two events")
	}

	queries, err := reconcileUnionFields(queries)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("WITH ")
	for i, q := range queries {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "event%d AS (\n", i+1)
		b.WriteString(indent(buildSelect(q, q.Fields), "  "))
		b.WriteString("\n)")
	}
	b.WriteString("\nSELECT * FROM (\n")
	for i := range queries {
		if i > 0 {
			b.WriteString("  UNION ALL\n")
		}
		fmt.Fprintf(&b, "  SELECT * FROM event%d\n", i+1)
	}
	b.WriteString(") unioned")

	return b.String(), nil
}

// reconcileUnionFields applies the union field policy: all-empty field lists
// fall back to the reserved base columns, a mix of empty and explicit lists
// is a user error, and explicit lists are restricted to the alias
// intersection across events.
func reconcileUnionFields(queries []EventQuery) ([]EventQuery, error) {
	empty := 0
	for _, q := range queries {
		if len(q.Fields) == 0 {
			empty++
		}
	}

	if empty == len(queries) {
		base, err := baseFieldSet()
		if err != nil {
			return nil, err
		}
		out := make([]EventQuery, len(queries))
		for i, q := range queries {
			q.Fields = base
			out[i] = q
		}
		return out, nil
	}

	if empty > 0 {
		return nil, apperrors.Validationf("all events must declare fields in union mode; %d of %d have an empty field list", empty, len(queries))
	}

	// Alias intersection in first-event declaration order.
	shared := make([]string, 0, len(queries[0].Fields))
	for _, f := range queries[0].Fields {
		inAll := true
		for _, q := range queries[1:] {
			if findByAlias(q.Fields, f.Alias) == nil {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, f.Alias)
		}
	}
	if len(shared) == 0 {
		return nil, apperrors.Validationf("events share no common field aliases; union output would be empty")
	}

	out := make([]EventQuery, len(queries))
	for i, q := range queries {
		fields := make([]CompiledField, 0, len(shared))
		for _, alias := range shared {
			fields = append(fields, *findByAlias(q.Fields, alias))
		}
		q.Fields = fields
		out[i] = q
	}
	return out, nil
}

func assembleJoin(queries []EventQuery, joins []models.JoinSpec) (string, error) {
	if len(queries) < 2 {
		return "", apperrors.Validationf("join mode requires at least two events")
	}
	if len(joins) != len(queries)-1 {
		return "", apperrors.Validationf("join mode requires %d join specifications, got %d", len(queries)-1, len(joins))
	}
	for _, q := range queries {
		if len(q.Fields) == 0 {
			return "", apperrors.Validationf("event %q has no fields to project", q.Event.Name)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	first := true
	for i, q := range queries {
		for _, f := range q.Fields {
			if !first {
				b.WriteString(",\n       ")
			}
			first = false
			fmt.Fprintf(&b, "%s.%s", tableAlias(i), f.AliasIdent())
		}
	}

	b.WriteString("\nFROM (\n")
	b.WriteString(indent(buildSelect(queries[0], queries[0].Fields), "  "))
	b.WriteString("\n) ")
	b.WriteString(tableAlias(0))

	for i := 1; i < len(queries); i++ {
		spec := joins[i-1]
		keyword, err := joinKeyword(spec.Type)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(&b, "\n%s (\n", keyword)
		b.WriteString(indent(buildSelect(queries[i], queries[i].Fields), "  "))
		b.WriteString("\n) ")
		b.WriteString(tableAlias(i))

		if spec.Type == models.JoinCross {
			continue
		}
		if len(spec.Conditions) == 0 {
			return "", apperrors.Validationf("join between %q and %q has no conditions", queries[i-1].Event.Name, queries[i].Event.Name)
		}

		b.WriteString(" ON ")
		for j, cond := range spec.Conditions {
			if j > 0 {
				b.WriteString(" AND ")
			}
			op := cond.Operator
			if op == "" {
				op = "="
			}
			fmt.Fprintf(&b, "%s.%s %s %s.%s", tableAlias(i-1), cond.LeftField, op, tableAlias(i), cond.RightField)
		}
		if spec.AutoPartition {
			fmt.Fprintf(&b, " AND %s.ds = %s.ds", tableAlias(i-1), tableAlias(i))
		}
	}

	return b.String(), nil
}

// buildSelect renders one event's SELECT including the implicit partition
// and event filters. Aggregated projections get a GROUP BY over the
// non-aggregated expressions.
func buildSelect(q EventQuery, fields []CompiledField) string {
	var b strings.Builder

	b.WriteString("SELECT ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(",\n       ")
		}
		b.WriteString(f.SelectExpr())
	}

	b.WriteString("\nFROM ")
	b.WriteString(q.Event.SourceTable(q.OdsDB))

	b.WriteString("\nWHERE ")
	wrote := false
	if !q.HasDSFilter {
		b.WriteString("ds = '${ds}'")
		wrote = true
	}
	if wrote {
		b.WriteString(" AND ")
	}
	fmt.Fprintf(&b, "event = %s", QuoteString(q.Event.Name))
	if len(q.Predicates) > 0 {
		b.WriteString(" AND ")
		b.WriteString(JoinPredicates(q.Predicates))
	}
	if q.CustomWhere != "" {
		fmt.Fprintf(&b, " AND (%s)", q.CustomWhere)
	}

	if grouping := groupByExprs(fields); grouping != nil {
		b.WriteString("\nGROUP BY ")
		b.WriteString(strings.Join(grouping, ", "))
	}

	return b.String()
}

// groupByExprs returns the non-aggregated expressions when any field is
// aggregated, nil otherwise.
func groupByExprs(fields []CompiledField) []string {
	aggregated := false
	for _, f := range fields {
		if f.Aggregated {
			aggregated = true
			break
		}
	}
	if !aggregated {
		return nil
	}
	var exprs []string
	for _, f := range fields {
		if !f.Aggregated {
			exprs = append(exprs, f.Expr)
		}
	}
	return exprs
}

func frameOutput(sel string, out *models.OutputSpec) string {
	if out == nil || out.Database == "" || out.TableName == "" {
		return sel
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s.%s AS\n%s", out.Database, out.TableName, sel)
}

func baseFieldSet() ([]CompiledField, error) {
	fields := make([]CompiledField, 0, len(models.BaseFields))
	for _, name := range models.BaseFields {
		f, err := CompileField(models.FieldDescriptor{FieldName: name, FieldType: models.FieldTypeBase}, nil)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func findByAlias(fields []CompiledField, alias string) *CompiledField {
	for i := range fields {
		if fields[i].Alias == alias {
			return &fields[i]
		}
	}
	return nil
}

func tableAlias(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return fmt.Sprintf("t%d", i)
}

func joinKeyword(t models.JoinType) (string, error) {
	switch t {
	case models.JoinInner, "":
		return "INNER JOIN", nil
	case models.JoinLeft:
		return "LEFT OUTER JOIN", nil
	case models.JoinRight:
		return "RIGHT OUTER JOIN", nil
	case models.JoinFull:
		return "FULL OUTER JOIN", nil
	case models.JoinCross:
		return "CROSS JOIN", nil
	default:
		return "", apperrors.Validationf("unknown join type %q", t)
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
