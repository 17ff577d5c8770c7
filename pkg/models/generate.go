package models

import "time"

// FieldType discriminates how a requested field is compiled.
type FieldType string

const (
	FieldTypeBase   FieldType = "base"   // direct column of the source view
	FieldTypeParam  FieldType = "param"  // extracted from the params JSON column
	FieldTypeCustom FieldType = "custom" // caller-owned HQL expression
	FieldTypeFixed  FieldType = "fixed"  // string literal
)

// Valid reports whether t is a recognized field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeBase, FieldTypeParam, FieldTypeCustom, FieldTypeFixed:
		return true
	}
	return false
}

// BaseFields are the columns universally understood as direct columns of the
// source view. Any other field not declared custom/fixed lives inside the
// params JSON column.
var BaseFields = []string{"ds", "role_id", "account_id", "utdid", "envinfo", "tm", "ts"}

// IsBaseField reports whether name is one of the reserved base columns.
func IsBaseField(name string) bool {
	for _, f := range BaseFields {
		if f == name {
			return true
		}
	}
	return false
}

// FieldDescriptor is the request-scoped shape of one projected field.
type FieldDescriptor struct {
	FieldName         string    `json:"field_name"`
	FieldType         FieldType `json:"field_type"`
	Alias             string    `json:"alias,omitempty"`
	JSONPath          string    `json:"json_path,omitempty"`
	CustomExpression  string    `json:"custom_expression,omitempty"`
	FixedValue        string    `json:"fixed_value,omitempty"`
	AggregateFunction string    `json:"aggregate_function,omitempty"`
	BaseType          BaseType  `json:"base_type,omitempty"`
}

// Operator is a WHERE condition comparison operator.
type Operator string

const (
	OpEq         Operator = "="
	OpNeq        Operator = "!="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT IN"
	OpBetween    Operator = "BETWEEN"
	OpNotBetween Operator = "NOT BETWEEN"
	OpLike       Operator = "LIKE"
	OpIsNull     Operator = "IS NULL"
	OpIsNotNull  Operator = "IS NOT NULL"
)

// Valid reports whether op is a recognized operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpIn, OpNotIn,
		OpBetween, OpNotBetween, OpLike, OpIsNull, OpIsNotNull:
		return true
	}
	return false
}

// LogicalOp connects a condition to the one before it.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
)

// WhereCondition is one request-scoped filter predicate.
type WhereCondition struct {
	Field     FieldDescriptor `json:"field"`
	Operator  Operator        `json:"operator"`
	Values    []any           `json:"values,omitempty"`
	LogicalOp LogicalOp       `json:"logical_op,omitempty"`
}

// EventRef identifies one event of a generation request.
type EventRef struct {
	GID     int64 `json:"gid"`
	EventID int64 `json:"event_id"`
}

// GenerateMode selects the assembly shape.
type GenerateMode string

const (
	ModeSingle GenerateMode = "single"
	ModeUnion  GenerateMode = "union"
	ModeJoin   GenerateMode = "join"
)

// JoinType is the SQL join flavor of a join specification.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
)

// JoinCondition equates a field of the left input with one of the right.
type JoinCondition struct {
	LeftField  string `json:"left_field"`
	Operator   string `json:"operator,omitempty"`
	RightField string `json:"right_field"`
}

// JoinSpec describes how one additional event joins onto the query.
type JoinSpec struct {
	Type          JoinType        `json:"join_type,omitempty"`
	Conditions    []JoinCondition `json:"conditions"`
	AutoPartition bool            `json:"autoPartition,omitempty"`
}

// OutputSpec frames the assembled SELECT as a view definition when set.
type OutputSpec struct {
	Database  string `json:"database,omitempty"`
	TableName string `json:"table_name,omitempty"`
}

// GenerateOptions tunes a generation request.
type GenerateOptions struct {
	Mode               GenerateMode `json:"mode,omitempty"`
	IncludePerformance *bool        `json:"include_performance,omitempty"`
	IncludeDebug       bool         `json:"include_debug,omitempty"`
	SQLMode            string       `json:"sql_mode,omitempty"` // VIEW, PROCEDURE, CUSTOM
	CustomWhere        string       `json:"custom_where,omitempty"`
	Joins              []JoinSpec   `json:"joins,omitempty"`
	Output             *OutputSpec  `json:"output,omitempty"`
	UserID             string       `json:"-"`
	SessionID          string       `json:"-"`
}

// GenerateRequest is the transport-free request envelope of the core.
// Per-event field lists are supported for union mode; Fields applies to every
// event when EventFields is empty.
type GenerateRequest struct {
	Events          []EventRef          `json:"events"`
	Fields          []FieldDescriptor   `json:"fields"`
	EventFields     [][]FieldDescriptor `json:"event_fields,omitempty"`
	WhereConditions []WhereCondition    `json:"where_conditions,omitempty"`
	Options         GenerateOptions     `json:"options"`
}

// DebugStep records one stage of the compilation pipeline.
type DebugStep struct {
	Name     string `json:"name"`
	Detail   string `json:"detail,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// DebugTrace is attached to artifacts when include_debug is requested.
type DebugTrace struct {
	Steps      []DebugStep `json:"steps"`
	Events     []string    `json:"events,omitempty"`
	Fields     []string    `json:"fields,omitempty"`
	Conditions []string    `json:"conditions,omitempty"`
}

// Artifact is the compiler's output.
type Artifact struct {
	HQL         string            `json:"hql"`
	ViewName    string            `json:"view_name"`
	SourceTable map[string]string `json:"source_tables,omitempty"` // event name -> source table
	GeneratedAt time.Time         `json:"generated_at"`
	Cached      bool              `json:"cached"`
	Debug       *DebugTrace       `json:"debug,omitempty"`
}
