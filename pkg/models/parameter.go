package models

import "time"

// BaseType is the logical type of a parameter or field.
type BaseType string

const (
	BaseTypeString  BaseType = "string"
	BaseTypeInt     BaseType = "int"
	BaseTypeBigint  BaseType = "bigint"
	BaseTypeFloat   BaseType = "float"
	BaseTypeDecimal BaseType = "decimal"
	BaseTypeBoolean BaseType = "boolean"
	BaseTypeArray   BaseType = "array"
	BaseTypeMap     BaseType = "map"
)

// IsNumeric reports whether values of the type render as unquoted literals.
func (t BaseType) IsNumeric() bool {
	switch t {
	case BaseTypeInt, BaseTypeBigint, BaseTypeFloat, BaseTypeDecimal:
		return true
	}
	return false
}

// Valid reports whether t is one of the recognized base types.
func (t BaseType) Valid() bool {
	switch t {
	case BaseTypeString, BaseTypeInt, BaseTypeBigint, BaseTypeFloat,
		BaseTypeDecimal, BaseTypeBoolean, BaseTypeArray, BaseTypeMap:
		return true
	}
	return false
}

// ParamTemplate is a reusable typed shape for event parameters. When
// HQLTemplate is set it is emitted verbatim instead of the generated
// get_json_object extraction.
type ParamTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	BaseType    BaseType  `json:"base_type"`
	HQLTemplate *string   `json:"hql_template,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventParam attaches a named parameter to an event. (event_id, name) is
// unique per event.
type EventParam struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	Name        string    `json:"param_name"`
	DisplayName string    `json:"display_name"`
	TemplateID  int64     `json:"template_id"`
	JSONPath    *string   `json:"json_path,omitempty"`
	Active      bool      `json:"active"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
