package models

import (
	"time"

	"github.com/google/uuid"
)

// HQLHistory is one append-only record of a generation. Writes are
// best-effort; a failed append never fails the generation itself.
type HQLHistory struct {
	ID               uuid.UUID `json:"id"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	EventsJSON       string    `json:"events_json"`
	FieldsJSON       string    `json:"fields_json"`
	ConditionsJSON   string    `json:"conditions_json"`
	Mode             string    `json:"mode"`
	HQL              string    `json:"hql"`
	PerformanceScore *int      `json:"performance_score,omitempty"`
	MetadataJSON     *string   `json:"metadata_json,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
