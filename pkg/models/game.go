package models

import "time"

// Game represents a registered game whose telemetry events feed the warehouse.
// GID is the business identifier used for all cross-references; the surrogate
// ID never leaves the catalog store.
type Game struct {
	ID        int64     `json:"id"`
	GID       int64     `json:"gid"`
	Name      string    `json:"name"`
	OdsDB     string    `json:"ods_db"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
