package models

import (
	"fmt"
	"strings"
	"time"
)

// Event represents one raw event type emitted by a game, e.g. "role.online".
// Events are owned by their game's GID, never by the surrogate game id.
type Event struct {
	ID          int64     `json:"id"`
	GameGID     int64     `json:"game_gid"`
	Name        string    `json:"event_name"`
	DisplayName string    `json:"display_name"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SourceTable returns the raw ODS view the event is read from.
func (e *Event) SourceTable(odsDB string) string {
	return fmt.Sprintf("%s.ods_%d_all_view", odsDB, e.GameGID)
}

// TargetTable returns the derived DWD view name for the event. Dots in the
// event name become underscores. The ieu_ods source database maps to the
// ieu_cdm warehouse schema; any other source keeps its own schema.
func (e *Event) TargetTable(odsDB string) string {
	prefix := odsDB
	if odsDB == "ieu_ods" {
		prefix = "ieu_cdm"
	}
	sanitized := strings.ReplaceAll(e.Name, ".", "_")
	return fmt.Sprintf("%s.v_dwd_%d_%s_di", prefix, e.GameGID, sanitized)
}
