package models

import "time"

const (
	AuditEntityPage = "page"
	AuditEntityUser = "user"
)

type AuditRecord struct {
	ID        int64          `db:"id" json:"id"`
	Entity    string         `db:"entity" json:"entity"`
	EntityID  string         `db:"entity_id" json:"entity_id"`
	Action    string         `db:"action" json:"action"`
	ActorID   string         `db:"actor_id" json:"actor_id"`
	Diff      map[string]any `db:"diff" json:"diff,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
