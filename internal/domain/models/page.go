package models

import (
	"encoding/json"
	"time"
)

const DefaultSlot = "main"

// Page страница, к которой привязаны блоки и публикации
type Page struct {
	ID        int64     `db:"id" json:"id"`
	Key       string    `db:"key" json:"key"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Block строка черновика страницы. Props непрозрачен для сервиса,
// его интерпретирует только рендерер соответствующего Type.
type Block struct {
	ID        int64           `db:"id" json:"id"`
	PageID    int64           `db:"page_id" json:"page_id"`
	Type      string          `db:"type" json:"type"`
	Props     json.RawMessage `db:"props" json:"props"`
	Slot      string          `db:"slot" json:"slot"`
	Position  int             `db:"position" json:"position"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	Locale    *string         `db:"locale" json:"locale"`
	ValidFrom *time.Time      `db:"valid_from" json:"valid_from"`
	ValidTo   *time.Time      `db:"valid_to" json:"valid_to"`
	Version   int             `db:"version" json:"version"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// BlockPatch частичное обновление блока, nil поля не трогаются
type BlockPatch struct {
	Props    json.RawMessage
	IsActive *bool
}

type BlockPosition struct {
	ID       int64 `json:"id"`
	Position int   `json:"position"`
}

// SnapshotBlock элемент неизменяемого снимка публикации
type SnapshotBlock struct {
	Type      string          `json:"type"`
	Props     json.RawMessage `json:"props"`
	Slot      string          `json:"slot"`
	Position  int             `json:"position"`
	Locale    *string         `json:"locale,omitempty"`
	ValidFrom *time.Time      `json:"valid_from,omitempty"`
	ValidTo   *time.Time      `json:"valid_to,omitempty"`
}

type Publication struct {
	ID          int64           `db:"id" json:"id"`
	PageID      int64           `db:"page_id" json:"page_id"`
	Version     int             `db:"version" json:"version"`
	Snapshot    []SnapshotBlock `db:"snapshot" json:"snapshot"`
	PublishedBy string          `db:"published_by" json:"published_by"`
	PublishedAt time.Time       `db:"published_at" json:"published_at"`
}

// BlockView то, что уходит публичному рендереру
type BlockView struct {
	ID       int64           `json:"id,omitempty"`
	Type     string          `json:"type"`
	Props    json.RawMessage `json:"props"`
	Slot     string          `json:"slot"`
	Position int             `json:"position"`
}

func (b Block) Snapshot() SnapshotBlock {
	return SnapshotBlock{
		Type:      b.Type,
		Props:     b.Props,
		Slot:      b.Slot,
		Position:  b.Position,
		Locale:    b.Locale,
		ValidFrom: b.ValidFrom,
		ValidTo:   b.ValidTo,
	}
}

func (b Block) View() BlockView {
	return BlockView{
		ID:       b.ID,
		Type:     b.Type,
		Props:    b.Props,
		Slot:     b.Slot,
		Position: b.Position,
	}
}

func (s SnapshotBlock) View() BlockView {
	return BlockView{
		Type:     s.Type,
		Props:    s.Props,
		Slot:     s.Slot,
		Position: s.Position,
	}
}

// Visible проверяет локаль и окно действия блока.
// Блок без локали виден в любой локали, открытые границы окна не ограничивают.
func Visible(locale *string, validFrom, validTo *time.Time, requested string, now time.Time) bool {
	if locale != nil && *locale != requested {
		return false
	}
	if validFrom != nil && now.Before(*validFrom) {
		return false
	}
	if validTo != nil && now.After(*validTo) {
		return false
	}
	return true
}
