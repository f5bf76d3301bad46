package dto

import (
	"encoding/json"
	"time"

	"content_blocks/internal/domain/models"
)

// BlockInput блок во входящем теле импорта или публикации
type BlockInput struct {
	Type      string          `json:"type" validate:"required,max=100"`
	Props     json.RawMessage `json:"props" swaggertype:"object"`
	Slot      string          `json:"slot" validate:"omitempty,max=50"`
	Position  *int            `json:"position,omitempty"`
	Locale    *string         `json:"locale,omitempty" validate:"omitempty,max=10"`
	ValidFrom *time.Time      `json:"valid_from,omitempty"`
	ValidTo   *time.Time      `json:"valid_to,omitempty"`
}

type ImportBlocksRequest struct {
	Blocks []BlockInput `json:"blocks" validate:"dive"`
}

type ImportBlocksResponse struct {
	OK       bool `json:"ok"`
	Imported int  `json:"imported"`
}

type ExportBlocksResponse struct {
	Blocks []models.Block `json:"blocks"`
}

type ReorderItem struct {
	ID int64 `json:"id" validate:"required,min=1"`
}

type ReorderRequest struct {
	Items []ReorderItem `json:"items" validate:"required,min=1,dive"`
}

func (r ReorderRequest) IDs() []int64 {
	ids := make([]int64, 0, len(r.Items))
	for _, item := range r.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

type ReorderResponse struct {
	Items []models.BlockPosition `json:"items"`
}

// PatchBlockRequest частичное обновление: data заменяет props целиком
type PatchBlockRequest struct {
	Data     json.RawMessage `json:"data,omitempty" swaggertype:"object"`
	IsActive *bool           `json:"is_active,omitempty"`
}

func (r PatchBlockRequest) ToDomain() models.BlockPatch {
	return models.BlockPatch{
		Props:    r.Data,
		IsActive: r.IsActive,
	}
}

// PublishRequest пустой blocks означает снимок текущего черновика
type PublishRequest struct {
	Blocks []BlockInput `json:"blocks" validate:"dive"`
}

type PublishResponse struct {
	OK      bool `json:"ok"`
	Version int  `json:"version"`
}

type RollbackResponse struct {
	OK              bool `json:"ok"`
	RestoredVersion int  `json:"restoredVersion"`
}

type BlocksResponse struct {
	Blocks []models.BlockView `json:"blocks"`
}

type PublicationSummary struct {
	Version     int       `json:"version"`
	PublishedBy string    `json:"published_by"`
	PublishedAt time.Time `json:"published_at"`
	BlockCount  int       `json:"block_count"`
}

type PublicationsResponse struct {
	Publications []PublicationSummary `json:"publications"`
}

type BackupResponse struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
	Size int64  `json:"size"`
}

type AuditResponse struct {
	Records []models.AuditRecord `json:"records"`
}
