package repository

import (
	"context"
	"time"

	"content_blocks/internal/domain/models"

	"github.com/google/uuid"
)

type UserRepository interface {
	SaveUser(ctx context.Context, user models.User) (uuid.UUID, error)
	UserByIdentifier(ctx context.Context, identifier string) (models.User, error)
	GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateRole(ctx context.Context, userID uuid.UUID, role models.Role) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID) error
}

type TokenRepository interface {
	SaveRefreshToken(ctx context.Context, userID, token string, exp time.Duration) error
	GetRefreshToken(ctx context.Context, userID, token string) (bool, error)
	DeleteRefreshToken(ctx context.Context, userID, token string) error
	DeleteAllUserTokens(ctx context.Context, userID string) error
}

// PageRepository хранилище страниц, блоков черновика и публикаций.
// ReplaceBlocks и ReorderBlocks атомарны: либо применяются целиком, либо никак.
type PageRepository interface {
	GetPageByKey(ctx context.Context, key string) (*models.Page, error)
	GetPageByID(ctx context.Context, id int64) (*models.Page, error)
	EnsurePage(ctx context.Context, key string) (*models.Page, error)

	ListBlocks(ctx context.Context, pageID int64, activeOnly bool) ([]models.Block, error)
	UpdateBlock(ctx context.Context, pageID, blockID int64, patch models.BlockPatch) (*models.Block, error)
	ReorderBlocks(ctx context.Context, pageID int64, blockIDs []int64) ([]models.BlockPosition, error)
	ReplaceBlocks(ctx context.Context, pageID int64, blocks []models.Block) (int, error)

	CreatePublication(ctx context.Context, pageID int64, snapshot []models.SnapshotBlock, publishedBy string) (*models.Publication, error)
	LatestPublications(ctx context.Context, pageID int64, limit int) ([]models.Publication, error)
}

type AuditRepository interface {
	SaveAudit(ctx context.Context, record models.AuditRecord) error
	ListAudit(ctx context.Context, entity, entityID string, limit int) ([]models.AuditRecord, error)
}
