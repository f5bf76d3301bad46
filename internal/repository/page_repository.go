package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"content_blocks/internal/domain/models"
	"content_blocks/internal/storage"
	"content_blocks/internal/storage/postgresql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const pgUniqueViolation = "23505"

var blockColumns = []string{
	"id", "page_id", "type", "props", "slot", "position",
	"is_active", "locale", "valid_from", "valid_to", "version", "created_at",
}

type scanner interface {
	Scan(dest ...interface{}) error
}

type PageRepo struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewPageRepository(db *pgxpool.Pool) *PageRepo {
	return &PageRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *PageRepo) GetPageByKey(ctx context.Context, key string) (*models.Page, error) {
	const op = "repository.page_repository.GetPageByKey"

	return r.getPage(ctx, op, sq.Eq{"key": key})
}

func (r *PageRepo) GetPageByID(ctx context.Context, id int64) (*models.Page, error) {
	const op = "repository.page_repository.GetPageByID"

	return r.getPage(ctx, op, sq.Eq{"id": id})
}

func (r *PageRepo) getPage(ctx context.Context, op string, where sq.Eq) (*models.Page, error) {
	query, args, err := r.sb.Select("id", "key", "created_at").
		From(postgresql.PagesTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var page models.Page
	err = r.db.QueryRow(ctx, query, args...).Scan(&page.ID, &page.Key, &page.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrPageNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &page, nil
}

// EnsurePage возвращает страницу по ключу, создавая ее при первом обращении
func (r *PageRepo) EnsurePage(ctx context.Context, key string) (*models.Page, error) {
	const op = "repository.page_repository.EnsurePage"

	query, args, err := r.sb.Insert(postgresql.PagesTable).
		Columns("key").
		Values(key).
		Suffix("ON CONFLICT (key) DO UPDATE SET key = EXCLUDED.key RETURNING id, key, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var page models.Page
	if err := r.db.QueryRow(ctx, query, args...).Scan(&page.ID, &page.Key, &page.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &page, nil
}

func (r *PageRepo) ListBlocks(ctx context.Context, pageID int64, activeOnly bool) ([]models.Block, error) {
	const op = "repository.page_repository.ListBlocks"

	builder := r.sb.Select(blockColumns...).
		From(postgresql.BlocksTable).
		Where(sq.Eq{"page_id": pageID})

	if activeOnly {
		builder = builder.Where(sq.Eq{"is_active": true})
	}

	query, args, err := builder.OrderBy("position ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	blocks := make([]models.Block, 0)
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		blocks = append(blocks, *block)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return blocks, nil
}

func (r *PageRepo) UpdateBlock(ctx context.Context, pageID, blockID int64, patch models.BlockPatch) (*models.Block, error) {
	const op = "repository.page_repository.UpdateBlock"

	builder := r.sb.Update(postgresql.BlocksTable).
		Where(sq.Eq{"id": blockID, "page_id": pageID})

	if patch.Props != nil {
		builder = builder.Set("props", []byte(patch.Props))
	}
	if patch.IsActive != nil {
		builder = builder.Set("is_active", *patch.IsActive)
	}
	if patch.Props == nil && patch.IsActive == nil {
		return nil, fmt.Errorf("%s: no fields to update", op)
	}

	query, args, err := builder.Suffix("RETURNING " + strings.Join(blockColumns, ", ")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	block, err := scanBlock(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrBlockNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return block, nil
}

// ReorderBlocks проставляет position = index*10 в одной транзакции.
// Чужой или отсутствующий id откатывает всю перестановку.
func (r *PageRepo) ReorderBlocks(ctx context.Context, pageID int64, blockIDs []int64) ([]models.BlockPosition, error) {
	const op = "repository.page_repository.ReorderBlocks"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %s %w", op, err)
	}
	defer tx.Rollback(ctx)

	items := make([]models.BlockPosition, 0, len(blockIDs))
	for i, id := range blockIDs {
		position := i * 10

		query, args, err := r.sb.Update(postgresql.BlocksTable).
			Set("position", position).
			Where(sq.Eq{"id": id, "page_id": pageID}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%s: block %d: %w", op, id, storage.ErrBlockNotFound)
		}

		items = append(items, models.BlockPosition{ID: id, Position: position})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s failed to commit transaction: %w", op, err)
	}

	return items, nil
}

// ReplaceBlocks деактивирует текущие блоки страницы и вставляет новые активные строки.
// Используется импортом и откатом, выполняется одной транзакцией.
func (r *PageRepo) ReplaceBlocks(ctx context.Context, pageID int64, blocks []models.Block) (int, error) {
	const op = "repository.page_repository.ReplaceBlocks"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %s %w", op, err)
	}
	defer tx.Rollback(ctx)

	query, args, err := r.sb.Update(postgresql.BlocksTable).
		Set("is_active", false).
		Where(sq.Eq{"page_id": pageID, "is_active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("%s: deactivate: %w", op, err)
	}

	if len(blocks) > 0 {
		insert := r.sb.Insert(postgresql.BlocksTable).
			Columns("page_id", "type", "props", "slot", "position", "is_active", "locale", "valid_from", "valid_to", "version")

		for _, b := range blocks {
			insert = insert.Values(
				pageID,
				b.Type,
				[]byte(b.Props),
				b.Slot,
				b.Position,
				true,
				b.Locale,
				b.ValidFrom,
				b.ValidTo,
				b.Version,
			)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("%s: insert: %w", op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s failed to commit transaction: %w", op, err)
	}

	return len(blocks), nil
}

// CreatePublication вычисляет следующую версию внутри того же INSERT.
// Гонка двух публикаций упирается в UNIQUE(page_id, version) и возвращает ErrVersionConflict.
func (r *PageRepo) CreatePublication(ctx context.Context, pageID int64, snapshot []models.SnapshotBlock, publishedBy string) (*models.Publication, error) {
	const op = "repository.page_repository.CreatePublication"

	if snapshot == nil {
		snapshot = []models.SnapshotBlock{}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal snapshot: %w", op, err)
	}

	query, args, err := r.sb.Insert(postgresql.PublicationsTable).
		Columns("page_id", "version", "snapshot", "published_by").
		Values(
			pageID,
			sq.Expr("(SELECT COALESCE(MAX(version), 0) + 1 FROM "+postgresql.PublicationsTable+" WHERE page_id = ?)", pageID),
			data,
			publishedBy,
		).
		Suffix("RETURNING id, version, published_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pub := models.Publication{
		PageID:      pageID,
		Snapshot:    snapshot,
		PublishedBy: publishedBy,
	}

	err = r.db.QueryRow(ctx, query, args...).Scan(&pub.ID, &pub.Version, &pub.PublishedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrVersionConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &pub, nil
}

// LatestPublications возвращает публикации от новой к старой, limit <= 0 означает все
func (r *PageRepo) LatestPublications(ctx context.Context, pageID int64, limit int) ([]models.Publication, error) {
	const op = "repository.page_repository.LatestPublications"

	builder := r.sb.Select("id", "page_id", "version", "snapshot", "published_by", "published_at").
		From(postgresql.PublicationsTable).
		Where(sq.Eq{"page_id": pageID}).
		OrderBy("version DESC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	pubs := make([]models.Publication, 0)
	for rows.Next() {
		var (
			pub  models.Publication
			data []byte
		)

		if err := rows.Scan(&pub.ID, &pub.PageID, &pub.Version, &data, &pub.PublishedBy, &pub.PublishedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if err := json.Unmarshal(data, &pub.Snapshot); err != nil {
			return nil, fmt.Errorf("%s: decode snapshot v%d: %w", op, pub.Version, err)
		}

		pubs = append(pubs, pub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pubs, nil
}

func scanBlock(row scanner) (*models.Block, error) {
	var (
		block models.Block
		props []byte
	)

	err := row.Scan(
		&block.ID,
		&block.PageID,
		&block.Type,
		&props,
		&block.Slot,
		&block.Position,
		&block.IsActive,
		&block.Locale,
		&block.ValidFrom,
		&block.ValidTo,
		&block.Version,
		&block.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	block.Props = json.RawMessage(props)

	return &block, nil
}
