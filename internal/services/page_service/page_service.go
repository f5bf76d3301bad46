package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"content_blocks/internal/cache"
	"content_blocks/internal/domain/models"
	"content_blocks/internal/lib/logger/sl"
	"content_blocks/internal/metrics"
	"content_blocks/internal/repository"
	"content_blocks/internal/storage"
	filestorage "content_blocks/internal/storage/filestorage"
	"content_blocks/internal/transport/http/dto"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNoPreviousPublication = errors.New("no previous publication")
	ErrPublishFailed         = errors.New("publish failed")
)

const (
	ActionReorder    = "page.reorder"
	ActionPatchBlock = "page.block.patch"
	ActionImport     = "page.import"
	ActionPublish    = "page.publish"
	ActionRollback   = "page.rollback"
	ActionBackup     = "page.backup"

	positionStep       = 10
	publishMaxAttempts = 5
	maxLocaleLen       = 10
	defaultCacheTTL    = 5 * time.Minute
)

var emptyProps = json.RawMessage(`{}`)

type PageService struct {
	log           *slog.Logger
	pages         repository.PageRepository
	audit         repository.AuditRepository
	cache         cache.RenderCache
	files         filestorage.FileStorage
	defaultLocale string
	cacheTTL      time.Duration
	now           func() time.Time
	retryInterval time.Duration
}

func NewPageService(
	log *slog.Logger,
	pages repository.PageRepository,
	audit repository.AuditRepository,
	renderCache cache.RenderCache,
	files filestorage.FileStorage,
	defaultLocale string,
	cacheTTL time.Duration,
) *PageService {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	if defaultLocale == "" {
		defaultLocale = "en"
	}

	return &PageService{
		log:           log,
		pages:         pages,
		audit:         audit,
		cache:         renderCache,
		files:         files,
		defaultLocale: defaultLocale,
		cacheTTL:      cacheTTL,
		now:           time.Now,
		retryInterval: 50 * time.Millisecond,
	}
}

// Reorder проставляет position = index*10 в переданном порядке.
// Блоки, которых нет в списке, сохраняют прежнюю позицию.
func (s *PageService) Reorder(ctx context.Context, ref string, blockIDs []int64, actor string) ([]models.BlockPosition, error) {
	const op = "page_service.Reorder"
	log := s.log.With(
		slog.String("op", op),
		slog.String("page", ref),
	)

	if len(blockIDs) == 0 {
		log.Warn("empty reorder list")
		return nil, fmt.Errorf("%s: %w: items are required", op, ErrValidation)
	}

	seen := make(map[int64]struct{}, len(blockIDs))
	for _, id := range blockIDs {
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%s: %w: duplicate block id %d", op, ErrValidation, id)
		}
		seen[id] = struct{}{}
	}

	page, err := s.resolvePage(ctx, ref, false)
	if err != nil {
		log.Warn("page not resolved", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items, err := s.pages.ReorderBlocks(ctx, page.ID, blockIDs)
	if err != nil {
		log.Error("failed to reorder blocks", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.recordAudit(ctx, log, page, ActionReorder, actor, map[string]any{"items": items})
	s.invalidate(ctx, log, page)

	log.Info("blocks reordered", slog.Int("count", len(items)))

	return items, nil
}

// PatchBlock частично обновляет props и/или is_active одного блока страницы
func (s *PageService) PatchBlock(ctx context.Context, ref string, blockID int64, req dto.PatchBlockRequest, actor string) (*models.Block, error) {
	const op = "page_service.PatchBlock"
	log := s.log.With(
		slog.String("op", op),
		slog.String("page", ref),
		slog.Int64("block_id", blockID),
	)

	if isNullJSON(req.Data) {
		req.Data = nil
	}
	if req.Data == nil && req.IsActive == nil {
		return nil, fmt.Errorf("%s: %w: nothing to update", op, ErrValidation)
	}
	if req.Data != nil && !json.Valid(req.Data) {
		return nil, fmt.Errorf("%s: %w: data must be valid json", op, ErrValidation)
	}

	page, err := s.resolvePage(ctx, ref, false)
	if err != nil {
		log.Warn("page not resolved", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	block, err := s.pages.UpdateBlock(ctx, page.ID, blockID, req.ToDomain())
	if err != nil {
		log.Error("failed to update block", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	diff := map[string]any{"block_id": blockID}
	if req.Data != nil {
		diff["props"] = req.Data
	}
	if req.IsActive != nil {
		diff["is_active"] = *req.IsActive
	}

	s.recordAudit(ctx, log, page, ActionPatchBlock, actor, diff)
	s.invalidate(ctx, log, page)

	log.Info("block updated")

	return block, nil
}

// ImportBlocks заменяет черновик страницы целиком, это не слияние
func (s *PageService) ImportBlocks(ctx context.Context, ref string, inputs []dto.BlockInput, actor string) (int, error) {
	const op = "page_service.ImportBlocks"
	log := s.log.With(
		slog.String("op", op),
		slog.String("page", ref),
	)

	blocks, err := blocksFromInput(inputs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	page, err := s.resolvePage(ctx, ref, true)
	if err != nil {
		log.Warn("page not resolved", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := s.pages.ReplaceBlocks(ctx, page.ID, blocks)
	if err != nil {
		log.Error("failed to import blocks", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.recordAudit(ctx, log, page, ActionImport, actor, map[string]any{"imported": n})
	s.invalidate(ctx, log, page)

	log.Info("blocks imported", slog.Int("count", n))

	return n, nil
}

// ExportBlocks отдает все строки страницы без фильтров по активности и локали
func (s *PageService) ExportBlocks(ctx context.Context, ref string) ([]models.Block, error) {
	const op = "page_service.ExportBlocks"

	page, err := s.resolvePage(ctx, ref, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	blocks, err := s.pages.ListBlocks(ctx, page.ID, false)
	if err != nil {
		s.log.Error("failed to export blocks", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return blocks, nil
}

// Publish сохраняет новый неизменяемый снимок с версией max+1.
// Пустой список блоков публикует текущий активный черновик.
func (s *PageService) Publish(ctx context.Context, ref string, inputs []dto.BlockInput, actor string) (int, error) {
	const op = "page_service.Publish"
	log := s.log.With(
		slog.String("op", op),
		slog.String("page", ref),
	)

	log.Info("publishing page")

	blocks, err := blocksFromInput(inputs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	page, err := s.resolvePage(ctx, ref, true)
	if err != nil {
		log.Warn("page not resolved", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if len(inputs) == 0 {
		blocks, err = s.pages.ListBlocks(ctx, page.ID, true)
		if err != nil {
			log.Error("failed to load draft", sl.Err(err))
			metrics.PublicationsTotal.WithLabelValues("failure").Inc()
			return 0, fmt.Errorf("%s: %w", op, ErrPublishFailed)
		}
	}

	snapshot := make([]models.SnapshotBlock, 0, len(blocks))
	for _, b := range blocks {
		snapshot = append(snapshot, b.Snapshot())
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].Position < snapshot[j].Position
	})

	pub, err := s.createPublication(ctx, log, page.ID, snapshot, actor)
	if err != nil {
		log.Error("failed to publish", sl.Err(err))
		metrics.PublicationsTotal.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("%s: %w", op, ErrPublishFailed)
	}

	metrics.PublicationsTotal.WithLabelValues("success").Inc()

	s.recordAudit(ctx, log, page, ActionPublish, actor, map[string]any{
		"version": pub.Version,
		"blocks":  len(snapshot),
	})
	s.invalidate(ctx, log, page)

	log.Info("page published", slog.Int("version", pub.Version))

	return pub.Version, nil
}

// createPublication повторяет вставку, пока другая публикация занимает ту же версию
func (s *PageService) createPublication(ctx context.Context, log *slog.Logger, pageID int64, snapshot []models.SnapshotBlock, actor string) (*models.Publication, error) {
	var pub *models.Publication

	operation := func() error {
		p, err := s.pages.CreatePublication(ctx, pageID, snapshot, actor)
		if err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				log.Warn("publication version taken, retrying", sl.Err(err))
				return err
			}
			return backoff.Permanent(err)
		}
		pub = p
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxInterval = 10 * s.retryInterval

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, publishMaxAttempts-1), ctx))
	if err != nil {
		return nil, err
	}

	return pub, nil
}

// Rollback переигрывает предпоследний снимок как новые активные блоки.
// Публикации не удаляются и новая не создается.
func (s *PageService) Rollback(ctx context.Context, ref string, actor string) (int, error) {
	const op = "page_service.Rollback"
	log := s.log.With(
		slog.String("op", op),
		slog.String("page", ref),
	)

	log.Info("rolling back page")

	page, err := s.resolvePage(ctx, ref, false)
	if err != nil {
		log.Warn("page not resolved", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	pubs, err := s.pages.LatestPublications(ctx, page.ID, 2)
	if err != nil {
		log.Error("failed to load publications", sl.Err(err))
		metrics.RollbacksTotal.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if len(pubs) < 2 {
		log.Warn("nothing to roll back to", slog.Int("publications", len(pubs)))
		metrics.RollbacksTotal.WithLabelValues("rejected").Inc()
		return 0, fmt.Errorf("%s: %w", op, ErrNoPreviousPublication)
	}

	prev := pubs[1]

	blocks := make([]models.Block, 0, len(prev.Snapshot))
	for _, sb := range prev.Snapshot {
		blocks = append(blocks, models.Block{
			Type:      sb.Type,
			Props:     normalizeProps(sb.Props),
			Slot:      defaultSlot(sb.Slot),
			Position:  sb.Position,
			Locale:    sb.Locale,
			ValidFrom: sb.ValidFrom,
			ValidTo:   sb.ValidTo,
			Version:   prev.Version + 1,
		})
	}

	n, err := s.pages.ReplaceBlocks(ctx, page.ID, blocks)
	if err != nil {
		log.Error("failed to restore blocks", sl.Err(err))
		metrics.RollbacksTotal.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RollbacksTotal.WithLabelValues("success").Inc()

	s.recordAudit(ctx, log, page, ActionRollback, actor, map[string]any{
		"restored_version": prev.Version,
		"blocks":           n,
	})
	s.invalidate(ctx, log, page)

	log.Info("page rolled back", slog.Int("restored_version", prev.Version))

	return prev.Version, nil
}

// GetBlocks путь чтения. Без draft отдается последний снимок, а если публикаций нет,
// то активные строки черновика. Неизвестная страница дает пустой список.
func (s *PageService) GetBlocks(ctx context.Context, ref string, draft bool, locale string) ([]models.BlockView, error) {
	const op = "page_service.GetBlocks"
	log := s.log.With(
		slog.String("op", op),
		slog.String("page", ref),
		slog.Bool("draft", draft),
	)

	if locale == "" {
		locale = s.defaultLocale
	}
	if !validLocale(locale) {
		return nil, fmt.Errorf("%s: %w: invalid locale", op, ErrValidation)
	}

	page, err := s.resolvePage(ctx, ref, false)
	if err != nil {
		if errors.Is(err, storage.ErrPageNotFound) {
			return []models.BlockView{}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := cache.BlocksKey(page.Key, locale)
	gen, cacheable := int64(0), !draft
	if !draft {
		if views, ok := s.cached(ctx, log, key); ok {
			return views, nil
		}
		// поколение берется до чтения из хранилища, иначе сброс тега публикацией
		// между чтением и записью в кеш останется незамеченным
		gen, err = s.cache.Generation(ctx, page.Key)
		if err != nil {
			log.Warn("render cache generation unavailable", sl.Err(err))
			cacheable = false
		}
	}

	now := s.now()
	views := make([]models.BlockView, 0)
	windows := make([]visibilityWindow, 0)

	var pub *models.Publication
	if !draft {
		pubs, err := s.pages.LatestPublications(ctx, page.ID, 1)
		if err != nil {
			log.Error("failed to load publication", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if len(pubs) > 0 {
			pub = &pubs[0]
		}
	}

	if pub != nil {
		for _, sb := range pub.Snapshot {
			windows = append(windows, visibilityWindow{from: sb.ValidFrom, to: sb.ValidTo})
			if models.Visible(sb.Locale, sb.ValidFrom, sb.ValidTo, locale, now) {
				views = append(views, sb.View())
			}
		}
	} else {
		blocks, err := s.pages.ListBlocks(ctx, page.ID, !draft)
		if err != nil {
			log.Error("failed to load blocks", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		for _, b := range blocks {
			windows = append(windows, visibilityWindow{from: b.ValidFrom, to: b.ValidTo})
			if models.Visible(b.Locale, b.ValidFrom, b.ValidTo, locale, now) {
				views = append(views, b.View())
			}
		}
	}

	if cacheable {
		if ttl := s.renderTTL(now, windows); ttl > 0 {
			s.store(ctx, log, key, page.Key, gen, views, now, ttl)
		}
	}

	return views, nil
}

func (s *PageService) ListPublications(ctx context.Context, ref string, limit int) ([]dto.PublicationSummary, error) {
	const op = "page_service.ListPublications"

	page, err := s.resolvePage(ctx, ref, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pubs, err := s.pages.LatestPublications(ctx, page.ID, limit)
	if err != nil {
		s.log.Error("failed to list publications", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]dto.PublicationSummary, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, dto.PublicationSummary{
			Version:     p.Version,
			PublishedBy: p.PublishedBy,
			PublishedAt: p.PublishedAt,
			BlockCount:  len(p.Snapshot),
		})
	}

	return out, nil
}

// BackupBlocks пишет экспорт страницы в файловое хранилище
func (s *PageService) BackupBlocks(ctx context.Context, ref string, actor string) (*dto.BackupResponse, error) {
	const op = "page_service.BackupBlocks"
	log := s.log.With(
		slog.String("op", op),
		slog.String("page", ref),
	)

	page, err := s.resolvePage(ctx, ref, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	blocks, err := s.pages.ListBlocks(ctx, page.ID, false)
	if err != nil {
		log.Error("failed to load blocks", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	data, err := json.MarshalIndent(dto.ExportBlocksResponse{Blocks: blocks}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	name := strconv.FormatInt(s.now().UnixNano(), 10) + ".json"
	relPath, size, err := s.files.Save(ctx, bytes.NewReader(data), path.Join("pages", page.Key), name)
	if err != nil {
		log.Error("failed to save backup", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp := &dto.BackupResponse{Path: relPath, Size: size}
	if base := s.files.BaseURL(); base != "" {
		resp.URL = strings.TrimRight(base, "/") + "/" + relPath
	}

	s.recordAudit(ctx, log, page, ActionBackup, actor, map[string]any{"path": relPath, "blocks": len(blocks)})

	log.Info("backup saved", slog.String("path", relPath), slog.Int64("size", size))

	return resp, nil
}

func (s *PageService) ListAudit(ctx context.Context, entity, entityID string, limit int) ([]models.AuditRecord, error) {
	const op = "page_service.ListAudit"

	records, err := s.audit.ListAudit(ctx, entity, entityID, limit)
	if err != nil {
		s.log.Error("failed to list audit", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}

// resolvePage принимает числовой id или ключ страницы.
// create разрешает создать страницу по ключу, числовой id всегда должен существовать.
func (s *PageService) resolvePage(ctx context.Context, ref string, create bool) (*models.Page, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: page is required", ErrValidation)
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.pages.GetPageByID(ctx, id)
	}

	if create {
		return s.pages.EnsurePage(ctx, ref)
	}

	return s.pages.GetPageByKey(ctx, ref)
}

func (s *PageService) recordAudit(ctx context.Context, log *slog.Logger, page *models.Page, action, actor string, diff map[string]any) {
	err := s.audit.SaveAudit(ctx, models.AuditRecord{
		Entity:   models.AuditEntityPage,
		EntityID: strconv.FormatInt(page.ID, 10),
		Action:   action,
		ActorID:  actor,
		Diff:     diff,
	})
	if err != nil {
		log.Error("failed to record audit", slog.String("action", action), sl.Err(err))
	}
}

func (s *PageService) invalidate(ctx context.Context, log *slog.Logger, page *models.Page) {
	if err := s.cache.InvalidateTag(ctx, page.Key); err != nil {
		log.Error("failed to invalidate render cache", sl.Err(err))
	}
}

func (s *PageService) cached(ctx context.Context, log *slog.Logger, key string) ([]models.BlockView, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("render cache unavailable", sl.Err(err))
			metrics.RenderCacheLookups.WithLabelValues("error").Inc()
			return nil, false
		}
		metrics.RenderCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var entry renderEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Warn("corrupted render cache entry", sl.Err(err))
		metrics.RenderCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}

	// бэкенд мог еще не вытеснить запись, окно видимости уже сдвинулось
	if !s.now().Before(entry.ExpiresAt) {
		metrics.RenderCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.RenderCacheLookups.WithLabelValues("hit").Inc()
	return entry.Blocks, true
}

// renderEntry запись кеша чтения вместе с моментом, до которого она верна
type renderEntry struct {
	ExpiresAt time.Time          `json:"expires_at"`
	Blocks    []models.BlockView `json:"blocks"`
}

func (s *PageService) store(ctx context.Context, log *slog.Logger, key, tag string, gen int64, views []models.BlockView, now time.Time, ttl time.Duration) {
	data, err := json.Marshal(renderEntry{ExpiresAt: now.Add(ttl), Blocks: views})
	if err != nil {
		return
	}

	err = s.cache.Set(ctx, key, tag, gen, data, ttl)
	switch {
	case errors.Is(err, cache.ErrStale):
		log.Debug("render cache fill skipped, page changed during read")
	case err != nil:
		log.Warn("failed to fill render cache", sl.Err(err))
	}
}

type visibilityWindow struct {
	from, to *time.Time
}

// renderTTL ограничивает жизнь записи ближайшей будущей границей окна видимости,
// после которой набор видимых блоков меняется. 0 означает не кешировать.
func (s *PageService) renderTTL(now time.Time, windows []visibilityWindow) time.Duration {
	ttl := s.cacheTTL

	for _, w := range windows {
		if w.from != nil && w.from.After(now) {
			ttl = min(ttl, w.from.Sub(now))
		}
		if w.to != nil && !w.to.Before(now) {
			ttl = min(ttl, w.to.Sub(now))
		}
	}

	if ttl < time.Millisecond {
		return 0
	}
	return ttl
}

func blocksFromInput(inputs []dto.BlockInput) ([]models.Block, error) {
	blocks := make([]models.Block, 0, len(inputs))

	for i, in := range inputs {
		if strings.TrimSpace(in.Type) == "" {
			return nil, fmt.Errorf("%w: block %d: type is required", ErrValidation, i)
		}
		if len(in.Props) > 0 && !json.Valid(in.Props) {
			return nil, fmt.Errorf("%w: block %d: props must be valid json", ErrValidation, i)
		}
		if in.ValidFrom != nil && in.ValidTo != nil && in.ValidTo.Before(*in.ValidFrom) {
			return nil, fmt.Errorf("%w: block %d: valid_to before valid_from", ErrValidation, i)
		}

		position := i * positionStep
		if in.Position != nil {
			position = *in.Position
		}

		blocks = append(blocks, models.Block{
			Type:      in.Type,
			Props:     normalizeProps(in.Props),
			Slot:      defaultSlot(in.Slot),
			Position:  position,
			Locale:    in.Locale,
			ValidFrom: in.ValidFrom,
			ValidTo:   in.ValidTo,
		})
	}

	return blocks, nil
}

func normalizeProps(props json.RawMessage) json.RawMessage {
	if isNullJSON(props) {
		return emptyProps
	}
	return props
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// validLocale теги вида en, ru, pt-BR, zh_Hant. Локаль входит в ключ кеша,
// поэтому произвольные строки от анонимных клиентов не принимаются.
func validLocale(locale string) bool {
	if len(locale) == 0 || len(locale) > maxLocaleLen {
		return false
	}
	for _, r := range locale {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func defaultSlot(slot string) string {
	if slot == "" {
		return models.DefaultSlot
	}
	return slot
}
