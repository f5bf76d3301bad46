package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"content_blocks/internal/cache"
	"content_blocks/internal/domain/models"
	"content_blocks/internal/repository"
	"content_blocks/internal/storage"
	filestorage "content_blocks/internal/storage/filestorage"
	"content_blocks/internal/transport/http/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPageRepository мок хранилища страниц для сценариев с ошибками
type MockPageRepository struct {
	mock.Mock
}

func (m *MockPageRepository) GetPageByKey(ctx context.Context, key string) (*models.Page, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page), args.Error(1)
}

func (m *MockPageRepository) GetPageByID(ctx context.Context, id int64) (*models.Page, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page), args.Error(1)
}

func (m *MockPageRepository) EnsurePage(ctx context.Context, key string) (*models.Page, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page), args.Error(1)
}

func (m *MockPageRepository) ListBlocks(ctx context.Context, pageID int64, activeOnly bool) ([]models.Block, error) {
	args := m.Called(ctx, pageID, activeOnly)
	return args.Get(0).([]models.Block), args.Error(1)
}

func (m *MockPageRepository) UpdateBlock(ctx context.Context, pageID, blockID int64, patch models.BlockPatch) (*models.Block, error) {
	args := m.Called(ctx, pageID, blockID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Block), args.Error(1)
}

func (m *MockPageRepository) ReorderBlocks(ctx context.Context, pageID int64, blockIDs []int64) ([]models.BlockPosition, error) {
	args := m.Called(ctx, pageID, blockIDs)
	return args.Get(0).([]models.BlockPosition), args.Error(1)
}

func (m *MockPageRepository) ReplaceBlocks(ctx context.Context, pageID int64, blocks []models.Block) (int, error) {
	args := m.Called(ctx, pageID, blocks)
	return args.Int(0), args.Error(1)
}

func (m *MockPageRepository) CreatePublication(ctx context.Context, pageID int64, snapshot []models.SnapshotBlock, publishedBy string) (*models.Publication, error) {
	args := m.Called(ctx, pageID, snapshot, publishedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Publication), args.Error(1)
}

func (m *MockPageRepository) LatestPublications(ctx context.Context, pageID int64, limit int) ([]models.Publication, error) {
	args := m.Called(ctx, pageID, limit)
	return args.Get(0).([]models.Publication), args.Error(1)
}

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) SaveAudit(ctx context.Context, record models.AuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAuditRepository) ListAudit(ctx context.Context, entity, entityID string, limit int) ([]models.AuditRecord, error) {
	args := m.Called(ctx, entity, entityID, limit)
	return args.Get(0).([]models.AuditRecord), args.Error(1)
}

type MockRenderCache struct {
	mock.Mock
}

func (m *MockRenderCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRenderCache) Generation(ctx context.Context, tag string) (int64, error) {
	args := m.Called(ctx, tag)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRenderCache) Set(ctx context.Context, key, tag string, gen int64, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, tag, gen, value, ttl)
	return args.Error(0)
}

func (m *MockRenderCache) InvalidateTag(ctx context.Context, tag string) error {
	args := m.Called(ctx, tag)
	return args.Error(0)
}

type testEnv struct {
	svc   *PageService
	pages *repository.MemoryPageRepo
	audit *repository.MemoryAuditRepo
	cache *cache.MemoryCache
	dir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	files, err := filestorage.NewLocalFileStorage(dir, "http://localhost/backups")
	require.NoError(t, err)

	env := &testEnv{
		pages: repository.NewMemoryPageRepository(),
		audit: repository.NewMemoryAuditRepository(),
		cache: cache.NewMemoryCache(time.Minute),
		dir:   dir,
	}
	env.svc = NewPageService(slog.Default(), env.pages, env.audit, env.cache, files, "en", time.Minute)
	env.svc.retryInterval = time.Millisecond

	return env
}

func input(typ string) dto.BlockInput {
	return dto.BlockInput{Type: typ, Props: json.RawMessage(`{"name":"` + typ + `"}`)}
}

func types(views []models.BlockView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Type)
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestPageService_ImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	in := []dto.BlockInput{
		{Type: "hero", Props: json.RawMessage(`{"title":"Hi"}`), Slot: "top", Position: func() *int { p := 3; return &p }()},
		{Type: "text", Props: json.RawMessage(`{"body":"b"}`), Slot: "left"},
		{Type: "cta"},
	}

	n, err := env.svc.ImportBlocks(ctx, "landing", in, "editor")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	blocks, err := env.svc.ExportBlocks(ctx, "landing")
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, "hero", blocks[0].Type)
	assert.Equal(t, 3, blocks[0].Position)
	assert.Equal(t, "top", blocks[0].Slot)
	assert.Equal(t, "text", blocks[1].Type)
	assert.Equal(t, 10, blocks[1].Position)
	assert.Equal(t, "left", blocks[1].Slot)
	assert.Equal(t, "cta", blocks[2].Type)
	assert.Equal(t, 20, blocks[2].Position)
	assert.Equal(t, models.DefaultSlot, blocks[2].Slot)
	assert.JSONEq(t, `{}`, string(blocks[2].Props))

	t.Run("second import replaces draft", func(t *testing.T) {
		_, err := env.svc.ImportBlocks(ctx, "landing", []dto.BlockInput{input("banner")}, "editor")
		require.NoError(t, err)

		blocks, err := env.svc.ExportBlocks(ctx, "landing")
		require.NoError(t, err)
		assert.Len(t, blocks, 4)

		active := 0
		for _, b := range blocks {
			if b.IsActive {
				active++
				assert.Equal(t, "banner", b.Type)
			}
		}
		assert.Equal(t, 1, active)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := env.svc.ImportBlocks(ctx, "landing", []dto.BlockInput{{Type: ""}}, "editor")
		assert.ErrorIs(t, err, ErrValidation)

		_, err = env.svc.ImportBlocks(ctx, "landing", []dto.BlockInput{{Type: "x", Props: json.RawMessage(`{bad`)}}, "editor")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("export of unknown page", func(t *testing.T) {
		_, err := env.svc.ExportBlocks(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrPageNotFound)
	})
}

func TestPageService_Reorder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.ImportBlocks(ctx, "home", []dto.BlockInput{input("a"), input("b"), input("c"), input("d")}, "editor")
	require.NoError(t, err)

	blocks, err := env.svc.ExportBlocks(ctx, "home")
	require.NoError(t, err)

	items, err := env.svc.Reorder(ctx, "home", []int64{blocks[2].ID, blocks[0].ID, blocks[1].ID}, "editor")
	require.NoError(t, err)
	require.Len(t, items, 3)

	for i, item := range items {
		assert.Equal(t, i*10, item.Position)
	}
	assert.Equal(t, blocks[2].ID, items[0].ID)

	after, err := env.svc.ExportBlocks(ctx, "home")
	require.NoError(t, err)
	for _, b := range after {
		if b.ID == blocks[3].ID {
			assert.Equal(t, 30, b.Position, "unlisted block keeps its position")
		}
	}

	t.Run("empty list", func(t *testing.T) {
		_, err := env.svc.Reorder(ctx, "home", nil, "editor")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		_, err := env.svc.Reorder(ctx, "home", []int64{blocks[0].ID, blocks[0].ID}, "editor")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown page", func(t *testing.T) {
		_, err := env.svc.Reorder(ctx, "nowhere", []int64{blocks[0].ID}, "editor")
		assert.ErrorIs(t, err, storage.ErrPageNotFound)
	})

	t.Run("unknown block", func(t *testing.T) {
		_, err := env.svc.Reorder(ctx, "home", []int64{blocks[0].ID, 12345}, "editor")
		assert.ErrorIs(t, err, storage.ErrBlockNotFound)
	})

	records, err := env.audit.ListAudit(ctx, models.AuditEntityPage, "", 10)
	require.NoError(t, err)
	assert.Equal(t, ActionReorder, records[0].Action)
	assert.Equal(t, "editor", records[0].ActorID)
}

func TestPageService_PatchBlockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.ImportBlocks(ctx, "home", []dto.BlockInput{input("hero")}, "editor")
	require.NoError(t, err)

	blocks, err := env.svc.ExportBlocks(ctx, "home")
	require.NoError(t, err)

	inactive := false
	req := dto.PatchBlockRequest{Data: json.RawMessage(`{"title":"x"}`), IsActive: &inactive}

	first, err := env.svc.PatchBlock(ctx, "home", blocks[0].ID, req, "editor")
	require.NoError(t, err)

	second, err := env.svc.PatchBlock(ctx, "home", blocks[0].ID, req, "editor")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.False(t, second.IsActive)
	assert.JSONEq(t, `{"title":"x"}`, string(second.Props))

	t.Run("block of another page", func(t *testing.T) {
		_, err := env.svc.ImportBlocks(ctx, "other", []dto.BlockInput{input("x")}, "editor")
		require.NoError(t, err)

		_, err = env.svc.PatchBlock(ctx, "other", blocks[0].ID, req, "editor")
		assert.ErrorIs(t, err, storage.ErrBlockNotFound)
	})

	t.Run("empty patch", func(t *testing.T) {
		_, err := env.svc.PatchBlock(ctx, "home", blocks[0].ID, dto.PatchBlockRequest{Data: json.RawMessage(`null`)}, "editor")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestPageService_PublishVersions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for want := 1; want <= 3; want++ {
		version, err := env.svc.Publish(ctx, "about", []dto.BlockInput{input("hero")}, "editor")
		require.NoError(t, err)
		assert.Equal(t, want, version)
	}

	other, err := env.svc.Publish(ctx, "contact", []dto.BlockInput{input("hero")}, "editor")
	require.NoError(t, err)
	assert.Equal(t, 1, other, "versions are counted per page")

	pubs, err := env.svc.ListPublications(ctx, "about", 0)
	require.NoError(t, err)
	require.Len(t, pubs, 3)
	assert.Equal(t, 3, pubs[0].Version)
	assert.Equal(t, 1, pubs[0].BlockCount)
	assert.Equal(t, "editor", pubs[0].PublishedBy)
}

func TestPageService_PublishWithoutBodySnapshotsDraft(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.ImportBlocks(ctx, "home", []dto.BlockInput{input("a"), input("b")}, "editor")
	require.NoError(t, err)

	blocks, err := env.svc.ExportBlocks(ctx, "home")
	require.NoError(t, err)

	inactive := false
	_, err = env.svc.PatchBlock(ctx, "home", blocks[0].ID, dto.PatchBlockRequest{IsActive: &inactive}, "editor")
	require.NoError(t, err)

	version, err := env.svc.Publish(ctx, "home", nil, "editor")
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	views, err := env.svc.GetBlocks(ctx, "home", false, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, types(views))
}

func TestPageService_PublishRetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPageRepository)
	audit := new(MockAuditRepository)
	renderCache := new(MockRenderCache)

	svc := NewPageService(slog.Default(), repo, audit, renderCache, nil, "en", time.Minute)
	svc.retryInterval = time.Millisecond

	page := &models.Page{ID: 1, Key: "home"}

	tests := []struct {
		name      string
		mockSetup func()
		want      int
		wantErr   error
	}{
		{
			name: "conflict then success",
			mockSetup: func() {
				repo.On("CreatePublication", ctx, int64(1), mock.Anything, "editor").
					Return(nil, storage.ErrVersionConflict).Twice()
				repo.On("CreatePublication", ctx, int64(1), mock.Anything, "editor").
					Return(&models.Publication{PageID: 1, Version: 4}, nil).Once()
				audit.On("SaveAudit", ctx, mock.AnythingOfType("models.AuditRecord")).Return(nil).Once()
				renderCache.On("InvalidateTag", ctx, "home").Return(nil).Once()
			},
			want: 4,
		},
		{
			name: "conflict on every attempt",
			mockSetup: func() {
				repo.On("CreatePublication", ctx, int64(1), mock.Anything, "editor").
					Return(nil, storage.ErrVersionConflict).Times(publishMaxAttempts)
			},
			wantErr: ErrPublishFailed,
		},
		{
			name: "store failure is not retried",
			mockSetup: func() {
				repo.On("CreatePublication", ctx, int64(1), mock.Anything, "editor").
					Return(nil, errors.New("connection reset")).Once()
			},
			wantErr: ErrPublishFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.ExpectedCalls = nil
			repo.Calls = nil
			repo.On("EnsurePage", ctx, "home").Return(page, nil)
			tt.mockSetup()

			version, err := svc.Publish(ctx, "home", []dto.BlockInput{input("hero")}, "editor")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, version)
			}

			repo.AssertExpectations(t)
		})
	}

	audit.AssertExpectations(t)
	renderCache.AssertExpectations(t)
}

func TestPageService_Rollback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("no publications", func(t *testing.T) {
		_, err := env.svc.ImportBlocks(ctx, "page", []dto.BlockInput{input("a")}, "editor")
		require.NoError(t, err)

		_, err = env.svc.Rollback(ctx, "page", "editor")
		assert.ErrorIs(t, err, ErrNoPreviousPublication)
	})

	t.Run("one publication", func(t *testing.T) {
		_, err := env.svc.Publish(ctx, "page", []dto.BlockInput{input("A"), input("B")}, "editor")
		require.NoError(t, err)

		_, err = env.svc.Rollback(ctx, "page", "editor")
		assert.ErrorIs(t, err, ErrNoPreviousPublication)
	})

	t.Run("restores the previous snapshot", func(t *testing.T) {
		version, err := env.svc.Publish(ctx, "page", []dto.BlockInput{input("A"), input("B"), input("C")}, "editor")
		require.NoError(t, err)
		require.Equal(t, 2, version)

		restored, err := env.svc.Rollback(ctx, "page", "editor")
		require.NoError(t, err)
		assert.Equal(t, 1, restored)

		blocks, err := env.svc.ExportBlocks(ctx, "page")
		require.NoError(t, err)

		var active []models.Block
		for _, b := range blocks {
			if b.IsActive {
				active = append(active, b)
			}
		}
		require.Len(t, active, 2)
		assert.Equal(t, "A", active[0].Type)
		assert.Equal(t, "B", active[1].Type)
		assert.Equal(t, 2, active[0].Version)
		assert.Equal(t, 10, active[1].Position)

		draft, err := env.svc.GetBlocks(ctx, "page", true, "en")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "A", "B"}, types(draft))

		pubs, err := env.svc.ListPublications(ctx, "page", 0)
		require.NoError(t, err)
		assert.Len(t, pubs, 2, "rollback never deletes or adds publications")

		records, err := env.audit.ListAudit(ctx, models.AuditEntityPage, "", 1)
		require.NoError(t, err)
		assert.Equal(t, ActionRollback, records[0].Action)
		assert.EqualValues(t, 1, records[0].Diff["restored_version"])
	})

	t.Run("unknown page", func(t *testing.T) {
		_, err := env.svc.Rollback(ctx, "ghost", "editor")
		assert.ErrorIs(t, err, storage.ErrPageNotFound)
	})
}

func TestPageService_GetBlocks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return now }

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	t.Run("unknown page is empty and not created", func(t *testing.T) {
		views, err := env.svc.GetBlocks(ctx, "nowhere", false, "en")
		require.NoError(t, err)
		assert.Empty(t, views)

		_, err = env.pages.GetPageByKey(ctx, "nowhere")
		assert.ErrorIs(t, err, storage.ErrPageNotFound)
	})

	t.Run("fallback path uses active rows ordered by position", func(t *testing.T) {
		_, err := env.svc.ImportBlocks(ctx, "contact", []dto.BlockInput{
			{Type: "contactFormBlock", Position: func() *int { p := 10; return &p }()},
			{Type: "contactsHero", Position: func() *int { p := 0; return &p }()},
		}, "editor")
		require.NoError(t, err)

		views, err := env.svc.GetBlocks(ctx, "contact", false, "en")
		require.NoError(t, err)
		assert.Equal(t, []string{"contactsHero", "contactFormBlock"}, types(views))
		assert.NotZero(t, views[0].ID)
	})

	t.Run("locale and validity filters", func(t *testing.T) {
		_, err := env.svc.ImportBlocks(ctx, "promo", []dto.BlockInput{
			{Type: "any"},
			{Type: "ru", Locale: strPtr("ru")},
			{Type: "en", Locale: strPtr("en")},
			{Type: "expired", ValidTo: &past},
			{Type: "upcoming", ValidFrom: &future},
			{Type: "window", ValidFrom: &past, ValidTo: &future},
		}, "editor")
		require.NoError(t, err)

		views, err := env.svc.GetBlocks(ctx, "promo", false, "en")
		require.NoError(t, err)
		assert.Equal(t, []string{"any", "en", "window"}, types(views))

		views, err = env.svc.GetBlocks(ctx, "promo", false, "ru")
		require.NoError(t, err)
		assert.Equal(t, []string{"any", "ru", "window"}, types(views))

		views, err = env.svc.GetBlocks(ctx, "promo", false, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"any", "en", "window"}, types(views), "default locale")
	})

	t.Run("published snapshot wins over draft", func(t *testing.T) {
		_, err := env.svc.Publish(ctx, "contact", []dto.BlockInput{input("published"), {Type: "ru-only", Locale: strPtr("ru")}}, "editor")
		require.NoError(t, err)

		_, err = env.svc.ImportBlocks(ctx, "contact", []dto.BlockInput{input("draft-edit")}, "editor")
		require.NoError(t, err)

		views, err := env.svc.GetBlocks(ctx, "contact", false, "en")
		require.NoError(t, err)
		assert.Equal(t, []string{"published"}, types(views))
		assert.Zero(t, views[0].ID)

		draft, err := env.svc.GetBlocks(ctx, "contact", true, "en")
		require.NoError(t, err)
		assert.Contains(t, types(draft), "draft-edit")
		assert.Contains(t, types(draft), "contactsHero", "draft includes inactive rows")
	})

	t.Run("numeric page reference", func(t *testing.T) {
		page, err := env.pages.GetPageByKey(ctx, "contact")
		require.NoError(t, err)

		views, err := env.svc.GetBlocks(ctx, strconv.FormatInt(page.ID, 10), false, "en")
		require.NoError(t, err)
		assert.Equal(t, []string{"published"}, types(views))
	})
}

func TestPageService_RenderCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.Publish(ctx, "home", []dto.BlockInput{input("v1")}, "editor")
	require.NoError(t, err)

	views, err := env.svc.GetBlocks(ctx, "home", false, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, types(views))

	_, err = env.cache.Get(ctx, cache.BlocksKey("home", "en"))
	require.NoError(t, err, "non-draft read fills the cache")

	_, err = env.svc.Publish(ctx, "home", []dto.BlockInput{input("v2")}, "editor")
	require.NoError(t, err)

	_, err = env.cache.Get(ctx, cache.BlocksKey("home", "en"))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	views, err = env.svc.GetBlocks(ctx, "home", false, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, types(views))

	_, err = env.svc.Rollback(ctx, "home", "editor")
	require.NoError(t, err)
	_, err = env.cache.Get(ctx, cache.BlocksKey("home", "en"))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestPageService_CacheFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	pages := repository.NewMemoryPageRepository()
	audit := new(MockAuditRepository)
	renderCache := new(MockRenderCache)

	svc := NewPageService(slog.Default(), pages, audit, renderCache, nil, "en", time.Minute)

	page, err := pages.EnsurePage(ctx, "home")
	require.NoError(t, err)
	_, err = pages.ReplaceBlocks(ctx, page.ID, []models.Block{{Type: "hero", Props: json.RawMessage(`{}`), Slot: "main"}})
	require.NoError(t, err)

	renderCache.On("Get", ctx, "blocks:home:en").Return(nil, errors.New("redis down")).Once()
	renderCache.On("Generation", ctx, "home").Return(int64(0), nil).Once()
	renderCache.On("Set", ctx, "blocks:home:en", "home", int64(0), mock.Anything, time.Minute).Return(errors.New("redis down")).Once()

	views, err := svc.GetBlocks(ctx, "home", false, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"hero"}, types(views))

	renderCache.AssertExpectations(t)
}

func TestPageService_CacheGenerationFailureSkipsFill(t *testing.T) {
	ctx := context.Background()
	pages := repository.NewMemoryPageRepository()
	renderCache := new(MockRenderCache)

	svc := NewPageService(slog.Default(), pages, repository.NewMemoryAuditRepository(), renderCache, nil, "en", time.Minute)

	page, err := pages.EnsurePage(ctx, "home")
	require.NoError(t, err)
	_, err = pages.ReplaceBlocks(ctx, page.ID, []models.Block{{Type: "hero", Props: json.RawMessage(`{}`), Slot: "main"}})
	require.NoError(t, err)

	renderCache.On("Get", ctx, "blocks:home:en").Return(nil, cache.ErrCacheMiss).Once()
	renderCache.On("Generation", ctx, "home").Return(int64(0), errors.New("redis down")).Once()

	views, err := svc.GetBlocks(ctx, "home", false, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"hero"}, types(views))

	renderCache.AssertExpectations(t)
	renderCache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPageService_CachedReadHonoursValidityWindow(t *testing.T) {
	ctx := context.Background()

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	saleEnds := t0.Add(10 * time.Second)
	launch := t0.Add(20 * time.Second)

	tests := []struct {
		name    string
		publish bool
	}{
		{name: "published snapshot", publish: true},
		{name: "draft fallback", publish: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			now := t0
			env.svc.now = func() time.Time { return now }

			blocks := []dto.BlockInput{
				input("always"),
				{Type: "flash-sale", ValidTo: &saleEnds},
				{Type: "launch", ValidFrom: &launch},
			}
			if tt.publish {
				_, err := env.svc.Publish(ctx, "shop", blocks, "editor")
				require.NoError(t, err)
			} else {
				_, err := env.svc.ImportBlocks(ctx, "shop", blocks, "editor")
				require.NoError(t, err)
			}

			views, err := env.svc.GetBlocks(ctx, "shop", false, "en")
			require.NoError(t, err)
			assert.Equal(t, []string{"always", "flash-sale"}, types(views))

			now = t0.Add(5 * time.Second)
			views, err = env.svc.GetBlocks(ctx, "shop", false, "en")
			require.NoError(t, err)
			assert.Equal(t, []string{"always", "flash-sale"}, types(views), "still inside the window")

			now = t0.Add(15 * time.Second)
			views, err = env.svc.GetBlocks(ctx, "shop", false, "en")
			require.NoError(t, err)
			assert.NotContains(t, types(views), "flash-sale")

			now = t0.Add(30 * time.Second)
			views, err = env.svc.GetBlocks(ctx, "shop", false, "en")
			require.NoError(t, err)
			assert.Equal(t, []string{"always", "launch"}, types(views))
		})
	}
}

func TestPageService_RenderTTL(t *testing.T) {
	svc := NewPageService(slog.Default(), nil, nil, nil, nil, "en", time.Minute)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name    string
		windows []visibilityWindow
		want    time.Duration
	}{
		{name: "no windows", want: time.Minute},
		{name: "past bounds ignored", windows: []visibilityWindow{{from: at(-time.Hour), to: at(-time.Second)}}, want: time.Minute},
		{name: "upcoming start", windows: []visibilityWindow{{from: at(20 * time.Second)}}, want: 20 * time.Second},
		{name: "nearest end wins", windows: []visibilityWindow{{to: at(40 * time.Second)}, {to: at(10 * time.Second)}}, want: 10 * time.Second},
		{name: "far bounds keep default", windows: []visibilityWindow{{from: at(time.Hour), to: at(2 * time.Hour)}}, want: time.Minute},
		{name: "boundary now disables caching", windows: []visibilityWindow{{to: at(0)}}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.renderTTL(now, tt.windows))
		})
	}
}

// publishingRepo публикует новую версию между чтением снимка и записью в кеш
type publishingRepo struct {
	*repository.MemoryPageRepo
	onRead func()
}

func (r *publishingRepo) LatestPublications(ctx context.Context, pageID int64, limit int) ([]models.Publication, error) {
	pubs, err := r.MemoryPageRepo.LatestPublications(ctx, pageID, limit)
	if hook := r.onRead; hook != nil {
		r.onRead = nil
		hook()
	}
	return pubs, err
}

func TestPageService_ConcurrentPublishDoesNotLeaveStaleCache(t *testing.T) {
	ctx := context.Background()

	repo := &publishingRepo{MemoryPageRepo: repository.NewMemoryPageRepository()}
	svc := NewPageService(slog.Default(), repo, repository.NewMemoryAuditRepository(), cache.NewMemoryCache(time.Minute), nil, "en", time.Minute)

	_, err := svc.Publish(ctx, "home", []dto.BlockInput{input("v1")}, "editor")
	require.NoError(t, err)

	repo.onRead = func() {
		_, err := svc.Publish(ctx, "home", []dto.BlockInput{input("v2")}, "editor")
		require.NoError(t, err)
	}

	views, err := svc.GetBlocks(ctx, "home", false, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, types(views), "read started before the publish")

	views, err = svc.GetBlocks(ctx, "home", false, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, types(views))
}

func TestPageService_GetBlocksRejectsBadLocale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.ImportBlocks(ctx, "home", []dto.BlockInput{input("hero")}, "editor")
	require.NoError(t, err)

	for _, locale := range []string{"en-US-x-private", "en;drop", "../../etc", "ру"} {
		_, err := env.svc.GetBlocks(ctx, "home", false, locale)
		assert.ErrorIs(t, err, ErrValidation, locale)
	}

	for _, locale := range []string{"en", "pt-BR", "zh_Hant"} {
		_, err := env.svc.GetBlocks(ctx, "home", false, locale)
		assert.NoError(t, err, locale)
	}
}

func TestPageService_AuditFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	pages := repository.NewMemoryPageRepository()
	audit := new(MockAuditRepository)

	svc := NewPageService(slog.Default(), pages, audit, cache.NewMemoryCache(time.Minute), nil, "en", time.Minute)

	audit.On("SaveAudit", ctx, mock.AnythingOfType("models.AuditRecord")).Return(errors.New("audit down")).Once()

	n, err := svc.ImportBlocks(ctx, "home", []dto.BlockInput{input("hero")}, "editor")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	audit.AssertExpectations(t)
}

func TestPageService_BackupBlocks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.svc.now = func() time.Time { return time.Unix(0, 42) }

	_, err := env.svc.ImportBlocks(ctx, "home", []dto.BlockInput{input("hero"), input("text")}, "editor")
	require.NoError(t, err)

	resp, err := env.svc.BackupBlocks(ctx, "home", "editor")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("pages", "home", "42.json"), resp.Path)
	assert.Equal(t, "http://localhost/backups/"+resp.Path, resp.URL)

	data, err := os.ReadFile(filepath.Join(env.dir, resp.Path))
	require.NoError(t, err)
	assert.EqualValues(t, len(data), resp.Size)

	var export dto.ExportBlocksResponse
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Len(t, export.Blocks, 2)

	_, err = env.svc.BackupBlocks(ctx, "ghost", "editor")
	assert.ErrorIs(t, err, storage.ErrPageNotFound)
}
