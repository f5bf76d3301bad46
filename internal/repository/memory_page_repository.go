package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"content_blocks/internal/domain/models"
	"content_blocks/internal/storage"
)

// MemoryPageRepo хранилище страниц в памяти процесса. Используется, когда dsn не задан.
// Наружу отдаются только копии, поэтому вызывающий не может изменить состояние в обход замка.
type MemoryPageRepo struct {
	mu sync.RWMutex

	pages  map[int64]models.Page
	byKey  map[string]int64
	blocks []models.Block
	pubs   map[int64][]models.Publication

	pageSeq  int64
	blockSeq int64
	pubSeq   int64

	now func() time.Time
}

func NewMemoryPageRepository() *MemoryPageRepo {
	return &MemoryPageRepo{
		pages: make(map[int64]models.Page),
		byKey: make(map[string]int64),
		pubs:  make(map[int64][]models.Publication),
		now:   time.Now,
	}
}

func (m *MemoryPageRepo) GetPageByKey(_ context.Context, key string) (*models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[key]
	if !ok {
		return nil, fmt.Errorf("repository.memory.GetPageByKey: %w", storage.ErrPageNotFound)
	}

	page := m.pages[id]
	return &page, nil
}

func (m *MemoryPageRepo) GetPageByID(_ context.Context, id int64) (*models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page, ok := m.pages[id]
	if !ok {
		return nil, fmt.Errorf("repository.memory.GetPageByID: %w", storage.ErrPageNotFound)
	}

	return &page, nil
}

func (m *MemoryPageRepo) EnsurePage(_ context.Context, key string) (*models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[key]; ok {
		page := m.pages[id]
		return &page, nil
	}

	m.pageSeq++
	page := models.Page{ID: m.pageSeq, Key: key, CreatedAt: m.now().UTC()}
	m.pages[page.ID] = page
	m.byKey[key] = page.ID

	return &page, nil
}

func (m *MemoryPageRepo) ListBlocks(_ context.Context, pageID int64, activeOnly bool) ([]models.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Block, 0)
	for _, b := range m.blocks {
		if b.PageID != pageID {
			continue
		}
		if activeOnly && !b.IsActive {
			continue
		}
		out = append(out, cloneBlock(b))
	}

	// m.blocks хранится в порядке вставки, стабильная сортировка сохраняет его при равных позициях
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})

	return out, nil
}

func (m *MemoryPageRepo) UpdateBlock(_ context.Context, pageID, blockID int64, patch models.BlockPatch) (*models.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(pageID, blockID)
	if i < 0 {
		return nil, fmt.Errorf("repository.memory.UpdateBlock: %w", storage.ErrBlockNotFound)
	}

	if patch.Props != nil {
		m.blocks[i].Props = cloneRaw(patch.Props)
	}
	if patch.IsActive != nil {
		m.blocks[i].IsActive = *patch.IsActive
	}

	block := cloneBlock(m.blocks[i])
	return &block, nil
}

func (m *MemoryPageRepo) ReorderBlocks(_ context.Context, pageID int64, blockIDs []int64) ([]models.BlockPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexes := make([]int, len(blockIDs))
	for n, id := range blockIDs {
		i := m.indexOf(pageID, id)
		if i < 0 {
			return nil, fmt.Errorf("repository.memory.ReorderBlocks: block %d: %w", id, storage.ErrBlockNotFound)
		}
		indexes[n] = i
	}

	items := make([]models.BlockPosition, 0, len(blockIDs))
	for n, i := range indexes {
		m.blocks[i].Position = n * 10
		items = append(items, models.BlockPosition{ID: m.blocks[i].ID, Position: n * 10})
	}

	return items, nil
}

func (m *MemoryPageRepo) ReplaceBlocks(_ context.Context, pageID int64, blocks []models.Block) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.blocks {
		if m.blocks[i].PageID == pageID {
			m.blocks[i].IsActive = false
		}
	}

	now := m.now().UTC()
	for _, b := range blocks {
		m.blockSeq++

		row := cloneBlock(b)
		row.ID = m.blockSeq
		row.PageID = pageID
		row.IsActive = true
		row.CreatedAt = now

		m.blocks = append(m.blocks, row)
	}

	return len(blocks), nil
}

func (m *MemoryPageRepo) CreatePublication(_ context.Context, pageID int64, snapshot []models.SnapshotBlock, publishedBy string) (*models.Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[pageID]; !ok {
		return nil, fmt.Errorf("repository.memory.CreatePublication: %w", storage.ErrPageNotFound)
	}

	version := 1
	for _, p := range m.pubs[pageID] {
		if p.Version >= version {
			version = p.Version + 1
		}
	}

	m.pubSeq++
	pub := models.Publication{
		ID:          m.pubSeq,
		PageID:      pageID,
		Version:     version,
		Snapshot:    cloneSnapshot(snapshot),
		PublishedBy: publishedBy,
		PublishedAt: m.now().UTC(),
	}
	m.pubs[pageID] = append(m.pubs[pageID], pub)

	out := pub
	out.Snapshot = cloneSnapshot(pub.Snapshot)
	return &out, nil
}

func (m *MemoryPageRepo) LatestPublications(_ context.Context, pageID int64, limit int) ([]models.Publication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.pubs[pageID]
	out := make([]models.Publication, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		pub := src[i]
		pub.Snapshot = cloneSnapshot(pub.Snapshot)
		out = append(out, pub)
	}

	return out, nil
}

func (m *MemoryPageRepo) indexOf(pageID, blockID int64) int {
	for i := range m.blocks {
		if m.blocks[i].ID == blockID && m.blocks[i].PageID == pageID {
			return i
		}
	}
	return -1
}

func cloneBlock(b models.Block) models.Block {
	b.Props = cloneRaw(b.Props)
	if b.Locale != nil {
		l := *b.Locale
		b.Locale = &l
	}
	if b.ValidFrom != nil {
		t := *b.ValidFrom
		b.ValidFrom = &t
	}
	if b.ValidTo != nil {
		t := *b.ValidTo
		b.ValidTo = &t
	}
	return b
}

func cloneSnapshot(src []models.SnapshotBlock) []models.SnapshotBlock {
	out := make([]models.SnapshotBlock, len(src))
	for i, s := range src {
		s.Props = cloneRaw(s.Props)
		if s.Locale != nil {
			l := *s.Locale
			s.Locale = &l
		}
		if s.ValidFrom != nil {
			t := *s.ValidFrom
			s.ValidFrom = &t
		}
		if s.ValidTo != nil {
			t := *s.ValidTo
			s.ValidTo = &t
		}
		out[i] = s
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
