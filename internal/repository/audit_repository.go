package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"content_blocks/internal/domain/models"
	"content_blocks/internal/storage/postgresql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4/pgxpool"
)

const defaultAuditLimit = 50

type AuditRepo struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *AuditRepo) SaveAudit(ctx context.Context, record models.AuditRecord) error {
	const op = "repository.audit_repository.SaveAudit"

	var diff []byte
	if record.Diff != nil {
		data, err := json.Marshal(record.Diff)
		if err != nil {
			return fmt.Errorf("%s: marshal diff: %w", op, err)
		}
		diff = data
	}

	query, args, err := r.sb.Insert(postgresql.AuditTable).
		Columns("entity", "entity_id", "action", "actor_id", "diff").
		Values(record.Entity, record.EntityID, record.Action, record.ActorID, diff).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ListAudit пустой entity или entityID не фильтрует по соответствующему полю
func (r *AuditRepo) ListAudit(ctx context.Context, entity, entityID string, limit int) ([]models.AuditRecord, error) {
	const op = "repository.audit_repository.ListAudit"

	if limit <= 0 || limit > 500 {
		limit = defaultAuditLimit
	}

	builder := r.sb.Select("id", "entity", "entity_id", "action", "actor_id", "diff", "created_at").
		From(postgresql.AuditTable)

	if entity != "" {
		builder = builder.Where(sq.Eq{"entity": entity})
	}
	if entityID != "" {
		builder = builder.Where(sq.Eq{"entity_id": entityID})
	}

	query, args, err := builder.OrderBy("id DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	records := make([]models.AuditRecord, 0)
	for rows.Next() {
		var (
			rec  models.AuditRecord
			diff []byte
		)

		if err := rows.Scan(&rec.ID, &rec.Entity, &rec.EntityID, &rec.Action, &rec.ActorID, &diff, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if len(diff) > 0 {
			if err := json.Unmarshal(diff, &rec.Diff); err != nil {
				return nil, fmt.Errorf("%s: decode diff: %w", op, err)
			}
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// MemoryAuditRepo журнал аудита в памяти, только добавление
type MemoryAuditRepo struct {
	mu      sync.RWMutex
	records []models.AuditRecord
	seq     int64
}

func NewMemoryAuditRepository() *MemoryAuditRepo {
	return &MemoryAuditRepo{}
}

func (m *MemoryAuditRepo) SaveAudit(_ context.Context, record models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	record.ID = m.seq
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, record)

	return nil
}

func (m *MemoryAuditRepo) ListAudit(_ context.Context, entity, entityID string, limit int) ([]models.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > 500 {
		limit = defaultAuditLimit
	}

	out := make([]models.AuditRecord, 0)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := m.records[i]
		if entity != "" && rec.Entity != entity {
			continue
		}
		if entityID != "" && rec.EntityID != entityID {
			continue
		}
		out = append(out, rec)
	}

	return out, nil
}
