package repository

import (
	"github.com/jackc/pgx/v4/pgxpool"
)

// Repository набор postgres репозиториев поверх одного пула
type Repository struct {
	db    *pgxpool.Pool
	User  UserRepository
	Page  PageRepository
	Audit AuditRepository
}

func NewRepositoryFromPool(db *pgxpool.Pool) *Repository {
	return &Repository{
		db:    db,
		User:  NewUserRepository(db),
		Page:  NewPageRepository(db),
		Audit: NewAuditRepository(db),
	}
}

// NewMemoryRepository хранилище в памяти процесса, когда база не настроена
func NewMemoryRepository() *Repository {
	return &Repository{
		User:  NewMemoryUserRepository(),
		Page:  NewMemoryPageRepository(),
		Audit: NewMemoryAuditRepository(),
	}
}

func (r *Repository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}
