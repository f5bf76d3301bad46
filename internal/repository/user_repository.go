package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"content_blocks/internal/domain/models"
	"content_blocks/internal/storage"
	"content_blocks/internal/storage/postgresql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

type UserRepo struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewUserRepository(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *UserRepo) SaveUser(ctx context.Context, user models.User) (uuid.UUID, error) {
	const op = "repository.user_repository.SaveUser"

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query, args, err := r.sb.Insert(postgresql.UsersTable).
		Columns(
			"id",
			"name",
			"email",
			"password",
			"role",
		).
		Values(
			user.ID,
			user.Name,
			strings.ToLower(user.Email),
			user.Password,
			string(user.Role),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	var id uuid.UUID
	err = r.db.QueryRow(ctx, query, args...).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return uuid.Nil, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (r *UserRepo) UserByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	const op = "repository.user_repository.UserByIdentifier"

	return r.getUser(ctx, op, sq.Eq{"email": strings.ToLower(identifier)})
}

func (r *UserRepo) GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "repository.user_repository.GetUserById"

	return r.getUser(ctx, op, sq.Eq{"id": userID})
}

func (r *UserRepo) getUser(ctx context.Context, op string, where sq.Eq) (models.User, error) {
	sql, args, err := r.sb.Select("id", "name", "email", "password", "role", "registration_date", "last_login").
		From(postgresql.UsersTable).
		Where(where).
		ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var (
		user      models.User
		role      string
		lastLogin *time.Time
	)

	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Password,
		&role,
		&user.RegistrationDate,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user.Role = models.Role(role)
	if lastLogin != nil {
		user.LastLogin = *lastLogin
	}

	return user, nil
}

func (r *UserRepo) UpdateRole(ctx context.Context, userID uuid.UUID, role models.Role) error {
	const op = "repository.user_repository.UpdateRole"

	return r.update(ctx, op, userID, "role", string(role))
}

func (r *UserRepo) TouchLastLogin(ctx context.Context, userID uuid.UUID) error {
	const op = "repository.user_repository.TouchLastLogin"

	return r.update(ctx, op, userID, "last_login", time.Now().UTC())
}

func (r *UserRepo) update(ctx context.Context, op string, userID uuid.UUID, column string, value interface{}) error {
	query, args, err := r.sb.Update(postgresql.UsersTable).
		Set(column, value).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
}

func NewMemoryUserRepository() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (m *MemoryUserRepo) SaveUser(_ context.Context, user models.User) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := m.byEmail[email]; ok {
		return uuid.Nil, fmt.Errorf("repository.memory.SaveUser: %w", storage.ErrUserExists)
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = email
	user.RegistrationDate = time.Now().UTC()

	m.byID[user.ID] = user
	m.byEmail[email] = user.ID

	return user.ID, nil
}

func (m *MemoryUserRepo) UserByIdentifier(_ context.Context, identifier string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(identifier)]
	if !ok {
		return models.User{}, fmt.Errorf("repository.memory.UserByIdentifier: %w", storage.ErrUserNotFound)
	}

	return m.byID[id], nil
}

func (m *MemoryUserRepo) GetUserById(_ context.Context, userID uuid.UUID) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byID[userID]
	if !ok {
		return models.User{}, fmt.Errorf("repository.memory.GetUserById: %w", storage.ErrUserNotFound)
	}

	return user, nil
}

func (m *MemoryUserRepo) UpdateRole(_ context.Context, userID uuid.UUID, role models.Role) error {
	return m.modify(userID, func(u *models.User) { u.Role = role })
}

func (m *MemoryUserRepo) TouchLastLogin(_ context.Context, userID uuid.UUID) error {
	return m.modify(userID, func(u *models.User) { u.LastLogin = time.Now().UTC() })
}

func (m *MemoryUserRepo) modify(userID uuid.UUID, fn func(u *models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[userID]
	if !ok {
		return fmt.Errorf("repository.memory.modify: %w", storage.ErrUserNotFound)
	}

	fn(&user)
	m.byID[userID] = user

	return nil
}
