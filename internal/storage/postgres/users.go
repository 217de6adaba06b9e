package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/user"
)

const (
	getUserSQL = `SELECT id, name, email, default_address FROM users WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, email, default_address) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
			default_address = EXCLUDED.default_address`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository provides user lookups backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get returns one user.
func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	var (
		u    user.User
		addr []byte
	)
	err := r.pool.QueryRow(ctx, getUserSQL, id).Scan(&u.ID, &u.Name, &u.Email, &addr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	if err := json.Unmarshal(addr, &u.DefaultAddress); err != nil {
		return nil, fmt.Errorf("decoding address of user %q: %w", id, err)
	}
	return &u, nil
}

// Upsert inserts u or replaces the stored user with the same id.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	addr, err := json.Marshal(u.DefaultAddress)
	if err != nil {
		return fmt.Errorf("marshaling address of user %q: %w", u.ID, err)
	}
	if _, err := r.pool.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email, addr); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}
