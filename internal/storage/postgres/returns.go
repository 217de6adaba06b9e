package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/returns"
)

const (
	returnColumns = `id, order_id, user_id, reason, status, note, created_at, decided_at, completed_at`

	createReturnSQL = `INSERT INTO return_requests (` + returnColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	getReturnSQL = `SELECT ` + returnColumns + ` FROM return_requests WHERE id = $1`

	listReturnsByUserSQL = `SELECT ` + returnColumns + ` FROM return_requests
		WHERE user_id = $1 ORDER BY created_at DESC`

	listReturnsSQL = `SELECT ` + returnColumns + ` FROM return_requests
		WHERE $1 = '' OR status = $1 ORDER BY created_at DESC`

	updateReturnSQL = `UPDATE return_requests SET status = $2, note = $3, decided_at = $4, completed_at = $5
		WHERE id = $1 AND status = $6`

	returnExistsSQL = `SELECT EXISTS (SELECT 1 FROM return_requests WHERE id = $1)`
)

var _ returns.Repository = (*ReturnRepository)(nil)

// ReturnRepository stores return requests. The unique order_id column keeps
// at most one request per order.
type ReturnRepository struct {
	pool *pgxpool.Pool
}

// NewReturnRepository returns a ReturnRepository that uses the given pool.
func NewReturnRepository(pool *pgxpool.Pool) *ReturnRepository {
	return &ReturnRepository{pool: pool}
}

// Create stores req unless its order already has a request.
func (r *ReturnRepository) Create(ctx context.Context, req *returns.Request) error {
	_, err := r.pool.Exec(ctx, createReturnSQL,
		req.ID, req.OrderID, req.UserID, req.Reason, string(req.Status), req.Note,
		req.CreatedAt, req.DecidedAt, req.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return returns.ErrAlreadyRequested
		}
		return fmt.Errorf("creating return request: %w", err)
	}
	return nil
}

// Get returns one request.
func (r *ReturnRepository) Get(ctx context.Context, id string) (*returns.Request, error) {
	rows, err := r.pool.Query(ctx, getReturnSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting return request %q: %w", id, err)
	}
	req, err := pgx.CollectExactlyOneRow(rows, scanReturn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, returns.ErrNotFound
		}
		return nil, fmt.Errorf("getting return request %q: %w", id, err)
	}
	return &req, nil
}

// ListByUser returns the user's requests, newest first.
func (r *ReturnRepository) ListByUser(ctx context.Context, userID string) ([]returns.Request, error) {
	rows, err := r.pool.Query(ctx, listReturnsByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing return requests: %w", err)
	}
	return pgx.CollectRows(rows, scanReturn)
}

// List returns requests in status, or all when status is empty.
func (r *ReturnRepository) List(ctx context.Context, status returns.Status) ([]returns.Request, error) {
	rows, err := r.pool.Query(ctx, listReturnsSQL, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing return requests: %w", err)
	}
	return pgx.CollectRows(rows, scanReturn)
}

// Update stores req if the stored status still equals from.
func (r *ReturnRepository) Update(ctx context.Context, req *returns.Request, from returns.Status) error {
	tag, err := r.pool.Exec(ctx, updateReturnSQL,
		req.ID, string(req.Status), req.Note, req.DecidedAt, req.CompletedAt, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating return request %q: %w", req.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, returnExistsSQL, req.ID).Scan(&exists); err != nil {
		return fmt.Errorf("updating return request %q: %w", req.ID, err)
	}
	if !exists {
		return returns.ErrNotFound
	}
	return returns.ErrStatusChanged
}

func scanReturn(row pgx.CollectableRow) (returns.Request, error) {
	var (
		req    returns.Request
		status string
	)
	err := row.Scan(
		&req.ID, &req.OrderID, &req.UserID, &req.Reason, &status, &req.Note,
		&req.CreatedAt, &req.DecidedAt, &req.CompletedAt,
	)
	req.Status = returns.Status(status)
	return req, err
}
