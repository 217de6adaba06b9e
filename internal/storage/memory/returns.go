package memory

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/returns"
)

var _ returns.Repository = (*Returns)(nil)

// Returns is the return request view of a DB.
type Returns struct{ db *DB }

// Returns returns the return request repository.
func (db *DB) Returns() *Returns { return &Returns{db: db} }

// Create stores r unless its order already has a request.
func (r *Returns) Create(_ context.Context, req *returns.Request) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.returnByOrder[req.OrderID]; ok {
		return returns.ErrAlreadyRequested
	}
	r.db.returns[req.ID] = *req
	r.db.returnByOrder[req.OrderID] = req.ID
	return nil
}

// Get returns one request.
func (r *Returns) Get(_ context.Context, id string) (*returns.Request, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	req, ok := r.db.returns[id]
	if !ok {
		return nil, returns.ErrNotFound
	}
	return &req, nil
}

// ListByUser returns the user's requests, newest first.
func (r *Returns) ListByUser(_ context.Context, userID string) ([]returns.Request, error) {
	return r.list(func(req *returns.Request) bool { return req.UserID == userID }), nil
}

// List returns requests in status, or all when status is empty.
func (r *Returns) List(_ context.Context, status returns.Status) ([]returns.Request, error) {
	return r.list(func(req *returns.Request) bool { return status == "" || req.Status == status }), nil
}

func (r *Returns) list(keep func(*returns.Request) bool) []returns.Request {
	r.db.mu.RLock()
	out := make([]returns.Request, 0)
	for _, req := range r.db.returns {
		if keep(&req) {
			out = append(out, req)
		}
	}
	r.db.mu.RUnlock()
	slices.SortFunc(out, func(a, b returns.Request) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

// Update stores req if the stored status still equals from.
func (r *Returns) Update(_ context.Context, req *returns.Request, from returns.Status) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.returns[req.ID]
	if !ok {
		return returns.ErrNotFound
	}
	if stored.Status != from {
		return returns.ErrStatusChanged
	}
	r.db.returns[req.ID] = *req
	return nil
}
