package returns

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// Service implements the return request workflow.
type Service struct {
	repo   Repository
	orders Orders
	window time.Duration
	now    func() time.Time
}

// NewService creates a return Service. window <= 0 selects DefaultWindow.
func NewService(repo Repository, orders Orders, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{repo: repo, orders: orders, window: window, now: time.Now}
}

// Create opens a return request for one of the user's orders.
func (s *Service) Create(ctx context.Context, userID, orderID, reason string) (*Request, error) {
	reason = NormalizeReason(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	now := s.now()
	if err := Eligible(o, s.window, now); err != nil {
		return nil, err
	}

	r := &Request{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		UserID:    userID,
		Reason:    reason,
		Status:    StatusPending,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Return requested",
		zap.String("return_id", r.ID),
		zap.String("order_id", r.OrderID),
	)
	return r, nil
}

// ListForUser returns the user's return requests.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Request, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListAll returns requests in status, or all of them when status is empty.
func (s *Service) ListAll(ctx context.Context, status Status) ([]Request, error) {
	return s.repo.List(ctx, status)
}

// Decide approves or rejects a pending request.
func (s *Service) Decide(ctx context.Context, id string, approve bool, note string) (*Request, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, &StatusError{Status: r.Status, Action: "decide"}
	}
	now := s.now()
	r.Status = StatusRejected
	if approve {
		r.Status = StatusApproved
	}
	r.Note = note
	r.DecidedAt = &now
	if err := s.repo.Update(ctx, r, StatusPending); err != nil {
		return nil, errors.Wrap(err, "update return")
	}
	return r, nil
}

// Complete marks an approved request as completed once the goods are back.
func (s *Service) Complete(ctx context.Context, id string) (*Request, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusApproved {
		return nil, &StatusError{Status: r.Status, Action: "complete"}
	}
	now := s.now()
	r.Status = StatusCompleted
	r.CompletedAt = &now
	if err := s.repo.Update(ctx, r, StatusApproved); err != nil {
		return nil, errors.Wrap(err, "update return")
	}
	return r, nil
}
