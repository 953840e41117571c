package purchases

import (
	"context"
	"log/slog"
	"strings"

	"procureflow/internal/apperr"
	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/logkey"

	"github.com/google/uuid"
)

type Store interface {
	CheckoutDB(ctx context.Context, userID, idempotencyKey string) (CheckoutResult, error)
	ListByUser(ctx context.Context, userID string) ([]PurchaseRequest, error)
	GetByID(ctx context.Context, userID, id string) (PurchaseRequest, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Checkout submits the user's cart. An empty key disables replay, so every call creates a request.
func (s *Service) Checkout(ctx context.Context, userID, idempotencyKey string) (CheckoutResult, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > MaxIdempotencyKeyLen {
		return CheckoutResult{}, apperr.Validation("invalid idempotency key",
			map[string]string{"Idempotency-Key": "must be at most 255 characters"})
	}

	res, err := s.store.CheckoutDB(ctx, userID, idempotencyKey)
	if err != nil {
		return CheckoutResult{}, apperr.Wrap("checkout", err)
	}

	traceId := ctxmanage.TraceIDFrom(ctx)
	if res.Replayed {
		slog.Info("checkout replayed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.PurchaseRequestID, res.ID), slog.String(logkey.IdempotencyKey, idempotencyKey))
		return res, nil
	}
	slog.Info("purchase request created", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.UserID, userID), slog.String(logkey.PurchaseRequestID, res.ID),
		slog.String(logkey.RequestNumber, res.RequestNumber), slog.String("Total", res.Total.StringFixed(2)))
	return res, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]PurchaseRequest, error) {
	prs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap("list purchase requests", err)
	}
	return prs, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (PurchaseRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return PurchaseRequest{}, apperr.NotFound("purchase request", id)
	}
	pr, err := s.store.GetByID(ctx, userID, id)
	if err != nil {
		return PurchaseRequest{}, apperr.Wrap("get purchase request", err)
	}
	return pr, nil
}
