package cart

import (
	"context"
	"log/slog"

	"procureflow/internal/apperr"
	"procureflow/internal/validation"
	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/logkey"

	"github.com/google/uuid"
)

type Store interface {
	AddToCartDB(ctx context.Context, userID, itemID string, quantity int) error
	SetQuantityDB(ctx context.Context, userID, itemID string, quantity int) error
	RemoveFromCartDB(ctx context.Context, userID, itemID string) error
	GetActiveCartItems(ctx context.Context, userID string) ([]Line, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) GetCart(ctx context.Context, userID string) (Cart, error) {
	lines, err := s.store.GetActiveCartItems(ctx, userID)
	if err != nil {
		return Cart{}, apperr.Wrap("get cart", err)
	}
	return NewCart(userID, lines), nil
}

// AddItem increments the line for req.ItemID. A zero quantity means one.
func (s *Service) AddItem(ctx context.Context, userID string, req AddItemRequest) (Cart, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := validation.Struct("invalid cart item", req); err != nil {
		return Cart{}, err
	}
	if err := s.store.AddToCartDB(ctx, userID, req.ItemID, req.Quantity); err != nil {
		return Cart{}, apperr.Wrap("add to cart", err)
	}

	slog.Info("item added to cart", slog.String(logkey.TraceID, ctxmanage.TraceIDFrom(ctx)),
		slog.String(logkey.UserID, userID), slog.String(logkey.ItemID, req.ItemID), slog.Int("Quantity", req.Quantity))
	return s.GetCart(ctx, userID)
}

func (s *Service) SetQuantity(ctx context.Context, userID, itemID string, req SetQuantityRequest) (Cart, error) {
	if _, err := uuid.Parse(itemID); err != nil {
		return Cart{}, apperr.NotFound("item", itemID)
	}
	if err := validation.Struct("invalid quantity", req); err != nil {
		return Cart{}, err
	}
	if err := s.store.SetQuantityDB(ctx, userID, itemID, req.Quantity); err != nil {
		return Cart{}, apperr.Wrap("set cart quantity", err)
	}
	return s.GetCart(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (Cart, error) {
	if _, err := uuid.Parse(itemID); err == nil {
		if err := s.store.RemoveFromCartDB(ctx, userID, itemID); err != nil {
			return Cart{}, apperr.Wrap("remove from cart", err)
		}
	}
	return s.GetCart(ctx, userID)
}
