package items

import (
	"context"
	"log/slog"
	"strings"

	"procureflow/internal/apperr"
	"procureflow/internal/validation"
	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/logkey"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store interface {
	CreateItemDB(ctx context.Context, it Item, force bool) (Item, []Item, error)
	GetItemByID(ctx context.Context, id string) (Item, error)
	DeleteItemFromDB(ctx context.Context, id string) error
	SearchItemsFromDB(ctx context.Context, keyword string, limit, offset int) ([]Item, int, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateItem validates ni, rejects name+category duplicates unless ni.Force is set, and
// persists the item. allowForce is false for callers that may not override duplicates.
func (s *Service) CreateItem(ctx context.Context, ni NewItem, createdBy string, allowForce bool) (Item, error) {
	traceId := ctxmanage.TraceIDFrom(ctx)

	ni.Name = strings.TrimSpace(ni.Name)
	ni.Category = strings.TrimSpace(ni.Category)
	ni.Description = strings.TrimSpace(ni.Description)
	if err := validation.Struct("invalid item", ni); err != nil {
		return Item{}, err
	}
	if err := checkPrice(ni.Price); err != nil {
		return Item{}, err
	}
	if ni.Force && !allowForce {
		return Item{}, apperr.Forbidden("only admins may create an item that duplicates an existing one")
	}

	it, dups, err := s.store.CreateItemDB(ctx, Item{
		ID:          uuid.NewString(),
		Name:        ni.Name,
		Category:    ni.Category,
		Price:       ni.Price,
		Description: ni.Description,
		CreatedBy:   createdBy,
	}, ni.Force)
	if err != nil {
		return Item{}, apperr.Wrap("create item", err)
	}
	if len(dups) > 0 {
		if !ni.Force {
			return Item{}, apperr.Conflict("an item with this name and category already exists",
				map[string]any{"duplicates": dups})
		}
		ids := make([]string, 0, len(dups))
		for _, d := range dups {
			ids = append(ids, d.ID)
		}
		slog.Warn("created item despite duplicates", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ItemID, it.ID), slog.String(logkey.UserID, createdBy), slog.Any("DuplicateIDs", ids))
	}

	slog.Info("item created", slog.String(logkey.TraceID, traceId), slog.String(logkey.ItemID, it.ID),
		slog.String(logkey.UserID, createdBy))
	return it, nil
}

// checkPrice rejects prices the items.price column cannot hold exactly: more than two decimal
// places, or above MaxPrice.
func checkPrice(p decimal.Decimal) error {
	msg := ""
	switch {
	case !p.Round(PriceScale).Equal(p):
		msg = "must have at most 2 decimal places"
	case p.GreaterThan(MaxPrice):
		msg = "must be at most " + MaxPrice.StringFixed(PriceScale)
	default:
		return nil
	}
	return apperr.Validation("invalid item", map[string]string{"price": msg})
}

// SearchItems returns one page of matches and the total match count. limit 0 means the default.
func (s *Service) SearchItems(ctx context.Context, keyword string, limit, offset int) (SearchResult, error) {
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	fields := map[string]string{}
	if limit < 0 || limit > MaxSearchLimit {
		fields["limit"] = "must be between 1 and 100"
	}
	if offset < 0 {
		fields["offset"] = "must not be negative"
	}
	if len(fields) > 0 {
		return SearchResult{}, apperr.Validation("invalid search parameters", fields)
	}

	found, count, err := s.store.SearchItemsFromDB(ctx, strings.TrimSpace(keyword), limit, offset)
	if err != nil {
		return SearchResult{}, apperr.Wrap("search items", err)
	}
	return SearchResult{Items: found, Count: count}, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (Item, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Item{}, apperr.NotFound("item", id)
	}
	it, err := s.store.GetItemByID(ctx, id)
	if err != nil {
		return Item{}, apperr.Wrap("get item", err)
	}
	return it, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("item", id)
	}
	if err := s.store.DeleteItemFromDB(ctx, id); err != nil {
		return apperr.Wrap("delete item", err)
	}
	slog.Info("item deleted", slog.String(logkey.TraceID, ctxmanage.TraceIDFrom(ctx)), slog.String(logkey.ItemID, id))
	return nil
}
