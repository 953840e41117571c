package items

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewItem is the body of a create request. Force skips the duplicate check.
type NewItem struct {
	Name        string          `json:"name" validate:"notblank,max=200"`
	Category    string          `json:"category" validate:"notblank,max=100"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	Description string          `json:"description" validate:"max=2000"`
	Force       bool            `json:"force"`
}

type SearchResult struct {
	Items []Item `json:"items"`
	Count int    `json:"count"`
}

// PriceScale and MaxPrice match the NUMERIC(12, 2) items.price column.
const PriceScale = 2

var MaxPrice = decimal.RequireFromString("9999999999.99")

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)
