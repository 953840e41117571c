package purchases

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusSubmitted = "submitted"

	MaxIdempotencyKeyLen = 255
)

// Line is a snapshot of a cart line taken at checkout. Later catalog edits never change it.
type Line struct {
	LineNo    int             `json:"line_no"`
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type PurchaseRequest struct {
	ID             string          `json:"id"`
	RequestNumber  string          `json:"request_number"`
	UserID         string          `json:"user_id"`
	Lines          []Line          `json:"lines"`
	Total          decimal.Decimal `json:"total"`
	Status         string          `json:"status"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CheckoutResult reports whether the request was created now or replayed for a reused key.
type CheckoutResult struct {
	PurchaseRequest
	Replayed bool `json:"replayed"`
}

func formatRequestNumber(n int64) string {
	return fmt.Sprintf("PR-%06d", n)
}
