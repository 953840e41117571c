package kafka

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicPurchaseRequestCreated = `procureflow.purchase-request.created`
	EventPurchaseRequestCreated = `purchase_request.created`
)

// Representation of the event published after a successful checkout.
// The record key is the purchase request id.
type PurchaseRequestCreated struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	RequestNumber string          `json:"request_number"`
	UserID        string          `json:"user_id"`
	Total         decimal.Decimal `json:"total"`
	Lines         []EventLine     `json:"lines"`
	CreatedAt     time.Time       `json:"created_at"`
}

type EventLine struct {
	ItemID    string          `json:"item_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
