package cart

import "github.com/shopspring/decimal"

type Line struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Cart struct {
	UserID    string          `json:"user_id"`
	Lines     []Line          `json:"lines"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

// NewCart fills in line totals, the item count and the cart total.
func NewCart(userID string, lines []Line) Cart {
	c := Cart{UserID: userID, Lines: make([]Line, 0, len(lines)), Total: decimal.Zero}
	for _, l := range lines {
		l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		c.Lines = append(c.Lines, l)
		c.ItemCount += l.Quantity
		c.Total = c.Total.Add(l.LineTotal)
	}
	return c
}

type AddItemRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"gte=0,max=10000"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,max=10000"`
}
