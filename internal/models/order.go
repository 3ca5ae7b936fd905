package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest represents an incoming order request
type OrderRequest struct {
	CustomerLabel string        `json:"customerLabel"`
	Items         []LineRequest `json:"items"`
}

// LineRequest asks for a quantity of a single dish
type LineRequest struct {
	DishID   int64 `json:"dishId"`
	Quantity int   `json:"quantity"`
}

// Order represents a customer's checkout.
// The total is always derived from the lines and never stored.
type Order struct {
	ID            string      `json:"id"`
	CustomerLabel string      `json:"customerLabel"`
	CreatedAt     time.Time   `json:"createdAt"`
	Paid          bool        `json:"paid"`
	Lines         []OrderLine `json:"lines"`
}

// OrderLine is one dish within an order. UnitPrice is captured when the
// order is placed and is not affected by later price edits.
type OrderLine struct {
	OrderID   string          `json:"orderId"`
	DishID    int64           `json:"dishId"`
	DishCode  string          `json:"dishCode,omitempty"`
	DishName  string          `json:"dishName,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Subtotal returns UnitPrice × Quantity
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total sums the subtotals of all lines
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// MenuImport is the bulk import shape: category name -> dish code -> dish data
type MenuImport map[string]map[string]DishSeed

// DishSeed is a dish entry of a bulk import
type DishSeed struct {
	Name  string          `json:"name" yaml:"name"`
	Price decimal.Decimal `json:"price" yaml:"price"`
	Stock int             `json:"stock" yaml:"stock"`
}

// ImportResult summarises an applied import
type ImportResult struct {
	CategoriesCreated int `json:"categoriesCreated"`
	DishesCreated     int `json:"dishesCreated"`
	DishesUpdated     int `json:"dishesUpdated"`
}
