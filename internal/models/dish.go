package models

import "github.com/shopspring/decimal"

// Category groups dishes on the menu (e.g. "Entradas", "Bebidas")
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Dish represents a sellable menu entry with its live price and stock
type Dish struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	CategoryID int64           `json:"categoryId"`
	Category   string          `json:"category"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
}

// InStock reports whether at least one unit can be ordered
func (d Dish) InStock() bool {
	return d.Stock > 0
}

// CategoryMenu is a category together with its dishes, as shown on the menu page
type CategoryMenu struct {
	Category Category `json:"category"`
	Dishes   []Dish   `json:"dishes"`
}
