package domain

import "time"

type CartItem struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductSnapshot is the catalog state of a product as seen by a cart line.
type ProductSnapshot struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// CartLine is a cart item joined with its product. Product is nil when the
// product no longer exists in the catalog.
type CartLine struct {
	CartItem
	Product *ProductSnapshot `json:"product,omitempty"`
}

func (l CartLine) Subtotal() float64 {
	if l.Product == nil {
		return 0
	}
	return l.Product.Price * float64(l.Quantity)
}

type Cart struct {
	UserID int64      `json:"user_id"`
	Lines  []CartLine `json:"lines"`
}

func (c *Cart) TotalQuantity() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

func (c *Cart) TotalAmount() float64 {
	var total float64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}
