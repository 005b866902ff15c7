package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
)

const DefaultCurrency = "USD"

type OrderLine struct {
	ProductID   int64   `json:"product_id" bson:"product_id"`
	ProductName string  `json:"product_name" bson:"product_name"`
	Quantity    int     `json:"quantity" bson:"quantity"`
	UnitPrice   float64 `json:"unit_price" bson:"unit_price"`
	Subtotal    float64 `json:"subtotal" bson:"subtotal"`
}

type Order struct {
	ID          uuid.UUID   `json:"id"`
	UserID      int64       `json:"user_id"`
	Lines       []OrderLine `json:"lines"`
	TotalAmount float64     `json:"total_amount"`
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewOrder prices every line at the given unit price and sums the total.
func NewOrder(userID int64, currency string, lines []OrderLine, now time.Time) *Order {
	if currency == "" {
		currency = DefaultCurrency
	}
	var total float64
	for i := range lines {
		lines[i].Subtotal = lines[i].UnitPrice * float64(lines[i].Quantity)
		total += lines[i].Subtotal
	}
	return &Order{
		ID:          uuid.New(),
		UserID:      userID,
		Lines:       lines,
		TotalAmount: total,
		Currency:    currency,
		Status:      OrderStatusConfirmed,
		CreatedAt:   now,
	}
}
