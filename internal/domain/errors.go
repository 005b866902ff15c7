package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrCartEmpty        = errors.New("cart is empty, nothing to checkout")
	ErrStockNotEnough   = errors.New("product stock is not enough")
	ErrInvalidQuantity  = errors.New("quantity must be a positive integer")
	ErrInvalidProduct   = errors.New("invalid product")
	ErrGeneral          = errors.New("general error")
)

// StockNotEnoughError identifies the cart line that could not be served.
type StockNotEnoughError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockNotEnoughError) Error() string {
	return fmt.Sprintf("product %d stock is not enough: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockNotEnoughError) Is(target error) bool {
	return target == ErrStockNotEnough
}

// GeneralError wraps a failure the caller cannot act on.
type GeneralError struct {
	Op  string
	Err error
}

func NewGeneralError(op string, err error) *GeneralError {
	return &GeneralError{Op: op, Err: err}
}

func (e *GeneralError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GeneralError) Unwrap() error {
	return e.Err
}

func (e *GeneralError) Is(target error) bool {
	return target == ErrGeneral
}
