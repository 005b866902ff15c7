package service

import (
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

// translate maps store errors onto domain errors. Domain errors pass through
// untouched, anything unrecognised becomes a GeneralError tagged with op.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		return domain.ErrProductNotFound
	case errors.Is(err, repository.ErrCartItemNotFound):
		return domain.ErrCartItemNotFound
	case isDomainError(err):
		return err
	default:
		return domain.NewGeneralError(op, err)
	}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrProductNotFound,
		domain.ErrCartItemNotFound,
		domain.ErrCartEmpty,
		domain.ErrStockNotEnough,
		domain.ErrInvalidQuantity,
		domain.ErrInvalidProduct,
		domain.ErrGeneral,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
