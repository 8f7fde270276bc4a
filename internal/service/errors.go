package service

import "github.com/flicky/storehub-api/internal/apperr"

var (
	ErrUnauthorized       = apperr.New(apperr.Unauthorized, "authentication required")
	ErrForbidden          = apperr.New(apperr.Forbidden, "admin access required")
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid email or password")
	ErrUserAlreadyExists  = apperr.New(apperr.Conflict, "user already exists")
	ErrValidation         = apperr.New(apperr.Validation, "invalid request")

	ErrProductNotFound   = apperr.New(apperr.NotFound, "product not found")
	ErrCartItemNotFound  = apperr.New(apperr.NotFound, "cart item not found")
	ErrProductInUse      = apperr.New(apperr.Conflict, "product has orders; deactivate it instead")
	ErrInsufficientStock = apperr.New(apperr.InsufficientStock, "insufficient stock")
	ErrInvalidQuantity   = apperr.New(apperr.Validation, "quantity must be at least 1")

	ErrEmptyCart         = apperr.New(apperr.EmptyCart, "cart is empty")
	ErrOrderNotFound     = apperr.New(apperr.NotFound, "order not found")
	ErrOrderAccessDenied = apperr.New(apperr.Forbidden, "access denied")
	ErrInvalidStatus     = apperr.New(apperr.InvalidStatus, "invalid status")
	ErrInvalidTransition = apperr.New(apperr.InvalidTransition, "status transition not allowed")

	ErrInvalidRating = apperr.New(apperr.Validation, "rating must be between 1 and 5")
	ErrInvalidOrder  = apperr.New(apperr.InvalidOrder, "product is not part of this order")
	ErrNotDelivered  = apperr.New(apperr.NotDelivered, "order has not been delivered")
)

func insufficientStock(productName string) error {
	return apperr.Newf(apperr.InsufficientStock, "insufficient stock for %s", productName)
}

func validation(message string) error {
	return apperr.New(apperr.Validation, message)
}
