package orders

import "errors"

// Business failures are sentinel values so callers can branch with errors.Is
// instead of string matching. The HTTP layer maps them to status codes.
var (
	ErrProductNotFound      = errors.New("orders: product not found")
	ErrProductInactive      = errors.New("orders: product inactive")
	ErrInsufficientStock    = errors.New("orders: insufficient stock")
	ErrOrderNotFound        = errors.New("orders: order not found")
	ErrNotCancellable       = errors.New("orders: order not cancellable")
	ErrInvalidItems         = errors.New("orders: order needs at least one item with qty > 0")
	ErrInvalidTransition    = errors.New("orders: invalid status transition")
	ErrInvalidPaymentStatus = errors.New("orders: invalid payment status")
	ErrInvalidPaymentMethod = errors.New("orders: invalid payment method")
)
