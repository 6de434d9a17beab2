package httpx

import (
	"errors"
	"net/http"

	"github.com/mkarsono/go-order-fulfillment/internal/orders"
	"github.com/mkarsono/go-order-fulfillment/internal/payments"
)

// statusFor maps domain error kinds to transport status codes. Anything
// unrecognized is a 500; no error class terminates the process.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrNotCancellable),
		errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, orders.ErrProductInactive),
		errors.Is(err, orders.ErrInvalidItems),
		errors.Is(err, orders.ErrInvalidPaymentStatus),
		errors.Is(err, orders.ErrInvalidPaymentMethod),
		errors.Is(err, payments.ErrAmountOutOfRange),
		errors.Is(err, payments.ErrNoPaymentDue),
		errors.Is(err, payments.ErrInvalidWebhookEvent):
		return http.StatusBadRequest
	case errors.Is(err, payments.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
