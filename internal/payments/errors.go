package payments

import "errors"

var (
	// ErrAmountOutOfRange is raised locally, before any gateway round trip.
	ErrAmountOutOfRange = errors.New("payments: amount out of range")
	// ErrGatewayUnavailable covers transport failures, timeouts and gateway 5xx.
	// Callers may retry the whole operation; nothing was committed.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
	// ErrInvalidWebhookEvent marks unverifiable or unparseable deliveries. The
	// event is rejected without touching any order so the gateway redelivers.
	ErrInvalidWebhookEvent = errors.New("payments: invalid webhook event")
	// ErrNoPaymentDue is returned when an order has nothing left to pay.
	ErrNoPaymentDue = errors.New("payments: no payment due for order")
)
