package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusProcessing, StatusCancelled, false},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusShipped, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusPending, StatusDelivered, false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestPaymentMethod(t *testing.T) {
	assert.True(t, MethodCard.RequiresGateway())
	assert.False(t, MethodCashOnDelivery.RequiresGateway())
	assert.True(t, ValidPaymentMethod(MethodCard))
	assert.True(t, ValidPaymentMethod(MethodCashOnDelivery))
	assert.False(t, ValidPaymentMethod(PaymentMethod("WIRE")))
}

func TestValidPaymentStatus(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded} {
		assert.True(t, ValidPaymentStatus(s))
	}
	assert.False(t, ValidPaymentStatus(PaymentStatus("SETTLED")))
}
