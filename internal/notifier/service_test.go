package notifier

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kafkax "github.com/mkarsono/go-order-fulfillment/internal/kafka"
	"github.com/mkarsono/go-order-fulfillment/internal/orders"
)

type recordingMailer struct {
	confirmations []string
	cancellations []string
	updates       []orders.PaymentStatus
}

func (m *recordingMailer) SendOrderConfirmation(_ context.Context, userID, orderID string, totalCents int64) error {
	m.confirmations = append(m.confirmations, orderID)
	return nil
}

func (m *recordingMailer) SendOrderCancelled(_ context.Context, userID, orderID string) error {
	m.cancellations = append(m.cancellations, orderID)
	return nil
}

func (m *recordingMailer) SendPaymentUpdate(_ context.Context, userID, orderID string, status orders.PaymentStatus) error {
	m.updates = append(m.updates, status)
	return nil
}

type seenDeduper struct {
	seen  bool
	marks int
}

func (d *seenDeduper) SeenEvent(ctx context.Context, scope, eventID string) bool { return d.seen }

func (d *seenDeduper) MarkEvent(ctx context.Context, scope, eventID string) { d.marks++ }

type failingMailer struct{ recordingMailer }

func (m *failingMailer) SendOrderConfirmation(context.Context, string, string, int64) error {
	return errors.New("smtp down")
}

func message(t *testing.T, eventType string, payload any) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "test", "o1", payload)
	require.NoError(t, err)
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestHandleOrderCreated(t *testing.T) {
	mailer := &recordingMailer{}
	dedup := &seenDeduper{}
	svc := &Service{Mailer: mailer, Dedup: dedup, Logger: zap.NewNop()}

	m := message(t, orders.EventOrderCreated, orders.OrderCreatedPayload{
		OrderID: "o1", UserID: "user-a", TotalCents: 3000,
	})
	require.NoError(t, svc.HandleEvent(context.Background(), m))
	assert.Equal(t, []string{"o1"}, mailer.confirmations)
	assert.Equal(t, 1, dedup.marks)
}

// A failed send must not be marked seen; the consumer redelivers and the
// notification gets another attempt.
func TestHandleEventSendFailureNotMarked(t *testing.T) {
	dedup := &seenDeduper{}
	svc := &Service{Mailer: &failingMailer{}, Dedup: dedup, Logger: zap.NewNop()}

	m := message(t, orders.EventOrderCreated, orders.OrderCreatedPayload{OrderID: "o1"})
	require.Error(t, svc.HandleEvent(context.Background(), m))
	assert.Zero(t, dedup.marks)
}

func TestHandlePaymentUpdated(t *testing.T) {
	mailer := &recordingMailer{}
	svc := &Service{Mailer: mailer, Logger: zap.NewNop()}

	m := message(t, orders.EventPaymentUpdated, orders.PaymentUpdatedPayload{
		OrderID: "o1", UserID: "user-a", PaymentStatus: orders.PaymentCompleted,
	})
	require.NoError(t, svc.HandleEvent(context.Background(), m))
	assert.Equal(t, []orders.PaymentStatus{orders.PaymentCompleted}, mailer.updates)
}

func TestHandleEventDedup(t *testing.T) {
	mailer := &recordingMailer{}
	svc := &Service{Mailer: mailer, Dedup: &seenDeduper{seen: true}, Logger: zap.NewNop()}

	m := message(t, orders.EventOrderCreated, orders.OrderCreatedPayload{OrderID: "o1"})
	require.NoError(t, svc.HandleEvent(context.Background(), m))
	assert.Empty(t, mailer.confirmations)
}

// Malformed envelopes are dropped, not returned as errors, so the consumer
// commits the offset instead of redelivering the same bytes forever.
func TestHandleEventMalformed(t *testing.T) {
	mailer := &recordingMailer{}
	svc := &Service{Mailer: mailer, Logger: zap.NewNop()}

	require.NoError(t, svc.HandleEvent(context.Background(), kafkago.Message{Value: []byte("garbage")}))
	assert.Empty(t, mailer.confirmations)
}

func TestHandleEventUnknownType(t *testing.T) {
	mailer := &recordingMailer{}
	svc := &Service{Mailer: mailer, Logger: zap.NewNop()}

	m := message(t, "SomethingNew", map[string]string{"k": "v"})
	require.NoError(t, svc.HandleEvent(context.Background(), m))
	assert.Empty(t, mailer.confirmations)
	assert.Empty(t, mailer.updates)
}
