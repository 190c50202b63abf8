package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
)

type recordingHandler struct {
	types    []string
	received []shared.DomainEvent
	err      error
	panics   bool
}

func (h *recordingHandler) Handle(_ context.Context, evt shared.DomainEvent) error {
	if h.panics {
		panic("boom")
	}
	h.received = append(h.received, evt)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func overdueEvent(t *testing.T) shared.DomainEvent {
	t.Helper()
	inv := buildTestInvoice(t)
	return ledger.NewInvoiceOverdueEvent(inv, 5)
}

func TestBus_DeliversToSubscribedType(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	handler := &recordingHandler{types: []string{ledger.EventTypeInvoiceOverdue}}
	bus.Subscribe(handler)

	evt := overdueEvent(t)
	require.NoError(t, bus.Publish(context.Background(), evt))

	require.Len(t, handler.received, 1)
	assert.Equal(t, evt.EventID(), handler.received[0].EventID())
}

func TestBus_SkipsUnrelatedType(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	handler := &recordingHandler{types: []string{ledger.EventTypePaymentAllocated}}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), overdueEvent(t)))
	assert.Empty(t, handler.received)
}

func TestBus_CatchAllHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	handler := &recordingHandler{}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), overdueEvent(t)))
	assert.Len(t, handler.received, 1)
}

func TestBus_FailingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	failing := &recordingHandler{
		types: []string{ledger.EventTypeInvoiceOverdue},
		err:   errors.New("provider down"),
	}
	healthy := &recordingHandler{types: []string{ledger.EventTypeInvoiceOverdue}}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), overdueEvent(t)))
	assert.Len(t, healthy.received, 1)
}

func TestBus_PanickingHandlerIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	panicking := &recordingHandler{types: []string{ledger.EventTypeInvoiceOverdue}, panics: true}
	healthy := &recordingHandler{types: []string{ledger.EventTypeInvoiceOverdue}}
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	assert.NotPanics(t, func() {
		require.NoError(t, bus.Publish(context.Background(), overdueEvent(t)))
	})
	assert.Len(t, healthy.received, 1)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	handler := &recordingHandler{types: []string{ledger.EventTypeInvoiceOverdue}}
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), overdueEvent(t)))
	assert.Empty(t, handler.received)
}

func TestBus_ExplicitTypesOverrideHandlerTypes(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	handler := &recordingHandler{types: []string{ledger.EventTypePaymentAllocated}}
	bus.Subscribe(handler, ledger.EventTypeInvoiceOverdue)

	require.NoError(t, bus.Publish(context.Background(), overdueEvent(t)))
	assert.Len(t, handler.received, 1)
}

func buildTestInvoice(t *testing.T) *ledger.Invoice {
	t.Helper()
	inv, err := ledger.NewInvoice(
		uuid.New(),
		"INV-202603-test",
		uuid.New(),
		uuid.New(),
		uuid.New(),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		decimal.Zero,
		[]ledger.InvoiceLineItem{{
			ID:          uuid.New(),
			Kind:        ledger.LineItemKindRent,
			Description: "Rent March 2026",
			Amount:      decimal.NewFromInt(15000),
		}},
	)
	require.NoError(t, err)
	return inv
}
