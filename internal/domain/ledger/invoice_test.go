package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
)

func mustLineItem(t *testing.T, kind LineItemKind, desc string, amount float64) InvoiceLineItem {
	t.Helper()
	item, err := NewInvoiceLineItem(kind, desc, valueobject.NewMoneyKESFromFloat(amount))
	require.NoError(t, err)
	return *item
}

func newTestInvoice(t *testing.T, opening float64, items ...InvoiceLineItem) *Invoice {
	t.Helper()
	if len(items) == 0 {
		items = []InvoiceLineItem{mustLineItem(t, LineItemKindRent, "Monthly rent", 10000)}
	}
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv, err := NewInvoice(
		uuid.New(),
		"INV-2026-03-0001",
		uuid.New(),
		uuid.New(),
		uuid.New(),
		periodStart,
		periodStart.AddDate(0, 1, 0),
		periodStart.AddDate(0, 0, 5),
		decimal.NewFromFloat(opening),
		items,
	)
	require.NoError(t, err)
	return inv
}

func TestNewInvoice(t *testing.T) {
	t.Run("creates invoice with balance from opening plus line items", func(t *testing.T) {
		inv := newTestInvoice(t, 2500,
			mustLineItem(t, LineItemKindRent, "Monthly rent", 10000),
			mustLineItem(t, LineItemKindUtility, "Water", 800),
		)

		assert.Equal(t, InvoiceStatusIssued, inv.Status)
		assert.True(t, inv.Amount.Equal(decimal.NewFromInt(10800)))
		assert.True(t, inv.OpeningBalance.Equal(decimal.NewFromInt(2500)))
		assert.True(t, inv.Balance.Equal(decimal.NewFromInt(13300)))
		assert.Len(t, inv.GetDomainEvents(), 1)
	})

	t.Run("rejects empty invoice number", func(t *testing.T) {
		periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		_, err := NewInvoice(uuid.New(), "", uuid.New(), uuid.New(), uuid.New(),
			periodStart, periodStart.AddDate(0, 1, 0), periodStart.AddDate(0, 0, 5),
			decimal.Zero, []InvoiceLineItem{mustLineItem(t, LineItemKindRent, "Rent", 10000)})

		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
	})

	t.Run("rejects period end before period start", func(t *testing.T) {
		periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		_, err := NewInvoice(uuid.New(), "INV-1", uuid.New(), uuid.New(), uuid.New(),
			periodStart, periodStart.AddDate(0, -1, 0), periodStart,
			decimal.Zero, []InvoiceLineItem{mustLineItem(t, LineItemKindRent, "Rent", 10000)})

		assert.Error(t, err)
	})

	t.Run("rejects negative opening balance", func(t *testing.T) {
		periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		_, err := NewInvoice(uuid.New(), "INV-1", uuid.New(), uuid.New(), uuid.New(),
			periodStart, periodStart.AddDate(0, 1, 0), periodStart.AddDate(0, 0, 5),
			decimal.NewFromInt(-100), []InvoiceLineItem{mustLineItem(t, LineItemKindRent, "Rent", 10000)})

		assert.Error(t, err)
	})

	t.Run("rejects empty line items", func(t *testing.T) {
		periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		_, err := NewInvoice(uuid.New(), "INV-1", uuid.New(), uuid.New(), uuid.New(),
			periodStart, periodStart.AddDate(0, 1, 0), periodStart.AddDate(0, 0, 5),
			decimal.Zero, nil)

		assert.Error(t, err)
	})
}

func TestNewInvoiceLineItem(t *testing.T) {
	tests := []struct {
		name    string
		kind    LineItemKind
		amount  float64
		wantErr bool
	}{
		{"valid rent item", LineItemKindRent, 10000, false},
		{"valid utility item", LineItemKindUtility, 500, false},
		{"invalid kind", LineItemKind("PENALTY"), 100, true},
		{"zero amount", LineItemKindRent, 0, true},
		{"negative amount", LineItemKindOther, -50, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInvoiceLineItem(tt.kind, "desc", valueobject.NewMoneyKESFromFloat(tt.amount))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInvoiceRecalculate(t *testing.T) {
	t.Run("partial allocation moves invoice to partially paid", func(t *testing.T) {
		inv := newTestInvoice(t, 0)

		err := inv.Recalculate(decimal.NewFromInt(4000))
		require.NoError(t, err)

		assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
		assert.True(t, inv.Balance.Equal(decimal.NewFromInt(6000)))
		assert.Nil(t, inv.PaidAt)
	})

	t.Run("full allocation settles the invoice", func(t *testing.T) {
		inv := newTestInvoice(t, 2000)

		err := inv.Recalculate(decimal.NewFromInt(12000))
		require.NoError(t, err)

		assert.Equal(t, InvoiceStatusPaid, inv.Status)
		assert.True(t, inv.Balance.IsZero())
		assert.NotNil(t, inv.PaidAt)
	})

	t.Run("zero allocation keeps invoice issued", func(t *testing.T) {
		inv := newTestInvoice(t, 0)

		err := inv.Recalculate(decimal.Zero)
		require.NoError(t, err)

		assert.Equal(t, InvoiceStatusIssued, inv.Status)
		assert.True(t, inv.Balance.Equal(decimal.NewFromInt(10000)))
	})

	t.Run("reversal restores an issued status from paid", func(t *testing.T) {
		inv := newTestInvoice(t, 0)
		require.NoError(t, inv.Recalculate(decimal.NewFromInt(10000)))
		require.Equal(t, InvoiceStatusPaid, inv.Status)

		err := inv.Recalculate(decimal.Zero)
		require.NoError(t, err)

		assert.Equal(t, InvoiceStatusIssued, inv.Status)
		assert.True(t, inv.Balance.Equal(decimal.NewFromInt(10000)))
		assert.Nil(t, inv.PaidAt)
	})

	t.Run("rejects allocation total above total due", func(t *testing.T) {
		inv := newTestInvoice(t, 0)

		err := inv.Recalculate(decimal.NewFromInt(10001))
		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "INTEGRITY_ERROR", domainErr.Code)
		assert.True(t, inv.Balance.Equal(decimal.NewFromInt(10000)))
	})

	t.Run("rejects negative allocation total", func(t *testing.T) {
		inv := newTestInvoice(t, 0)

		err := inv.Recalculate(decimal.NewFromInt(-1))
		assert.Error(t, err)
	})

	t.Run("void invoice is untouched", func(t *testing.T) {
		inv := newTestInvoice(t, 0)
		require.NoError(t, inv.Void("issued in error"))

		err := inv.Recalculate(decimal.NewFromInt(5000))
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusVoid, inv.Status)
		assert.True(t, inv.Balance.IsZero())
	})
}

func TestInvoiceVoid(t *testing.T) {
	t.Run("voids an unpaid invoice", func(t *testing.T) {
		inv := newTestInvoice(t, 0)

		err := inv.Void("duplicate billing run")
		require.NoError(t, err)

		assert.Equal(t, InvoiceStatusVoid, inv.Status)
		assert.True(t, inv.Balance.IsZero())
		assert.NotNil(t, inv.VoidedAt)
		assert.Equal(t, "duplicate billing run", inv.VoidReason)
	})

	t.Run("rejects voiding a partially paid invoice", func(t *testing.T) {
		inv := newTestInvoice(t, 0)
		require.NoError(t, inv.Recalculate(decimal.NewFromInt(3000)))

		err := inv.Void("change of mind")
		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})

	t.Run("rejects voiding a paid invoice", func(t *testing.T) {
		inv := newTestInvoice(t, 0)
		require.NoError(t, inv.Recalculate(decimal.NewFromInt(10000)))

		assert.Error(t, inv.Void("late void"))
	})

	t.Run("rejects empty reason", func(t *testing.T) {
		inv := newTestInvoice(t, 0)
		assert.Error(t, inv.Void(""))
	})
}

func TestInvoiceOverdue(t *testing.T) {
	inv := newTestInvoice(t, 0)

	assert.False(t, inv.IsOverdue(inv.DueDate))
	assert.True(t, inv.IsOverdue(inv.DueDate.AddDate(0, 0, 3)))
	assert.Equal(t, 3, inv.DaysOverdue(inv.DueDate.AddDate(0, 0, 3)))

	require.NoError(t, inv.Recalculate(decimal.NewFromInt(10000)))
	assert.False(t, inv.IsOverdue(inv.DueDate.AddDate(0, 0, 3)))
}

func TestInvoiceStatusTransitions(t *testing.T) {
	assert.True(t, InvoiceStatusIssued.CanReceiveAllocation())
	assert.True(t, InvoiceStatusPartiallyPaid.CanReceiveAllocation())
	assert.False(t, InvoiceStatusPaid.CanReceiveAllocation())
	assert.False(t, InvoiceStatusVoid.CanReceiveAllocation())

	assert.True(t, InvoiceStatusPaid.IsTerminal())
	assert.True(t, InvoiceStatusVoid.IsTerminal())
	assert.False(t, InvoiceStatusIssued.IsTerminal())

	assert.False(t, InvoiceStatus("CLOSED").IsValid())
}
