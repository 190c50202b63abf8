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

func newTestPayment(t *testing.T, amount float64) *Payment {
	t.Helper()
	p, err := NewPayment(
		uuid.New(),
		"PAY-2026-0001",
		uuid.New(),
		valueobject.NewMoneyKESFromFloat(amount),
		PaymentMethodMpesa,
		"TGH7XK91QP",
		"254712345678",
		time.Now(),
	)
	require.NoError(t, err)
	return p
}

func TestNewPayment(t *testing.T) {
	t.Run("creates payment fully unallocated", func(t *testing.T) {
		p := newTestPayment(t, 15000)

		assert.True(t, p.Amount.Equal(decimal.NewFromInt(15000)))
		assert.True(t, p.UnallocatedAmount.Equal(decimal.NewFromInt(15000)))
		assert.Empty(t, p.Allocations)
		assert.NoError(t, p.CheckConsistency())
		assert.Len(t, p.GetDomainEvents(), 1)
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		_, err := NewPayment(uuid.New(), "PAY-1", uuid.New(),
			valueobject.ZeroKES(), PaymentMethodCash, "", "", time.Now())
		assert.Error(t, err)
	})

	t.Run("rejects mpesa payment without external reference", func(t *testing.T) {
		_, err := NewPayment(uuid.New(), "PAY-1", uuid.New(),
			valueobject.NewMoneyKESFromFloat(500), PaymentMethodMpesa, "", "254700000000", time.Now())
		require.Error(t, err)
	})

	t.Run("accepts cash payment without external reference", func(t *testing.T) {
		_, err := NewPayment(uuid.New(), "PAY-1", uuid.New(),
			valueobject.NewMoneyKESFromFloat(500), PaymentMethodCash, "", "", time.Now())
		assert.NoError(t, err)
	})
}

func TestPaymentStatus(t *testing.T) {
	t.Run("new payment starts completed", func(t *testing.T) {
		p := newTestPayment(t, 15000)
		assert.Equal(t, PaymentStatusCompleted, p.Status)
	})

	t.Run("only completed payments allocate", func(t *testing.T) {
		p := newTestPayment(t, 15000)
		p.Status = PaymentStatusPending

		_, err := p.Allocate(uuid.New(), decimal.NewFromInt(5000), "")
		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})

	t.Run("pending payment clears then allocates", func(t *testing.T) {
		p := newTestPayment(t, 15000)
		p.Status = PaymentStatusPending

		require.NoError(t, p.MarkCompleted())
		assert.Equal(t, PaymentStatusCompleted, p.Status)

		_, err := p.Allocate(uuid.New(), decimal.NewFromInt(5000), "")
		assert.NoError(t, err)
	})

	t.Run("failed payment cannot be revived", func(t *testing.T) {
		p := newTestPayment(t, 15000)
		p.Status = PaymentStatusPending

		require.NoError(t, p.MarkFailed("cheque bounced"))
		assert.Equal(t, PaymentStatusFailed, p.Status)
		assert.Equal(t, "cheque bounced", p.Narrative)
		assert.Error(t, p.MarkCompleted())
	})
}

func TestPaymentAllocate(t *testing.T) {
	t.Run("allocates part of the payment", func(t *testing.T) {
		p := newTestPayment(t, 15000)
		invoiceID := uuid.New()

		alloc, err := p.Allocate(invoiceID, decimal.NewFromInt(10000), "rent March")
		require.NoError(t, err)

		assert.Equal(t, invoiceID, alloc.InvoiceID)
		assert.Equal(t, AllocationStatusActive, alloc.Status)
		assert.True(t, p.UnallocatedAmount.Equal(decimal.NewFromInt(5000)))
		assert.NoError(t, p.CheckConsistency())
	})

	t.Run("rejects allocation above unallocated amount", func(t *testing.T) {
		p := newTestPayment(t, 15000)
		_, err := p.Allocate(uuid.New(), decimal.NewFromInt(10000), "")
		require.NoError(t, err)

		_, err = p.Allocate(uuid.New(), decimal.NewFromInt(6000), "")
		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "OVER_ALLOCATION", domainErr.Code)
		assert.True(t, p.UnallocatedAmount.Equal(decimal.NewFromInt(5000)))
	})

	t.Run("rejects non positive amount", func(t *testing.T) {
		p := newTestPayment(t, 1000)
		_, err := p.Allocate(uuid.New(), decimal.Zero, "")
		assert.Error(t, err)
	})

	t.Run("exhausts the payment exactly", func(t *testing.T) {
		p := newTestPayment(t, 5000)
		_, err := p.Allocate(uuid.New(), decimal.NewFromInt(5000), "")
		require.NoError(t, err)

		assert.True(t, p.UnallocatedAmount.IsZero())
		assert.False(t, p.HasUnallocatedFunds())
	})
}

func TestPaymentReverseAllocations(t *testing.T) {
	t.Run("voids allocations in place and restores funds", func(t *testing.T) {
		p := newTestPayment(t, 15000)
		invA := uuid.New()
		invB := uuid.New()
		_, err := p.Allocate(invA, decimal.NewFromInt(10000), "")
		require.NoError(t, err)
		_, err = p.Allocate(invB, decimal.NewFromInt(5000), "")
		require.NoError(t, err)

		invoiceIDs, err := p.ReverseAllocations("payment bounced")
		require.NoError(t, err)

		assert.ElementsMatch(t, []uuid.UUID{invA, invB}, invoiceIDs)
		assert.True(t, p.UnallocatedAmount.Equal(decimal.NewFromInt(15000)))
		require.Len(t, p.Allocations, 2)
		for _, alloc := range p.Allocations {
			assert.Equal(t, AllocationStatusReversed, alloc.Status)
			assert.NotNil(t, alloc.ReversedAt)
			assert.Equal(t, "payment bounced", alloc.ReversalReason)
		}
		assert.NoError(t, p.CheckConsistency())
	})

	t.Run("rejects reversal with no active allocations", func(t *testing.T) {
		p := newTestPayment(t, 15000)

		_, err := p.ReverseAllocations("nothing to undo")
		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})

	t.Run("second reversal finds nothing active", func(t *testing.T) {
		p := newTestPayment(t, 5000)
		_, err := p.Allocate(uuid.New(), decimal.NewFromInt(5000), "")
		require.NoError(t, err)

		_, err = p.ReverseAllocations("first")
		require.NoError(t, err)

		_, err = p.ReverseAllocations("second")
		assert.Error(t, err)
	})

	t.Run("rejects empty reason", func(t *testing.T) {
		p := newTestPayment(t, 5000)
		_, err := p.Allocate(uuid.New(), decimal.NewFromInt(1000), "")
		require.NoError(t, err)

		_, err = p.ReverseAllocations("")
		assert.Error(t, err)
	})

	t.Run("allocating again after reversal works", func(t *testing.T) {
		p := newTestPayment(t, 5000)
		_, err := p.Allocate(uuid.New(), decimal.NewFromInt(5000), "")
		require.NoError(t, err)
		_, err = p.ReverseAllocations("wrong tenant")
		require.NoError(t, err)

		_, err = p.Allocate(uuid.New(), decimal.NewFromInt(3000), "")
		require.NoError(t, err)

		assert.True(t, p.UnallocatedAmount.Equal(decimal.NewFromInt(2000)))
		assert.True(t, p.ActiveAllocatedTotal().Equal(decimal.NewFromInt(3000)))
		assert.NoError(t, p.CheckConsistency())
	})
}
