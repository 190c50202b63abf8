package mpesa

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makao/backend/internal/domain/shared"
)

func newUnmatched(t *testing.T) *UnmatchedPayment {
	t.Helper()
	up, err := NewUnmatchedPayment(uuid.New(), "TGH7XK91QP",
		decimal.NewFromInt(8000), "254712345678", "JANE WANJIKU", "Z99",
		UnmatchedReasonUnknownReference, time.Now())
	require.NoError(t, err)
	return up
}

func TestNewUnmatchedPayment(t *testing.T) {
	t.Run("quarantines in open status", func(t *testing.T) {
		up := newUnmatched(t)
		assert.Equal(t, UnmatchedStatusOpen, up.Status)
		assert.Equal(t, UnmatchedReasonUnknownReference, up.Reason)
		assert.Len(t, up.GetDomainEvents(), 1)
	})

	t.Run("rejects empty external reference", func(t *testing.T) {
		_, err := NewUnmatchedPayment(uuid.New(), "", decimal.NewFromInt(100),
			"", "", "Z99", UnmatchedReasonUnknownReference, time.Now())
		assert.Error(t, err)
	})

	t.Run("rejects invalid reason", func(t *testing.T) {
		_, err := NewUnmatchedPayment(uuid.New(), "TGH7XK91QP", decimal.NewFromInt(100),
			"", "", "Z99", UnmatchedReason("LOST"), time.Now())
		assert.Error(t, err)
	})
}

func TestUnmatchedPaymentLifecycle(t *testing.T) {
	t.Run("open to under review to resolved", func(t *testing.T) {
		up := newUnmatched(t)
		require.NoError(t, up.MarkUnderReview("called the payer"))
		assert.Equal(t, UnmatchedStatusUnderReview, up.Status)

		tenantID := uuid.New()
		paymentID := uuid.New()
		admin := uuid.New()
		require.NoError(t, up.Resolve(tenantID, paymentID, admin, "payer confirmed unit A1"))

		assert.Equal(t, UnmatchedStatusResolved, up.Status)
		assert.Equal(t, tenantID, *up.ResolvedTenantID)
		assert.Equal(t, paymentID, *up.ResolvedPaymentID)
		assert.Equal(t, admin, *up.ResolvedBy)
		assert.NotNil(t, up.ResolvedAt)
	})

	t.Run("resolve straight from open", func(t *testing.T) {
		up := newUnmatched(t)
		assert.NoError(t, up.Resolve(uuid.New(), uuid.New(), uuid.New(), ""))
	})

	t.Run("resolving twice conflicts", func(t *testing.T) {
		up := newUnmatched(t)
		require.NoError(t, up.Resolve(uuid.New(), uuid.New(), uuid.New(), ""))

		err := up.Resolve(uuid.New(), uuid.New(), uuid.New(), "")
		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "CONFLICT", domainErr.Code)
	})

	t.Run("refund closes the record", func(t *testing.T) {
		up := newUnmatched(t)
		require.NoError(t, up.MarkRefunded(uuid.New(), "payer unreachable, reversed via provider"))

		assert.Equal(t, UnmatchedStatusRefunded, up.Status)

		// A second decision on a settled record is a conflict, not a
		// sequencing error.
		err := up.Resolve(uuid.New(), uuid.New(), uuid.New(), "")
		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "CONFLICT", domainErr.Code)

		err = up.MarkRefunded(uuid.New(), "again")
		require.Error(t, err)
		domainErr, ok = err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "CONFLICT", domainErr.Code)
	})

	t.Run("review requires open status", func(t *testing.T) {
		up := newUnmatched(t)
		require.NoError(t, up.MarkUnderReview(""))
		assert.Error(t, up.MarkUnderReview("again"))
	})

	t.Run("resolve validates identifiers", func(t *testing.T) {
		up := newUnmatched(t)
		assert.Error(t, up.Resolve(uuid.Nil, uuid.New(), uuid.New(), ""))
		assert.Error(t, up.Resolve(uuid.New(), uuid.Nil, uuid.New(), ""))
		assert.Error(t, up.Resolve(uuid.New(), uuid.New(), uuid.Nil, ""))
	})
}
