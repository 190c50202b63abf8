package mpesa

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/shared"
)

// TransactionRepository defines the persistence port for provider transactions
type TransactionRepository interface {
	// Save persists a transaction (create or update)
	Save(ctx context.Context, tx *Transaction) error
	// FindByID retrieves a transaction by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// FindByIDForUpdate retrieves a transaction and row-locks it
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// FindByCheckoutID retrieves a push transaction by the provider's
	// in-flight identifier
	FindByCheckoutID(ctx context.Context, checkoutID string) (*Transaction, error)
	// FindByCheckoutIDForUpdate is FindByCheckoutID with a row lock, for
	// callback processing
	FindByCheckoutIDForUpdate(ctx context.Context, checkoutID string) (*Transaction, error)
	// FindByProviderReference retrieves a transaction by its receipt number
	FindByProviderReference(ctx context.Context, providerReference string) (*Transaction, error)
	// FindStuckOlderThan lists initiated and pending transactions that have
	// waited on a provider result since before the cutoff
	FindStuckOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error)
	// FindByLandlord lists a landlord's transactions newest first
	FindByLandlord(ctx context.Context, landlordID uuid.UUID, filter shared.Filter) ([]Transaction, int64, error)
}

// UnmatchedPaymentRepository defines the persistence port for quarantined deposits
type UnmatchedPaymentRepository interface {
	// Save persists an unmatched payment (create or update)
	Save(ctx context.Context, up *UnmatchedPayment) error
	// FindByID retrieves an unmatched payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*UnmatchedPayment, error)
	// FindByIDForUpdate retrieves an unmatched payment and row-locks it
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*UnmatchedPayment, error)
	// FindByExternalReference retrieves an unmatched payment by receipt number
	FindByExternalReference(ctx context.Context, externalReference string) (*UnmatchedPayment, error)
	// FindByStatus lists unmatched payments in a given status, oldest first
	FindByStatus(ctx context.Context, status UnmatchedStatus, filter shared.Filter) ([]UnmatchedPayment, int64, error)
	// CountOpen counts deposits still awaiting attention
	CountOpen(ctx context.Context) (int64, error)
}
