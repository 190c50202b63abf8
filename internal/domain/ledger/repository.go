package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceRepository defines the persistence port for invoices
type InvoiceRepository interface {
	// Save persists an invoice (create or update)
	Save(ctx context.Context, invoice *Invoice) error
	// FindByID retrieves an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindByIDForUpdate retrieves an invoice and row-locks it for the
	// duration of the surrounding transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindByNumber retrieves an invoice by its number within a landlord account
	FindByNumber(ctx context.Context, landlordID uuid.UUID, invoiceNumber string) (*Invoice, error)
	// FindByTenant lists a tenant's invoices, newest period first
	FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Invoice, int64, error)
	// FindOutstandingByTenant lists open invoices for a tenant ordered
	// oldest due date first, invoice ID as tie break
	FindOutstandingByTenant(ctx context.Context, tenantID uuid.UUID) ([]Invoice, error)
	// FindOutstandingByTenantForUpdate is FindOutstandingByTenant with row
	// locks, for use inside an allocation transaction
	FindOutstandingByTenantForUpdate(ctx context.Context, tenantID uuid.UUID) ([]Invoice, error)
	// FindOverdue lists unsettled invoices past due as of the given time.
	// A nil landlordID lifts the landlord scope for system-wide passes.
	FindOverdue(ctx context.Context, landlordID uuid.UUID, asOf time.Time, filter shared.Filter) ([]Invoice, int64, error)
	// FindIDsPage returns a page of invoice IDs for batch recalculation
	FindIDsPage(ctx context.Context, offset, limit int) ([]uuid.UUID, error)
	// ExistsForPeriod reports whether an invoice already covers the unit
	// and period start, used to keep billing runs idempotent
	ExistsForPeriod(ctx context.Context, tenantID, unitID uuid.UUID, periodStart time.Time) (bool, error)
	// SumOutstandingByTenant returns the total open balance across a
	// tenant's invoices
	SumOutstandingByTenant(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)
}

// PaymentRepository defines the persistence port for payments and their allocations
type PaymentRepository interface {
	// Save persists a payment together with its allocation records
	Save(ctx context.Context, payment *Payment) error
	// FindByID retrieves a payment with its allocations by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	// FindByIDForUpdate retrieves a payment and row-locks it
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)
	// FindByExternalReference retrieves a payment by its provider receipt number
	FindByExternalReference(ctx context.Context, externalReference string) (*Payment, error)
	// FindByTenant lists a tenant's payments within a date range
	FindByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time, filter shared.Filter) ([]Payment, int64, error)
	// FindWithUnallocatedFunds lists payments carrying credit for a tenant
	FindWithUnallocatedFunds(ctx context.Context, tenantID uuid.UUID) ([]Payment, error)
	// SumActiveAllocationsByInvoice returns the active allocation total
	// against one invoice
	SumActiveAllocationsByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	// SumActiveAllocationsByInvoices returns active allocation totals for a
	// set of invoices in one query
	SumActiveAllocationsByInvoices(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	// CountActiveAllocationsByInvoice counts active allocations against an
	// invoice, used to guard voiding
	CountActiveAllocationsByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error)
}
