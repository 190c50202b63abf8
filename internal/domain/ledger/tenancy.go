package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tenancy is a read model of an active rental agreement, sourced from the
// property management side of the system.
type Tenancy struct {
	TenantID    uuid.UUID
	LandlordID  uuid.UUID
	PropertyID  uuid.UUID
	UnitID      uuid.UUID
	UnitCode    string // Short code tenants quote as the paybill account reference
	TenantName  string
	TenantPhone string
	MonthlyRent decimal.Decimal
	StartDate   time.Time
}

// TenancyDirectory is the anti-corruption port into tenancy records.
// The ledger never writes through it.
type TenancyDirectory interface {
	// FindByTenantID retrieves the active tenancy for a tenant
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*Tenancy, error)
	// FindByUnitCode resolves a paybill account reference to a tenancy.
	// Returns nil without error when the code matches nothing.
	FindByUnitCode(ctx context.Context, unitCode string) (*Tenancy, error)
	// FindByPhone resolves a payer phone number to a tenancy.
	// Returns nil without error when the number matches nothing.
	FindByPhone(ctx context.Context, phone string) (*Tenancy, error)
	// ListActive lists every active tenancy, optionally scoped to a landlord
	ListActive(ctx context.Context, landlordID *uuid.UUID) ([]Tenancy, error)
}
