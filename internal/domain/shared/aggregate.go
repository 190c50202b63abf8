package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides common fields for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	Version      int           `json:"version" gorm:"not null;default:1"`
	domainEvents []DomainEvent `gorm:"-"`
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// AddDomainEvent adds a domain event to be published
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity:   NewBaseEntity(),
		Version:      1,
		domainEvents: make([]DomainEvent, 0),
	}
}

// LandlordAggregateRoot extends BaseAggregateRoot with landlord scoping.
// Every ledger record belongs to exactly one landlord account; the tenant
// (the renter) is a domain attribute, not the data scope.
type LandlordAggregateRoot struct {
	BaseAggregateRoot
	LandlordID uuid.UUID  `json:"landlord_id" gorm:"type:uuid;not null;index"`
	CreatedBy  *uuid.UUID `json:"created_by,omitempty" gorm:"type:uuid;index"` // User who created this record
}

// NewLandlordAggregateRoot creates a new landlord-scoped aggregate root
func NewLandlordAggregateRoot(landlordID uuid.UUID) LandlordAggregateRoot {
	return LandlordAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		LandlordID:        landlordID,
	}
}

// NewLandlordAggregateRootWithCreator creates a new landlord-scoped aggregate root with creator info
func NewLandlordAggregateRootWithCreator(landlordID, createdBy uuid.UUID) LandlordAggregateRoot {
	return LandlordAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		LandlordID:        landlordID,
		CreatedBy:         &createdBy,
	}
}

// SetCreatedBy sets the creator user ID
func (l *LandlordAggregateRoot) SetCreatedBy(userID uuid.UUID) {
	l.CreatedBy = &userID
}

// GetCreatedBy returns the creator user ID
func (l *LandlordAggregateRoot) GetCreatedBy() *uuid.UUID {
	return l.CreatedBy
}
