package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AllocationPolicyType defines the type of allocation policy
type AllocationPolicyType string

const (
	AllocationPolicyTypeOldestDueFirst AllocationPolicyType = "OLDEST_DUE_FIRST" // Auto-allocate by due date
	AllocationPolicyTypeExplicit       AllocationPolicyType = "EXPLICIT"         // Caller names the invoices
)

// IsValid checks if the policy type is valid
func (t AllocationPolicyType) IsValid() bool {
	switch t {
	case AllocationPolicyTypeOldestDueFirst, AllocationPolicyTypeExplicit:
		return true
	}
	return false
}

// String returns the string representation
func (t AllocationPolicyType) String() string {
	return string(t)
}

// AllocationTarget represents an invoice eligible for allocation
type AllocationTarget struct {
	InvoiceID     uuid.UUID       // ID of the invoice
	InvoiceNumber string          // Number for display purposes
	Outstanding   decimal.Decimal // Balance still owed
	DueDate       time.Time       // Due date for ordering
}

// AllocationEntry represents one planned allocation
type AllocationEntry struct {
	InvoiceID     uuid.UUID       // ID of the invoice
	InvoiceNumber string          // Number of the invoice
	Amount        decimal.Decimal // Amount to allocate
}

// AllocationPlan represents the complete output of an allocation policy
type AllocationPlan struct {
	Entries               []AllocationEntry // Allocations to make, in order
	TotalAllocated        decimal.Decimal   // Total amount planned
	RemainingAmount       decimal.Decimal   // Amount left unallocated
	FullyAllocated        bool              // True if all the funds were placed
	InvoicesSettled       []uuid.UUID       // Invoices the plan pays off in full
	InvoicesPartiallyPaid []uuid.UUID       // Invoices the plan pays partially
}

// AllocationPolicy decides how unallocated funds spread across invoices
type AllocationPolicy interface {
	// PolicyType returns the allocation policy type
	PolicyType() AllocationPolicyType
	// Plan calculates how to allocate the given amount across targets
	Plan(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error)
}

// OldestDueFirstPolicy allocates to outstanding invoices in due date order.
// Two invoices due the same day are ordered by invoice ID so a replayed
// allocation always produces the same plan.
type OldestDueFirstPolicy struct{}

// NewOldestDueFirstPolicy creates the default allocation policy
func NewOldestDueFirstPolicy() *OldestDueFirstPolicy {
	return &OldestDueFirstPolicy{}
}

// PolicyType returns the allocation policy type
func (p *OldestDueFirstPolicy) PolicyType() AllocationPolicyType {
	return AllocationPolicyTypeOldestDueFirst
}

// Plan allocates the amount to targets oldest due date first
func (p *OldestDueFirstPolicy) Plan(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Allocation amount must be positive")
	}

	sorted := make([]AllocationTarget, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].DueDate.Equal(sorted[j].DueDate) {
			return sorted[i].DueDate.Before(sorted[j].DueDate)
		}
		return sorted[i].InvoiceID.String() < sorted[j].InvoiceID.String()
	})

	return executePlan(amount.Amount(), sorted)
}

// ExplicitPolicy allocates to caller-specified invoices in the order given
type ExplicitPolicy struct {
	requests []AllocationRequest
}

// AllocationRequest names one invoice and the amount to put against it.
// A zero amount means allocate as much as the invoice can take.
type AllocationRequest struct {
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
}

// NewExplicitPolicy creates a policy over caller-specified targets
func NewExplicitPolicy(requests []AllocationRequest) (*ExplicitPolicy, error) {
	if len(requests) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Explicit allocation requires at least one target")
	}
	seen := make(map[uuid.UUID]bool, len(requests))
	for _, req := range requests {
		if req.InvoiceID == uuid.Nil {
			return nil, shared.NewDomainError("VALIDATION_ERROR", "Allocation target invoice ID cannot be empty")
		}
		if req.Amount.IsNegative() {
			return nil, shared.NewDomainError("VALIDATION_ERROR", "Allocation request amount cannot be negative")
		}
		if seen[req.InvoiceID] {
			return nil, shared.NewDomainError("VALIDATION_ERROR", "Duplicate invoice in allocation request")
		}
		seen[req.InvoiceID] = true
	}
	return &ExplicitPolicy{requests: requests}, nil
}

// PolicyType returns the allocation policy type
func (p *ExplicitPolicy) PolicyType() AllocationPolicyType {
	return AllocationPolicyTypeExplicit
}

// Requests returns the configured allocation requests
func (p *ExplicitPolicy) Requests() []AllocationRequest {
	return p.requests
}

// Plan allocates the amount to the requested invoices in request order.
// Unlike the automatic policy, naming an invoice that cannot take the
// requested amount is an error rather than silently skipped.
func (p *ExplicitPolicy) Plan(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Allocation amount must be positive")
	}

	targetMap := make(map[uuid.UUID]*AllocationTarget, len(targets))
	for i := range targets {
		targetMap[targets[i].InvoiceID] = &targets[i]
	}

	plan := &AllocationPlan{
		Entries:               make([]AllocationEntry, 0, len(p.requests)),
		TotalAllocated:        decimal.Zero,
		RemainingAmount:       amount.Amount(),
		InvoicesSettled:       make([]uuid.UUID, 0),
		InvoicesPartiallyPaid: make([]uuid.UUID, 0),
	}

	for _, req := range p.requests {
		target, ok := targetMap[req.InvoiceID]
		if !ok {
			return nil, shared.NewDomainError("NOT_FOUND", "Allocation target invoice is not open for allocation")
		}
		if target.Outstanding.LessThanOrEqual(decimal.Zero) {
			return nil, shared.NewDomainError("INVALID_STATE", "Allocation target invoice has no outstanding balance")
		}

		allocAmount := req.Amount
		if allocAmount.IsZero() {
			allocAmount = decimal.Min(plan.RemainingAmount, target.Outstanding)
		}
		if allocAmount.GreaterThan(plan.RemainingAmount) {
			return nil, shared.NewDomainError("INSUFFICIENT_FUNDS", "Requested allocation exceeds available payment funds")
		}
		if allocAmount.GreaterThan(target.Outstanding) {
			return nil, shared.NewDomainError("OVER_ALLOCATION", "Requested allocation exceeds invoice balance")
		}
		if allocAmount.LessThanOrEqual(decimal.Zero) {
			continue
		}

		plan.Entries = append(plan.Entries, AllocationEntry{
			InvoiceID:     target.InvoiceID,
			InvoiceNumber: target.InvoiceNumber,
			Amount:        allocAmount,
		})
		plan.TotalAllocated = plan.TotalAllocated.Add(allocAmount)
		plan.RemainingAmount = plan.RemainingAmount.Sub(allocAmount)

		if allocAmount.GreaterThanOrEqual(target.Outstanding) {
			plan.InvoicesSettled = append(plan.InvoicesSettled, target.InvoiceID)
		} else {
			plan.InvoicesPartiallyPaid = append(plan.InvoicesPartiallyPaid, target.InvoiceID)
		}
	}

	plan.FullyAllocated = plan.RemainingAmount.IsZero()

	return plan, nil
}

// executePlan greedily fills sorted targets until the funds run out
func executePlan(amount decimal.Decimal, sorted []AllocationTarget) (*AllocationPlan, error) {
	plan := &AllocationPlan{
		Entries:               make([]AllocationEntry, 0),
		TotalAllocated:        decimal.Zero,
		RemainingAmount:       amount,
		InvoicesSettled:       make([]uuid.UUID, 0),
		InvoicesPartiallyPaid: make([]uuid.UUID, 0),
	}

	for _, target := range sorted {
		if plan.RemainingAmount.IsZero() {
			break
		}
		if target.Outstanding.LessThanOrEqual(decimal.Zero) {
			continue
		}

		allocAmount := decimal.Min(plan.RemainingAmount, target.Outstanding)

		plan.Entries = append(plan.Entries, AllocationEntry{
			InvoiceID:     target.InvoiceID,
			InvoiceNumber: target.InvoiceNumber,
			Amount:        allocAmount,
		})
		plan.TotalAllocated = plan.TotalAllocated.Add(allocAmount)
		plan.RemainingAmount = plan.RemainingAmount.Sub(allocAmount)

		if allocAmount.GreaterThanOrEqual(target.Outstanding) {
			plan.InvoicesSettled = append(plan.InvoicesSettled, target.InvoiceID)
		} else {
			plan.InvoicesPartiallyPaid = append(plan.InvoicesPartiallyPaid, target.InvoiceID)
		}
	}

	plan.FullyAllocated = plan.RemainingAmount.IsZero()

	return plan, nil
}

// TargetsFromInvoices converts open invoices into allocation targets
func TargetsFromInvoices(invoices []Invoice) []AllocationTarget {
	targets := make([]AllocationTarget, 0, len(invoices))
	for _, inv := range invoices {
		if inv.IsOutstanding() {
			targets = append(targets, AllocationTarget{
				InvoiceID:     inv.ID,
				InvoiceNumber: inv.InvoiceNumber,
				Outstanding:   inv.Balance,
				DueDate:       inv.DueDate,
			})
		}
	}
	return targets
}
