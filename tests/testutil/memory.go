// Package testutil provides common test utilities for the rental backend.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
)

// In-memory repository implementations backing application service tests.
// They mirror the repository contracts: lookups by ID return NOT_FOUND,
// lookups by natural key return nil without error when nothing matches.

// MemoryInvoiceRepository is an in-memory ledger.InvoiceRepository.
type MemoryInvoiceRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*ledger.Invoice
}

// NewMemoryInvoiceRepository creates an empty invoice repository.
func NewMemoryInvoiceRepository() *MemoryInvoiceRepository {
	return &MemoryInvoiceRepository{items: make(map[uuid.UUID]*ledger.Invoice)}
}

func (r *MemoryInvoiceRepository) Save(_ context.Context, invoice *ledger.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[invoice.ID] = invoice
	return nil
}

func (r *MemoryInvoiceRepository) FindByID(_ context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	invoice, ok := r.items[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Invoice %s not found", id))
	}
	return invoice, nil
}

func (r *MemoryInvoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r *MemoryInvoiceRepository) FindByNumber(_ context.Context, landlordID uuid.UUID, invoiceNumber string) (*ledger.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, invoice := range r.items {
		if invoice.LandlordID == landlordID && invoice.InvoiceNumber == invoiceNumber {
			return invoice, nil
		}
	}
	return nil, nil
}

func (r *MemoryInvoiceRepository) FindByTenant(_ context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ledger.Invoice, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []ledger.Invoice
	for _, invoice := range r.items {
		if invoice.TenantID == tenantID {
			matched = append(matched, *invoice)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PeriodStart.After(matched[j].PeriodStart)
	})
	return paginate(matched, filter)
}

func (r *MemoryInvoiceRepository) FindOutstandingByTenant(_ context.Context, tenantID uuid.UUID) ([]ledger.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []ledger.Invoice
	for _, invoice := range r.items {
		if invoice.TenantID == tenantID && invoice.IsOutstanding() {
			matched = append(matched, *invoice)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].DueDate.Equal(matched[j].DueDate) {
			return matched[i].DueDate.Before(matched[j].DueDate)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return matched, nil
}

func (r *MemoryInvoiceRepository) FindOutstandingByTenantForUpdate(ctx context.Context, tenantID uuid.UUID) ([]ledger.Invoice, error) {
	return r.FindOutstandingByTenant(ctx, tenantID)
}

func (r *MemoryInvoiceRepository) FindOverdue(_ context.Context, landlordID uuid.UUID, asOf time.Time, filter shared.Filter) ([]ledger.Invoice, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []ledger.Invoice
	for _, invoice := range r.items {
		if (landlordID == uuid.Nil || invoice.LandlordID == landlordID) && invoice.IsOverdue(asOf) {
			matched = append(matched, *invoice)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].DueDate.Before(matched[j].DueDate)
	})
	return paginate(matched, filter)
}

func (r *MemoryInvoiceRepository) FindIDsPage(_ context.Context, offset, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end], nil
}

func (r *MemoryInvoiceRepository) ExistsForPeriod(_ context.Context, tenantID, unitID uuid.UUID, periodStart time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, invoice := range r.items {
		if invoice.TenantID == tenantID && invoice.UnitID == unitID &&
			invoice.PeriodStart.Equal(periodStart) && invoice.Status != ledger.InvoiceStatusVoid {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryInvoiceRepository) SumOutstandingByTenant(_ context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, invoice := range r.items {
		if invoice.TenantID == tenantID && invoice.IsOutstanding() {
			total = total.Add(invoice.Balance)
		}
	}
	return total, nil
}

// MemoryPaymentRepository is an in-memory ledger.PaymentRepository.
type MemoryPaymentRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*ledger.Payment
}

// NewMemoryPaymentRepository creates an empty payment repository.
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{items: make(map[uuid.UUID]*ledger.Payment)}
}

func (r *MemoryPaymentRepository) Save(_ context.Context, payment *ledger.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[payment.ID] = payment
	return nil
}

func (r *MemoryPaymentRepository) FindByID(_ context.Context, id uuid.UUID) (*ledger.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payment, ok := r.items[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Payment %s not found", id))
	}
	return payment, nil
}

func (r *MemoryPaymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r *MemoryPaymentRepository) FindByExternalReference(_ context.Context, externalReference string) (*ledger.Payment, error) {
	if externalReference == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, payment := range r.items {
		if payment.ExternalReference == externalReference {
			return payment, nil
		}
	}
	return nil, nil
}

func (r *MemoryPaymentRepository) FindByTenant(_ context.Context, tenantID uuid.UUID, from, to time.Time, filter shared.Filter) ([]ledger.Payment, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []ledger.Payment
	for _, payment := range r.items {
		if payment.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && payment.PaymentDate.Before(from) {
			continue
		}
		if !to.IsZero() && payment.PaymentDate.After(to) {
			continue
		}
		matched = append(matched, *payment)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PaymentDate.After(matched[j].PaymentDate)
	})
	return paginate(matched, filter)
}

func (r *MemoryPaymentRepository) FindWithUnallocatedFunds(_ context.Context, tenantID uuid.UUID) ([]ledger.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []ledger.Payment
	for _, payment := range r.items {
		if payment.TenantID == tenantID && payment.Status == ledger.PaymentStatusCompleted && payment.HasUnallocatedFunds() {
			matched = append(matched, *payment)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PaymentDate.Before(matched[j].PaymentDate)
	})
	return matched, nil
}

func (r *MemoryPaymentRepository) SumActiveAllocationsByInvoice(_ context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, payment := range r.items {
		for _, alloc := range payment.Allocations {
			if alloc.InvoiceID == invoiceID && alloc.IsActive() {
				total = total.Add(alloc.Amount)
			}
		}
	}
	return total, nil
}

func (r *MemoryPaymentRepository) SumActiveAllocationsByInvoices(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	result := make(map[uuid.UUID]decimal.Decimal, len(invoiceIDs))
	for _, id := range invoiceIDs {
		total, err := r.SumActiveAllocationsByInvoice(ctx, id)
		if err != nil {
			return nil, err
		}
		result[id] = total
	}
	return result, nil
}

func (r *MemoryPaymentRepository) CountActiveAllocationsByInvoice(_ context.Context, invoiceID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, payment := range r.items {
		for _, alloc := range payment.Allocations {
			if alloc.InvoiceID == invoiceID && alloc.IsActive() {
				count++
			}
		}
	}
	return count, nil
}

// MemoryTransactionRepository is an in-memory mpesa.TransactionRepository.
type MemoryTransactionRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*mpesa.Transaction
}

// NewMemoryTransactionRepository creates an empty transaction repository.
func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{items: make(map[uuid.UUID]*mpesa.Transaction)}
}

func (r *MemoryTransactionRepository) Save(_ context.Context, tx *mpesa.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[tx.ID] = tx
	return nil
}

func (r *MemoryTransactionRepository) FindByID(_ context.Context, id uuid.UUID) (*mpesa.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.items[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Transaction %s not found", id))
	}
	return tx, nil
}

func (r *MemoryTransactionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*mpesa.Transaction, error) {
	return r.FindByID(ctx, id)
}

func (r *MemoryTransactionRepository) FindByCheckoutID(_ context.Context, checkoutID string) (*mpesa.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tx := range r.items {
		if tx.CheckoutID == checkoutID {
			return tx, nil
		}
	}
	return nil, nil
}

func (r *MemoryTransactionRepository) FindByCheckoutIDForUpdate(ctx context.Context, checkoutID string) (*mpesa.Transaction, error) {
	return r.FindByCheckoutID(ctx, checkoutID)
}

func (r *MemoryTransactionRepository) FindByProviderReference(_ context.Context, providerReference string) (*mpesa.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tx := range r.items {
		if tx.ProviderReference == providerReference {
			return tx, nil
		}
	}
	return nil, nil
}

func (r *MemoryTransactionRepository) FindStuckOlderThan(_ context.Context, cutoff time.Time, limit int) ([]mpesa.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []mpesa.Transaction
	for _, tx := range r.items {
		if tx.IsStuck(cutoff) {
			matched = append(matched, *tx)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].InitiatedAt.Before(matched[j].InitiatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryTransactionRepository) FindByLandlord(_ context.Context, landlordID uuid.UUID, filter shared.Filter) ([]mpesa.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []mpesa.Transaction
	for _, tx := range r.items {
		if tx.LandlordID == landlordID {
			matched = append(matched, *tx)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].InitiatedAt.After(matched[j].InitiatedAt)
	})
	return paginate(matched, filter)
}

// MemoryUnmatchedRepository is an in-memory mpesa.UnmatchedPaymentRepository.
type MemoryUnmatchedRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*mpesa.UnmatchedPayment
}

// NewMemoryUnmatchedRepository creates an empty unmatched payment repository.
func NewMemoryUnmatchedRepository() *MemoryUnmatchedRepository {
	return &MemoryUnmatchedRepository{items: make(map[uuid.UUID]*mpesa.UnmatchedPayment)}
}

func (r *MemoryUnmatchedRepository) Save(_ context.Context, up *mpesa.UnmatchedPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[up.ID] = up
	return nil
}

func (r *MemoryUnmatchedRepository) FindByID(_ context.Context, id uuid.UUID) (*mpesa.UnmatchedPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	up, ok := r.items[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Unmatched payment %s not found", id))
	}
	return up, nil
}

func (r *MemoryUnmatchedRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*mpesa.UnmatchedPayment, error) {
	return r.FindByID(ctx, id)
}

func (r *MemoryUnmatchedRepository) FindByExternalReference(_ context.Context, externalReference string) (*mpesa.UnmatchedPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, up := range r.items {
		if up.ExternalReference == externalReference {
			return up, nil
		}
	}
	return nil, nil
}

func (r *MemoryUnmatchedRepository) FindByStatus(_ context.Context, status mpesa.UnmatchedStatus, filter shared.Filter) ([]mpesa.UnmatchedPayment, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []mpesa.UnmatchedPayment
	for _, up := range r.items {
		if up.Status == status {
			matched = append(matched, *up)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.Before(matched[j].ReceivedAt)
	})
	return paginate(matched, filter)
}

func (r *MemoryUnmatchedRepository) CountOpen(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, up := range r.items {
		if !up.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

// StaticTenancyDirectory is a fixed-list ledger.TenancyDirectory.
type StaticTenancyDirectory struct {
	mu        sync.RWMutex
	tenancies []ledger.Tenancy
}

// NewStaticTenancyDirectory creates a directory over the given tenancies.
func NewStaticTenancyDirectory(tenancies ...ledger.Tenancy) *StaticTenancyDirectory {
	return &StaticTenancyDirectory{tenancies: tenancies}
}

// Add appends a tenancy to the directory.
func (d *StaticTenancyDirectory) Add(tenancy ledger.Tenancy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenancies = append(d.tenancies, tenancy)
}

func (d *StaticTenancyDirectory) FindByTenantID(_ context.Context, tenantID uuid.UUID) (*ledger.Tenancy, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.tenancies {
		if d.tenancies[i].TenantID == tenantID {
			t := d.tenancies[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (d *StaticTenancyDirectory) FindByUnitCode(_ context.Context, unitCode string) (*ledger.Tenancy, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.tenancies {
		if d.tenancies[i].UnitCode == unitCode {
			t := d.tenancies[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (d *StaticTenancyDirectory) FindByPhone(_ context.Context, phone string) (*ledger.Tenancy, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.tenancies {
		if d.tenancies[i].TenantPhone == phone {
			t := d.tenancies[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (d *StaticTenancyDirectory) ListActive(_ context.Context, landlordID *uuid.UUID) ([]ledger.Tenancy, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var result []ledger.Tenancy
	for _, t := range d.tenancies {
		if landlordID == nil || t.LandlordID == *landlordID {
			result = append(result, t)
		}
	}
	return result, nil
}

// MemoryIdempotencyStore is an in-memory shared.IdempotencyStore.
type MemoryIdempotencyStore struct {
	mu     sync.Mutex
	keys   map[string]time.Time
	Errors error // When set, every call fails with this error
}

// NewMemoryIdempotencyStore creates an empty idempotency store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[string]time.Time)}
}

func (s *MemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if s.Errors != nil {
		return false, s.Errors
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, ok := s.keys[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	s.keys[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *MemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	if s.Errors != nil {
		return false, s.Errors
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.keys[key]
	return ok && time.Now().Before(expiry), nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	if s.Errors != nil {
		return s.Errors
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *MemoryIdempotencyStore) Close() error { return nil }

// FakeGateway is a scriptable mpesa.Gateway.
type FakeGateway struct {
	mu sync.Mutex

	StkPushFn  func(ctx context.Context, req *mpesa.StkPushRequest) (*mpesa.StkPushResponse, error)
	QueryFn    func(ctx context.Context, checkoutID string) (*mpesa.StkQueryResponse, error)
	B2CFn      func(ctx context.Context, req *mpesa.B2CRequest) (*mpesa.B2CResponse, error)
	PushCalls  int
	QueryCalls int
	B2CCalls   int
}

// NewFakeGateway creates a gateway whose unscripted calls succeed.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

func (g *FakeGateway) StkPush(ctx context.Context, req *mpesa.StkPushRequest) (*mpesa.StkPushResponse, error) {
	g.mu.Lock()
	g.PushCalls++
	fn := g.StkPushFn
	calls := g.PushCalls
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &mpesa.StkPushResponse{
		CheckoutID:   fmt.Sprintf("ws_CO_%09d", calls),
		ResponseCode: "0",
		Description:  "Success. Request accepted for processing",
	}, nil
}

func (g *FakeGateway) QueryStkStatus(ctx context.Context, checkoutID string) (*mpesa.StkQueryResponse, error) {
	g.mu.Lock()
	g.QueryCalls++
	fn := g.QueryFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, checkoutID)
	}
	return &mpesa.StkQueryResponse{
		CheckoutID: checkoutID,
		Completed:  false,
	}, nil
}

func (g *FakeGateway) B2CPayment(ctx context.Context, req *mpesa.B2CRequest) (*mpesa.B2CResponse, error) {
	g.mu.Lock()
	g.B2CCalls++
	fn := g.B2CFn
	calls := g.B2CCalls
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &mpesa.B2CResponse{
		ConversationID: fmt.Sprintf("AG_%09d", calls),
		ResponseCode:   "0",
		Description:    "Accept the service request successfully.",
	}, nil
}

func paginate[T any](items []T, filter shared.Filter) ([]T, int64, error) {
	total := int64(len(items))
	offset := filter.Offset()
	if offset >= len(items) {
		return nil, total, nil
	}
	end := offset + filter.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], total, nil
}
