package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rodavanza/lease-service/internal/domain"
)

// In-memory fakes for the reconciler ports. Guard semantics mirror the
// conditional updates of the postgres adapters.

type memLedger struct {
	mu      sync.Mutex
	records map[string]*domain.PaymentRecord
	upserts int
	linkErr error
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[string]*domain.PaymentRecord)}
}

func (l *memLedger) Upsert(_ context.Context, u PaymentUpsert) (domain.PaymentRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.upserts++
	now := time.Now().UTC()
	rec, ok := l.records[u.ExternalID]
	if !ok {
		rec = &domain.PaymentRecord{
			ExternalID:    u.ExternalID,
			Flow:          u.Flow,
			Amount:        u.Amount,
			GatewayStatus: u.GatewayStatus,
			Status:        u.Status,
			NetAmount:     u.NetAmount,
			Fee:           u.Fee,
			PaymentMethod: u.PaymentMethod,
			RequestID:     u.RequestID,
			ContractID:    u.ContractID,
			InstallmentID: u.InstallmentID,
			OrderID:       u.OrderID,
			PaidAt:        u.PaidAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		l.records[u.ExternalID] = rec
		return *rec, u.Status == domain.StatusApproved, nil
	}

	became := u.Status == domain.StatusApproved && rec.Status != domain.StatusApproved
	rec.GatewayStatus = u.GatewayStatus
	rec.Status = u.Status
	rec.Amount = u.Amount
	rec.NetAmount = u.NetAmount
	rec.Fee = u.Fee
	rec.PaymentMethod = u.PaymentMethod
	if u.PaidAt != nil {
		rec.PaidAt = u.PaidAt
	}
	if rec.RequestID == "" {
		rec.RequestID = u.RequestID
	}
	if rec.ContractID == "" {
		rec.ContractID = u.ContractID
	}
	if rec.InstallmentID == "" {
		rec.InstallmentID = u.InstallmentID
	}
	if rec.OrderID == "" {
		rec.OrderID = u.OrderID
	}
	rec.UpdatedAt = now
	return *rec, became, nil
}

func (l *memLedger) LinkInstallment(_ context.Context, externalID, installmentID string) error {
	if l.linkErr != nil {
		return l.linkErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[externalID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.InstallmentID = installmentID
	return nil
}

func (l *memLedger) get(externalID string) (domain.PaymentRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[externalID]
	if !ok {
		return domain.PaymentRecord{}, false
	}
	return *rec, true
}

func (l *memLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *memLedger) upsertCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upserts
}

type memRequests struct {
	mu       sync.Mutex
	requests map[string]*domain.RentalRequest
}

func newMemRequests() *memRequests {
	return &memRequests{requests: make(map[string]*domain.RentalRequest)}
}

func (s *memRequests) MarkPaid(_ context.Context, id, externalPaymentID string, paidAt time.Time) (domain.RentalRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return domain.RentalRequest{}, false, domain.ErrNotFound
	}
	if req.State != domain.RequestAwaitingPayment {
		return *req, false, nil
	}
	req.State = domain.RequestPaid
	req.ExternalPaymentID = externalPaymentID
	req.PaidAt = &paidAt
	return *req, true, nil
}

func (s *memRequests) MarkDelivered(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return false, nil
	}
	if req.State != domain.RequestApproved {
		return false, nil
	}
	req.State = domain.RequestDelivered
	return true, nil
}

func (s *memRequests) state(id string) domain.RequestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id].State
}

type memContracts struct {
	mu        sync.Mutex
	contracts map[string]*domain.Contract
}

func newMemContracts() *memContracts {
	return &memContracts{contracts: make(map[string]*domain.Contract)}
}

func (s *memContracts) Get(_ context.Context, id string) (domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return domain.Contract{}, domain.ErrNotFound
	}
	return *c, nil
}

func (s *memContracts) ListLeaseToOwn(_ context.Context) ([]domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Contract
	for _, c := range s.contracts {
		if c.LeaseToOwn {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memContracts) MarkCompleted(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.Completed {
		return false, nil
	}
	c.Completed = true
	return true, nil
}

func (s *memContracts) completed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contracts[id].Completed
}

type memInstallments struct {
	mu           sync.Mutex
	installments map[string]*domain.Installment
}

func newMemInstallments() *memInstallments {
	return &memInstallments{installments: make(map[string]*domain.Installment)}
}

func (s *memInstallments) MarkPaid(_ context.Context, id string, amount float64, paidAt time.Time) (domain.Installment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.installments[id]
	if !ok {
		return domain.Installment{}, false, domain.ErrNotFound
	}
	if inst.State == domain.InstallmentPaid {
		return *inst, false, nil
	}
	inst.State = domain.InstallmentPaid
	inst.PaidAmount = amount
	inst.PaidAt = &paidAt
	return *inst, true, nil
}

func (s *memInstallments) PayOldestDue(_ context.Context, contractID string, amount float64, paidAt time.Time) (domain.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.Installment
	for _, inst := range s.installments {
		if inst.ContractID != contractID || !inst.Open() {
			continue
		}
		if oldest == nil || inst.DueDate.Before(oldest.DueDate) {
			oldest = inst
		}
	}
	if oldest == nil {
		return domain.Installment{}, domain.ErrNoOpenInstallment
	}
	oldest.State = domain.InstallmentPaid
	oldest.PaidAmount = amount
	oldest.PaidAt = &paidAt
	return *oldest, nil
}

func (s *memInstallments) CountOutstanding(_ context.Context, contractID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inst := range s.installments {
		if inst.ContractID == contractID && inst.Open() {
			n++
		}
	}
	return n, nil
}

func (s *memInstallments) state(id string) domain.InstallmentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installments[id].State
}

type memAssets struct {
	mu      sync.Mutex
	assets  map[string]*domain.Asset
	history []domain.AssetStateChange
}

func newMemAssets() *memAssets {
	return &memAssets{assets: make(map[string]*domain.Asset)}
}

func (s *memAssets) MarkRented(_ context.Context, id, reason string) (bool, error) {
	return s.transition(id, domain.AssetReserved, domain.AssetRented, reason)
}

func (s *memAssets) MarkOwned(_ context.Context, id, reason string) (bool, error) {
	return s.transition(id, domain.AssetRented, domain.AssetOwned, reason)
}

func (s *memAssets) transition(id string, from, to domain.AssetState, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if a.State != from {
		return false, nil
	}
	a.State = to
	s.history = append(s.history, domain.AssetStateChange{
		AssetID: id, From: from, To: to, Reason: reason, CreatedAt: time.Now().UTC(),
	})
	return true, nil
}

func (s *memAssets) state(id string) domain.AssetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assets[id].State
}

func (s *memAssets) historyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.PartsOrder
	items  map[string][]domain.OrderItem
}

func newMemOrders() *memOrders {
	return &memOrders{
		orders: make(map[string]*domain.PartsOrder),
		items:  make(map[string][]domain.OrderItem),
	}
}

func (s *memOrders) MarkPaid(_ context.Context, id, externalPaymentID string) (domain.PartsOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.PartsOrder{}, false, domain.ErrNotFound
	}
	if order.State != domain.OrderPendingPayment {
		return *order, false, nil
	}
	order.State = domain.OrderPaid
	order.ExternalPaymentID = externalPaymentID
	return *order, true, nil
}

func (s *memOrders) state(id string) domain.OrderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].State
}

func (s *memOrders) Items(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[orderID], nil
}

// Collaborator fakes with call recording.

type fakeGateway struct {
	mu    sync.Mutex
	snaps map[string]domain.PaymentSnapshot
	err   error
	calls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{snaps: make(map[string]domain.PaymentSnapshot)}
}

func (g *fakeGateway) FetchPayment(_ context.Context, externalID string) (domain.PaymentSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return domain.PaymentSnapshot{}, g.err
	}
	snap, ok := g.snaps[externalID]
	if !ok {
		return domain.PaymentSnapshot{}, domain.ErrPaymentNotFound
	}
	return snap, nil
}

func (g *fakeGateway) set(snap domain.PaymentSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snaps[snap.ExternalID] = snap
}

type fakeInvoices struct {
	mu       sync.Mutex
	issued   []domain.Invoice
	issueErr error
}

func (f *fakeInvoices) Issue(_ context.Context, inv domain.Invoice) error {
	if f.issueErr != nil {
		return f.issueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, inv)
	return nil
}

func (f *fakeInvoices) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.issued)
}

type fakeAccounting struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAccounting) Emit(_ context.Context, operation, entityType, entityID string, _ any, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, operation+":"+entityType+":"+entityID)
	return nil
}

func (f *fakeAccounting) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeInventory struct {
	mu        sync.Mutex
	movements []domain.InventoryMovement
}

func (f *fakeInventory) RecordMovement(_ context.Context, m domain.InventoryMovement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.movements = append(f.movements, m)
	return nil
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSweeper) Sweep(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeSweeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]bool)}
}

func (f *fakeDedup) FirstSeen(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}
