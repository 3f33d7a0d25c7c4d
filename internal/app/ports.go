package app

import (
	"context"
	"time"

	"github.com/rodavanza/lease-service/internal/domain"
)

// GatewayClient fetches the authoritative state of a payment from the
// external gateway. Returns domain.ErrPaymentNotFound when the gateway does
// not know the id; no retries at this layer, redelivery absorbs them.
type GatewayClient interface {
	FetchPayment(ctx context.Context, externalID string) (domain.PaymentSnapshot, error)
}

// PaymentUpsert carries the mutable fields of a ledger upsert plus the
// creation-only fields (Flow, linked ids) used when no record exists yet.
type PaymentUpsert struct {
	ExternalID    string
	Flow          domain.FlowKind
	Amount        float64
	GatewayStatus string
	Status        domain.PaymentStatus
	NetAmount     float64
	Fee           float64
	PaymentMethod string
	RequestID     string
	ContractID    string
	InstallmentID string
	OrderID       string
	PaidAt        *time.Time
}

// PaymentLedger owns payment records. Upsert is the idempotency boundary:
// one record per external id, created on first sight, updated afterwards.
// ExternalID and Flow are never rewritten on update. The returned flag
// reports whether this upsert is the one that moved the record to APPROVED;
// replays of an already-approved payment return false.
type PaymentLedger interface {
	Upsert(ctx context.Context, u PaymentUpsert) (domain.PaymentRecord, bool, error)
	// LinkInstallment records which installment a recurring payment ended up
	// satisfying, once the FIFO selection has happened.
	LinkInstallment(ctx context.Context, externalID, installmentID string) error
}

// RequestStore owns rental request mutations driven by payments. Both
// mutations are conditional on the current state; applied=false means the
// guard did not hold (already applied or wrong state), which is not an error.
type RequestStore interface {
	MarkPaid(ctx context.Context, id, externalPaymentID string, paidAt time.Time) (domain.RentalRequest, bool, error)
	MarkDelivered(ctx context.Context, id string) (bool, error)
}

// ContractStore reads contracts and owns the lease-to-own completion flag.
type ContractStore interface {
	Get(ctx context.Context, id string) (domain.Contract, error)
	ListLeaseToOwn(ctx context.Context) ([]domain.Contract, error)
	MarkCompleted(ctx context.Context, id string) (bool, error)
}

// InstallmentStore owns installment mutations. PayOldestDue selects and pays
// the open installment with the earliest due date in one serialized step per
// contract, so two concurrent recurring payments can never satisfy the same
// installment. It returns domain.ErrNoOpenInstallment when nothing is open.
type InstallmentStore interface {
	MarkPaid(ctx context.Context, id string, amount float64, paidAt time.Time) (domain.Installment, bool, error)
	PayOldestDue(ctx context.Context, contractID string, amount float64, paidAt time.Time) (domain.Installment, error)
	CountOutstanding(ctx context.Context, contractID string) (int, error)
}

// AssetStore owns asset transitions. Both are conditional updates that also
// write a state-history row when they fire.
type AssetStore interface {
	MarkRented(ctx context.Context, id, reason string) (bool, error)
	MarkOwned(ctx context.Context, id, reason string) (bool, error)
}

// OrderStore owns parts-order mutations.
type OrderStore interface {
	MarkPaid(ctx context.Context, id, externalPaymentID string) (domain.PartsOrder, bool, error)
	Items(ctx context.Context, orderID string) ([]domain.OrderItem, error)
}

// InvoiceIssuer is the invoicing collaborator. Idempotent per Invoice.PaymentID
// at its own boundary.
type InvoiceIssuer interface {
	Issue(ctx context.Context, inv domain.Invoice) error
}

// AccountingEmitter is the fire-and-forget accounting event channel.
type AccountingEmitter interface {
	Emit(ctx context.Context, operation, entityType, entityID string, payload any, actor string) error
}

// InventoryWriter records stock movements. The write itself does not re-check
// the order state; the order-state guard upstream is what keeps it
// exactly-once.
type InventoryWriter interface {
	RecordMovement(ctx context.Context, m domain.InventoryMovement) error
}

// OwnershipSweeper re-evaluates lease-to-own completion across all contracts.
type OwnershipSweeper interface {
	Sweep(ctx context.Context) error
}

// DedupStore suppresses immediate webhook redelivery bursts. FirstSeen
// reports whether this key has not been seen within the TTL window. Advisory
// only: on store failure the caller proceeds as if the key were new.
type DedupStore interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
