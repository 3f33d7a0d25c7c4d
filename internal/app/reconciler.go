package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rodavanza/lease-service/internal/domain"
)

// Notification is one webhook delivery from the payment gateway. Delivery is
// at-least-once and unordered; everything downstream is guarded accordingly.
type Notification struct {
	Type   string
	Action string
	ID     string
}

const (
	NotificationPayment           = "payment"
	NotificationPreapproval       = "subscription_preapproval"
	NotificationAuthorizedPayment = "subscription_authorized_payment"
)

const defaultDedupTTL = 30 * time.Second

// Deps groups the collaborators of the reconciler.
type Deps struct {
	Gateway      GatewayClient
	Ledger       PaymentLedger
	Requests     RequestStore
	Contracts    ContractStore
	Installments InstallmentStore
	Assets       AssetStore
	Orders       OrderStore
	Invoices     InvoiceIssuer
	Accounting   AccountingEmitter
	Inventory    InventoryWriter
	Sweeper      OwnershipSweeper
	Dedup        DedupStore
	DedupTTL     time.Duration
}

// Reconciler applies gateway truth to the domain: upserts the payment ledger
// and, on approval, advances exactly one entity through its guarded
// transition before firing post-commit effects.
type Reconciler struct {
	deps     Deps
	dedupTTL time.Duration
	log      *slog.Logger
}

func NewReconciler(deps Deps, log *slog.Logger) *Reconciler {
	ttl := deps.DedupTTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &Reconciler{deps: deps, dedupTTL: ttl, log: log}
}

// Process handles one notification end to end. Errors returned here are for
// logging and metrics only; the ingress acknowledges the gateway regardless.
func (r *Reconciler) Process(ctx context.Context, n Notification) error {
	switch n.Type {
	case NotificationPayment, NotificationAuthorizedPayment:
	case NotificationPreapproval:
		// Carries a preapproval id, not a payment id; nothing to fetch
		// through the payment API.
		r.log.InfoContext(ctx, "subscription preapproval notification acknowledged",
			"action", n.Action, "preapproval_id", n.ID)
		notificationsTotal.WithLabelValues(n.Type, "ignored").Inc()
		return nil
	default:
		r.log.WarnContext(ctx, "unknown notification type", "type", n.Type, "id", n.ID)
		notificationsTotal.WithLabelValues(n.Type, "ignored").Inc()
		return nil
	}

	snap, err := r.deps.Gateway.FetchPayment(ctx, n.ID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			r.log.WarnContext(ctx, "gateway does not know payment, dropping notification",
				"payment_id", n.ID, "type", n.Type)
			notificationsTotal.WithLabelValues(n.Type, "gateway_not_found").Inc()
			return nil
		}
		notificationsTotal.WithLabelValues(n.Type, "gateway_error").Inc()
		return fmt.Errorf("fetch payment %s: %w", n.ID, err)
	}

	// Suppression happens after the authoritative fetch and the key carries
	// the fetched status: a redelivery of the same status within the TTL is a
	// burst, a different status is a new event and must pass. The gateway
	// sends payment.updated for every status change, so the action label
	// alone cannot tell the two apart.
	if r.deps.Dedup != nil {
		key := fmt.Sprintf("%s:%s:%s", n.Type, n.ID, snap.Status)
		first, err := r.deps.Dedup.FirstSeen(ctx, key, r.dedupTTL)
		if err != nil {
			r.log.WarnContext(ctx, "dedup store unavailable, processing anyway",
				"err", err, "payment_id", n.ID)
		} else if !first {
			r.log.DebugContext(ctx, "redelivery burst suppressed", "key", key)
			notificationsTotal.WithLabelValues(n.Type, "deduped").Inc()
			return nil
		}
	}

	ref, recognized := domain.DecodeReference(snap.ExternalReference)
	status := domain.MapGatewayStatus(snap.Status)

	rec, becameApproved, err := r.deps.Ledger.Upsert(ctx, upsertFromSnapshot(snap, ref, status))
	if err != nil {
		notificationsTotal.WithLabelValues(n.Type, "ledger_error").Inc()
		return fmt.Errorf("ledger upsert %s: %w", snap.ExternalID, err)
	}

	if status != domain.StatusApproved {
		// Ledger metadata only; non-approved statuses never touch entities
		// and never regress a previously advanced one.
		r.log.InfoContext(ctx, "payment ledgered without transition",
			"payment_id", snap.ExternalID, "status", string(status),
			"raw_status", snap.Status, "flow", string(rec.Flow))
		notificationsTotal.WithLabelValues(n.Type, "ledgered").Inc()
		return nil
	}

	if !recognized {
		r.log.WarnContext(ctx, "unroutable external reference, payment ledgered only",
			"payment_id", snap.ExternalID, "external_reference", snap.ExternalReference)
		notificationsTotal.WithLabelValues(n.Type, "unroutable").Inc()
		return nil
	}

	if err := r.dispatch(ctx, ref, snap, becameApproved); err != nil {
		notificationsTotal.WithLabelValues(n.Type, "transition_error").Inc()
		return err
	}
	notificationsTotal.WithLabelValues(n.Type, "applied").Inc()
	return nil
}

// dispatch routes an approved payment to the handler for its flow. The switch
// is exhaustive over the reference variants; adding a variant without a case
// here is caught by the default.
func (r *Reconciler) dispatch(ctx context.Context, ref domain.Reference, snap domain.PaymentSnapshot, becameApproved bool) error {
	switch v := ref.(type) {
	case domain.RentalRequestRef:
		return r.applyRentalRequest(ctx, v, snap)
	case domain.InstallmentRef:
		return r.applyInstallment(ctx, v, snap)
	case domain.ContractRef:
		return r.applyContract(ctx, v, snap, becameApproved)
	case domain.PartsOrderRef:
		return r.applyPartsOrder(ctx, v, snap)
	default:
		return fmt.Errorf("no handler for reference %T (payment %s)", ref, snap.ExternalID)
	}
}

func upsertFromSnapshot(snap domain.PaymentSnapshot, ref domain.Reference, status domain.PaymentStatus) PaymentUpsert {
	u := PaymentUpsert{
		ExternalID:    snap.ExternalID,
		Flow:          domain.FlowKindFor(ref),
		Amount:        snap.TransactionAmount,
		GatewayStatus: snap.Status,
		Status:        status,
		NetAmount:     snap.NetReceivedAmount,
		Fee:           snap.FeeAmount,
		PaymentMethod: snap.PaymentMethodID,
		PaidAt:        snap.ApprovedAt,
	}
	switch v := ref.(type) {
	case domain.RentalRequestRef:
		u.RequestID = v.RequestID
	case domain.InstallmentRef:
		u.InstallmentID = v.InstallmentID
		u.ContractID = v.ContractID
	case domain.ContractRef:
		u.ContractID = v.ContractID
	case domain.PartsOrderRef:
		u.OrderID = v.OrderID
	}
	return u
}

// paidAt prefers the gateway's approval timestamp; a missing one falls back
// to receipt time.
func paidAt(snap domain.PaymentSnapshot) time.Time {
	if snap.ApprovedAt != nil {
		return *snap.ApprovedAt
	}
	return time.Now().UTC()
}
