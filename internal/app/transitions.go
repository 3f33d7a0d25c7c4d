package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rodavanza/lease-service/internal/domain"
)

// actor recorded on movements and accounting events produced by webhook
// processing.
const actorWebhook = "payment-gateway-webhook"

// applyRentalRequest settles the first-month payment of a rental request.
// Guard: request must be awaiting payment; anything else is a replay or a
// request the approval workflow already moved on, and is a silent no-op.
func (r *Reconciler) applyRentalRequest(ctx context.Context, ref domain.RentalRequestRef, snap domain.PaymentSnapshot) error {
	when := paidAt(snap)
	req, applied, err := r.deps.Requests.MarkPaid(ctx, ref.RequestID, snap.ExternalID, when)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.log.WarnContext(ctx, "rental request gone, payment ledgered only",
				"request_id", ref.RequestID, "payment_id", snap.ExternalID)
			return nil
		}
		return fmt.Errorf("mark request %s paid: %w", ref.RequestID, err)
	}
	if !applied {
		r.log.DebugContext(ctx, "rental request not awaiting payment, no-op",
			"request_id", ref.RequestID, "state", string(req.State))
		return nil
	}

	transitionsTotal.WithLabelValues(string(domain.FlowFirstMonth)).Inc()
	r.log.InfoContext(ctx, "rental request paid",
		"request_id", req.ID, "payment_id", snap.ExternalID, "amount", snap.TransactionAmount)

	r.runEffects(ctx, snap.ExternalID,
		Effect{Name: "invoice", Run: func(ctx context.Context) error {
			return r.deps.Invoices.Issue(ctx, domain.Invoice{
				PaymentID:   snap.ExternalID,
				ClientID:    req.ClientID,
				Amount:      snap.TransactionAmount,
				Description: fmt.Sprintf("First period, rental request %s", req.ID),
				RequestID:   req.ID,
				PeriodStart: &when,
			})
		}},
		Effect{Name: "accounting", Run: func(ctx context.Context) error {
			return r.deps.Accounting.Emit(ctx, "payment.applied", "rental_request", req.ID, accountingPayload(snap), actorWebhook)
		}},
	)
	return nil
}

// applyInstallment settles one named installment. Guard: installment not yet
// paid. Paying installment #1 additionally bootstraps the asset
// (reserved → rented) and, if the owning request is approved, advances it to
// delivered; each inner step carries its own guard so partial prior
// application never re-fires.
func (r *Reconciler) applyInstallment(ctx context.Context, ref domain.InstallmentRef, snap domain.PaymentSnapshot) error {
	when := paidAt(snap)
	inst, applied, err := r.deps.Installments.MarkPaid(ctx, ref.InstallmentID, snap.TransactionAmount, when)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.log.WarnContext(ctx, "installment gone, payment ledgered only",
				"installment_id", ref.InstallmentID, "payment_id", snap.ExternalID)
			return nil
		}
		return fmt.Errorf("mark installment %s paid: %w", ref.InstallmentID, err)
	}
	if !applied {
		r.log.DebugContext(ctx, "installment already paid, no-op",
			"installment_id", ref.InstallmentID, "payment_id", snap.ExternalID)
		return nil
	}

	transitionsTotal.WithLabelValues(string(domain.FlowSingleInstallment)).Inc()
	r.log.InfoContext(ctx, "installment paid",
		"installment_id", inst.ID, "contract_id", inst.ContractID,
		"number", inst.Number, "payment_id", snap.ExternalID)

	contract, err := r.deps.Contracts.Get(ctx, inst.ContractID)
	if err != nil {
		r.log.ErrorContext(ctx, "contract lookup failed after installment paid, skipping downstream steps",
			"contract_id", inst.ContractID, "payment_id", snap.ExternalID, "err", err)
		return nil
	}

	r.runEffects(ctx, snap.ExternalID,
		Effect{Name: "invoice", Run: func(ctx context.Context) error {
			due := inst.DueDate
			return r.deps.Invoices.Issue(ctx, domain.Invoice{
				PaymentID:     snap.ExternalID,
				ClientID:      contract.ClientID,
				Amount:        snap.TransactionAmount,
				Description:   fmt.Sprintf("Installment %d, contract %s", inst.Number, contract.ID),
				ContractID:    contract.ID,
				InstallmentID: inst.ID,
				PeriodStart:   &due,
			})
		}},
		Effect{Name: "accounting", Run: func(ctx context.Context) error {
			return r.deps.Accounting.Emit(ctx, "payment.applied", "installment", inst.ID, accountingPayload(snap), actorWebhook)
		}},
	)

	if inst.Number == 1 {
		r.bootstrapAsset(ctx, contract, snap)
	}
	return nil
}

// bootstrapAsset performs the one-time reserved → rented transition when the
// first installment of a contract is confirmed. The conditional update on the
// asset state is the replay guard.
func (r *Reconciler) bootstrapAsset(ctx context.Context, contract domain.Contract, snap domain.PaymentSnapshot) {
	moved, err := r.deps.Assets.MarkRented(ctx, contract.AssetID,
		fmt.Sprintf("first installment of contract %s paid", contract.ID))
	if err != nil {
		r.log.ErrorContext(ctx, "asset bootstrap transition failed",
			"asset_id", contract.AssetID, "contract_id", contract.ID, "err", err)
		return
	}
	if !moved {
		r.log.DebugContext(ctx, "asset not reserved, bootstrap no-op", "asset_id", contract.AssetID)
		return
	}
	r.log.InfoContext(ctx, "asset rented",
		"asset_id", contract.AssetID, "contract_id", contract.ID, "payment_id", snap.ExternalID)

	if contract.RequestID == "" {
		return
	}
	delivered, err := r.deps.Requests.MarkDelivered(ctx, contract.RequestID)
	if err != nil {
		r.log.ErrorContext(ctx, "request delivery advance failed",
			"request_id", contract.RequestID, "err", err)
		return
	}
	if delivered {
		r.log.InfoContext(ctx, "rental request delivered", "request_id", contract.RequestID)
	}
}

// applyContract settles a recurring payment that names no installment: the
// open installment with the earliest due date absorbs it. Duplicate delivery
// is guarded by the ledger flag — only the upsert that moved the payment to
// APPROVED may select an installment, otherwise a replay would satisfy a
// second one.
func (r *Reconciler) applyContract(ctx context.Context, ref domain.ContractRef, snap domain.PaymentSnapshot, becameApproved bool) error {
	if !becameApproved {
		r.log.DebugContext(ctx, "recurring payment already applied, no-op",
			"contract_id", ref.ContractID, "payment_id", snap.ExternalID)
		return nil
	}

	when := paidAt(snap)
	inst, err := r.deps.Installments.PayOldestDue(ctx, ref.ContractID, snap.TransactionAmount, when)
	if err != nil {
		if errors.Is(err, domain.ErrNoOpenInstallment) {
			r.log.WarnContext(ctx, "recurring payment with no open installment, ledgered only",
				"contract_id", ref.ContractID, "payment_id", snap.ExternalID)
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			r.log.WarnContext(ctx, "contract gone, payment ledgered only",
				"contract_id", ref.ContractID, "payment_id", snap.ExternalID)
			return nil
		}
		return fmt.Errorf("pay oldest due installment of contract %s: %w", ref.ContractID, err)
	}

	transitionsTotal.WithLabelValues(string(domain.FlowRecurringInstallment)).Inc()
	r.log.InfoContext(ctx, "recurring payment applied to oldest open installment",
		"contract_id", ref.ContractID, "installment_id", inst.ID,
		"number", inst.Number, "payment_id", snap.ExternalID)

	if err := r.deps.Ledger.LinkInstallment(ctx, snap.ExternalID, inst.ID); err != nil {
		r.log.ErrorContext(ctx, "linking payment to installment failed",
			"payment_id", snap.ExternalID, "installment_id", inst.ID, "err", err)
	}

	contract, err := r.deps.Contracts.Get(ctx, ref.ContractID)
	if err != nil {
		r.log.ErrorContext(ctx, "contract lookup failed after recurring payment, skipping side effects",
			"contract_id", ref.ContractID, "err", err)
		return nil
	}

	effects := []Effect{
		{Name: "invoice", Run: func(ctx context.Context) error {
			due := inst.DueDate
			return r.deps.Invoices.Issue(ctx, domain.Invoice{
				PaymentID:     snap.ExternalID,
				ClientID:      contract.ClientID,
				Amount:        snap.TransactionAmount,
				Description:   fmt.Sprintf("Installment %d, contract %s", inst.Number, contract.ID),
				ContractID:    contract.ID,
				InstallmentID: inst.ID,
				PeriodStart:   &due,
			})
		}},
		{Name: "accounting", Run: func(ctx context.Context) error {
			return r.deps.Accounting.Emit(ctx, "payment.applied", "installment", inst.ID, accountingPayload(snap), actorWebhook)
		}},
	}

	if contract.LeaseToOwn {
		outstanding, err := r.deps.Installments.CountOutstanding(ctx, ref.ContractID)
		switch {
		case err != nil:
			r.log.ErrorContext(ctx, "outstanding installment count failed",
				"contract_id", ref.ContractID, "err", err)
		case outstanding == 0:
			// Deliberately a global sweep, not scoped to this contract:
			// other contracts may have become eligible concurrently.
			effects = append(effects, Effect{Name: "ownership_sweep", Run: r.deps.Sweeper.Sweep})
		}
	}

	r.runEffects(ctx, snap.ExternalID, effects...)
	return nil
}

// applyPartsOrder settles a spare-parts order. Guard: order pending payment.
// Stock egress is recorded once per line item; the inventory write does not
// re-check the order state, so correctness rides entirely on the order-state
// guard firing first.
func (r *Reconciler) applyPartsOrder(ctx context.Context, ref domain.PartsOrderRef, snap domain.PaymentSnapshot) error {
	order, applied, err := r.deps.Orders.MarkPaid(ctx, ref.OrderID, snap.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.log.WarnContext(ctx, "parts order gone, payment ledgered only",
				"order_id", ref.OrderID, "payment_id", snap.ExternalID)
			return nil
		}
		return fmt.Errorf("mark order %s paid: %w", ref.OrderID, err)
	}
	if !applied {
		r.log.DebugContext(ctx, "parts order not pending payment, no-op",
			"order_id", ref.OrderID, "state", string(order.State))
		return nil
	}

	transitionsTotal.WithLabelValues(string(domain.FlowPartsOrder)).Inc()
	r.log.InfoContext(ctx, "parts order paid",
		"order_id", order.ID, "payment_id", snap.ExternalID, "amount", snap.TransactionAmount)

	effects := []Effect{
		{Name: "invoice", Run: func(ctx context.Context) error {
			return r.deps.Invoices.Issue(ctx, domain.Invoice{
				PaymentID:   snap.ExternalID,
				ClientID:    order.ClientID,
				Amount:      snap.TransactionAmount,
				Description: fmt.Sprintf("Parts order %s", order.ID),
				OrderID:     order.ID,
			})
		}},
	}

	items, err := r.deps.Orders.Items(ctx, order.ID)
	if err != nil {
		r.log.ErrorContext(ctx, "order items lookup failed, stock not decremented",
			"order_id", order.ID, "err", err)
	}
	for _, item := range items {
		item := item
		effects = append(effects, Effect{Name: "inventory", Run: func(ctx context.Context) error {
			return r.deps.Inventory.RecordMovement(ctx, domain.InventoryMovement{
				ItemID:        item.ItemID,
				Kind:          domain.MovementEgress,
				Quantity:      item.Quantity,
				Description:   fmt.Sprintf("Sale, parts order %s", order.ID),
				UnitCost:      item.UnitPrice,
				ReferenceType: "parts_order",
				ReferenceID:   order.ID,
				Actor:         actorWebhook,
			})
		}})
	}

	effects = append(effects, Effect{Name: "accounting", Run: func(ctx context.Context) error {
		return r.deps.Accounting.Emit(ctx, "payment.applied", "parts_order", order.ID, accountingPayload(snap), actorWebhook)
	}})

	r.runEffects(ctx, snap.ExternalID, effects...)
	return nil
}

func accountingPayload(snap domain.PaymentSnapshot) map[string]any {
	return map[string]any{
		"external_payment_id": snap.ExternalID,
		"amount":              snap.TransactionAmount,
		"net_amount":          snap.NetReceivedAmount,
		"fee":                 snap.FeeAmount,
		"payment_method":      snap.PaymentMethodID,
	}
}
