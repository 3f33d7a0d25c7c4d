package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodavanza/lease-service/internal/domain"
)

// InvoiceIssuer queues invoice issuance for the fiscal collaborator. The
// unique key on payment_id makes Issue idempotent per payment: replaying a
// notification cannot produce a second invoice.
type InvoiceIssuer struct {
	pool *pgxpool.Pool
}

func NewInvoiceIssuer(pool *pgxpool.Pool) *InvoiceIssuer {
	return &InvoiceIssuer{pool: pool}
}

func (i *InvoiceIssuer) Issue(ctx context.Context, inv domain.Invoice) error {
	const q = `
		INSERT INTO invoices (
			payment_id, client_id, amount, description,
			request_id, contract_id, installment_id, order_id,
			period_start, created_at
		) VALUES (
			$1, $2, $3, $4,
			NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			$9, NOW()
		)
		ON CONFLICT (payment_id) DO NOTHING
	`
	_, err := i.pool.Exec(ctx, q,
		inv.PaymentID,
		inv.ClientID,
		inv.Amount,
		inv.Description,
		inv.RequestID,
		inv.ContractID,
		inv.InstallmentID,
		inv.OrderID,
		inv.PeriodStart,
	)
	if err != nil {
		return fmt.Errorf("issue invoice for payment %s: %w", inv.PaymentID, err)
	}
	return nil
}

// AccountingOutbox appends accounting events to an outbox table; a separate
// consumer drains it into the ledger system. Fire-and-forget from the
// handlers' point of view.
type AccountingOutbox struct {
	pool *pgxpool.Pool
}

func NewAccountingOutbox(pool *pgxpool.Pool) *AccountingOutbox {
	return &AccountingOutbox{pool: pool}
}

func (o *AccountingOutbox) Emit(ctx context.Context, operation, entityType, entityID string, payload any, actor string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal accounting payload for %s %s: %w", entityType, entityID, err)
	}

	const q = `
		INSERT INTO accounting_events (id, operation, entity_type, entity_id, payload, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := o.pool.Exec(ctx, q, uuid.New().String(), operation, entityType, entityID, body, actor); err != nil {
		return fmt.Errorf("emit accounting event %s for %s %s: %w", operation, entityType, entityID, err)
	}
	return nil
}
