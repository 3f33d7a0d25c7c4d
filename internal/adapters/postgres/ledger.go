package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodavanza/lease-service/internal/app"
	"github.com/rodavanza/lease-service/internal/domain"
)

// Ledger is the payment-record store. One row per external payment id,
// written with a single atomic upsert so two notifications for the same id
// can never lose updates.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Upsert creates or refreshes the record for u.ExternalID. flow_kind and
// linked entity ids are write-once: the update path keeps the stored values
// and only fills ids that were previously null. prev_status captures the
// status the row held before this statement, which is what makes the
// became-approved flag race-safe under concurrent delivery.
func (l *Ledger) Upsert(ctx context.Context, u app.PaymentUpsert) (domain.PaymentRecord, bool, error) {
	const q = `
		INSERT INTO payments (
			external_id, flow_kind, amount, gateway_status, status,
			net_amount, fee, payment_method,
			request_id, contract_id, installment_id, order_id,
			paid_at, prev_status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
			$13, NULL, NOW(), NOW()
		)
		ON CONFLICT (external_id) DO UPDATE SET
			prev_status    = payments.status,
			gateway_status = EXCLUDED.gateway_status,
			status         = EXCLUDED.status,
			amount         = EXCLUDED.amount,
			net_amount     = EXCLUDED.net_amount,
			fee            = EXCLUDED.fee,
			payment_method = EXCLUDED.payment_method,
			paid_at        = COALESCE(EXCLUDED.paid_at, payments.paid_at),
			request_id     = COALESCE(payments.request_id, EXCLUDED.request_id),
			contract_id    = COALESCE(payments.contract_id, EXCLUDED.contract_id),
			installment_id = COALESCE(payments.installment_id, EXCLUDED.installment_id),
			order_id       = COALESCE(payments.order_id, EXCLUDED.order_id),
			updated_at     = NOW()
		RETURNING
			external_id, flow_kind, amount, gateway_status, status,
			net_amount, fee, payment_method,
			COALESCE(request_id, ''), COALESCE(contract_id, ''),
			COALESCE(installment_id, ''), COALESCE(order_id, ''),
			paid_at, prev_status, created_at, updated_at
	`

	var (
		rec        domain.PaymentRecord
		flow       string
		status     string
		prevStatus *string
	)
	err := l.pool.QueryRow(ctx, q,
		u.ExternalID,
		string(u.Flow),
		u.Amount,
		u.GatewayStatus,
		string(u.Status),
		u.NetAmount,
		u.Fee,
		u.PaymentMethod,
		u.RequestID,
		u.ContractID,
		u.InstallmentID,
		u.OrderID,
		u.PaidAt,
	).Scan(
		&rec.ExternalID, &flow, &rec.Amount, &rec.GatewayStatus, &status,
		&rec.NetAmount, &rec.Fee, &rec.PaymentMethod,
		&rec.RequestID, &rec.ContractID,
		&rec.InstallmentID, &rec.OrderID,
		&rec.PaidAt, &prevStatus, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.PaymentRecord{}, false, fmt.Errorf("upsert payment %s: %w", u.ExternalID, err)
	}

	rec.Flow = domain.FlowKind(flow)
	rec.Status = domain.PaymentStatus(status)

	becameApproved := rec.Status == domain.StatusApproved &&
		(prevStatus == nil || *prevStatus != string(domain.StatusApproved))
	return rec, becameApproved, nil
}

func (l *Ledger) LinkInstallment(ctx context.Context, externalID, installmentID string) error {
	const q = `
		UPDATE payments
		SET installment_id = $2, updated_at = NOW()
		WHERE external_id = $1
	`
	tag, err := l.pool.Exec(ctx, q, externalID, installmentID)
	if err != nil {
		return fmt.Errorf("link installment to payment %s: %w", externalID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get is used by reconciliation tooling; the webhook path never reads before
// writing.
func (l *Ledger) Get(ctx context.Context, externalID string) (domain.PaymentRecord, error) {
	const q = `
		SELECT external_id, flow_kind, amount, gateway_status, status,
		       net_amount, fee, payment_method,
		       COALESCE(request_id, ''), COALESCE(contract_id, ''),
		       COALESCE(installment_id, ''), COALESCE(order_id, ''),
		       paid_at, created_at, updated_at
		FROM payments
		WHERE external_id = $1
	`
	var (
		rec    domain.PaymentRecord
		flow   string
		status string
		paidAt *time.Time
	)
	err := l.pool.QueryRow(ctx, q, externalID).Scan(
		&rec.ExternalID, &flow, &rec.Amount, &rec.GatewayStatus, &status,
		&rec.NetAmount, &rec.Fee, &rec.PaymentMethod,
		&rec.RequestID, &rec.ContractID,
		&rec.InstallmentID, &rec.OrderID,
		&paidAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return domain.PaymentRecord{}, domain.ErrNotFound
		}
		return domain.PaymentRecord{}, fmt.Errorf("get payment %s: %w", externalID, err)
	}
	rec.Flow = domain.FlowKind(flow)
	rec.Status = domain.PaymentStatus(status)
	rec.PaidAt = paidAt
	return rec, nil
}
