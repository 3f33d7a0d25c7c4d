package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodavanza/lease-service/internal/domain"
)

// RequestStore owns rental request rows. Payment-driven mutations are single
// conditional UPDATEs so concurrent delivery of the same notification cannot
// double-apply.
type RequestStore struct {
	pool *pgxpool.Pool
}

func NewRequestStore(pool *pgxpool.Pool) *RequestStore {
	return &RequestStore{pool: pool}
}

func (s *RequestStore) MarkPaid(ctx context.Context, id, externalPaymentID string, paidAt time.Time) (domain.RentalRequest, bool, error) {
	const q = `
		UPDATE rental_requests
		SET state = 'paid', external_payment_id = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND state = 'awaiting_payment'
		RETURNING id, client_id, state, amount, COALESCE(external_payment_id, ''), paid_at, created_at, updated_at
	`
	req, err := scanRequest(s.pool.QueryRow(ctx, q, id, externalPaymentID, paidAt))
	if err == nil {
		return req, true, nil
	}
	if !isNoRows(err) {
		return domain.RentalRequest{}, false, fmt.Errorf("mark request %s paid: %w", id, err)
	}

	// Guard did not fire: distinguish a missing row from a replay.
	req, err = s.get(ctx, id)
	if err != nil {
		return domain.RentalRequest{}, false, err
	}
	return req, false, nil
}

func (s *RequestStore) MarkDelivered(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE rental_requests
		SET state = 'delivered', updated_at = NOW()
		WHERE id = $1 AND state = 'approved'
	`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("mark request %s delivered: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *RequestStore) get(ctx context.Context, id string) (domain.RentalRequest, error) {
	const q = `
		SELECT id, client_id, state, amount, COALESCE(external_payment_id, ''), paid_at, created_at, updated_at
		FROM rental_requests
		WHERE id = $1
	`
	req, err := scanRequest(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return domain.RentalRequest{}, domain.ErrNotFound
		}
		return domain.RentalRequest{}, fmt.Errorf("get request %s: %w", id, err)
	}
	return req, nil
}

func scanRequest(row pgx.Row) (domain.RentalRequest, error) {
	var (
		req   domain.RentalRequest
		state string
	)
	err := row.Scan(&req.ID, &req.ClientID, &state, &req.Amount,
		&req.ExternalPaymentID, &req.PaidAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return domain.RentalRequest{}, err
	}
	req.State = domain.RequestState(state)
	return req, nil
}

// ContractStore reads contracts and owns the completion flag.
type ContractStore struct {
	pool *pgxpool.Pool
}

func NewContractStore(pool *pgxpool.Pool) *ContractStore {
	return &ContractStore{pool: pool}
}

func (s *ContractStore) Get(ctx context.Context, id string) (domain.Contract, error) {
	const q = `
		SELECT id, client_id, asset_id, COALESCE(request_id, ''), lease_to_own, completed, created_at, updated_at
		FROM contracts
		WHERE id = $1
	`
	var c domain.Contract
	err := s.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.ClientID, &c.AssetID,
		&c.RequestID, &c.LeaseToOwn, &c.Completed, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.Contract{}, domain.ErrNotFound
		}
		return domain.Contract{}, fmt.Errorf("get contract %s: %w", id, err)
	}
	return c, nil
}

func (s *ContractStore) ListLeaseToOwn(ctx context.Context) ([]domain.Contract, error) {
	const q = `
		SELECT id, client_id, asset_id, COALESCE(request_id, ''), lease_to_own, completed, created_at, updated_at
		FROM contracts
		WHERE lease_to_own = TRUE
	`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list lease-to-own contracts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contract
	for rows.Next() {
		var c domain.Contract
		if err := rows.Scan(&c.ID, &c.ClientID, &c.AssetID,
			&c.RequestID, &c.LeaseToOwn, &c.Completed, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contract row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ContractStore) MarkCompleted(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE contracts
		SET completed = TRUE, updated_at = NOW()
		WHERE id = $1 AND completed = FALSE
	`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("mark contract %s completed: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// InstallmentStore owns installment rows.
type InstallmentStore struct {
	pool *pgxpool.Pool
}

func NewInstallmentStore(pool *pgxpool.Pool) *InstallmentStore {
	return &InstallmentStore{pool: pool}
}

func (s *InstallmentStore) MarkPaid(ctx context.Context, id string, amount float64, paidAt time.Time) (domain.Installment, bool, error) {
	const q = `
		UPDATE installments
		SET state = 'paid', paid_amount = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND state <> 'paid'
		RETURNING id, contract_id, number, due_date, amount, paid_amount, paid_at, state
	`
	inst, err := scanInstallment(s.pool.QueryRow(ctx, q, id, amount, paidAt))
	if err == nil {
		return inst, true, nil
	}
	if !isNoRows(err) {
		return domain.Installment{}, false, fmt.Errorf("mark installment %s paid: %w", id, err)
	}

	inst, err = s.get(ctx, id)
	if err != nil {
		return domain.Installment{}, false, err
	}
	return inst, false, nil
}

// PayOldestDue selects and pays the open installment with the earliest due
// date in one statement. SKIP LOCKED makes two concurrent recurring payments
// for the same contract land on two different installments instead of
// colliding on one.
func (s *InstallmentStore) PayOldestDue(ctx context.Context, contractID string, amount float64, paidAt time.Time) (domain.Installment, error) {
	const q = `
		UPDATE installments
		SET state = 'paid', paid_amount = $2, paid_at = $3, updated_at = NOW()
		WHERE id = (
			SELECT id FROM installments
			WHERE contract_id = $1 AND state IN ('pending', 'overdue')
			ORDER BY due_date ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, contract_id, number, due_date, amount, paid_amount, paid_at, state
	`
	inst, err := scanInstallment(s.pool.QueryRow(ctx, q, contractID, amount, paidAt))
	if err == nil {
		return inst, nil
	}
	if !isNoRows(err) {
		return domain.Installment{}, fmt.Errorf("pay oldest due installment of %s: %w", contractID, err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`, contractID).Scan(&exists); err != nil {
		return domain.Installment{}, fmt.Errorf("check contract %s: %w", contractID, err)
	}
	if !exists {
		return domain.Installment{}, domain.ErrNotFound
	}
	return domain.Installment{}, domain.ErrNoOpenInstallment
}

func (s *InstallmentStore) CountOutstanding(ctx context.Context, contractID string) (int, error) {
	const q = `
		SELECT COUNT(*) FROM installments
		WHERE contract_id = $1 AND state IN ('pending', 'overdue')
	`
	var n int
	if err := s.pool.QueryRow(ctx, q, contractID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outstanding installments of %s: %w", contractID, err)
	}
	return n, nil
}

func (s *InstallmentStore) get(ctx context.Context, id string) (domain.Installment, error) {
	const q = `
		SELECT id, contract_id, number, due_date, amount, paid_amount, paid_at, state
		FROM installments
		WHERE id = $1
	`
	inst, err := scanInstallment(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return domain.Installment{}, domain.ErrNotFound
		}
		return domain.Installment{}, fmt.Errorf("get installment %s: %w", id, err)
	}
	return inst, nil
}

func scanInstallment(row pgx.Row) (domain.Installment, error) {
	var (
		inst  domain.Installment
		state string
	)
	err := row.Scan(&inst.ID, &inst.ContractID, &inst.Number, &inst.DueDate,
		&inst.Amount, &inst.PaidAmount, &inst.PaidAt, &state)
	if err != nil {
		return domain.Installment{}, err
	}
	inst.State = domain.InstallmentState(state)
	return inst, nil
}

// AssetStore owns asset transitions; every applied transition also appends a
// state-history row in the same transaction.
type AssetStore struct {
	pool *pgxpool.Pool
}

func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

func (s *AssetStore) MarkRented(ctx context.Context, id, reason string) (bool, error) {
	return s.transition(ctx, id, domain.AssetReserved, domain.AssetRented, reason)
}

func (s *AssetStore) MarkOwned(ctx context.Context, id, reason string) (bool, error) {
	return s.transition(ctx, id, domain.AssetRented, domain.AssetOwned, reason)
}

func (s *AssetStore) transition(ctx context.Context, id string, from, to domain.AssetState, reason string) (bool, error) {
	applied := false
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		const q = `
			UPDATE assets
			SET state = $3, updated_at = NOW()
			WHERE id = $1 AND state = $2
		`
		tag, err := tx.Exec(ctx, q, id, string(from), string(to))
		if err != nil {
			return fmt.Errorf("asset %s transition %s->%s: %w", id, from, to, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true

		const hq = `
			INSERT INTO asset_state_history (asset_id, from_state, to_state, reason, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`
		if _, err := tx.Exec(ctx, hq, id, string(from), string(to), reason); err != nil {
			return fmt.Errorf("asset %s history row: %w", id, err)
		}
		return nil
	})
	return applied, err
}
