package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodavanza/lease-service/internal/domain"
)

// OrderStore owns parts-order rows.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) MarkPaid(ctx context.Context, id, externalPaymentID string) (domain.PartsOrder, bool, error) {
	const q = `
		UPDATE parts_orders
		SET state = 'paid', external_payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND state = 'pending_payment'
		RETURNING id, client_id, state, total, COALESCE(external_payment_id, ''), created_at, updated_at
	`
	order, err := scanOrder(s.pool.QueryRow(ctx, q, id, externalPaymentID))
	if err == nil {
		return order, true, nil
	}
	if !isNoRows(err) {
		return domain.PartsOrder{}, false, fmt.Errorf("mark order %s paid: %w", id, err)
	}

	order, err = s.get(ctx, id)
	if err != nil {
		return domain.PartsOrder{}, false, err
	}
	return order, false, nil
}

func (s *OrderStore) Items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	const q = `
		SELECT order_id, item_id, quantity, unit_price
		FROM parts_order_items
		WHERE order_id = $1
		ORDER BY item_id
	`
	rows, err := s.pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("list items of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ItemID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *OrderStore) get(ctx context.Context, id string) (domain.PartsOrder, error) {
	const q = `
		SELECT id, client_id, state, total, COALESCE(external_payment_id, ''), created_at, updated_at
		FROM parts_orders
		WHERE id = $1
	`
	order, err := scanOrder(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return domain.PartsOrder{}, domain.ErrNotFound
		}
		return domain.PartsOrder{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return order, nil
}

func scanOrder(row pgx.Row) (domain.PartsOrder, error) {
	var (
		order domain.PartsOrder
		state string
	)
	err := row.Scan(&order.ID, &order.ClientID, &state, &order.Total,
		&order.ExternalPaymentID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.PartsOrder{}, err
	}
	order.State = domain.OrderState(state)
	return order, nil
}

// InventoryStore appends stock movements. The write carries no state guard
// of its own; the paid-order guard upstream keeps it exactly-once.
type InventoryStore struct {
	pool *pgxpool.Pool
}

func NewInventoryStore(pool *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{pool: pool}
}

func (s *InventoryStore) RecordMovement(ctx context.Context, m domain.InventoryMovement) error {
	const q = `
		INSERT INTO inventory_movements (
			id, item_id, kind, quantity, description, unit_cost,
			reference_type, reference_id, actor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`
	_, err := s.pool.Exec(ctx, q,
		uuid.New().String(),
		m.ItemID,
		string(m.Kind),
		m.Quantity,
		m.Description,
		m.UnitCost,
		m.ReferenceType,
		m.ReferenceID,
		m.Actor,
	)
	if err != nil {
		return fmt.Errorf("record inventory movement for item %s: %w", m.ItemID, err)
	}
	return nil
}
