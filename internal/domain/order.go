package domain

import "time"

// OrderState is the lifecycle of a spare-parts order.
type OrderState string

const (
	OrderPendingPayment OrderState = "pending_payment"
	OrderPaid           OrderState = "paid"
	OrderCancelled      OrderState = "cancelled"
)

// PartsOrder is a retail order for spare parts.
type PartsOrder struct {
	ID                string
	ClientID          string
	State             OrderState
	Total             float64
	ExternalPaymentID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderItem is one line of a parts order.
type OrderItem struct {
	OrderID   string
	ItemID    string
	Quantity  int
	UnitPrice float64
}

// MovementKind is the direction of an inventory movement.
type MovementKind string

const (
	MovementEgress  MovementKind = "egress"
	MovementIngress MovementKind = "ingress"
)

// InventoryMovement records one stock adjustment tied to a referencing entity.
type InventoryMovement struct {
	ItemID        string
	Kind          MovementKind
	Quantity      int
	Description   string
	UnitCost      float64
	ReferenceType string
	ReferenceID   string
	Actor         string
}

// Invoice is the request handed to the invoicing collaborator. The
// collaborator is idempotent per PaymentID; issuing twice for the same
// payment is a no-op at its boundary.
type Invoice struct {
	PaymentID     string
	ClientID      string
	Amount        float64
	Description   string
	RequestID     string
	ContractID    string
	InstallmentID string
	OrderID       string
	PeriodStart   *time.Time
}
