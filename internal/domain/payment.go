package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a domain entity referenced by a payment
	// no longer exists locally.
	ErrNotFound = errors.New("entity not found")

	// ErrPaymentNotFound is returned by the gateway client when the external
	// gateway cannot locate the payment id carried by a notification.
	ErrPaymentNotFound = errors.New("payment not found at gateway")

	// ErrNoOpenInstallment is returned when a recurring payment arrives for a
	// contract with no pending or overdue installment left to satisfy.
	ErrNoOpenInstallment = errors.New("no pending or overdue installment for contract")
)

// FlowKind identifies which business flow a payment belongs to. It is derived
// once, from the decoded reference token, when the payment record is first
// created and is never re-derived on later notifications.
type FlowKind string

const (
	FlowFirstMonth           FlowKind = "FIRST_MONTH"
	FlowSingleInstallment    FlowKind = "SINGLE_INSTALLMENT"
	FlowRecurringInstallment FlowKind = "RECURRING_INSTALLMENT"
	FlowPartsOrder           FlowKind = "PARTS_ORDER"
)

// PaymentStatus is the internal status a raw gateway status maps to.
type PaymentStatus string

const (
	StatusApproved  PaymentStatus = "APPROVED"
	StatusRejected  PaymentStatus = "REJECTED"
	StatusPending   PaymentStatus = "PENDING"
	StatusInProcess PaymentStatus = "IN_PROCESS"
	StatusCancelled PaymentStatus = "CANCELLED"
	StatusRefunded  PaymentStatus = "REFUNDED"
)

// MapGatewayStatus maps a raw gateway status string to the internal status.
// Total: anything unrecognized maps to PENDING so that a gateway status we
// have never seen can never trigger a transition by accident.
func MapGatewayStatus(raw string) PaymentStatus {
	switch raw {
	case "approved":
		return StatusApproved
	case "rejected":
		return StatusRejected
	case "pending":
		return StatusPending
	case "in_process":
		return StatusInProcess
	case "cancelled":
		return StatusCancelled
	case "refunded", "charged_back":
		return StatusRefunded
	default:
		return StatusPending
	}
}

// PaymentSnapshot is the authoritative state of one payment as reported by
// the external gateway.
type PaymentSnapshot struct {
	ExternalID        string
	Status            string
	StatusDetail      string
	PaymentMethodID   string
	PaymentTypeID     string
	TransactionAmount float64
	NetReceivedAmount float64
	FeeAmount         float64
	ExternalReference string
	ApprovedAt        *time.Time
}

// PaymentRecord is the local mirror of one external payment. ExternalID is
// the idempotency key: one record per external payment id, upserted on every
// notification, never deleted.
type PaymentRecord struct {
	ExternalID    string
	Flow          FlowKind
	Amount        float64
	GatewayStatus string
	Status        PaymentStatus
	NetAmount     float64
	Fee           float64
	PaymentMethod string
	RequestID     string
	ContractID    string
	InstallmentID string
	OrderID       string
	PaidAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
