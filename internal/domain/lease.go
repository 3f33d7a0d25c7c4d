package domain

import "time"

// RequestState is the lifecycle of a rental request. Only the
// awaiting-payment → paid step is driven by payment reconciliation; the rest
// belong to the approval workflow.
type RequestState string

const (
	RequestCreated         RequestState = "created"
	RequestAwaitingPayment RequestState = "awaiting_payment"
	RequestPaid            RequestState = "paid"
	RequestApproved        RequestState = "approved"
	RequestWaitlisted      RequestState = "waitlisted"
	RequestAssigned        RequestState = "assigned"
	RequestDelivered       RequestState = "delivered"
	RequestRejected        RequestState = "rejected"
)

// RentalRequest is a prospective lease before a contract exists.
type RentalRequest struct {
	ID                string
	ClientID          string
	State             RequestState
	Amount            float64
	ExternalPaymentID string
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Contract is an active lease agreement between a client and one asset.
type Contract struct {
	ID         string
	ClientID   string
	AssetID    string
	RequestID  string
	LeaseToOwn bool
	Completed  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InstallmentState is the lifecycle of one scheduled payment. The
// pending → overdue step is time-driven and outside this core.
type InstallmentState string

const (
	InstallmentPending InstallmentState = "pending"
	InstallmentOverdue InstallmentState = "overdue"
	InstallmentPaid    InstallmentState = "paid"
)

// Installment is one scheduled payment obligation within a contract.
type Installment struct {
	ID         string
	ContractID string
	Number     int
	DueDate    time.Time
	Amount     float64
	PaidAmount float64
	PaidAt     *time.Time
	State      InstallmentState
}

// Open reports whether the installment can still absorb a payment.
func (i Installment) Open() bool {
	return i.State == InstallmentPending || i.State == InstallmentOverdue
}

// AssetState is the lifecycle of a physical unit.
type AssetState string

const (
	AssetAvailable AssetState = "available"
	AssetReserved  AssetState = "reserved"
	AssetRented    AssetState = "rented"
	AssetInService AssetState = "in_service"
	AssetOwned     AssetState = "owned"
)

// Asset is the physical motorcycle.
type Asset struct {
	ID        string
	Plate     string
	State     AssetState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssetStateChange is one row of the asset state history, written alongside
// every guarded asset transition.
type AssetStateChange struct {
	AssetID   string
	From      AssetState
	To        AssetState
	Reason    string
	CreatedAt time.Time
}
