package domain

import (
	"fmt"
	"strings"
)

// Reference is the decoded form of the external reference token attached to
// every outbound payment. It is a closed set of variants; the unexported
// method keeps implementations in this package so switches over the concrete
// types stay exhaustive.
type Reference interface {
	refToken() string
}

// RentalRequestRef marks the first-month payment of a rental request.
type RentalRequestRef struct {
	RequestID string
}

// InstallmentRef marks the payment of one named installment of a contract.
type InstallmentRef struct {
	InstallmentID string
	ContractID    string
}

// ContractRef marks a recurring payment for a contract that does not name a
// specific installment; the oldest open installment absorbs it.
type ContractRef struct {
	ContractID string
}

// PartsOrderRef marks the payment of a spare-parts order.
type PartsOrderRef struct {
	OrderID string
}

// Token prefixes are the wire format shared with payment creation; they are
// Spanish because the gateway account predates this service.
const (
	prefixRequest     = "solicitud"
	prefixInstallment = "cuota"
	prefixContract    = "contrato"
	prefixOrder       = "pedido"
)

func (r RentalRequestRef) refToken() string {
	return fmt.Sprintf("%s:%s", prefixRequest, r.RequestID)
}

func (r InstallmentRef) refToken() string {
	return fmt.Sprintf("%s:%s:%s:%s", prefixInstallment, r.InstallmentID, prefixContract, r.ContractID)
}

func (r ContractRef) refToken() string {
	return fmt.Sprintf("%s:%s", prefixContract, r.ContractID)
}

func (r PartsOrderRef) refToken() string {
	return fmt.Sprintf("%s:%s", prefixOrder, r.OrderID)
}

// EncodeReference renders a reference to its wire token.
func EncodeReference(r Reference) string {
	return r.refToken()
}

// DecodeReference parses a wire token. It is pure and total: malformed or
// unknown tokens return (nil, false), which downstream treats as a ledger-only
// payment with no entity transition, never as an error.
func DecodeReference(token string) (Reference, bool) {
	parts := strings.Split(token, ":")
	switch {
	case len(parts) == 2 && parts[0] == prefixRequest && parts[1] != "":
		return RentalRequestRef{RequestID: parts[1]}, true
	case len(parts) == 4 && parts[0] == prefixInstallment && parts[2] == prefixContract && parts[1] != "" && parts[3] != "":
		return InstallmentRef{InstallmentID: parts[1], ContractID: parts[3]}, true
	case len(parts) == 2 && parts[0] == prefixContract && parts[1] != "":
		return ContractRef{ContractID: parts[1]}, true
	case len(parts) == 2 && parts[0] == prefixOrder && parts[1] != "":
		return PartsOrderRef{OrderID: parts[1]}, true
	default:
		return nil, false
	}
}

// FlowKindFor infers the flow kind stored on a brand-new payment record.
// Unrecognized references fall back to the generic single-installment flow so
// the payment is still ledgered.
func FlowKindFor(r Reference) FlowKind {
	switch r.(type) {
	case RentalRequestRef:
		return FlowFirstMonth
	case InstallmentRef:
		return FlowSingleInstallment
	case ContractRef:
		return FlowRecurringInstallment
	case PartsOrderRef:
		return FlowPartsOrder
	default:
		return FlowSingleInstallment
	}
}
