package mercadopago

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"

	"github.com/rodavanza/lease-service/internal/domain"
)

// Client adapts the Mercado Pago SDK to the gateway port. One lookup per
// notification, bounded by Timeout; retry pressure is left to the gateway's
// own webhook redelivery.
type Client struct {
	payments payment.Client
	timeout  time.Duration
	log      *slog.Logger
}

func New(accessToken string, timeout time.Duration, log *slog.Logger) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("missing mercado pago access token")
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercado pago sdk config: %w", err)
	}
	return &Client{payments: payment.NewClient(cfg), timeout: timeout, log: log}, nil
}

// NewWithPaymentClient wires an existing payment client; used by tests.
func NewWithPaymentClient(payments payment.Client, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{payments: payments, timeout: timeout, log: log}
}

func (c *Client) FetchPayment(ctx context.Context, externalID string) (domain.PaymentSnapshot, error) {
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		// Gateway payment ids are numeric; anything else can never resolve.
		c.log.DebugContext(ctx, "non-numeric payment id", "external_id", externalID)
		return domain.PaymentSnapshot{}, domain.ErrPaymentNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.payments.Get(ctx, int(id))
	if err != nil {
		if isNotFound(err) {
			return domain.PaymentSnapshot{}, domain.ErrPaymentNotFound
		}
		return domain.PaymentSnapshot{}, fmt.Errorf("mercado pago get payment %s: %w", externalID, err)
	}

	return snapshotFromResponse(externalID, resp), nil
}

func snapshotFromResponse(externalID string, resp *payment.Response) domain.PaymentSnapshot {
	var fee float64
	for _, f := range resp.FeeDetails {
		fee += f.Amount
	}

	snap := domain.PaymentSnapshot{
		ExternalID:        externalID,
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		PaymentMethodID:   resp.PaymentMethodID,
		PaymentTypeID:     resp.PaymentTypeID,
		TransactionAmount: resp.TransactionAmount,
		NetReceivedAmount: resp.TransactionDetails.NetReceivedAmount,
		FeeAmount:         fee,
		ExternalReference: resp.ExternalReference,
	}
	if !resp.DateApproved.IsZero() {
		approved := resp.DateApproved
		snap.ApprovedAt = &approved
	}
	return snap
}

// isNotFound classifies SDK errors by their serialized body; the SDK does not
// export an error type for API failures.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, `"status":404`) ||
		strings.Contains(msg, "status 404") ||
		strings.Contains(msg, "payment not found") ||
		strings.Contains(msg, "resource not found")
}
