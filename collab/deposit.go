package collab

import (
	"context"
	"errors"

	"github.com/malwarebo/reserva/utils"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/charge"
	"github.com/stripe/stripe-go/v76/refund"
)

// DepositClient collects the refundable booking deposit. This is the
// critical collaborator in the booking flow: a failed deposit fails the
// booking.
type DepositClient struct {
	apiKey string
}

func CreateDepositClient(apiKey string) *DepositClient {
	stripe.Key = apiKey
	return &DepositClient{apiKey: apiKey}
}

func (d *DepositClient) Charge(ctx context.Context, customerID string, amount int64, currency, description string) (string, error) {
	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
		Customer:    stripe.String(customerID),
	}
	params.Context = ctx

	ch, err := charge.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}

	return ch.ID, nil
}

func (d *DepositClient) Refund(ctx context.Context, chargeID, reason string) error {
	params := &stripe.RefundParams{
		Charge: stripe.String(chargeID),
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

// classifyStripeError translates SDK errors into the HTTP-status shape the
// retry classifier understands.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 {
		return &utils.StatusError{
			Code:    stripeErr.HTTPStatusCode,
			Message: stripeErr.Msg,
		}
	}
	return err
}
