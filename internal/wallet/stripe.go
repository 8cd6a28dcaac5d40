package wallet

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/customer"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/example/dispatch-engine/internal/models"
)

// StripeGateway wraps stripe-go for the two payment edges the engine
// touches: balance reads during eligibility and the PaymentIntent
// hold/release flow around assignment and auto-cancellation.
type StripeGateway struct{}

// NewStripeGateway initializes the stripe client with the given API key.
func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

// Balance reads the customer balance attached to the driver's account.
func (s *StripeGateway) Balance(_ context.Context, driverID string) (models.WalletBalance, error) {
	c, err := customer.Get(driverID, nil)
	if err != nil {
		return models.WalletBalance{}, err
	}
	return models.WalletBalance{DriverID: driverID, Amount: c.Balance, Currency: string(c.Currency)}, nil
}

// Hold creates a PaymentIntent with capture_method=manual to hold the
// fare estimate. Returns the PaymentIntent ID on success.
func (s *StripeGateway) Hold(_ context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeGateway) Capture(_ context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// Release cancels the hold, refunding the requester. The sweep calls this
// when it reclaims a stale order.
func (s *StripeGateway) Release(_ context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
