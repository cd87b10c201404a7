package psp

import (
	"context"

	"github.com/stripe/stripe-go/v84"
)

// StripeAPI is the subset of Stripe calls the gateway makes. Tests swap in
// a fake; production goes through a *stripe.Client.
type StripeAPI interface {
	CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error)
	CountPaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams, limit int) (int, error)
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type clientAPI struct {
	sc *stripe.Client
}

func (a clientAPI) CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	return a.sc.V1Customers.Create(ctx, params)
}

func (a clientAPI) CountPaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams, limit int) (int, error) {
	n := 0
	for _, err := range a.sc.V1PaymentMethods.List(ctx, params) {
		if err != nil {
			return n, err
		}
		n++
		if n >= limit {
			break
		}
	}
	return n, nil
}

func (a clientAPI) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	return a.sc.V1PaymentIntents.Create(ctx, params)
}

func (a clientAPI) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	return a.sc.V1PaymentIntents.Retrieve(ctx, id, nil)
}

func (a clientAPI) CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	return a.sc.V1PaymentIntents.Capture(ctx, id, params)
}

func (a clientAPI) CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return a.sc.V1PaymentIntents.Cancel(ctx, id, params)
}
