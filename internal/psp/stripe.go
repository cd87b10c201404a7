package psp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"ridecoord/internal/domain"
)

var errAPIKeyRequired = errors.New("stripe secret key is required")

// StripeGateway is the Stripe-backed payment gateway. Authorizations are
// manual-capture PaymentIntents.
type StripeGateway struct {
	api StripeAPI
}

// NewStripeGateway returns a gateway with its own Stripe client.
func NewStripeGateway(secretKey string) (*StripeGateway, error) {
	key := strings.TrimSpace(secretKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	return &StripeGateway{api: clientAPI{sc: stripe.NewClient(key)}}, nil
}

// NewStripeGatewayWithAPI returns a gateway over the given API, for tests.
func NewStripeGatewayWithAPI(api StripeAPI) *StripeGateway {
	return &StripeGateway{api: api}
}

// CreateCustomer creates a Stripe customer tagged with the rider UID.
func (g *StripeGateway) CreateCustomer(ctx context.Context, p domain.CustomerParams) (string, error) {
	params := &stripe.CustomerCreateParams{}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	params.AddMetadata("riderUid", p.RiderUID)
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	c, err := g.api.CreateCustomer(ctx, params)
	if err != nil {
		return "", wrap("create customer", err)
	}
	return c.ID, nil
}

// CountPaymentMethods counts the customer's saved cards, stopping at limit.
func (g *StripeGateway) CountPaymentMethods(ctx context.Context, customerID string, limit int64) (int, error) {
	if limit <= 0 {
		limit = 1
	}
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Limit = stripe.Int64(limit)

	n, err := g.api.CountPaymentMethods(ctx, params, int(limit))
	if err != nil {
		return 0, wrap("list payment methods", err)
	}
	return n, nil
}

// CreateAuthorization creates a manual-capture PaymentIntent.
func (g *StripeGateway) CreateAuthorization(ctx context.Context, p domain.AuthorizationParams) (*domain.Authorization, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(p.AmountCents),
		Currency:      stripe.String(strings.ToLower(p.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := g.api.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, wrap("create payment intent", err)
	}
	return toAuthorization(pi), nil
}

// GetAuthorization reads back a PaymentIntent, including its client secret.
func (g *StripeGateway) GetAuthorization(ctx context.Context, paymentIntentID string) (*domain.Authorization, error) {
	pi, err := g.api.RetrievePaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, wrap("retrieve payment intent", err)
	}
	return toAuthorization(pi), nil
}

// Capture captures amountCents of an authorized PaymentIntent. Stripe
// rejects amounts above the authorized amount.
func (g *StripeGateway) Capture(ctx context.Context, paymentIntentID string, amountCents int64) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amountCents),
	}

	pi, err := g.api.CapturePaymentIntent(ctx, paymentIntentID, params)
	if err != nil {
		return nil, wrap("capture payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

// Cancel voids an uncaptured PaymentIntent.
func (g *StripeGateway) Cancel(ctx context.Context, paymentIntentID, reason string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{}
	if reason != "" {
		params.CancellationReason = stripe.String(reason)
	}

	pi, err := g.api.CancelPaymentIntent(ctx, paymentIntentID, params)
	if err != nil {
		return nil, wrap("cancel payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

func toAuthorization(pi *stripe.PaymentIntent) *domain.Authorization {
	return &domain.Authorization{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       domain.PaymentStatus(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}
}

func toPaymentIntent(pi *stripe.PaymentIntent) *domain.PaymentIntent {
	out := &domain.PaymentIntent{
		ID:                  pi.ID,
		Status:              domain.PaymentStatus(pi.Status),
		AmountCents:         pi.Amount,
		AmountCapturedCents: pi.AmountReceived,
		Currency:            string(pi.Currency),
	}
	if pi.Metadata != nil {
		out.RideID = pi.Metadata["rideId"]
	}
	return out
}

// wrap keeps Stripe's user-facing message as the error text.
func wrap(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return &Error{Op: op, Code: string(stripeErr.Code), Message: stripeErr.Msg, Err: err}
	}
	return &Error{Op: op, Message: err.Error(), Err: err}
}

// Error is a failed Stripe call. Error() is the processor's message.
type Error struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// String includes the operation and code, for logs.
func (e *Error) String() string {
	if e.Code == "" {
		return fmt.Sprintf("stripe %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("stripe %s (%s): %s", e.Op, e.Code, e.Message)
}
