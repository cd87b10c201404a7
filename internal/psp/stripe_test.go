package psp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"ridecoord/internal/domain"
)

type ctxKey struct{}

type fakeStripe struct {
	ctxs           []context.Context
	customerParams *stripe.CustomerCreateParams
	listParams     *stripe.PaymentMethodListParams
	listLimit      int
	intentParams   *stripe.PaymentIntentCreateParams
	retrieveID     string
	captureID      string
	captureParams  *stripe.PaymentIntentCaptureParams
	cancelParams   *stripe.PaymentIntentCancelParams

	savedCards int
	err        error
}

func (f *fakeStripe) CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	f.ctxs = append(f.ctxs, ctx)
	f.customerParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Customer{ID: "cus_123"}, nil
}

func (f *fakeStripe) CountPaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams, limit int) (int, error) {
	f.ctxs = append(f.ctxs, ctx)
	f.listParams = params
	f.listLimit = limit
	return min(f.savedCards, limit), f.err
}

func (f *fakeStripe) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	f.ctxs = append(f.ctxs, ctx)
	f.intentParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret_abc",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		Amount:       *params.Amount,
		Currency:     stripe.Currency(*params.Currency),
	}, nil
}

func (f *fakeStripe) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	f.ctxs = append(f.ctxs, ctx)
	f.retrieveID = id
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_abc",
		Status:       stripe.PaymentIntentStatusRequiresCapture,
		Amount:       2300,
		Currency:     "usd",
	}, nil
}

func (f *fakeStripe) CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	f.ctxs = append(f.ctxs, ctx)
	f.captureID = id
	f.captureParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{
		ID:             id,
		Status:         stripe.PaymentIntentStatusSucceeded,
		Amount:         2300,
		AmountReceived: *params.AmountToCapture,
		Currency:       "usd",
		Metadata:       map[string]string{"rideId": "ride-1"},
	}, nil
}

func (f *fakeStripe) CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.ctxs = append(f.ctxs, ctx)
	f.cancelParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled, Amount: 2300, Currency: "usd"}, nil
}

func TestNewStripeGateway_RequiresKey(t *testing.T) {
	_, err := NewStripeGateway("  ")
	assert.ErrorIs(t, err, errAPIKeyRequired)
}

func TestNewStripeGateway_LeavesGlobalKeyAlone(t *testing.T) {
	before := stripe.Key

	gateway, err := NewStripeGateway("sk_test_123")
	require.NoError(t, err)

	assert.Equal(t, before, stripe.Key)
	api, ok := gateway.api.(clientAPI)
	require.True(t, ok)
	assert.NotNil(t, api.sc.V1PaymentIntents)
}

func TestStripeGateway_PassesCallerContext(t *testing.T) {
	api := &fakeStripe{}
	gateway := NewStripeGatewayWithAPI(api)
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")

	_, _ = gateway.CreateCustomer(ctx, domain.CustomerParams{RiderUID: "rider-1"})
	_, _ = gateway.CountPaymentMethods(ctx, "cus_123", 1)
	_, _ = gateway.CreateAuthorization(ctx, domain.AuthorizationParams{AmountCents: 2300, Currency: "usd"})
	_, _ = gateway.GetAuthorization(ctx, "pi_123")
	_, _ = gateway.Capture(ctx, "pi_123", 1850)
	_, _ = gateway.Cancel(ctx, "pi_123", "")

	require.Len(t, api.ctxs, 6)
	for _, got := range api.ctxs {
		assert.Equal(t, "req-1", got.Value(ctxKey{}))
	}
}

func TestStripeGateway_GetAuthorization(t *testing.T) {
	api := &fakeStripe{}
	gateway := NewStripeGatewayWithAPI(api)

	auth, err := gateway.GetAuthorization(context.Background(), "pi_123")
	require.NoError(t, err)

	assert.Equal(t, "pi_123", api.retrieveID)
	assert.Equal(t, "pi_123_secret_abc", auth.ClientSecret)
	assert.Equal(t, domain.PaymentStatusRequiresCapture, auth.Status)
	assert.Equal(t, int64(2300), auth.AmountCents)
	assert.Equal(t, "usd", auth.Currency)

	api.err = &stripe.Error{Code: "resource_missing", Msg: "No such payment_intent: 'pi_404'"}
	_, err = gateway.GetAuthorization(context.Background(), "pi_404")
	assert.EqualError(t, err, "No such payment_intent: 'pi_404'")
}

func TestStripeGateway_CreateCustomer(t *testing.T) {
	api := &fakeStripe{}
	gateway := NewStripeGatewayWithAPI(api)

	id, err := gateway.CreateCustomer(context.Background(), domain.CustomerParams{
		RiderUID:       "rider-1",
		Email:          "rider@example.com",
		IdempotencyKey: "customer:rider-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "cus_123", id)
	assert.Equal(t, "rider@example.com", *api.customerParams.Email)
	assert.Nil(t, api.customerParams.Name)
	assert.Equal(t, "rider-1", api.customerParams.Metadata["riderUid"])
	assert.Equal(t, "customer:rider-1", *api.customerParams.IdempotencyKey)
}

func TestStripeGateway_CountPaymentMethods(t *testing.T) {
	api := &fakeStripe{savedCards: 2}
	gateway := NewStripeGatewayWithAPI(api)

	n, err := gateway.CountPaymentMethods(context.Background(), "cus_123", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, 1, api.listLimit)
	assert.Equal(t, "cus_123", *api.listParams.Customer)
	assert.Equal(t, "card", *api.listParams.Type)
}

func TestStripeGateway_CreateAuthorizationIsManualCapture(t *testing.T) {
	api := &fakeStripe{}
	gateway := NewStripeGatewayWithAPI(api)

	auth, err := gateway.CreateAuthorization(context.Background(), domain.AuthorizationParams{
		AmountCents:    2300,
		Currency:       "USD",
		CustomerID:     "cus_123",
		IdempotencyKey: "authorize:ride-1",
		Metadata:       map[string]string{"rideId": "ride-1", "riderUid": "rider-1"},
	})
	require.NoError(t, err)

	p := api.intentParams
	assert.Equal(t, int64(2300), *p.Amount)
	assert.Equal(t, "usd", *p.Currency)
	assert.Equal(t, string(stripe.PaymentIntentCaptureMethodManual), *p.CaptureMethod)
	assert.True(t, *p.AutomaticPaymentMethods.Enabled)
	assert.Equal(t, "cus_123", *p.Customer)
	assert.Nil(t, p.ReceiptEmail)
	assert.Equal(t, "ride-1", p.Metadata["rideId"])
	assert.Equal(t, "authorize:ride-1", *p.IdempotencyKey)

	assert.Equal(t, "pi_123", auth.ID)
	assert.Equal(t, "pi_123_secret_abc", auth.ClientSecret)
	assert.Equal(t, int64(2300), auth.AmountCents)
}

func TestStripeGateway_CaptureMapsIntent(t *testing.T) {
	api := &fakeStripe{}
	gateway := NewStripeGatewayWithAPI(api)

	intent, err := gateway.Capture(context.Background(), "pi_123", 1850)
	require.NoError(t, err)

	assert.Equal(t, "pi_123", api.captureID)
	assert.Equal(t, int64(1850), *api.captureParams.AmountToCapture)
	assert.Equal(t, domain.PaymentStatusSucceeded, intent.Status)
	assert.Equal(t, int64(1850), intent.AmountCapturedCents)
	assert.Equal(t, "ride-1", intent.RideID)
}

func TestStripeGateway_CancelSendsReason(t *testing.T) {
	api := &fakeStripe{}
	gateway := NewStripeGatewayWithAPI(api)

	intent, err := gateway.Cancel(context.Background(), "pi_123", domain.CancellationReasonRequestedByCustomer)
	require.NoError(t, err)

	assert.Equal(t, "requested_by_customer", *api.cancelParams.CancellationReason)
	assert.Equal(t, domain.PaymentStatusCanceled, intent.Status)
	assert.Empty(t, intent.RideID)
}

func TestStripeGateway_ErrorKeepsProcessorMessage(t *testing.T) {
	api := &fakeStripe{err: &stripe.Error{Code: "amount_too_large", Msg: "Amount to capture exceeds the authorized amount."}}
	gateway := NewStripeGatewayWithAPI(api)

	_, err := gateway.Capture(context.Background(), "pi_123", 99999)
	require.Error(t, err)

	assert.Equal(t, "Amount to capture exceeds the authorized amount.", err.Error())
	var pspErr *Error
	require.True(t, errors.As(err, &pspErr))
	assert.Equal(t, "amount_too_large", pspErr.Code)
	assert.Equal(t, "stripe capture payment intent (amount_too_large): Amount to capture exceeds the authorized amount.", pspErr.String())

	var stripeErr *stripe.Error
	assert.True(t, errors.As(err, &stripeErr))
}

func TestStripeGateway_PlainErrorMessage(t *testing.T) {
	api := &fakeStripe{err: errors.New("connection reset")}
	gateway := NewStripeGatewayWithAPI(api)

	_, err := gateway.CreateCustomer(context.Background(), domain.CustomerParams{RiderUID: "rider-1"})

	assert.EqualError(t, err, "connection reset")
}
