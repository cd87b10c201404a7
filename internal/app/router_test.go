package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecoord/internal/domain"
	"ridecoord/internal/handler"
	"ridecoord/internal/logger"
	"ridecoord/internal/service"
	"ridecoord/internal/tests"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// tokenVerifier accepts "valid-<uid>" tokens.
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	uid, ok := strings.CutPrefix(idToken, "valid-")
	if !ok {
		return "", errors.New("token rejected")
	}
	return uid, nil
}

type apiFixture struct {
	router   *gin.Engine
	rides    *tests.MockRideStore
	riders   *tests.MockRiderRepository
	gateway  *tests.MockGateway
	notifier *tests.MockNotifier
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &apiFixture{
		rides:    tests.NewMockRideStore(),
		riders:   tests.NewMockRiderRepository(),
		gateway:  tests.NewMockGateway(),
		notifier: tests.NewMockNotifier(),
	}
	log := logger.Nop()

	payments := service.NewPaymentService(f.rides, f.riders, tests.NewMockLockStore(), f.gateway, service.PaymentSettings{
		Currency:           "usd",
		MinimumChargeCents: 50,
		BufferPercent:      15,
	}, log)

	f.router = NewRouter(RouterDeps{
		SMSHandler:     handler.NewSMSHandler(service.NewNotificationService(f.notifier, log)),
		PaymentHandler: handler.NewPaymentHandler(payments),
		RideHandler:    handler.NewRideHandler(service.NewRideService(f.rides, tests.NewMockRideCache(), service.RideSettings{}, log)),
		TokenVerifier:  tokenVerifier{},
		RedisClient:    client,
		Logger:         log,
		AllowedOrigins: []string{"*"},
	})
	return f
}

func (f *apiFixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func asRider(uid string) map[string]string {
	return map[string]string{"Authorization": "Bearer valid-" + uid}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (f *apiFixture) addRide(status domain.RideStatus) {
	f.rides.AddRide(&domain.Ride{
		ID:            "ride-1",
		Status:        status,
		RiderUID:      "rider-1",
		CustomerPhone: "+13235550100",
		FareEstimate:  20.00,
	})
}

func TestRouter_Health(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/sms", map[string]string{"to": "+13235550100", "message": "hi"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/v1/sms", map[string]string{"to": "+13235550100", "message": "hi"},
		map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Empty(t, f.notifier.Sent())
}

func TestRouter_SendSMS(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/sms", map[string]string{"to": "+13235550100", "message": "Your driver is here"}, asRider("rider-1"))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "SM001", body["messageId"])
	require.Len(t, f.notifier.Sent(), 1)
	assert.Equal(t, "Your driver is here", f.notifier.Sent()[0].Body)
}

func TestRouter_SendSMSValidation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/sms", map[string]string{"to": "+13235550100"}, asRider("rider-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "phone and message required", decode(t, w)["error"])

	w = f.do(http.MethodPost, "/v1/sms", map[string]string{"to": "555-0100", "message": "hi"}, asRider("rider-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_SendSMSTransportFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.notifier.SendError = errors.New("The 'To' number is not a valid phone number.")

	w := f.do(http.MethodPost, "/v1/sms", map[string]string{"to": "+13235550100", "message": "hi"}, asRider("rider-1"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "The 'To' number is not a valid phone number.", decode(t, w)["error"])
}

func TestRouter_IdempotentReplay(t *testing.T) {
	f := newAPIFixture(t)
	headers := asRider("rider-1")
	headers["Idempotency-Key"] = "key-1"
	body := map[string]string{"to": "+13235550100", "message": "hi"}

	first := f.do(http.MethodPost, "/v1/sms", body, headers)
	second := f.do(http.MethodPost, "/v1/sms", body, headers)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, f.notifier.Sent(), 1)

	// Keys are scoped to the caller.
	other := asRider("rider-2")
	other["Idempotency-Key"] = "key-1"
	third := f.do(http.MethodPost, "/v1/sms", body, other)
	assert.Empty(t, third.Header().Get("Idempotent-Replayed"))
	assert.Len(t, f.notifier.Sent(), 2)
}

func TestRouter_IdempotencyKeyRunsAgainAfterPreconditionFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.addRide(domain.RideStatusPending)
	headers := asRider("rider-1")
	headers["Idempotency-Key"] = "authorize-ride-1"

	w := f.do(http.MethodPost, "/v1/rides/ride-1/authorize", nil, headers)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = f.do(http.MethodPost, "/v1/customers/ensure", map[string]string{"email": "rider@example.com"}, asRider("rider-1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/v1/rides/ride-1/authorize", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
	assert.NotEmpty(t, decode(t, w)["paymentIntentId"])

	// The success is stored and replayed.
	again := f.do(http.MethodPost, "/v1/rides/ride-1/authorize", nil, headers)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, w.Body.String(), again.Body.String())
	assert.Equal(t, 1, f.gateway.IntentCount())
}

func TestRouter_IdempotencyKeyReplaysNotFound(t *testing.T) {
	f := newAPIFixture(t)
	headers := asRider("rider-1")
	headers["Idempotency-Key"] = "authorize-ride-1"

	w := f.do(http.MethodPost, "/v1/rides/ride-1/authorize", nil, headers)
	require.Equal(t, http.StatusNotFound, w.Code)

	f.addRide(domain.RideStatusPending)
	w = f.do(http.MethodPost, "/v1/rides/ride-1/authorize", nil, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
}

func TestRouter_CreateRide(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/rides", map[string]any{
		"riderUid":           "rider-2",
		"customerPhone":      "+13235550100",
		"pickupAddress":      "100 Main St",
		"destinationAddress": "200 Oak Ave",
		"fareEstimate":       20.00,
	}, asRider("rider-1"))

	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "rider-1", body["riderUid"])
	assert.NotEmpty(t, body["timeoutAt"])
	rideID, _ := body["rideId"].(string)
	require.NotEmpty(t, rideID)
	stored := f.rides.GetRide(rideID)
	require.NotNil(t, stored)
	assert.Equal(t, "rider-1", stored.RiderUID)
	assert.NotNil(t, stored.TimeoutAt)

	w = f.do(http.MethodGet, "/v1/rides/"+rideID, nil, asRider("rider-1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/v1/rides", map[string]any{"pickupAddress": "100 Main St"}, asRider("rider-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/rides", map[string]any{
		"pickupAddress":      "100 Main St",
		"destinationAddress": "200 Oak Ave",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RejectsOtherRiderInBody(t *testing.T) {
	f := newAPIFixture(t)
	f.addRide(domain.RideStatusPending)
	f.riders.AddRider(&domain.Rider{UID: "rider-1", StripeCustomerID: "cus_1"})

	w := f.do(http.MethodPost, "/v1/customers/ensure", map[string]string{
		"riderUid": "rider-2",
		"email":    "rider@example.com",
	}, asRider("rider-1"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/v1/rides/ride-1/authorize", map[string]string{"riderUid": "rider-2"}, asRider("rider-1"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, f.gateway.IntentCount())

	w = f.do(http.MethodPost, "/v1/rides/ride-1/authorize", map[string]string{"riderUid": "rider-1"}, asRider("rider-1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_GetRide(t *testing.T) {
	f := newAPIFixture(t)
	f.addRide(domain.RideStatusPending)

	w := f.do(http.MethodGet, "/v1/rides/ride-1", nil, asRider("rider-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decode(t, w)["status"])

	w = f.do(http.MethodGet, "/v1/rides/missing", nil, asRider("rider-1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_InternalErrorsAreNotLeaked(t *testing.T) {
	f := newAPIFixture(t)
	f.rides.GetError = errors.New("pq: connection refused")

	w := f.do(http.MethodGet, "/v1/rides/ride-1", nil, asRider("rider-1"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode(t, w)["error"])
}

func TestRouter_UpdateStatus(t *testing.T) {
	f := newAPIFixture(t)
	f.addRide(domain.RideStatusPending)

	w := f.do(http.MethodPost, "/v1/rides/ride-1/status", map[string]any{"status": "completed"}, asRider("driver-1"))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/v1/rides/ride-1/status", map[string]any{
		"status":        "accepted",
		"driverName":    "Sam",
		"driverVehicle": map[string]any{"make": "Toyota", "color": "Blue"},
	}, asRider("driver-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "accepted", decode(t, w)["status"])
	assert.Equal(t, "Sam", f.rides.GetRide("ride-1").DriverName)

	w = f.do(http.MethodPost, "/v1/rides/ride-1/status", map[string]any{}, asRider("driver-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_CancelRide(t *testing.T) {
	f := newAPIFixture(t)
	f.addRide(domain.RideStatusAccepted)

	w := f.do(http.MethodPost, "/v1/rides/ride-1/cancel", nil, asRider("rider-2"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/v1/rides/ride-1/cancel", map[string]string{"reason": "Plans changed"}, asRider("rider-1"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "Plans changed", body["cancelReason"])

	w = f.do(http.MethodPost, "/v1/rides/ride-1/cancel", nil, asRider("rider-1"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_AuthorizeRide(t *testing.T) {
	f := newAPIFixture(t)
	f.addRide(domain.RideStatusPending)

	w := f.do(http.MethodPost, "/v1/rides/ride-1/authorize", nil, asRider("rider-1"))
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = f.do(http.MethodPost, "/v1/customers/ensure", map[string]string{"email": "rider@example.com"}, asRider("rider-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["customerId"])

	w = f.do(http.MethodPost, "/v1/rides/ride-1/authorize", nil, asRider("rider-1"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2300), body["amountCents"])
	assert.Equal(t, "usd", body["currency"])
	assert.NotEmpty(t, body["clientSecret"])
}

func TestRouter_CaptureAndCancelPayment(t *testing.T) {
	f := newAPIFixture(t)
	f.addRide(domain.RideStatusPending)
	f.riders.AddRider(&domain.Rider{UID: "rider-1", StripeCustomerID: "cus_1"})

	w := f.do(http.MethodPost, "/v1/rides/ride-1/authorize", nil, asRider("rider-1"))
	require.Equal(t, http.StatusOK, w.Code)
	intentID := decode(t, w)["paymentIntentId"].(string)

	w = f.do(http.MethodPost, "/v1/payments/"+intentID+"/capture", map[string]float64{"finalAmount": 40}, asRider("rider-1"))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = f.do(http.MethodPost, "/v1/payments/"+intentID+"/capture", map[string]float64{"finalAmount": 18.50}, asRider("rider-1"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "succeeded", body["status"])
	assert.Equal(t, float64(1850), body["amountCapturedCents"])
}

func TestRouter_InitializePayment(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/payments/initialize", map[string]any{
		"amount":        25.00,
		"customerEmail": "rider@example.com",
		"rideId":        "ride-1",
	}, asRider("rider-1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2500), decode(t, w)["amountCents"])

	w = f.do(http.MethodPost, "/v1/payments/initialize", map[string]any{"amount": 25.00, "rideId": "ride-1"}, asRider("rider-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodOptions, "/v1/sms", nil, map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "POST",
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
