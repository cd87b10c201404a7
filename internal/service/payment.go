package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ridecoord/internal/domain"
	"ridecoord/internal/logger"
	"ridecoord/internal/redis"
	"ridecoord/internal/repository"
)

// PaymentGateway is the interface for the payment processor.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, params domain.CustomerParams) (string, error)
	CountPaymentMethods(ctx context.Context, customerID string, limit int64) (int, error)
	CreateAuthorization(ctx context.Context, params domain.AuthorizationParams) (*domain.Authorization, error)
	GetAuthorization(ctx context.Context, paymentIntentID string) (*domain.Authorization, error)
	Capture(ctx context.Context, paymentIntentID string, amountCents int64) (*domain.PaymentIntent, error)
	Cancel(ctx context.Context, paymentIntentID, reason string) (*domain.PaymentIntent, error)
}

// PaymentSettings holds the processor-independent charge rules.
type PaymentSettings struct {
	Currency           string
	MinimumChargeCents int64
	BufferPercent      int64
}

// customerLockTTL bounds how long a crashed EnsureCustomer can block retries.
const customerLockTTL = 30 * time.Second

// PaymentService handles payment operations.
type PaymentService struct {
	rides    repository.RideStore
	riders   repository.RiderRepository
	locks    redis.LockStoreInterface
	gateway  PaymentGateway
	settings PaymentSettings
	log      *logger.Logger
}

// NewPaymentService creates a new PaymentService. locks may be nil.
func NewPaymentService(
	rides repository.RideStore,
	riders repository.RiderRepository,
	locks redis.LockStoreInterface,
	gateway PaymentGateway,
	settings PaymentSettings,
	log *logger.Logger,
) *PaymentService {
	if settings.Currency == "" {
		settings.Currency = "usd"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentService{
		rides:    rides,
		riders:   riders,
		locks:    locks,
		gateway:  gateway,
		settings: settings,
		log:      log,
	}
}

// EnsureCustomerRequest contains the parameters for EnsureCustomer.
type EnsureCustomerRequest struct {
	RiderUID string
	Email    string
	Name     string
}

// EnsureCustomerResponse contains the rider's processor customer.
type EnsureCustomerResponse struct {
	CustomerID   string
	HasSavedCard bool
}

// EnsureCustomer returns the rider's processor customer, creating it the
// first time. A rider never gets a second customer.
func (s *PaymentService) EnsureCustomer(ctx context.Context, req EnsureCustomerRequest) (*EnsureCustomerResponse, error) {
	uid := strings.TrimSpace(req.RiderUID)
	if uid == "" {
		return nil, ErrInvalidRiderID
	}
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	ctx = s.log.WithUserID(ctx, uid)

	rider, err := s.loadOrCreateRider(ctx, uid, req.Email, req.Name)
	if err != nil {
		return nil, err
	}

	if !rider.HasCustomer() {
		rider, err = s.createCustomer(ctx, rider)
		if err != nil {
			return nil, err
		}
	}

	count, err := s.gateway.CountPaymentMethods(ctx, rider.StripeCustomerID, 1)
	if err != nil {
		return nil, external("payment.list_methods", err)
	}

	return &EnsureCustomerResponse{
		CustomerID:   rider.StripeCustomerID,
		HasSavedCard: count > 0,
	}, nil
}

func (s *PaymentService) loadOrCreateRider(ctx context.Context, uid, email, name string) (*domain.Rider, error) {
	rider, err := s.riders.GetByUID(ctx, uid)
	if err == nil {
		return rider, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	rider = &domain.Rider{
		UID:   uid,
		Email: strings.TrimSpace(email),
		Name:  strings.TrimSpace(name),
	}
	if err := s.riders.Upsert(ctx, rider); err != nil {
		return nil, err
	}
	return s.riders.GetByUID(ctx, uid)
}

// createCustomer creates the processor customer under the rider lock and
// persists it with a write that only succeeds while none is stored. If a
// concurrent request won, the stored id is returned instead.
func (s *PaymentService) createCustomer(ctx context.Context, rider *domain.Rider) (*domain.Rider, error) {
	if s.locks != nil {
		token, acquired, err := s.locks.AcquireRiderLock(ctx, rider.UID, customerLockTTL)
		switch {
		case err != nil:
			// The idempotency key and conditional write still hold.
			s.log.Error(ctx, "failed to acquire rider lock", err)
		case !acquired:
			return nil, ErrCustomerBusy
		default:
			defer func() {
				if err := s.locks.ReleaseRiderLock(context.WithoutCancel(ctx), rider.UID, token); err != nil {
					s.log.Error(ctx, "failed to release rider lock", err)
				}
			}()

			current, err := s.riders.GetByUID(ctx, rider.UID)
			if err != nil {
				return nil, err
			}
			if current.HasCustomer() {
				return current, nil
			}
			rider = current
		}
	}

	customerID, err := s.gateway.CreateCustomer(ctx, domain.CustomerParams{
		RiderUID:       rider.UID,
		Email:          rider.Email,
		Name:           rider.Name,
		IdempotencyKey: customerIdempotencyKey(rider.UID),
	})
	if err != nil {
		return nil, external("payment.create_customer", err)
	}

	stored, err := s.riders.SetStripeCustomerID(ctx, rider.UID, customerID)
	if err != nil {
		return nil, err
	}
	if !stored {
		s.log.Warn(ctx, "rider already had a customer, keeping the stored one")
		return s.riders.GetByUID(ctx, rider.UID)
	}

	s.log.Info(s.log.WithField(ctx, "customer_id", customerID), "payment customer created")
	rider.StripeCustomerID = customerID
	return rider, nil
}

// AuthorizeRequest contains the parameters for Authorize.
type AuthorizeRequest struct {
	RideID   string
	RiderUID string
}

// AuthorizeResponse describes a manual-capture authorization.
type AuthorizeResponse struct {
	PaymentIntentID string
	ClientSecret    string
	AmountCents     int64
	Currency        string
}

// Authorize places a hold for the ride's fare estimate plus the buffer.
// A ride that already records an open hold, from an earlier call or from
// InitializePayment, gets that hold back instead of a second one.
func (s *PaymentService) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	rideID := strings.TrimSpace(req.RideID)
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	uid := strings.TrimSpace(req.RiderUID)
	if uid == "" {
		return nil, ErrInvalidRiderID
	}
	ctx = s.log.WithRideID(ctx, rideID)

	ride, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderUID != "" && ride.RiderUID != uid {
		return nil, ErrRideNotOwned
	}

	rider, err := s.riders.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCustomerMissing
		}
		return nil, err
	}
	if !rider.HasCustomer() {
		return nil, ErrCustomerMissing
	}

	if existing, err := s.existingAuthorization(ctx, ride); existing != nil || err != nil {
		return existing, err
	}

	if ride.FareEstimate <= 0 {
		return nil, ErrFareEstimateMissing
	}
	amount := authorizationCents(ride.FareEstimate, s.settings.BufferPercent, s.settings.MinimumChargeCents)
	currency := s.settings.Currency

	auth, err := s.gateway.CreateAuthorization(ctx, domain.AuthorizationParams{
		AmountCents:    amount,
		Currency:       currency,
		CustomerID:     rider.StripeCustomerID,
		IdempotencyKey: authorizeIdempotencyKey(rideID),
		Metadata: map[string]string{
			"rideId":   rideID,
			"riderUid": uid,
		},
	})
	if err != nil {
		return nil, external("payment.authorize", err)
	}

	s.mirror(ctx, rideID, authorizationPatch(auth.ID, amount, currency))

	s.log.Info(s.log.WithField(ctx, "payment_intent_id", auth.ID), "payment authorized")
	return &AuthorizeResponse{
		PaymentIntentID: auth.ID,
		ClientSecret:    auth.ClientSecret,
		AmountCents:     amount,
		Currency:        currency,
	}, nil
}

// InitializePaymentRequest contains the parameters for InitializePayment.
type InitializePaymentRequest struct {
	Amount        float64
	CustomerEmail string
	RideID        string
}

// InitializePayment creates a manual-capture authorization for an explicit
// amount with no buffer. Older clients use it instead of Authorize.
func (s *PaymentService) InitializePayment(ctx context.Context, req InitializePaymentRequest) (*AuthorizeResponse, error) {
	rideID := strings.TrimSpace(req.RideID)
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidPaymentAmount
	}
	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	ctx = s.log.WithRideID(ctx, rideID)

	ride, err := s.rides.Get(ctx, rideID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// The ride may be booked after the payment sheet opens.
		ride = nil
	case err != nil:
		return nil, err
	}
	if ride != nil {
		if existing, err := s.existingAuthorization(ctx, ride); existing != nil || err != nil {
			return existing, err
		}
	}

	amount := dollarsToCents(req.Amount)
	if amount < s.settings.MinimumChargeCents {
		amount = s.settings.MinimumChargeCents
	}

	auth, err := s.gateway.CreateAuthorization(ctx, domain.AuthorizationParams{
		AmountCents:    amount,
		Currency:       s.settings.Currency,
		ReceiptEmail:   email,
		IdempotencyKey: initializeIdempotencyKey(rideID),
		Metadata: map[string]string{
			"rideId":        rideID,
			"customerEmail": email,
		},
	})
	if err != nil {
		return nil, external("payment.initialize", err)
	}

	if ride != nil {
		s.mirror(ctx, rideID, authorizationPatch(auth.ID, amount, s.settings.Currency))
	}

	return &AuthorizeResponse{
		PaymentIntentID: auth.ID,
		ClientSecret:    auth.ClientSecret,
		AmountCents:     amount,
		Currency:        s.settings.Currency,
	}, nil
}

// Capture charges the final fare against an authorization. The processor
// rejects amounts above the authorized ceiling.
func (s *PaymentService) Capture(ctx context.Context, paymentIntentID string, finalAmount float64) (*domain.PaymentIntent, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, ErrInvalidPaymentID
	}
	if finalAmount <= 0 {
		return nil, ErrInvalidPaymentAmount
	}
	ctx = s.log.WithField(ctx, "payment_intent_id", paymentIntentID)

	intent, err := s.gateway.Capture(ctx, paymentIntentID, dollarsToCents(finalAmount))
	if err != nil {
		return nil, external("payment.capture", err)
	}

	if intent.RideID != "" {
		s.mirror(ctx, intent.RideID, domain.RidePatch{
			"finalFare": finalAmount,
			"payment": map[string]any{
				"status":              intent.Status,
				"amountCapturedCents": intent.AmountCapturedCents,
			},
		})
	}

	s.log.Info(ctx, "payment captured")
	return intent, nil
}

// Cancel voids an authorization.
func (s *PaymentService) Cancel(ctx context.Context, paymentIntentID string) (*domain.PaymentIntent, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, ErrInvalidPaymentID
	}
	ctx = s.log.WithField(ctx, "payment_intent_id", paymentIntentID)

	intent, err := s.gateway.Cancel(ctx, paymentIntentID, domain.CancellationReasonRequestedByCustomer)
	if err != nil {
		return nil, external("payment.cancel", err)
	}

	if intent.RideID != "" {
		s.mirror(ctx, intent.RideID, domain.RidePatch{
			"payment": map[string]any{"status": intent.Status},
		})
	}

	s.log.Info(ctx, "payment cancelled")
	return intent, nil
}

// existingAuthorization returns the hold already recorded on the ride, so
// a ride never carries two open authorizations. It returns nil when the
// ride has none, and ErrPaymentClosed when the recorded one was captured
// or voided.
func (s *PaymentService) existingAuthorization(ctx context.Context, ride *domain.Ride) (*AuthorizeResponse, error) {
	if ride.Payment == nil || ride.Payment.PaymentIntentID == "" {
		return nil, nil
	}
	switch ride.Payment.Status {
	case domain.PaymentStatusSucceeded, domain.PaymentStatusCanceled:
		return nil, ErrPaymentClosed
	}

	auth, err := s.gateway.GetAuthorization(ctx, ride.Payment.PaymentIntentID)
	if err != nil {
		return nil, external("payment.retrieve", err)
	}
	switch auth.Status {
	case domain.PaymentStatusSucceeded, domain.PaymentStatusCanceled:
		return nil, ErrPaymentClosed
	}

	currency := ride.Payment.Currency
	if currency == "" {
		currency = auth.Currency
	}
	amount := ride.AuthorizedCents()
	if amount == 0 {
		amount = auth.AmountCents
	}
	s.log.Info(s.log.WithField(ctx, "payment_intent_id", auth.ID), "reusing existing authorization")
	return &AuthorizeResponse{
		PaymentIntentID: auth.ID,
		ClientSecret:    auth.ClientSecret,
		AmountCents:     amount,
		Currency:        currency,
	}, nil
}

func authorizationPatch(paymentIntentID string, amountCents int64, currency string) domain.RidePatch {
	return domain.RidePatch{
		"payment": map[string]any{
			"method":                domain.PaymentMethodCard,
			"paymentIntentId":       paymentIntentID,
			"status":                domain.PaymentStatusRequiresConfirmation,
			"amountAuthorizedCents": amountCents,
			"currency":              currency,
		},
	}
}

// mirror copies processor state onto the ride. The money has already moved
// when it runs, so failures are logged and not returned.
func (s *PaymentService) mirror(ctx context.Context, rideID string, patch domain.RidePatch) {
	if _, err := s.rides.Merge(ctx, rideID, patch); err != nil {
		s.log.Error(s.log.WithRideID(ctx, rideID), "failed to mirror payment onto ride", err)
	}
}
