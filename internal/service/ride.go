package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridecoord/internal/domain"
	"ridecoord/internal/logger"
	"ridecoord/internal/redis"
	"ridecoord/internal/repository"
)

// DefaultCancelReason is recorded when a rider cancels without a reason.
const DefaultCancelReason = "Cancelled by customer"

// DefaultSearchTimeout is how long an on-demand ride waits for a driver
// before it is expired.
const DefaultSearchTimeout = 5 * time.Minute

// RideSettings holds booking rules.
type RideSettings struct {
	SearchTimeout time.Duration
}

// RideService handles ride bookings, reads and status writes.
type RideService struct {
	rides    repository.RideStore
	cache    redis.RideCacheInterface
	settings RideSettings
	log      *logger.Logger
	now      func() time.Time
}

// NewRideService creates a new RideService. cache may be nil.
func NewRideService(rides repository.RideStore, cache redis.RideCacheInterface, settings RideSettings, log *logger.Logger) *RideService {
	if settings.SearchTimeout <= 0 {
		settings.SearchTimeout = DefaultSearchTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RideService{
		rides:    NewCacheInvalidatingRideStore(rides, cache, log),
		cache:    cache,
		settings: settings,
		log:      log,
		now:      time.Now,
	}
}

// CreateRideRequest contains a rider's booking.
type CreateRideRequest struct {
	RiderUID           string
	CustomerPhone      string
	CustomerEmail      string
	PickupAddress      string
	DestinationAddress string
	FareEstimate       float64
	IsScheduled        bool
	ScheduledDateTime  *time.Time
}

// CreateRide books a ride for the caller. On-demand rides get a driver
// search deadline; scheduled rides wait for a driver until they are
// accepted or cancelled.
func (s *RideService) CreateRide(ctx context.Context, req CreateRideRequest) (*domain.Ride, error) {
	uid := strings.TrimSpace(req.RiderUID)
	if uid == "" {
		return nil, ErrUnauthenticated
	}
	phone := strings.TrimSpace(req.CustomerPhone)
	if phone != "" {
		if err := validatePhone(phone); err != nil {
			return nil, err
		}
	}
	email := strings.TrimSpace(req.CustomerEmail)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PickupAddress) == "" || strings.TrimSpace(req.DestinationAddress) == "" {
		return nil, ErrInvalidAddress
	}
	if req.FareEstimate < 0 {
		return nil, ErrInvalidPaymentAmount
	}

	now := s.now().UTC()
	ride := &domain.Ride{
		ID:                 uuid.NewString(),
		Status:             domain.RideStatusPending,
		RiderUID:           uid,
		CustomerPhone:      phone,
		CustomerEmail:      email,
		PickupAddress:      strings.TrimSpace(req.PickupAddress),
		DestinationAddress: strings.TrimSpace(req.DestinationAddress),
		FareEstimate:       req.FareEstimate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.IsScheduled {
		if req.ScheduledDateTime == nil || !req.ScheduledDateTime.After(now) {
			return nil, ErrInvalidScheduledTime
		}
		pickup := req.ScheduledDateTime.UTC()
		ride.IsScheduled = true
		ride.ScheduledDateTime = &pickup
	} else {
		timeoutAt := now.Add(s.settings.SearchTimeout)
		ride.TimeoutAt = &timeoutAt
	}

	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"ride_id":   ride.ID,
		"scheduled": ride.IsScheduled,
	}), "ride booked")
	return ride, nil
}

// GetRide retrieves a ride, reading through the cache.
func (s *RideService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	rideID = strings.TrimSpace(rideID)
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	if s.cache != nil {
		cached, err := s.cache.GetRide(ctx, rideID)
		if err != nil {
			s.log.Error(s.log.WithRideID(ctx, rideID), "ride cache read failed", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	ride, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetRide(ctx, ride); err != nil {
			s.log.Error(s.log.WithRideID(ctx, rideID), "ride cache write failed", err)
		}
	}
	return ride, nil
}

// UpdateStatusRequest contains a driver-app status write. Optional fields
// are only written when set.
type UpdateStatusRequest struct {
	RideID        string
	Status        domain.RideStatus
	DriverName    string
	DriverPhone   string
	DriverVehicle *domain.Vehicle
	FinalFare     *float64
	CancelReason  string
}

// UpdateStatus moves a ride to a new status along the state machine.
func (s *RideService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*domain.Ride, error) {
	rideID := strings.TrimSpace(req.RideID)
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if !req.Status.IsKnown() {
		return nil, ErrInvalidStatus
	}
	if req.FinalFare != nil && *req.FinalFare < 0 {
		return nil, ErrInvalidPaymentAmount
	}
	ctx = s.log.WithRideID(ctx, rideID)

	current, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	// A repeated write of the current status is a retry and succeeds.
	if current.Status != req.Status && !domain.CanTransition(current.Status, req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, current.Status, req.Status)
	}

	patch := domain.RidePatch{"status": req.Status}
	if req.DriverName != "" {
		patch["driverName"] = req.DriverName
	}
	if req.DriverPhone != "" {
		patch["driverPhone"] = req.DriverPhone
	}
	if req.DriverVehicle != nil {
		patch["driverVehicle"] = domain.Replace(req.DriverVehicle)
	}
	if req.FinalFare != nil {
		patch["finalFare"] = *req.FinalFare
	}
	if req.CancelReason != "" {
		patch["cancelReason"] = req.CancelReason
	}

	return s.apply(ctx, rideID, patch)
}

// CancelRide cancels a ride on behalf of its rider. Only rides that have
// not yet reached the pickup can be cancelled.
func (s *RideService) CancelRide(ctx context.Context, rideID, riderUID, reason string) (*domain.Ride, error) {
	rideID = strings.TrimSpace(rideID)
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if strings.TrimSpace(riderUID) == "" {
		return nil, ErrUnauthenticated
	}
	ctx = s.log.WithRideID(ctx, rideID)

	ride, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderUID != "" && ride.RiderUID != riderUID {
		return nil, ErrRideNotOwned
	}
	if ride.Status != domain.RideStatusPending && ride.Status != domain.RideStatusAccepted {
		return nil, ErrRideCannotBeCancelled
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}

	after, err := s.apply(ctx, rideID, domain.RidePatch{
		"status":       domain.RideStatusCancelled,
		"cancelReason": reason,
	})
	if errors.Is(err, repository.ErrInvalidTransition) {
		// The ride moved on between the read and the write.
		return nil, ErrRideCannotBeCancelled
	}
	return after, err
}

// ExpirePending moves pending rides whose driver search deadline has
// passed to no_driver_available. It returns how many rides were expired.
func (s *RideService) ExpirePending(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := s.rides.FindExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		rideCtx := s.log.WithRideID(ctx, id)
		_, err := s.apply(rideCtx, id, domain.RidePatch{"status": domain.RideStatusNoDriverAvailable})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, repository.ErrInvalidTransition):
			// Accepted or cancelled since the scan.
			s.log.Debug(rideCtx, "ride left pending before expiry")
		default:
			s.log.Error(rideCtx, "failed to expire pending ride", err)
		}
	}
	return expired, nil
}

func (s *RideService) apply(ctx context.Context, rideID string, patch domain.RidePatch) (*domain.Ride, error) {
	change, err := s.rides.Merge(ctx, rideID, patch)
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"from": string(change.Before.Status),
		"to":   string(change.After.Status),
	}), "ride updated")
	return change.After, nil
}
