package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ridecoord/internal/domain"
	"ridecoord/internal/logger"
)

// Notifier sends a single text message and returns the transport's message id.
type Notifier interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// SendResult is the outcome of a best-effort send. Err is the transport
// failure, if any; it is reported, never raised.
type SendResult struct {
	MessageID string
	Err       error
}

// OK reports whether the message was handed to the transport.
func (r SendResult) OK() bool {
	return r.Err == nil
}

// NotificationPolicy says what a status change owes the rider.
type NotificationPolicy int

const (
	PolicyIgnore NotificationPolicy = iota
	PolicySend
	PolicySuppress
)

// PolicyFor maps a ride status to its notification policy.
func PolicyFor(status domain.RideStatus) NotificationPolicy {
	switch status {
	case domain.RideStatusAccepted,
		domain.RideStatusArrived,
		domain.RideStatusCompleted,
		domain.RideStatusCancelled,
		domain.RideStatusNoDriverAvailable:
		return PolicySend
	case domain.RideStatusInProgress:
		// The rider is already in the car.
		return PolicySuppress
	default:
		return PolicyIgnore
	}
}

const (
	fallbackDriverName   = "Your driver"
	fallbackVehicle      = "your ride"
	fallbackPlate        = "N/A"
	fallbackFare         = "0.00"
	fallbackCancelReason = "We apologize for the inconvenience."
	fallbackPickupTime   = "your scheduled time"
)

// MessageBuilder renders rider-facing status messages. Output depends only
// on the ride and the builder's settings.
type MessageBuilder struct {
	brand    string
	location *time.Location
	eta      int
}

// NewMessageBuilder creates a MessageBuilder. A nil location means UTC.
func NewMessageBuilder(brand string, location *time.Location, etaMinutes int) *MessageBuilder {
	if location == nil {
		location = time.UTC
	}
	return &MessageBuilder{brand: brand, location: location, eta: etaMinutes}
}

// Build returns the message owed for the ride's current status, or false
// when the status does not send anything.
func (b *MessageBuilder) Build(ride *domain.Ride) (string, bool) {
	switch ride.Status {
	case domain.RideStatusAccepted:
		if ride.IsScheduled {
			return fmt.Sprintf("Your %s ride is confirmed! %s will pick you up at %s. Vehicle: %s",
				b.brand, driverName(ride), b.pickupTime(ride), vehicleDescriptor(ride.DriverVehicle)), true
		}
		driver := "Your " + b.brand + " driver"
		if ride.DriverName != "" {
			driver += " " + ride.DriverName
		}
		return fmt.Sprintf("%s is on the way! Vehicle: %s. ETA: %d minutes.",
			driver, vehicleDescriptor(ride.DriverVehicle), b.eta), true

	case domain.RideStatusArrived:
		msg := driverName(ride) + " has arrived!"
		if look := vehicleLook(ride.DriverVehicle); look != "" {
			msg += " Look for the " + look
		}
		return msg, true

	case domain.RideStatusCompleted:
		return fmt.Sprintf("Trip completed! Thanks for riding with %s. Total: $%s. Check your email for receipt.",
			b.brand, fareTotal(ride)), true

	case domain.RideStatusCancelled:
		reason := strings.TrimSpace(ride.CancelReason)
		if reason == "" {
			reason = fallbackCancelReason
		}
		return fmt.Sprintf("Your %s ride has been cancelled. %s Book again anytime!", b.brand, reason), true

	case domain.RideStatusNoDriverAvailable:
		return "No drivers available right now. Please try booking again in a few minutes. We apologize for the inconvenience.", true
	}
	return "", false
}

func (b *MessageBuilder) pickupTime(ride *domain.Ride) string {
	if ride.ScheduledDateTime == nil || ride.ScheduledDateTime.IsZero() {
		return fallbackPickupTime
	}
	return ride.ScheduledDateTime.In(b.location).Format("Mon, Jan 2 at 3:04 PM MST")
}

func driverName(ride *domain.Ride) string {
	if name := strings.TrimSpace(ride.DriverName); name != "" {
		return name
	}
	return fallbackDriverName
}

// vehicleDescriptor renders "2020 Blue Toyota Camry (ABC123)", skipping
// empty parts.
func vehicleDescriptor(v *domain.Vehicle) string {
	if v == nil {
		return fallbackVehicle
	}
	parts := make([]string, 0, 5)
	if v.Year > 0 {
		parts = append(parts, fmt.Sprint(v.Year))
	}
	parts = appendNonEmpty(parts, v.Color, v.Make, v.Model)
	plate := strings.TrimSpace(v.LicensePlate)
	if plate == "" {
		plate = fallbackPlate
	}
	parts = append(parts, "("+plate+")")
	return strings.Join(parts, " ")
}

func vehicleLook(v *domain.Vehicle) string {
	if v == nil {
		return ""
	}
	return strings.Join(appendNonEmpty(nil, v.Color, v.Make, v.Model), " ")
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

func fareTotal(ride *domain.Ride) string {
	switch {
	case ride.FinalFare > 0:
		return formatDollars(ride.FinalFare)
	case ride.FareEstimate > 0:
		return formatDollars(ride.FareEstimate)
	default:
		return fallbackFare
	}
}

// NotificationService delivers text messages through a Notifier.
type NotificationService struct {
	notifier Notifier
	log      *logger.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(notifier Notifier, log *logger.Logger) *NotificationService {
	if log == nil {
		log = logger.Nop()
	}
	return &NotificationService{notifier: notifier, log: log}
}

// SendSMS validates and sends a message on behalf of an RPC caller.
// Transport failures are returned as ExternalError.
func (s *NotificationService) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := validatePhone(to); err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		return "", ErrInvalidMessage
	}

	id, err := s.notifier.Send(ctx, strings.TrimSpace(to), body)
	if err != nil {
		return "", external("sms.send", err)
	}
	return id, nil
}

// Deliver sends a message best-effort. It never fails; the transport error,
// if any, is logged and carried in the result.
func (s *NotificationService) Deliver(ctx context.Context, to, body string) SendResult {
	id, err := s.notifier.Send(ctx, to, body)
	if err != nil {
		s.log.Error(ctx, "sms delivery failed", err)
		return SendResult{Err: external("sms.send", err)}
	}
	return SendResult{MessageID: id}
}
