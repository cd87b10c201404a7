package service

import "errors"

var (
	// ErrUnauthenticated is returned when an operation has no caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidRiderID is returned when rider UID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidPhone is returned when a phone number is missing or not E.164.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidMessage is returned when an SMS body is empty.
	ErrInvalidMessage = errors.New("message is required")

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidPaymentAmount is returned when payment amount is invalid.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrInvalidPaymentID is returned when payment intent ID is empty.
	ErrInvalidPaymentID = errors.New("invalid payment intent id")

	// ErrInvalidAddress is returned when a booking lacks a pickup or
	// destination address.
	ErrInvalidAddress = errors.New("pickup and destination addresses are required")

	// ErrInvalidScheduledTime is returned when a scheduled booking has no
	// pickup time or one in the past.
	ErrInvalidScheduledTime = errors.New("scheduled pickup time must be in the future")

	// ErrInvalidStatus is returned for a status outside the ride state machine.
	ErrInvalidStatus = errors.New("invalid ride status")

	// ErrCustomerMissing is returned when authorizing for a rider without a
	// processor customer.
	ErrCustomerMissing = errors.New("rider has no payment customer")

	// ErrFareEstimateMissing is returned when authorizing a ride without a
	// positive fare estimate.
	ErrFareEstimateMissing = errors.New("ride has no fare estimate")

	// ErrRideNotOwned is returned when a rider acts on someone else's ride.
	ErrRideNotOwned = errors.New("ride belongs to another rider")

	// ErrRiderMismatch is returned when a request names a rider other than
	// the caller.
	ErrRiderMismatch = errors.New("rider does not match caller")

	// ErrRideCannotBeCancelled is returned when ride is in a state that cannot be cancelled.
	ErrRideCannotBeCancelled = errors.New("ride cannot be cancelled in current state")

	// ErrPaymentClosed is returned when authorizing a ride whose payment
	// was already captured or voided.
	ErrPaymentClosed = errors.New("ride payment is already settled")

	// ErrCustomerBusy is returned when another request is creating the
	// rider's customer right now.
	ErrCustomerBusy = errors.New("customer setup already in progress")
)

// ExternalError wraps a failure reported by the payment gateway or the SMS
// transport. Its message is the collaborator's message, unmodified.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return e.Err.Error()
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

func external(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Op: op, Err: err}
}

// IsExternal reports whether err came from an external collaborator.
func IsExternal(err error) bool {
	var ext *ExternalError
	return errors.As(err, &ext)
}
