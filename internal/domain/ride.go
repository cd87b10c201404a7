package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusPending           RideStatus = "pending"
	RideStatusAccepted          RideStatus = "accepted"
	RideStatusArrived           RideStatus = "arrived"
	RideStatusInProgress        RideStatus = "in_progress"
	RideStatusCompleted         RideStatus = "completed"
	RideStatusCancelled         RideStatus = "cancelled"
	RideStatusNoDriverAvailable RideStatus = "no_driver_available"
)

// allowedTransitions lists, for each status, the statuses it may move to.
// Terminal statuses have no outgoing edges.
var allowedTransitions = map[RideStatus][]RideStatus{
	RideStatusPending: {
		RideStatusAccepted,
		RideStatusCancelled,
		RideStatusNoDriverAvailable,
	},
	RideStatusAccepted: {
		RideStatusArrived,
		RideStatusCancelled,
	},
	RideStatusArrived: {
		RideStatusInProgress,
	},
	RideStatusInProgress: {
		RideStatusCompleted,
	},
	RideStatusCompleted:         {},
	RideStatusCancelled:         {},
	RideStatusNoDriverAvailable: {},
}

// IsKnown reports whether s is part of the ride state machine.
func (s RideStatus) IsKnown() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s RideStatus) IsTerminal() bool {
	switch s {
	case RideStatusCompleted, RideStatusCancelled, RideStatusNoDriverAvailable:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a ride may move from one status to another.
func CanTransition(from, to RideStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Vehicle describes the driver's car as shown to the rider.
type Vehicle struct {
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Color        string `json:"color,omitempty"`
	Year         int    `json:"year,omitempty"`
	LicensePlate string `json:"licensePlate,omitempty"`
}

// NotificationRecord is one entry of the per-ride message log.
type NotificationRecord struct {
	MessageID string    `json:"messageId"`
	To        string    `json:"to"`
	SentAt    time.Time `json:"sentAt"`
}

// Ride is the ride document held by the ride store.
type Ride struct {
	ID                 string                            `json:"rideId"`
	Status             RideStatus                        `json:"status"`
	RiderUID           string                            `json:"riderUid,omitempty"`
	CustomerPhone      string                            `json:"customerPhone,omitempty"`
	CustomerEmail      string                            `json:"customerEmail,omitempty"`
	DriverName         string                            `json:"driverName,omitempty"`
	DriverPhone        string                            `json:"driverPhone,omitempty"`
	DriverVehicle      *Vehicle                          `json:"driverVehicle,omitempty"`
	PickupAddress      string                            `json:"pickupAddress,omitempty"`
	DestinationAddress string                            `json:"destinationAddress,omitempty"`
	IsScheduled        bool                              `json:"isScheduled,omitempty"`
	ScheduledDateTime  *time.Time                        `json:"scheduledDateTime,omitempty"`
	FareEstimate       float64                           `json:"fareEstimate,omitempty"`
	FinalFare          float64                           `json:"finalFare,omitempty"`
	CancelReason       string                            `json:"cancelReason,omitempty"`
	TimeoutAt          *time.Time                        `json:"timeoutAt,omitempty"`
	Payment            *PaymentInfo                      `json:"payment,omitempty"`
	Notifications      map[RideStatus]NotificationRecord `json:"notifications,omitempty"`
	CreatedAt          time.Time                         `json:"createdAt"`
	UpdatedAt          time.Time                         `json:"updatedAt"`
	ArchivedAt         *time.Time                        `json:"archivedAt,omitempty"`
}

// AuthorizedCents returns the authorized amount, or zero when no
// authorization has been recorded.
func (r *Ride) AuthorizedCents() int64 {
	if r == nil || r.Payment == nil {
		return 0
	}
	return r.Payment.AmountAuthorizedCents
}

// RidePatch is a partial ride document. Nested maps are merged key by key
// unless wrapped in Replace.
type RidePatch map[string]any

// Replacement is a patch value that overwrites the stored field as a whole.
type Replacement struct {
	Value any
}

// Replace marks v to replace the stored value instead of merging into it.
// A nil v removes the field.
func Replace(v any) Replacement {
	return Replacement{Value: v}
}

// RideChange is the before/after pair emitted for every accepted mutation.
type RideChange struct {
	ID         int64     `json:"changeId"`
	RideID     string    `json:"rideId"`
	Before     *Ride     `json:"before"`
	After      *Ride     `json:"after"`
	OccurredAt time.Time `json:"occurredAt"`
}

// StatusChanged reports whether the mutation moved the ride to a new status.
func (c *RideChange) StatusChanged() bool {
	if c.Before == nil || c.After == nil {
		return c.After != nil
	}
	return c.Before.Status != c.After.Status
}
