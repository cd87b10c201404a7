package domain

import "time"

// Rider is an app user who books rides.
type Rider struct {
	UID              string
	Email            string
	Name             string
	StripeCustomerID string
	CreatedAt        time.Time
}

// HasCustomer reports whether a processor customer has been created for the rider.
func (r *Rider) HasCustomer() bool {
	return r != nil && r.StripeCustomerID != ""
}
