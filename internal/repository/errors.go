package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when creating an entity whose id is taken.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidTransition is returned when a merge would move a ride
	// backwards or out of a terminal status.
	ErrInvalidTransition = errors.New("invalid ride status transition")

	// ErrAuthorizedAmountImmutable is returned when a merge would change an
	// authorized amount that has already been recorded.
	ErrAuthorizedAmountImmutable = errors.New("authorized amount already set")

	// ErrEmptyPatch is returned when a merge carries no fields.
	ErrEmptyPatch = errors.New("empty patch")
)
