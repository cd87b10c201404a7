package service

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func validatePhone(phone string) error {
	if err := validate.Var(strings.TrimSpace(phone), "required,e164"); err != nil {
		return ErrInvalidPhone
	}
	return nil
}

func validateEmail(email string) error {
	if err := validate.Var(strings.TrimSpace(email), "omitempty,email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// Idempotency keys are derived from the identity the operation acts on, so
// a retried call reaches the processor with the same key.

func customerIdempotencyKey(riderUID string) string {
	return "customer:" + riderUID
}

func authorizeIdempotencyKey(rideID string) string {
	return "authorize:" + rideID
}

func initializeIdempotencyKey(rideID string) string {
	return "initialize:" + rideID
}

var hundred = decimal.NewFromInt(100)

// dollarsToCents converts a major-unit amount to minor units, rounding
// half away from zero.
func dollarsToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

// authorizationCents returns ceil(estimate × (100+bufferPercent)%) in minor
// units, floored at minimumCents.
func authorizationCents(estimate float64, bufferPercent, minimumCents int64) int64 {
	cents := decimal.NewFromFloat(estimate).Mul(hundred)
	buffered := cents.Mul(decimal.NewFromInt(100 + bufferPercent)).Div(hundred).Ceil().IntPart()
	if buffered < minimumCents {
		return minimumCents
	}
	return buffered
}

// formatDollars renders an amount with two decimals, e.g. 18.5 -> "18.50".
func formatDollars(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}
