package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecoord/internal/middleware"
	"ridecoord/internal/repository"
	"ridecoord/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Internal errors are recorded on the context for the request logger and
// not echoed to the caller.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// badRequest rejects a malformed request body.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// callerID returns the authenticated UID or responds 401.
func callerID(c *gin.Context) (string, bool) {
	uid := middleware.UserID(c)
	if uid == "" {
		respondError(c, service.ErrUnauthenticated)
		return "", false
	}
	return uid, true
}

// callerRider resolves the rider a request acts for. An empty body value
// means the caller; any other rider is refused with 403.
func callerRider(c *gin.Context, uid, requested string) (string, bool) {
	if requested != "" && requested != uid {
		respondError(c, service.ErrRiderMismatch)
		return "", false
	}
	return uid, true
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvalidMessage),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidPaymentAmount),
		errors.Is(err, service.ErrInvalidPaymentID),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidAddress),
		errors.Is(err, service.ErrInvalidScheduledTime),
		errors.Is(err, repository.ErrEmptyPatch):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrRideNotOwned),
		errors.Is(err, service.ErrRiderMismatch):
		return http.StatusForbidden

	// Precondition errors
	case errors.Is(err, service.ErrCustomerMissing),
		errors.Is(err, service.ErrFareEstimateMissing):
		return http.StatusPreconditionFailed

	// Conflict errors
	case errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrAuthorizedAmountImmutable),
		errors.Is(err, repository.ErrAlreadyExists),
		errors.Is(err, service.ErrRideCannotBeCancelled),
		errors.Is(err, service.ErrPaymentClosed),
		errors.Is(err, service.ErrCustomerBusy):
		return http.StatusConflict

	// Gateway or transport failures
	case service.IsExternal(err):
		return http.StatusBadGateway

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
