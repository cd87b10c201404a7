package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridecoord/internal/domain"
	"ridecoord/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// CreateRideRequest is the HTTP request body for booking a ride.
type CreateRideRequest struct {
	CustomerPhone      string     `json:"customerPhone,omitempty"`
	CustomerEmail      string     `json:"customerEmail,omitempty"`
	PickupAddress      string     `json:"pickupAddress"`
	DestinationAddress string     `json:"destinationAddress"`
	FareEstimate       float64    `json:"fareEstimate,omitempty"`
	IsScheduled        bool       `json:"isScheduled,omitempty"`
	ScheduledDateTime  *time.Time `json:"scheduledDateTime,omitempty"`
}

// UpdateStatusRequest is the HTTP request body for a driver status write.
type UpdateStatusRequest struct {
	Status        string          `json:"status"`
	DriverName    string          `json:"driverName,omitempty"`
	DriverPhone   string          `json:"driverPhone,omitempty"`
	DriverVehicle *domain.Vehicle `json:"driverVehicle,omitempty"`
	FinalFare     *float64        `json:"finalFare,omitempty"`
	CancelReason  string          `json:"cancelReason,omitempty"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), service.CreateRideRequest{
		RiderUID:           uid,
		CustomerPhone:      req.CustomerPhone,
		CustomerEmail:      req.CustomerEmail,
		PickupAddress:      req.PickupAddress,
		DestinationAddress: req.DestinationAddress,
		FareEstimate:       req.FareEstimate,
		IsScheduled:        req.IsScheduled,
		ScheduledDateTime:  req.ScheduledDateTime,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, ride)
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// UpdateStatus handles POST /v1/rides/:id/status
func (h *RideHandler) UpdateStatus(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Status == "" {
		badRequest(c, "status is required")
		return
	}

	ride, err := h.rideService.UpdateStatus(c.Request.Context(), service.UpdateStatusRequest{
		RideID:        c.Param("id"),
		Status:        domain.RideStatus(req.Status),
		DriverName:    req.DriverName,
		DriverPhone:   req.DriverPhone,
		DriverVehicle: req.DriverVehicle,
		FinalFare:     req.FinalFare,
		CancelReason:  req.CancelReason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	var req CancelRideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), c.Param("id"), uid, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}
