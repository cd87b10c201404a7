package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecoord/internal/domain"
	"ridecoord/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// EnsureCustomerRequest is the HTTP request body for EnsureCustomer.
type EnsureCustomerRequest struct {
	RiderUID string `json:"riderUid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// EnsureCustomerResponse is the HTTP response for EnsureCustomer.
type EnsureCustomerResponse struct {
	CustomerID   string `json:"customerId"`
	HasSavedCard bool   `json:"hasSavedCard"`
}

// AuthorizeRideRequest is the HTTP request body for authorizing a ride.
type AuthorizeRideRequest struct {
	RiderUID string `json:"riderUid"`
}

// InitializePaymentRequest is the HTTP request body for the legacy
// payment initialization.
type InitializePaymentRequest struct {
	Amount        float64 `json:"amount"`
	CustomerEmail string  `json:"customerEmail"`
	RideID        string  `json:"rideId"`
}

// AuthorizationResponse is the HTTP response for a new authorization.
type AuthorizationResponse struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
}

// CapturePaymentRequest is the HTTP request body for capturing a payment.
type CapturePaymentRequest struct {
	FinalAmount float64 `json:"finalAmount"`
}

// PaymentIntentResponse is the HTTP response for capture and cancel.
type PaymentIntentResponse struct {
	Success             bool   `json:"success"`
	PaymentIntentID     string `json:"paymentIntentId"`
	Status              string `json:"status"`
	AmountCapturedCents int64  `json:"amountCapturedCents,omitempty"`
}

// EnsureCustomer handles POST /v1/customers/ensure
func (h *PaymentHandler) EnsureCustomer(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	var req EnsureCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	riderUID, ok := callerRider(c, uid, req.RiderUID)
	if !ok {
		return
	}

	resp, err := h.paymentService.EnsureCustomer(c.Request.Context(), service.EnsureCustomerRequest{
		RiderUID: riderUID,
		Email:    req.Email,
		Name:     req.Name,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, EnsureCustomerResponse{
		CustomerID:   resp.CustomerID,
		HasSavedCard: resp.HasSavedCard,
	})
}

// AuthorizeRide handles POST /v1/rides/:id/authorize
func (h *PaymentHandler) AuthorizeRide(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	var req AuthorizeRideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	riderUID, ok := callerRider(c, uid, req.RiderUID)
	if !ok {
		return
	}

	resp, err := h.paymentService.Authorize(c.Request.Context(), service.AuthorizeRequest{
		RideID:   c.Param("id"),
		RiderUID: riderUID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toAuthorizationResponse(resp))
}

// InitializePayment handles POST /v1/payments/initialize
func (h *PaymentHandler) InitializePayment(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	var req InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	resp, err := h.paymentService.InitializePayment(c.Request.Context(), service.InitializePaymentRequest{
		Amount:        req.Amount,
		CustomerEmail: req.CustomerEmail,
		RideID:        req.RideID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toAuthorizationResponse(resp))
}

// CapturePayment handles POST /v1/payments/:id/capture
func (h *PaymentHandler) CapturePayment(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	var req CapturePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	intent, err := h.paymentService.Capture(c.Request.Context(), c.Param("id"), req.FinalAmount)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toPaymentIntentResponse(intent))
}

// CancelPayment handles POST /v1/payments/:id/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	intent, err := h.paymentService.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toPaymentIntentResponse(intent))
}

func toAuthorizationResponse(resp *service.AuthorizeResponse) AuthorizationResponse {
	return AuthorizationResponse{
		PaymentIntentID: resp.PaymentIntentID,
		ClientSecret:    resp.ClientSecret,
		AmountCents:     resp.AmountCents,
		Currency:        resp.Currency,
	}
}

func toPaymentIntentResponse(intent *domain.PaymentIntent) PaymentIntentResponse {
	return PaymentIntentResponse{
		Success:             true,
		PaymentIntentID:     intent.ID,
		Status:              string(intent.Status),
		AmountCapturedCents: intent.AmountCapturedCents,
	}
}
