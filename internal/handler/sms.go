package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecoord/internal/service"
)

// SMSHandler handles HTTP requests for direct text messages.
type SMSHandler struct {
	notificationService *service.NotificationService
}

// NewSMSHandler creates a new SMSHandler.
func NewSMSHandler(notificationService *service.NotificationService) *SMSHandler {
	return &SMSHandler{notificationService: notificationService}
}

// SendSMSRequest is the HTTP request body for sending a text message.
type SendSMSRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendSMSResponse is the HTTP response for a sent message.
type SendSMSResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// Send handles POST /v1/sms
func (h *SMSHandler) Send(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	var req SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.To == "" || req.Message == "" {
		badRequest(c, "phone and message required")
		return
	}

	id, err := h.notificationService.SendSMS(c.Request.Context(), req.To, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SendSMSResponse{Success: true, MessageID: id})
}
