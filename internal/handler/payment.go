package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bolo/internal/domain"
	"bolo/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// InitiatePaymentRequest is the HTTP request body for starting a payment.
type InitiatePaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	VehicleID       string          `json:"vehicle_id"`
	PaymentType     string          `json:"payment_type"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerName    string          `json:"customer_name"`
	CustomerAccount string          `json:"customer_account"`
}

func (r InitiatePaymentRequest) toDomain() domain.PaymentRequest {
	return domain.PaymentRequest{
		Amount:          r.Amount,
		Currency:        r.Currency,
		Description:     r.Description,
		VehicleID:       r.VehicleID,
		PaymentType:     domain.PaymentType(r.PaymentType),
		CustomerPhone:   r.CustomerPhone,
		CustomerName:    r.CustomerName,
		CustomerAccount: r.CustomerAccount,
	}
}

// InitiateTelebirr handles POST /v1/payments/telebirr
func (h *PaymentHandler) InitiateTelebirr(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result := h.paymentService.InitiateTelebirrPayment(c.Request.Context(), req.toDomain())
	respondJSON(c, paymentResultStatus(result.Success, result.ErrorCode), result)
}

// InitiateCBEBirr handles POST /v1/payments/cbe-birr
func (h *PaymentHandler) InitiateCBEBirr(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result := h.paymentService.InitiateCBEBirrPayment(c.Request.Context(), req.toDomain())
	respondJSON(c, paymentResultStatus(result.Success, result.ErrorCode), result)
}

// CheckStatus handles GET /v1/payments/:transactionId/status?provider=
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	transactionID := c.Param("transactionId")
	p := domain.Provider(c.Query("provider"))

	result, err := h.paymentService.CheckPaymentStatus(c.Request.Context(), transactionID, p)
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusOK
	if !result.Success {
		code = http.StatusBadGateway
	}
	respondJSON(c, code, result)
}

// Refund handles POST /v1/payments/:transactionId/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	result, err := h.paymentService.RefundPayment(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusOK
	if !result.Success {
		code = paymentResultStatus(false, result.ErrorCode)
	}
	respondJSON(c, code, result)
}

// GetPayment handles GET /v1/payments/:transactionId
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, payment)
}

// ListPaymentsResponse is the HTTP response for a payment listing.
type ListPaymentsResponse struct {
	Payments []*domain.PaymentRecord `json:"payments"`
	Count    int                     `json:"count"`
}

// ListPayments handles GET /v1/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	filter := domain.PaymentFilter{
		VehicleID: c.Query("vehicle_id"),
		Status:    domain.PaymentStatus(c.Query("status")),
		Provider:  domain.Provider(c.Query("provider")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	payments, err := h.paymentService.ListPayments(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if payments == nil {
		payments = []*domain.PaymentRecord{}
	}

	respondJSON(c, http.StatusOK, ListPaymentsResponse{Payments: payments, Count: len(payments)})
}
