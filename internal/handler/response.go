package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bolo/internal/provider"
	"bolo/internal/repository"
	"bolo/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrPaymentNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidTransactionID),
		errors.Is(err, service.ErrInvalidProvider),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidWebhookPayload):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrRefundNotAllowed),
		errors.Is(err, service.ErrRefundInProgress),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, repository.ErrStatusConflict),
		errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict

	// Upstream provider unreachable
	case provider.IsNetwork(err):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// paymentResultStatus picks the HTTP status for a payment action result.
func paymentResultStatus(success bool, code string) int {
	if success {
		return http.StatusCreated
	}
	switch code {
	case service.CodeMissingPhone,
		service.CodeMissingAccount,
		service.CodeMissingVehicleID,
		service.CodeInvalidAmount,
		service.CodeInvalidPaymentType:
		return http.StatusBadRequest
	case provider.CodeNetworkError:
		return http.StatusBadGateway
	case service.CodeSystemError, "":
		return http.StatusInternalServerError
	default:
		// provider decline, code passed through verbatim
		return http.StatusUnprocessableEntity
	}
}

// deliveryResultStatus picks the HTTP status for a delivery action result.
func deliveryResultStatus(success bool, code string, okStatus int) int {
	if success {
		return okStatus
	}
	switch code {
	case service.CodeMissingRequiredFields,
		service.CodeMissingAddressFields,
		service.CodeInvalidDocumentType,
		service.CodeMissingTrackingNumber,
		service.CodeEmptyRequestList,
		service.CodeInvalidStatus,
		service.CodeInvalidDateRange,
		service.CodeInvalidLocation:
		return http.StatusBadRequest
	case service.CodeTrackingNotFound:
		return http.StatusNotFound
	case service.CodeDeliverySchedulingFailed,
		service.CodeStatusUpdateFailed,
		service.CodeStatisticsNotAvailable:
		return http.StatusBadGateway
	case service.CodeUnknownError, "":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
