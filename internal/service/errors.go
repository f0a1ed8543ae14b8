package service

import "errors"

var (
	// ErrPaymentNotFound is returned when no payment matches a transaction id.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidTransactionID is returned when a transaction id is empty.
	ErrInvalidTransactionID = errors.New("invalid transaction id")

	// ErrInvalidProvider is returned for an unsupported payment provider.
	ErrInvalidProvider = errors.New("invalid payment provider")

	// ErrInvalidStatus is returned for an unknown payment status.
	ErrInvalidStatus = errors.New("invalid payment status")

	// ErrInvalidTransition is returned when a provider event would move a
	// payment backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid payment status transition")

	// ErrRefundNotAllowed is returned when refunding a payment that has not succeeded.
	ErrRefundNotAllowed = errors.New("only successful payments can be refunded")

	// ErrRefundInProgress is returned when another refund of the same payment is running.
	ErrRefundInProgress = errors.New("refund already in progress")

	// ErrInvalidWebhookPayload is returned when a notification lacks required fields.
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")
)

// Error codes reported in payment results.
const (
	CodeMissingPhone       = "MISSING_PHONE"
	CodeMissingAccount     = "MISSING_ACCOUNT"
	CodeMissingVehicleID   = "MISSING_VEHICLE_ID"
	CodeInvalidAmount      = "INVALID_AMOUNT"
	CodeInvalidPaymentType = "INVALID_PAYMENT_TYPE"
	CodeSystemError        = "SYSTEM_ERROR"
)

// Error codes reported in delivery results.
const (
	CodeMissingRequiredFields    = "MISSING_REQUIRED_FIELDS"
	CodeMissingAddressFields     = "MISSING_ADDRESS_FIELDS"
	CodeInvalidDocumentType      = "INVALID_DOCUMENT_TYPE"
	CodeDeliverySchedulingFailed = "DELIVERY_SCHEDULING_FAILED"
	CodeMissingTrackingNumber    = "MISSING_TRACKING_NUMBER"
	CodeTrackingNotFound         = "TRACKING_NOT_FOUND"
	CodeEmptyRequestList         = "EMPTY_REQUEST_LIST"
	CodeInvalidStatus            = "INVALID_STATUS"
	CodeStatusUpdateFailed       = "STATUS_UPDATE_FAILED"
	CodeStatisticsNotAvailable   = "STATISTICS_NOT_AVAILABLE"
	CodeInvalidDateRange         = "INVALID_DATE_RANGE"
	CodeInvalidLocation          = "INVALID_LOCATION"
	CodeUnknownError             = "UNKNOWN_ERROR"
)
