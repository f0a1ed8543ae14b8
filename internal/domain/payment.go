package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current status of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// allowedTransitions lists the forward edges of the payment state machine.
// A record leaves PENDING exactly once; only a settled payment can be refunded.
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {
		PaymentStatusSuccess,
		PaymentStatusFailed,
		PaymentStatusExpired,
		PaymentStatusCancelled,
	},
	PaymentStatusSuccess: {PaymentStatusRefunded},
}

// CanTransitionTo reports whether a record in status s may move to next.
// Same-state moves are not transitions and return false.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transition.
// SUCCESS is not terminal: it can still be refunded.
func (s PaymentStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// IsValid reports whether s is a known status.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed,
		PaymentStatusExpired, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

// Provider identifies the mobile-money provider that processed a payment.
type Provider string

const (
	ProviderTelebirr Provider = "telebirr"
	ProviderCBEBirr  Provider = "cbe_birr"
)

// IsValid reports whether p is a supported provider.
func (p Provider) IsValid() bool {
	return p == ProviderTelebirr || p == ProviderCBEBirr
}

// PaymentType is the government fee being paid.
type PaymentType string

const (
	PaymentTypeRoadFee      PaymentType = "road_fee"
	PaymentTypeInspection   PaymentType = "inspection"
	PaymentTypeRegistration PaymentType = "registration"
	PaymentTypePenalty      PaymentType = "penalty"
)

// IsValid reports whether t is a known payment type.
func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeRoadFee, PaymentTypeInspection, PaymentTypeRegistration, PaymentTypePenalty:
		return true
	}
	return false
}

// DefaultCurrency is used whenever a provider omits the currency.
const DefaultCurrency = "ETB"

// PaymentRequest is what the portal submits to start a payment.
type PaymentRequest struct {
	Amount          decimal.Decimal
	Currency        string
	Description     string
	VehicleID       string
	PaymentType     PaymentType
	CustomerPhone   string // required for Telebirr
	CustomerName    string
	CustomerAccount string // required for CBE Birr
}

// PaymentResult is returned to the portal for every initiation attempt,
// whichever provider handled it.
type PaymentResult struct {
	Success         bool   `json:"success"`
	TransactionID   string `json:"transaction_id,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	PaymentURL      string `json:"payment_url,omitempty"`
	QRCode          string `json:"qr_code,omitempty"`
	DeepLink        string `json:"deep_link,omitempty"`
	Message         string `json:"message"`
	ErrorCode       string `json:"error_code,omitempty"`
}

// PaymentStatusResult is returned by a provider status poll.
type PaymentStatusResult struct {
	Success       bool            `json:"success"`
	Status        PaymentStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaidAt        string          `json:"paid_at,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// PaymentRecord is the persisted state of a payment.
type PaymentRecord struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"` // order id for Telebirr, reference number for CBE Birr
	TransactionID   string          `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	VehicleID       string          `json:"vehicle_id"`
	PaymentType     PaymentType     `json:"payment_type"`
	Provider        Provider        `json:"provider"`
	Status          PaymentStatus   `json:"status"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CustomerAccount string          `json:"customer_account,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StatusUpdate describes one provider event applied to a payment record.
type StatusUpdate struct {
	TransactionID string
	From          PaymentStatus
	To            PaymentStatus
	CompletedAt   *time.Time
	FailureReason string
}

// PaymentFilter narrows a payment listing. Empty fields match everything.
type PaymentFilter struct {
	VehicleID string
	Status    PaymentStatus
	Provider  Provider
	Limit     uint64
}
