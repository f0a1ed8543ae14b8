package cbebirr

import "bolo/internal/domain"

// CBE Birr transaction status codes.
const (
	StatusCompleted = "00"
	StatusInitiated = "01"
	StatusPending   = "02"
	StatusFailed    = "03"
	StatusExpired   = "04"
)

// MapStatus converts a CBE Birr transaction status code to the internal
// status. It is total: any code it does not know maps to FAILED.
func MapStatus(code string) domain.PaymentStatus {
	switch code {
	case StatusCompleted:
		return domain.PaymentStatusSuccess
	case StatusInitiated, StatusPending:
		return domain.PaymentStatusPending
	case StatusFailed:
		return domain.PaymentStatusFailed
	case StatusExpired:
		return domain.PaymentStatusExpired
	default:
		return domain.PaymentStatusFailed
	}
}

// Label returns CBE Birr's own name for a transaction status code.
func Label(code string) string {
	switch code {
	case StatusCompleted:
		return "COMPLETED"
	case StatusInitiated:
		return "INITIATED"
	case StatusPending:
		return "PENDING"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "FAILED"
	}
}
