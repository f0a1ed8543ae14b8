package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType is the kind of vehicle document sent by post.
type DocumentType string

const (
	DocumentTypeRegistration DocumentType = "registration"
	DocumentTypeInspection   DocumentType = "inspection"
	DocumentTypeLicensePlate DocumentType = "license_plate"
	DocumentTypeRenewal      DocumentType = "renewal"
)

// IsValid reports whether t is a known document type.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeRegistration, DocumentTypeInspection, DocumentTypeLicensePlate, DocumentTypeRenewal:
		return true
	}
	return false
}

// ServiceType is the postal service level.
type ServiceType string

const (
	ServiceTypeStandard ServiceType = "standard"
	ServiceTypeExpress  ServiceType = "express"
)

// DeliveryPaymentMethod is how the postal fee is settled.
type DeliveryPaymentMethod string

const (
	DeliveryPaymentPrepaid        DeliveryPaymentMethod = "prepaid"
	DeliveryPaymentCashOnDelivery DeliveryPaymentMethod = "cash_on_delivery"
)

// DeliveryStatus is the Ethiopia Post shipment state.
type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "pending"
	DeliveryStatusPickedUp       DeliveryStatus = "picked_up"
	DeliveryStatusInTransit      DeliveryStatus = "in_transit"
	DeliveryStatusOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryStatusDelivered      DeliveryStatus = "delivered"
	DeliveryStatusFailed         DeliveryStatus = "failed"
)

// IsValid reports whether s is a known delivery status.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusPickedUp, DeliveryStatusInTransit,
		DeliveryStatusOutForDelivery, DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

// DeliveryAddress follows Ethiopian postal addressing: region, zone, woreda, kebele.
type DeliveryAddress struct {
	RecipientName    string `json:"recipientName"`
	PhoneNumber      string `json:"phoneNumber"`
	Region           string `json:"region"`
	Zone             string `json:"zone"`
	Woreda           string `json:"woreda"`
	Kebele           string `json:"kebele"`
	HouseNumber      string `json:"houseNumber,omitempty"`
	SpecificLocation string `json:"specificLocation"`
	PostalCode       string `json:"postalCode,omitempty"`
}

// DeliveryRequest asks Ethiopia Post to deliver one document.
type DeliveryRequest struct {
	DocumentType        DocumentType          `json:"documentType"`
	DocumentID          string                `json:"documentId"`
	VehiclePlateNumber  string                `json:"vehiclePlateNumber"`
	OwnerName           string                `json:"ownerName"`
	DeliveryAddress     DeliveryAddress       `json:"deliveryAddress"`
	ServiceType         ServiceType           `json:"serviceType"`
	PaymentMethod       DeliveryPaymentMethod `json:"paymentMethod"`
	SpecialInstructions string                `json:"specialInstructions,omitempty"`
}

// DeliveryResponse is the outcome of scheduling one delivery.
type DeliveryResponse struct {
	Success               bool            `json:"success"`
	DocumentID            string          `json:"document_id,omitempty"`
	TrackingNumber        string          `json:"tracking_number"`
	EstimatedDeliveryDate string          `json:"estimated_delivery_date"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	Message               string          `json:"message"`
	Error                 string          `json:"error,omitempty"`
}

// TrackingEvent is one entry of a shipment's history.
type TrackingEvent struct {
	Timestamp   string `json:"timestamp"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// TrackingInfo is the current state of a shipment plus its ordered history.
type TrackingInfo struct {
	TrackingNumber        string          `json:"tracking_number"`
	Status                DeliveryStatus  `json:"status"`
	CurrentLocation       string          `json:"current_location"`
	EstimatedDeliveryDate string          `json:"estimated_delivery_date"`
	DeliveryAttempts      int             `json:"delivery_attempts"`
	LastUpdated           string          `json:"last_updated"`
	DeliveryHistory       []TrackingEvent `json:"delivery_history"`
}

// OperatingHours of a post office.
type OperatingHours struct {
	Weekdays string `json:"weekdays"`
	Saturday string `json:"saturday"`
	Sunday   string `json:"sunday"`
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PostOffice is an Ethiopia Post branch.
type PostOffice struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Region         string         `json:"region"`
	Zone           string         `json:"zone"`
	Woreda         string         `json:"woreda"`
	Address        string         `json:"address"`
	PhoneNumber    string         `json:"phone_number"`
	Email          string         `json:"email"`
	OperatingHours OperatingHours `json:"operating_hours"`
	Services       []string       `json:"services"`
	Coordinates    Coordinates    `json:"coordinates"`
}

// DeliveryFeeCalculation is the fee breakdown for one delivery.
type DeliveryFeeCalculation struct {
	BaseRate              decimal.Decimal `json:"base_rate"`
	DistanceFee           decimal.Decimal `json:"distance_fee"`
	ServiceFee            decimal.Decimal `json:"service_fee"`
	TotalFee              decimal.Decimal `json:"total_fee"`
	Currency              string          `json:"currency"`
	EstimatedDeliveryDays int             `json:"estimated_delivery_days"`
	Fallback              bool            `json:"fallback"`
}

// DeliveryRecord is the persisted local view of a scheduled delivery.
type DeliveryRecord struct {
	ID                    string
	TrackingNumber        string
	DocumentType          DocumentType
	DocumentID            string
	VehiclePlateNumber    string
	OwnerName             string
	ServiceType           ServiceType
	Region                string
	Status                DeliveryStatus
	DeliveryFee           decimal.Decimal
	EstimatedDeliveryDate string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DeliveryResult is returned to the portal after scheduling one delivery.
type DeliveryResult struct {
	Success               bool             `json:"success"`
	TrackingNumber        string           `json:"tracking_number,omitempty"`
	EstimatedDeliveryDate string           `json:"estimated_delivery_date,omitempty"`
	DeliveryFee           *decimal.Decimal `json:"delivery_fee,omitempty"`
	Message               string           `json:"message"`
	Error                 string           `json:"error,omitempty"`
}

// TrackingResult wraps a tracking lookup.
type TrackingResult struct {
	Success      bool          `json:"success"`
	TrackingInfo *TrackingInfo `json:"tracking_info,omitempty"`
	Message      string        `json:"message"`
	Error        string        `json:"error,omitempty"`
}

// FeeResult wraps a delivery fee quote.
type FeeResult struct {
	Success        bool                    `json:"success"`
	FeeCalculation *DeliveryFeeCalculation `json:"fee_calculation,omitempty"`
	Message        string                  `json:"message"`
	Error          string                  `json:"error,omitempty"`
}

// PostOfficesResult wraps a post office listing.
type PostOfficesResult struct {
	Success     bool         `json:"success"`
	PostOffices []PostOffice `json:"post_offices"`
	Message     string       `json:"message"`
	Error       string       `json:"error,omitempty"`
}

// NearbyPostOffice is a post office with its distance from a search point.
type NearbyPostOffice struct {
	PostOffice
	DistanceKm float64 `json:"distance_km"`
}

// NearbyPostOfficesResult wraps a proximity search.
type NearbyPostOfficesResult struct {
	Success     bool               `json:"success"`
	PostOffices []NearbyPostOffice `json:"post_offices"`
	Message     string             `json:"message"`
	Error       string             `json:"error,omitempty"`
}

// BulkSummary counts the outcomes of a bulk scheduling request.
type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BulkDeliveryResult is returned after scheduling several deliveries.
type BulkDeliveryResult struct {
	Success   bool               `json:"success"`
	Responses []DeliveryResponse `json:"responses,omitempty"`
	Summary   *BulkSummary       `json:"summary,omitempty"`
	Message   string             `json:"message"`
	Error     string             `json:"error,omitempty"`
}

// ActionResult is the outcome of an action with no payload.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// StatisticsResult wraps the Ethiopia Post statistics document.
type StatisticsResult struct {
	Success    bool            `json:"success"`
	Statistics json.RawMessage `json:"statistics,omitempty"`
	Message    string          `json:"message"`
	Error      string          `json:"error,omitempty"`
}
