package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bolo/internal/domain"
	"bolo/internal/provider/ethiopost"
	"bolo/internal/redis"
	"bolo/internal/repository"
)

const (
	postOfficeLimit       = 20
	defaultSearchRadiusKm = 10.0
	maxSearchRadiusKm     = 500.0
	statisticsDateLayout  = "2006-01-02"
)

// PostClient is the subset of the Ethiopia Post API used by the delivery service.
type PostClient interface {
	ScheduleDelivery(ctx context.Context, req domain.DeliveryRequest) (*domain.DeliveryResponse, error)
	TrackDelivery(ctx context.Context, trackingNumber string) (*domain.TrackingInfo, error)
	CalculateDeliveryFee(ctx context.Context, toAddress domain.DeliveryAddress, serviceType domain.ServiceType) *domain.DeliveryFeeCalculation
	GetNearbyPostOffices(ctx context.Context, region, zone string, limit int) ([]domain.PostOffice, error)
	ScheduleBulkDelivery(ctx context.Context, reqs []domain.DeliveryRequest) ([]domain.DeliveryResponse, error)
	UpdateDeliveryStatus(ctx context.Context, trackingNumber string, status domain.DeliveryStatus, location, notes string) error
	GetDeliveryStatistics(ctx context.Context, startDate, endDate, region string) (json.RawMessage, error)
}

// StatusChange is a shipment status reported by postal staff.
type StatusChange struct {
	Status   string `json:"status"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
}

// DeliveryService schedules and tracks document deliveries through Ethiopia Post.
type DeliveryService struct {
	post         PostClient
	deliveryRepo repository.DeliveryRepository
	cache        redis.CacheStoreInterface
	locations    redis.LocationStoreInterface
	logger       *zap.Logger
}

// NewDeliveryService creates a new DeliveryService.
func NewDeliveryService(
	post PostClient,
	deliveryRepo repository.DeliveryRepository,
	cache redis.CacheStoreInterface,
	locations redis.LocationStoreInterface,
	logger *zap.Logger,
) *DeliveryService {
	return &DeliveryService{
		post:         post,
		deliveryRepo: deliveryRepo,
		cache:        cache,
		locations:    locations,
		logger:       logger,
	}
}

// ScheduleDocumentDelivery books the delivery of one vehicle document.
// Government documents are always prepaid.
func (s *DeliveryService) ScheduleDocumentDelivery(ctx context.Context, req domain.DeliveryRequest) *domain.DeliveryResult {
	if code, msg := validateDeliveryRequest(req); code != "" {
		return &domain.DeliveryResult{Success: false, Message: msg, Error: code}
	}
	req = prepareDeliveryRequest(req)

	resp, err := s.post.ScheduleDelivery(ctx, req)
	if err != nil {
		s.logger.Error("schedule document delivery",
			zap.String("document_id", req.DocumentID),
			zap.Error(err))
		return &domain.DeliveryResult{
			Success: false,
			Message: "An error occurred while scheduling delivery",
			Error:   CodeDeliverySchedulingFailed,
		}
	}

	if !resp.Success {
		msg, code := resp.Message, resp.Error
		if msg == "" {
			msg = "Failed to schedule delivery"
		}
		if code == "" {
			code = CodeDeliverySchedulingFailed
		}
		return &domain.DeliveryResult{Success: false, Message: msg, Error: code}
	}

	s.persistDelivery(ctx, req, *resp)

	s.logger.Info("document delivery scheduled",
		zap.String("tracking_number", resp.TrackingNumber),
		zap.String("document_id", req.DocumentID))

	fee := resp.DeliveryFee
	return &domain.DeliveryResult{
		Success:               true,
		TrackingNumber:        resp.TrackingNumber,
		EstimatedDeliveryDate: resp.EstimatedDeliveryDate,
		DeliveryFee:           &fee,
		Message:               fmt.Sprintf("Document delivery scheduled successfully. Tracking number: %s", resp.TrackingNumber),
	}
}

// TrackDocumentDelivery returns the current state of a shipment. Answers
// are cached briefly in Redis.
func (s *DeliveryService) TrackDocumentDelivery(ctx context.Context, trackingNumber string) *domain.TrackingResult {
	if trackingNumber == "" {
		return &domain.TrackingResult{
			Success: false,
			Message: "Tracking number is required",
			Error:   CodeMissingTrackingNumber,
		}
	}

	cached, err := s.cache.GetTracking(ctx, trackingNumber)
	if err != nil {
		s.logger.Warn("tracking cache read failed", zap.String("tracking_number", trackingNumber), zap.Error(err))
	}
	if cached != nil {
		return trackingFound(cached)
	}

	info, err := s.post.TrackDelivery(ctx, trackingNumber)
	if err != nil {
		if !errors.Is(err, ethiopost.ErrTrackingNotFound) {
			s.logger.Warn("track document delivery", zap.String("tracking_number", trackingNumber), zap.Error(err))
		}
		return &domain.TrackingResult{
			Success: false,
			Message: "Tracking information not found",
			Error:   CodeTrackingNotFound,
		}
	}

	if err := s.cache.SetTracking(ctx, info); err != nil {
		s.logger.Warn("tracking cache write failed", zap.String("tracking_number", trackingNumber), zap.Error(err))
	}
	if info.Status.IsValid() {
		s.syncStatus(ctx, trackingNumber, info.Status)
	}

	return trackingFound(info)
}

// CalculateDeliveryFee quotes the fee for a delivery. The client falls back
// to the local tariff when Ethiopia Post cannot be reached.
func (s *DeliveryService) CalculateDeliveryFee(ctx context.Context, toAddress domain.DeliveryAddress, serviceType domain.ServiceType) *domain.FeeResult {
	if serviceType == "" {
		serviceType = domain.ServiceTypeStandard
	}

	return &domain.FeeResult{
		Success:        true,
		FeeCalculation: s.post.CalculateDeliveryFee(ctx, toAddress, serviceType),
		Message:        "Delivery fee calculated successfully",
	}
}

// GetNearbyPostOffices lists post offices of a region. The offices are also
// added to the geo index used by FindPostOfficesNear.
func (s *DeliveryService) GetNearbyPostOffices(ctx context.Context, region, zone string) *domain.PostOfficesResult {
	offices, err := s.post.GetNearbyPostOffices(ctx, region, zone, postOfficeLimit)
	if err != nil {
		s.logger.Error("get post offices", zap.String("region", region), zap.Error(err))
		return &domain.PostOfficesResult{
			Success:     false,
			PostOffices: []domain.PostOffice{},
			Message:     "Failed to retrieve post offices",
			Error:       CodeUnknownError,
		}
	}

	if err := s.locations.IndexPostOffices(ctx, offices); err != nil {
		s.logger.Warn("index post offices", zap.String("region", region), zap.Error(err))
	}

	return &domain.PostOfficesResult{
		Success:     true,
		PostOffices: offices,
		Message:     "Post offices retrieved successfully",
	}
}

// FindPostOfficesNear searches the geo index for offices within radiusKm of
// a point. A zero radius means the default of 10 km.
func (s *DeliveryService) FindPostOfficesNear(ctx context.Context, lat, lng, radiusKm float64) *domain.NearbyPostOfficesResult {
	if lat < -85.05112878 || lat > 85.05112878 || lng < -180 || lng > 180 || radiusKm < 0 || radiusKm > maxSearchRadiusKm {
		return &domain.NearbyPostOfficesResult{
			Success:     false,
			PostOffices: []domain.NearbyPostOffice{},
			Message:     "Invalid search location",
			Error:       CodeInvalidLocation,
		}
	}
	if radiusKm == 0 {
		radiusKm = defaultSearchRadiusKm
	}

	offices, err := s.locations.FindNearby(ctx, lat, lng, radiusKm)
	if err != nil {
		s.logger.Error("find post offices near", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		return &domain.NearbyPostOfficesResult{
			Success:     false,
			PostOffices: []domain.NearbyPostOffice{},
			Message:     "Failed to search post offices",
			Error:       CodeUnknownError,
		}
	}

	return &domain.NearbyPostOfficesResult{
		Success:     true,
		PostOffices: offices,
		Message:     fmt.Sprintf("Found %d post offices", len(offices)),
	}
}

// ScheduleBulkDocumentDelivery books several deliveries in one provider call.
// The result succeeds when at least one delivery was booked.
func (s *DeliveryService) ScheduleBulkDocumentDelivery(ctx context.Context, reqs []domain.DeliveryRequest) *domain.BulkDeliveryResult {
	if len(reqs) == 0 {
		return &domain.BulkDeliveryResult{
			Success: false,
			Message: "No delivery requests provided",
			Error:   CodeEmptyRequestList,
		}
	}

	prepared := make([]domain.DeliveryRequest, len(reqs))
	for i, req := range reqs {
		prepared[i] = prepareDeliveryRequest(req)
	}

	responses, err := s.post.ScheduleBulkDelivery(ctx, prepared)
	if err != nil {
		s.logger.Error("schedule bulk delivery", zap.Int("count", len(reqs)), zap.Error(err))
		failed := make([]domain.DeliveryResponse, len(reqs))
		for i := range failed {
			failed[i] = domain.DeliveryResponse{
				Success: false,
				Message: "Failed to schedule delivery",
				Error:   CodeDeliverySchedulingFailed,
			}
		}
		return &domain.BulkDeliveryResult{
			Success:   false,
			Responses: failed,
			Summary:   &domain.BulkSummary{Total: len(reqs), Failed: len(reqs)},
			Message:   "Failed to schedule bulk delivery",
			Error:     CodeDeliverySchedulingFailed,
		}
	}

	if len(responses) != len(prepared) {
		s.logger.Warn("bulk delivery result count mismatch",
			zap.Int("requested", len(prepared)),
			zap.Int("results", len(responses)))
	}

	pair := bulkPairer(prepared, len(responses) == len(prepared))
	successful := 0
	for i, resp := range responses {
		if !resp.Success {
			continue
		}
		successful++
		req, ok := pair(i, resp)
		if !ok {
			s.logger.Warn("bulk delivery result not stored: no matching request",
				zap.Int("index", i),
				zap.String("document_id", resp.DocumentID),
				zap.String("tracking_number", resp.TrackingNumber))
			continue
		}
		s.persistDelivery(ctx, req, resp)
	}
	failed := len(responses) - successful

	return &domain.BulkDeliveryResult{
		Success:   successful > 0,
		Responses: responses,
		Summary: &domain.BulkSummary{
			Total:      len(responses),
			Successful: successful,
			Failed:     failed,
		},
		Message: fmt.Sprintf("Bulk delivery scheduled: %d successful, %d failed", successful, failed),
	}
}

// UpdateDeliveryStatus forwards a status change to Ethiopia Post and then
// mirrors it locally.
func (s *DeliveryService) UpdateDeliveryStatus(ctx context.Context, trackingNumber string, change StatusChange) *domain.ActionResult {
	if trackingNumber == "" {
		return &domain.ActionResult{Success: false, Message: "Tracking number is required", Error: CodeMissingTrackingNumber}
	}
	status := domain.DeliveryStatus(change.Status)
	if !status.IsValid() {
		return &domain.ActionResult{Success: false, Message: "Unknown delivery status", Error: CodeInvalidStatus}
	}

	if err := s.post.UpdateDeliveryStatus(ctx, trackingNumber, status, change.Location, change.Notes); err != nil {
		s.logger.Error("update delivery status",
			zap.String("tracking_number", trackingNumber),
			zap.String("status", change.Status),
			zap.Error(err))
		return &domain.ActionResult{Success: false, Message: "Failed to update delivery status", Error: CodeStatusUpdateFailed}
	}

	s.syncStatus(ctx, trackingNumber, status)
	if err := s.cache.InvalidateTracking(ctx, trackingNumber); err != nil {
		s.logger.Warn("tracking cache invalidation failed", zap.String("tracking_number", trackingNumber), zap.Error(err))
	}

	return &domain.ActionResult{Success: true, Message: "Delivery status updated successfully"}
}

// GetDeliveryStatistics returns the Ethiopia Post statistics document for
// an inclusive date range given as YYYY-MM-DD.
func (s *DeliveryService) GetDeliveryStatistics(ctx context.Context, startDate, endDate, region string) *domain.StatisticsResult {
	start, errStart := time.Parse(statisticsDateLayout, startDate)
	end, errEnd := time.Parse(statisticsDateLayout, endDate)
	if errStart != nil || errEnd != nil || end.Before(start) {
		return &domain.StatisticsResult{
			Success: false,
			Message: "Start and end dates must be YYYY-MM-DD with start not after end",
			Error:   CodeInvalidDateRange,
		}
	}

	stats, err := s.post.GetDeliveryStatistics(ctx, startDate, endDate, region)
	if err != nil || len(stats) == 0 || string(stats) == "null" {
		if err != nil {
			s.logger.Warn("get delivery statistics", zap.String("region", region), zap.Error(err))
		}
		return &domain.StatisticsResult{
			Success: false,
			Message: "Failed to retrieve delivery statistics",
			Error:   CodeStatisticsNotAvailable,
		}
	}

	return &domain.StatisticsResult{
		Success:    true,
		Statistics: stats,
		Message:    "Delivery statistics retrieved successfully",
	}
}

// bulkPairer matches bulk results to requests. A result that echoes a
// document id is matched on it; otherwise the result's position is used,
// but only when the counts agree.
func bulkPairer(reqs []domain.DeliveryRequest, sameLength bool) func(int, domain.DeliveryResponse) (domain.DeliveryRequest, bool) {
	byDocument := make(map[string][]domain.DeliveryRequest, len(reqs))
	for _, req := range reqs {
		byDocument[req.DocumentID] = append(byDocument[req.DocumentID], req)
	}

	return func(i int, resp domain.DeliveryResponse) (domain.DeliveryRequest, bool) {
		if resp.DocumentID != "" {
			matches := byDocument[resp.DocumentID]
			if len(matches) == 0 {
				return domain.DeliveryRequest{}, false
			}
			byDocument[resp.DocumentID] = matches[1:]
			return matches[0], true
		}
		if !sameLength {
			return domain.DeliveryRequest{}, false
		}
		return reqs[i], true
	}
}

func (s *DeliveryService) persistDelivery(ctx context.Context, req domain.DeliveryRequest, resp domain.DeliveryResponse) {
	record := &domain.DeliveryRecord{
		ID:                    uuid.New().String(),
		TrackingNumber:        resp.TrackingNumber,
		DocumentType:          req.DocumentType,
		DocumentID:            req.DocumentID,
		VehiclePlateNumber:    req.VehiclePlateNumber,
		OwnerName:             req.OwnerName,
		ServiceType:           req.ServiceType,
		Region:                req.DeliveryAddress.Region,
		Status:                domain.DeliveryStatusPending,
		DeliveryFee:           resp.DeliveryFee,
		EstimatedDeliveryDate: resp.EstimatedDeliveryDate,
	}
	if err := s.deliveryRepo.Create(ctx, record); err != nil {
		s.logger.Error("store delivery",
			zap.String("tracking_number", resp.TrackingNumber),
			zap.Error(err))
	}
}

func (s *DeliveryService) syncStatus(ctx context.Context, trackingNumber string, status domain.DeliveryStatus) {
	err := s.deliveryRepo.UpdateStatus(ctx, trackingNumber, status)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("store delivery status",
			zap.String("tracking_number", trackingNumber),
			zap.Error(err))
	}
}

func validateDeliveryRequest(req domain.DeliveryRequest) (code, message string) {
	if req.DocumentID == "" || req.VehiclePlateNumber == "" || req.OwnerName == "" {
		return CodeMissingRequiredFields, "Missing required document information"
	}
	addr := req.DeliveryAddress
	if addr.RecipientName == "" || addr.PhoneNumber == "" || addr.Region == "" {
		return CodeMissingAddressFields, "Missing required delivery address information"
	}
	if !req.DocumentType.IsValid() {
		return CodeInvalidDocumentType, "Unknown document type"
	}
	return "", ""
}

func prepareDeliveryRequest(req domain.DeliveryRequest) domain.DeliveryRequest {
	if req.ServiceType == "" {
		req.ServiceType = domain.ServiceTypeStandard
	}
	req.PaymentMethod = domain.DeliveryPaymentPrepaid
	if req.SpecialInstructions == "" {
		req.SpecialInstructions = fmt.Sprintf("Vehicle registration document for %s. Please handle with care.", req.VehiclePlateNumber)
	}
	return req
}

func trackingFound(info *domain.TrackingInfo) *domain.TrackingResult {
	return &domain.TrackingResult{
		Success:      true,
		TrackingInfo: info,
		Message:      "Tracking information retrieved successfully",
	}
}
