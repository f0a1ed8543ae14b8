package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bolo/internal/domain"
	"bolo/internal/service"
)

// DeliveryHandler handles HTTP requests for document deliveries and post offices.
type DeliveryHandler struct {
	deliveryService *service.DeliveryService
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(deliveryService *service.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: deliveryService}
}

// BulkDeliveryRequest is the HTTP request body for bulk scheduling.
type BulkDeliveryRequest struct {
	Deliveries []domain.DeliveryRequest `json:"deliveries"`
}

// FeeRequest is the HTTP request body for a fee quote.
type FeeRequest struct {
	ToAddress   domain.DeliveryAddress `json:"to_address"`
	ServiceType domain.ServiceType     `json:"service_type"`
}

// Schedule handles POST /v1/deliveries
func (h *DeliveryHandler) Schedule(c *gin.Context) {
	var req domain.DeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result := h.deliveryService.ScheduleDocumentDelivery(c.Request.Context(), req)
	respondJSON(c, deliveryResultStatus(result.Success, result.Error, http.StatusCreated), result)
}

// ScheduleBulk handles POST /v1/deliveries/bulk
func (h *DeliveryHandler) ScheduleBulk(c *gin.Context) {
	var req BulkDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result := h.deliveryService.ScheduleBulkDocumentDelivery(c.Request.Context(), req.Deliveries)
	code := deliveryResultStatus(result.Success, result.Error, http.StatusCreated)
	if !result.Success && result.Error == "" {
		// every delivery was declined by Ethiopia Post
		code = http.StatusUnprocessableEntity
	}
	respondJSON(c, code, result)
}

// Track handles GET /v1/deliveries/:trackingNumber
func (h *DeliveryHandler) Track(c *gin.Context) {
	result := h.deliveryService.TrackDocumentDelivery(c.Request.Context(), c.Param("trackingNumber"))
	respondJSON(c, deliveryResultStatus(result.Success, result.Error, http.StatusOK), result)
}

// UpdateStatus handles PUT /v1/deliveries/:trackingNumber/status
func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	var req service.StatusChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result := h.deliveryService.UpdateDeliveryStatus(c.Request.Context(), c.Param("trackingNumber"), req)
	respondJSON(c, deliveryResultStatus(result.Success, result.Error, http.StatusOK), result)
}

// CalculateFee handles POST /v1/deliveries/fee
func (h *DeliveryHandler) CalculateFee(c *gin.Context) {
	var req FeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result := h.deliveryService.CalculateDeliveryFee(c.Request.Context(), req.ToAddress, req.ServiceType)
	respondJSON(c, deliveryResultStatus(result.Success, result.Error, http.StatusOK), result)
}

// Statistics handles GET /v1/deliveries/statistics
func (h *DeliveryHandler) Statistics(c *gin.Context) {
	result := h.deliveryService.GetDeliveryStatistics(c.Request.Context(),
		c.Query("start_date"), c.Query("end_date"), c.Query("region"))
	respondJSON(c, deliveryResultStatus(result.Success, result.Error, http.StatusOK), result)
}

// PostOffices handles GET /v1/post-offices
func (h *DeliveryHandler) PostOffices(c *gin.Context) {
	region := c.Query("region")
	if region == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "region is required"})
		return
	}

	result := h.deliveryService.GetNearbyPostOffices(c.Request.Context(), region, c.Query("zone"))
	respondJSON(c, deliveryResultStatus(result.Success, result.Error, http.StatusOK), result)
}

// PostOfficesNear handles GET /v1/post-offices/near
func (h *DeliveryHandler) PostOfficesNear(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "lat and lng are required"})
		return
	}

	var radius float64
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "radius_km must be a number"})
			return
		}
		radius = r
	}

	result := h.deliveryService.FindPostOfficesNear(c.Request.Context(), lat, lng, radius)
	respondJSON(c, deliveryResultStatus(result.Success, result.Error, http.StatusOK), result)
}
