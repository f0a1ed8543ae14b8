// Package ethiopost is a client for the Ethiopia Post document delivery API.
package ethiopost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bolo/internal/config"
	"bolo/internal/domain"
	"bolo/internal/metrics"
	"bolo/internal/provider"
)

const providerName = "ethiopia_post"

// ErrTrackingNotFound is returned when Ethiopia Post does not know a tracking number.
var ErrTrackingNotFound = errors.New("tracking information not found")

type schedulePayload struct {
	domain.DeliveryRequest
	MerchantID string `json:"merchantId"`
	Timestamp  string `json:"timestamp"`
}

type deliveryResult struct {
	Success               bool            `json:"success"`
	DocumentID            string          `json:"document_id"`
	TrackingNumber        string          `json:"tracking_number"`
	EstimatedDeliveryDate string          `json:"estimated_delivery_date"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	Message               string          `json:"message"`
	Error                 string          `json:"error"`
}

func (r deliveryResult) toDomain() domain.DeliveryResponse {
	return domain.DeliveryResponse{
		Success:               r.Success,
		DocumentID:            r.DocumentID,
		TrackingNumber:        r.TrackingNumber,
		EstimatedDeliveryDate: r.EstimatedDeliveryDate,
		DeliveryFee:           r.DeliveryFee,
		Message:               r.Message,
		Error:                 r.Error,
	}
}

type bulkPayload struct {
	Deliveries []domain.DeliveryRequest `json:"deliveries"`
	MerchantID string                   `json:"merchantId"`
	Timestamp  string                   `json:"timestamp"`
}

type bulkResponse struct {
	Results []deliveryResult `json:"results"`
}

type feePayload struct {
	FromRegion  string                 `json:"from_region"`
	ToAddress   domain.DeliveryAddress `json:"to_address"`
	ServiceType domain.ServiceType     `json:"service_type"`
}

type feeResponse struct {
	BaseRate              decimal.Decimal `json:"base_rate"`
	DistanceFee           decimal.Decimal `json:"distance_fee"`
	ServiceFee            decimal.Decimal `json:"service_fee"`
	TotalFee              decimal.Decimal `json:"total_fee"`
	EstimatedDeliveryDays int             `json:"estimated_delivery_days"`
}

type postOfficesResponse struct {
	PostOffices []domain.PostOffice `json:"post_offices"`
}

type statusPayload struct {
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	Location       string `json:"location"`
	Notes          string `json:"notes,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Client talks to the Ethiopia Post API with bearer token and merchant id
// authentication.
type Client struct {
	cfg    config.EthiopiaPostConfig
	caller *provider.Caller
	now    func() time.Time
}

// NewClient creates an Ethiopia Post client.
func NewClient(cfg config.EthiopiaPostConfig, m *metrics.Metrics, logger *zap.Logger) *Client {
	httpClient := provider.NewHTTPClient(cfg.BaseURL, cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("X-Merchant-ID", cfg.MerchantID)
	return &Client{
		cfg:    cfg,
		caller: provider.NewCaller(providerName, httpClient, m, logger),
		now:    time.Now,
	}
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

func (c *Client) send(req *resty.Request, operation, method, path string, out any) error {
	if err := c.caller.Send(req, operation, method, path, out); err != nil {
		return provider.NewError(provider.CodeNetworkError, "Ethiopia Post request failed", err)
	}
	return nil
}

// ScheduleDelivery books a single document delivery. A declined booking is
// returned as a response with Success false, not as an error.
func (c *Client) ScheduleDelivery(ctx context.Context, req domain.DeliveryRequest) (*domain.DeliveryResponse, error) {
	payload := schedulePayload{
		DeliveryRequest: req,
		MerchantID:      c.cfg.MerchantID,
		Timestamp:       c.timestamp(),
	}

	var resp deliveryResult
	if err := c.send(c.caller.R(ctx).SetBody(payload), "schedule", http.MethodPost, "/api/v1/delivery/schedule", &resp); err != nil {
		return nil, err
	}

	out := resp.toDomain()
	return &out, nil
}

// TrackDelivery fetches the current state and history of a shipment.
func (c *Client) TrackDelivery(ctx context.Context, trackingNumber string) (*domain.TrackingInfo, error) {
	var info domain.TrackingInfo
	req := c.caller.R(ctx).SetPathParam("trackingNumber", trackingNumber)
	err := c.caller.Send(req, "track", http.MethodGet, "/api/v1/delivery/track/{trackingNumber}", &info)
	if err != nil {
		var httpErr *provider.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, ErrTrackingNotFound
		}
		return nil, provider.NewError(provider.CodeNetworkError, "Ethiopia Post request failed", err)
	}
	if info.DeliveryHistory == nil {
		info.DeliveryHistory = []domain.TrackingEvent{}
	}
	return &info, nil
}

// CalculateDeliveryFee asks Ethiopia Post for a quote. When the call fails
// the local tariff from FallbackFee is returned instead, with Fallback set.
func (c *Client) CalculateDeliveryFee(ctx context.Context, toAddress domain.DeliveryAddress, serviceType domain.ServiceType) *domain.DeliveryFeeCalculation {
	payload := feePayload{
		FromRegion:  c.cfg.FromRegion,
		ToAddress:   toAddress,
		ServiceType: serviceType,
	}

	var resp feeResponse
	if err := c.caller.Send(c.caller.R(ctx).SetBody(payload), "calculate_fee", http.MethodPost, "/api/v1/delivery/calculate-fee", &resp); err != nil {
		c.caller.Logger().Warn("using fallback delivery tariff",
			zap.String("service_type", string(serviceType)),
			zap.Error(err))
		return FallbackFee(serviceType)
	}

	return &domain.DeliveryFeeCalculation{
		BaseRate:              resp.BaseRate,
		DistanceFee:           resp.DistanceFee,
		ServiceFee:            resp.ServiceFee,
		TotalFee:              resp.TotalFee,
		Currency:              domain.DefaultCurrency,
		EstimatedDeliveryDays: resp.EstimatedDeliveryDays,
	}
}

// GetNearbyPostOffices lists post offices in a region, optionally narrowed to a zone.
func (c *Client) GetNearbyPostOffices(ctx context.Context, region, zone string, limit int) ([]domain.PostOffice, error) {
	params := map[string]string{
		"region": region,
		"limit":  strconv.Itoa(limit),
	}
	if zone != "" {
		params["zone"] = zone
	}

	var resp postOfficesResponse
	if err := c.send(c.caller.R(ctx).SetQueryParams(params), "post_offices", http.MethodGet, "/api/v1/post-offices", &resp); err != nil {
		return nil, err
	}
	if resp.PostOffices == nil {
		return []domain.PostOffice{}, nil
	}
	return resp.PostOffices, nil
}

// ScheduleBulkDelivery books several deliveries in one call. Results are in
// request order and echo the document id when Ethiopia Post sends it.
func (c *Client) ScheduleBulkDelivery(ctx context.Context, reqs []domain.DeliveryRequest) ([]domain.DeliveryResponse, error) {
	payload := bulkPayload{
		Deliveries: reqs,
		MerchantID: c.cfg.MerchantID,
		Timestamp:  c.timestamp(),
	}

	var resp bulkResponse
	if err := c.send(c.caller.R(ctx).SetBody(payload), "bulk_schedule", http.MethodPost, "/api/v1/delivery/bulk-schedule", &resp); err != nil {
		return nil, err
	}

	out := make([]domain.DeliveryResponse, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// UpdateDeliveryStatus records a shipment status change at Ethiopia Post.
func (c *Client) UpdateDeliveryStatus(ctx context.Context, trackingNumber string, status domain.DeliveryStatus, location, notes string) error {
	payload := statusPayload{
		TrackingNumber: trackingNumber,
		Status:         string(status),
		Location:       location,
		Notes:          notes,
		Timestamp:      c.timestamp(),
	}
	return c.send(c.caller.R(ctx).SetBody(payload), "update_status", http.MethodPut, "/api/v1/delivery/update-status", nil)
}

// GetDeliveryStatistics returns the provider's statistics document for a
// date range. The document is passed through unchanged.
func (c *Client) GetDeliveryStatistics(ctx context.Context, startDate, endDate, region string) (json.RawMessage, error) {
	params := map[string]string{
		"start_date": startDate,
		"end_date":   endDate,
	}
	if region != "" {
		params["region"] = region
	}

	var stats json.RawMessage
	if err := c.send(c.caller.R(ctx).SetQueryParams(params), "statistics", http.MethodGet, "/api/v1/delivery/statistics", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
