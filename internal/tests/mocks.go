package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"bolo/internal/domain"
	"bolo/internal/provider/cbebirr"
	"bolo/internal/provider/ethiopost"
	"bolo/internal/provider/telebirr"
	"bolo/internal/redis"
	"bolo/internal/repository"
	"bolo/internal/service"
)

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is an in-memory PaymentRepository with the same
// compare-and-swap semantics as the PostgreSQL one.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.PaymentRecord

	// Counters for verification
	CreateCallCount     int32
	TransitionCallCount int32

	// Error injection
	CreateError     error
	TransitionError error
	GetError        error

	// BeforeTransition runs inside TransitionStatus before the swap, which
	// lets a test simulate a concurrent writer.
	BeforeTransition func(m *MockPaymentRepository)
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]*domain.PaymentRecord),
	}
}

// AddPayment adds a payment to the mock repository.
func (m *MockPaymentRepository) AddPayment(payment *domain.PaymentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *payment
	m.payments[payment.TransactionID] = &copy
}

// SetStatus overwrites a stored status without any checks.
func (m *MockPaymentRepository) SetStatus(transactionID string, status domain.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[transactionID]; ok {
		p.Status = status
	}
}

// Payment returns a copy of a stored payment, or nil.
func (m *MockPaymentRepository) Payment(transactionID string) *domain.PaymentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[transactionID]
	if !ok {
		return nil
	}
	copy := *p
	return &copy
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.PaymentRecord) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[payment.TransactionID]; exists {
		return repository.ErrDuplicate
	}
	copy := *payment
	copy.CreatedAt = time.Now().UTC()
	copy.UpdatedAt = copy.CreatedAt
	m.payments[payment.TransactionID] = &copy
	return nil
}

func (m *MockPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[transactionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (m *MockPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			copy := *p
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockPaymentRepository) TransitionStatus(ctx context.Context, update domain.StatusUpdate) error {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionError != nil {
		return m.TransitionError
	}
	if m.BeforeTransition != nil {
		m.BeforeTransition(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[update.TransactionID]
	if !ok || p.Status != update.From {
		return repository.ErrStatusConflict
	}
	p.Status = update.To
	if update.CompletedAt != nil {
		p.CompletedAt = update.CompletedAt
	}
	if update.FailureReason != "" {
		p.FailureReason = update.FailureReason
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockPaymentRepository) List(ctx context.Context, filter domain.PaymentFilter) ([]*domain.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.PaymentRecord
	for _, p := range m.payments {
		if filter.VehicleID != "" && p.VehicleID != filter.VehicleID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Provider != "" && p.Provider != filter.Provider {
			continue
		}
		copy := *p
		out = append(out, &copy)
	}
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK DELIVERY REPOSITORY
// ──────────────────────────────────────────────

// MockDeliveryRepository is a mock implementation of DeliveryRepository.
type MockDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*domain.DeliveryRecord

	CreateCallCount       int32
	UpdateStatusCallCount int32

	CreateError error
}

// NewMockDeliveryRepository creates a new mock delivery repository.
func NewMockDeliveryRepository() *MockDeliveryRepository {
	return &MockDeliveryRepository{
		deliveries: make(map[string]*domain.DeliveryRecord),
	}
}

// Delivery returns a copy of a stored delivery, or nil.
func (m *MockDeliveryRepository) Delivery(trackingNumber string) *domain.DeliveryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[trackingNumber]
	if !ok {
		return nil
	}
	copy := *d
	return &copy
}

func (m *MockDeliveryRepository) Create(ctx context.Context, delivery *domain.DeliveryRecord) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *delivery
	m.deliveries[delivery.TrackingNumber] = &copy
	return nil
}

func (m *MockDeliveryRepository) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.DeliveryRecord, error) {
	if d := m.Delivery(trackingNumber); d != nil {
		return d, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockDeliveryRepository) UpdateStatus(ctx context.Context, trackingNumber string, status domain.DeliveryStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[trackingNumber]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = status
	return nil
}

// ──────────────────────────────────────────────
// MOCK PROVIDER CLIENTS
// ──────────────────────────────────────────────

// MockTelebirrClient is a mock implementation of service.TelebirrClient.
type MockTelebirrClient struct {
	mu       sync.Mutex
	Requests []telebirr.PaymentRequest

	InitiateCallCount int32
	StatusCallCount   int32
	RefundCallCount   int32

	InitiateResponse *telebirr.PaymentResponse
	InitiateError    error
	StatusResponse   *telebirr.StatusResponse
	StatusError      error
	RefundError      error
	RefundDelay      time.Duration
}

// NewMockTelebirrClient creates a client that accepts every payment.
func NewMockTelebirrClient() *MockTelebirrClient {
	return &MockTelebirrClient{
		InitiateResponse: &telebirr.PaymentResponse{
			TransactionID: "TB-TX-1",
			PaymentURL:    "https://pay.telebirr.et/checkout/TB-TX-1",
		},
	}
}

func (m *MockTelebirrClient) InitiatePayment(ctx context.Context, req telebirr.PaymentRequest) (*telebirr.PaymentResponse, error) {
	atomic.AddInt32(&m.InitiateCallCount, 1)
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.InitiateError != nil {
		return nil, m.InitiateError
	}
	return m.InitiateResponse, nil
}

func (m *MockTelebirrClient) CheckPaymentStatus(ctx context.Context, transactionID string) (*telebirr.StatusResponse, error) {
	atomic.AddInt32(&m.StatusCallCount, 1)
	if m.StatusError != nil {
		return nil, m.StatusError
	}
	return m.StatusResponse, nil
}

func (m *MockTelebirrClient) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*telebirr.RefundResponse, error) {
	atomic.AddInt32(&m.RefundCallCount, 1)
	time.Sleep(m.RefundDelay)
	if m.RefundError != nil {
		return nil, m.RefundError
	}
	return &telebirr.RefundResponse{RefundID: "RF-" + transactionID, Message: "refunded"}, nil
}

// MockCBEBirrClient is a mock implementation of service.CBEBirrClient.
type MockCBEBirrClient struct {
	mu        sync.Mutex
	Requests  []cbebirr.PaymentRequest
	Inquiries []string
	Reversals []string

	InitiateCallCount int32

	InitiateResponse *cbebirr.PaymentResponse
	InitiateError    error
	StatusResponse   *cbebirr.StatusResponse
	StatusError      error
	ReverseError     error
}

// NewMockCBEBirrClient creates a client that accepts every payment.
func NewMockCBEBirrClient() *MockCBEBirrClient {
	return &MockCBEBirrClient{
		InitiateResponse: &cbebirr.PaymentResponse{
			TransactionID: "CBE-TX-1",
			QRCode:        "qr-data",
			DeepLink:      "cbebirr://pay/CBE-TX-1",
		},
	}
}

func (m *MockCBEBirrClient) InitiatePayment(ctx context.Context, req cbebirr.PaymentRequest) (*cbebirr.PaymentResponse, error) {
	atomic.AddInt32(&m.InitiateCallCount, 1)
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.InitiateError != nil {
		return nil, m.InitiateError
	}
	resp := *m.InitiateResponse
	if resp.ReferenceNumber == "" {
		resp.ReferenceNumber = req.ReferenceNumber
	}
	return &resp, nil
}

func (m *MockCBEBirrClient) CheckPaymentStatus(ctx context.Context, referenceNumber string) (*cbebirr.StatusResponse, error) {
	m.mu.Lock()
	m.Inquiries = append(m.Inquiries, referenceNumber)
	m.mu.Unlock()
	if m.StatusError != nil {
		return nil, m.StatusError
	}
	return m.StatusResponse, nil
}

func (m *MockCBEBirrClient) ReversePayment(ctx context.Context, referenceNumber string) (*cbebirr.ReversalResponse, error) {
	m.mu.Lock()
	m.Reversals = append(m.Reversals, referenceNumber)
	m.mu.Unlock()
	if m.ReverseError != nil {
		return nil, m.ReverseError
	}
	return &cbebirr.ReversalResponse{ReversalReference: "REV-" + referenceNumber}, nil
}

// MockPostClient is a mock implementation of service.PostClient.
type MockPostClient struct {
	mu        sync.Mutex
	Scheduled []domain.DeliveryRequest

	TrackCallCount  int32
	UpdateCallCount int32

	ScheduleResponse *domain.DeliveryResponse
	ScheduleError    error
	Tracking         map[string]*domain.TrackingInfo
	TrackError       error
	PostOffices      []domain.PostOffice
	PostOfficesError error
	BulkResponses    []domain.DeliveryResponse
	BulkError        error
	UpdateError      error
	Statistics       json.RawMessage
	StatisticsError  error
}

// NewMockPostClient creates a client that books every delivery.
func NewMockPostClient() *MockPostClient {
	return &MockPostClient{
		ScheduleResponse: &domain.DeliveryResponse{
			Success:               true,
			TrackingNumber:        "EP000123",
			EstimatedDeliveryDate: "2024-03-08",
			DeliveryFee:           decimal.NewFromInt(125),
			Message:               "scheduled",
		},
		Tracking: make(map[string]*domain.TrackingInfo),
	}
}

func (m *MockPostClient) ScheduleDelivery(ctx context.Context, req domain.DeliveryRequest) (*domain.DeliveryResponse, error) {
	m.mu.Lock()
	m.Scheduled = append(m.Scheduled, req)
	m.mu.Unlock()
	if m.ScheduleError != nil {
		return nil, m.ScheduleError
	}
	resp := *m.ScheduleResponse
	return &resp, nil
}

func (m *MockPostClient) TrackDelivery(ctx context.Context, trackingNumber string) (*domain.TrackingInfo, error) {
	atomic.AddInt32(&m.TrackCallCount, 1)
	if m.TrackError != nil {
		return nil, m.TrackError
	}
	info, ok := m.Tracking[trackingNumber]
	if !ok {
		return nil, fmt.Errorf("tracking %s: %w", trackingNumber, ethiopost.ErrTrackingNotFound)
	}
	copy := *info
	return &copy, nil
}

func (m *MockPostClient) CalculateDeliveryFee(ctx context.Context, toAddress domain.DeliveryAddress, serviceType domain.ServiceType) *domain.DeliveryFeeCalculation {
	return &domain.DeliveryFeeCalculation{
		BaseRate:              decimal.NewFromInt(40),
		DistanceFee:           decimal.NewFromInt(60),
		ServiceFee:            decimal.NewFromInt(20),
		TotalFee:              decimal.NewFromInt(120),
		Currency:              domain.DefaultCurrency,
		EstimatedDeliveryDays: 3,
	}
}

func (m *MockPostClient) GetNearbyPostOffices(ctx context.Context, region, zone string, limit int) ([]domain.PostOffice, error) {
	if m.PostOfficesError != nil {
		return nil, m.PostOfficesError
	}
	return m.PostOffices, nil
}

func (m *MockPostClient) ScheduleBulkDelivery(ctx context.Context, reqs []domain.DeliveryRequest) ([]domain.DeliveryResponse, error) {
	m.mu.Lock()
	m.Scheduled = append(m.Scheduled, reqs...)
	m.mu.Unlock()
	if m.BulkError != nil {
		return nil, m.BulkError
	}
	return m.BulkResponses, nil
}

func (m *MockPostClient) UpdateDeliveryStatus(ctx context.Context, trackingNumber string, status domain.DeliveryStatus, location, notes string) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	return m.UpdateError
}

func (m *MockPostClient) GetDeliveryStatistics(ctx context.Context, startDate, endDate, region string) (json.RawMessage, error) {
	if m.StatisticsError != nil {
		return nil, m.StatisticsError
	}
	return m.Statistics, nil
}

// ──────────────────────────────────────────────
// MOCK SMS SENDER
// ──────────────────────────────────────────────

// SentSMS is one message captured by MockSMSSender.
type SentSMS struct {
	To      string
	Message string
}

// MockSMSSender records every message instead of sending it.
type MockSMSSender struct {
	mu   sync.Mutex
	sent []SentSMS

	SendError error
}

// NewMockSMSSender creates a new mock SMS sender.
func NewMockSMSSender() *MockSMSSender {
	return &MockSMSSender{}
}

func (m *MockSMSSender) Send(ctx context.Context, to, message string) error {
	if m.SendError != nil {
		return m.SendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentSMS{To: to, Message: message})
	return nil
}

// Sent returns the captured messages.
func (m *MockSMSSender) Sent() []SentSMS {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentSMS, len(m.sent))
	copy(out, m.sent)
	return out
}

// ──────────────────────────────────────────────
// MOCK REDIS STORES
// ──────────────────────────────────────────────

// MockLockStore is an in-memory replay guard.
type MockLockStore struct {
	mu      sync.Mutex
	claimed map[string]bool

	ClaimError   error
	ReleaseCount int32
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{claimed: make(map[string]bool)}
}

func (m *MockLockStore) ClaimEvent(ctx context.Context, provider, transactionID, status string, ttl time.Duration) (bool, error) {
	if m.ClaimError != nil {
		return false, m.ClaimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + ":" + transactionID + ":" + status
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *MockLockStore) ReleaseEvent(ctx context.Context, provider, transactionID, status string) error {
	atomic.AddInt32(&m.ReleaseCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, provider+":"+transactionID+":"+status)
	return nil
}

// MockCacheStore is an in-memory tracking cache.
type MockCacheStore struct {
	mu       sync.Mutex
	tracking map[string]*domain.TrackingInfo

	InvalidateCount int32
}

// NewMockCacheStore creates a new mock cache store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{tracking: make(map[string]*domain.TrackingInfo)}
}

func (m *MockCacheStore) GetTracking(ctx context.Context, trackingNumber string) (*domain.TrackingInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.tracking[trackingNumber]
	if !ok {
		return nil, nil
	}
	copy := *info
	return &copy, nil
}

func (m *MockCacheStore) SetTracking(ctx context.Context, info *domain.TrackingInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *info
	m.tracking[info.TrackingNumber] = &copy
	return nil
}

func (m *MockCacheStore) InvalidateTracking(ctx context.Context, trackingNumber string) error {
	atomic.AddInt32(&m.InvalidateCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracking, trackingNumber)
	return nil
}

// MockLocationStore is an in-memory post office index. FindNearby returns
// every indexed office at distance zero.
type MockLocationStore struct {
	mu      sync.Mutex
	offices []domain.PostOffice

	FindError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{}
}

func (m *MockLocationStore) IndexPostOffices(ctx context.Context, offices []domain.PostOffice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offices = append(m.offices, offices...)
	return nil
}

func (m *MockLocationStore) FindNearby(ctx context.Context, lat, lng, radiusKm float64) ([]domain.NearbyPostOffice, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.NearbyPostOffice, 0, len(m.offices))
	for _, o := range m.offices {
		out = append(out, domain.NearbyPostOffice{PostOffice: o})
	}
	return out, nil
}

// Indexed returns how many offices were indexed.
func (m *MockLocationStore) Indexed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.offices)
}

// Ensure mocks implement the interfaces the services depend on.
var (
	_ repository.PaymentRepository  = (*MockPaymentRepository)(nil)
	_ repository.DeliveryRepository = (*MockDeliveryRepository)(nil)
	_ service.TelebirrClient        = (*MockTelebirrClient)(nil)
	_ service.CBEBirrClient         = (*MockCBEBirrClient)(nil)
	_ service.PostClient            = (*MockPostClient)(nil)
	_ service.SMSSender             = (*MockSMSSender)(nil)
	_ redis.LockStoreInterface      = (*MockLockStore)(nil)
	_ redis.CacheStoreInterface     = (*MockCacheStore)(nil)
	_ redis.LocationStoreInterface  = (*MockLocationStore)(nil)
)
