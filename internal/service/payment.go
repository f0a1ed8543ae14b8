package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bolo/internal/domain"
	"bolo/internal/provider"
	"bolo/internal/provider/cbebirr"
	"bolo/internal/provider/telebirr"
	"bolo/internal/redis"
	"bolo/internal/repository"
)

const (
	telebirrOrderPrefix = "BOLO"
	cbeOrderPrefix      = "CBE"
	systemSource        = "bolo_digital"

	// refundClaim is the lock store status a refund is claimed under. It is
	// not a payment status so it never collides with a provider event.
	refundClaim = "refund"
)

// TelebirrClient is the subset of the Telebirr API used by the payment service.
type TelebirrClient interface {
	InitiatePayment(ctx context.Context, req telebirr.PaymentRequest) (*telebirr.PaymentResponse, error)
	CheckPaymentStatus(ctx context.Context, transactionID string) (*telebirr.StatusResponse, error)
	RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*telebirr.RefundResponse, error)
}

// CBEBirrClient is the subset of the CBE Birr API used by the payment service.
type CBEBirrClient interface {
	InitiatePayment(ctx context.Context, req cbebirr.PaymentRequest) (*cbebirr.PaymentResponse, error)
	CheckPaymentStatus(ctx context.Context, referenceNumber string) (*cbebirr.StatusResponse, error)
	ReversePayment(ctx context.Context, referenceNumber string) (*cbebirr.ReversalResponse, error)
}

// PaymentService handles payment initiation, status polling and refunds.
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	telebirr    TelebirrClient
	cbe         CBEBirrClient
	locks       redis.LockStoreInterface
	reconciler  *Reconciler
	logger      *zap.Logger
	now         func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	telebirrClient TelebirrClient,
	cbeClient CBEBirrClient,
	locks redis.LockStoreInterface,
	reconciler *Reconciler,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		telebirr:    telebirrClient,
		cbe:         cbeClient,
		locks:       locks,
		reconciler:  reconciler,
		logger:      logger,
		now:         time.Now,
	}
}

// InitiateTelebirrPayment starts a Telebirr payment. Failures are reported
// in the result, never as a Go error.
func (s *PaymentService) InitiateTelebirrPayment(ctx context.Context, req domain.PaymentRequest) *domain.PaymentResult {
	if req.CustomerPhone == "" {
		return failed("Phone number is required for Telebirr payment", CodeMissingPhone)
	}
	if res := validatePaymentRequest(req); res != nil {
		return res
	}

	currency := currencyOrDefault(req.Currency)
	orderID := s.orderID(telebirrOrderPrefix, req.VehicleID)

	resp, err := s.telebirr.InitiatePayment(ctx, telebirr.PaymentRequest{
		Amount:        req.Amount,
		Currency:      currency,
		OrderID:       orderID,
		Description:   describe(req),
		CustomerPhone: req.CustomerPhone,
		CustomerName:  req.CustomerName,
		Metadata: map[string]string{
			"vehicleId":    req.VehicleID,
			"paymentType":  string(req.PaymentType),
			"systemSource": systemSource,
		},
	})
	if err != nil {
		return s.providerFailure("telebirr initiation failed", orderID, err)
	}

	record := &domain.PaymentRecord{
		ID:            uuid.New().String(),
		OrderID:       orderID,
		TransactionID: resp.TransactionID,
		Amount:        req.Amount,
		Currency:      currency,
		VehicleID:     req.VehicleID,
		PaymentType:   req.PaymentType,
		Provider:      domain.ProviderTelebirr,
		Status:        domain.PaymentStatusPending,
		CustomerPhone: req.CustomerPhone,
		CustomerName:  req.CustomerName,
	}
	if err := s.paymentRepo.Create(ctx, record); err != nil {
		return s.systemError("store telebirr payment", orderID, err)
	}

	s.logger.Info("telebirr payment initiated",
		zap.String("order_id", orderID),
		zap.String("transaction_id", resp.TransactionID),
		zap.String("vehicle_id", req.VehicleID))

	return &domain.PaymentResult{
		Success:       true,
		TransactionID: resp.TransactionID,
		PaymentURL:    resp.PaymentURL,
		Message:       "Payment initiated successfully. Please complete payment on your Telebirr app.",
	}
}

// InitiateCBEBirrPayment starts a CBE Birr payment. Failures are reported
// in the result, never as a Go error.
func (s *PaymentService) InitiateCBEBirrPayment(ctx context.Context, req domain.PaymentRequest) *domain.PaymentResult {
	if req.CustomerAccount == "" {
		return failed("Account number is required for CBE Birr payment", CodeMissingAccount)
	}
	if res := validatePaymentRequest(req); res != nil {
		return res
	}

	currency := currencyOrDefault(req.Currency)
	referenceNumber := s.orderID(cbeOrderPrefix, req.VehicleID)

	resp, err := s.cbe.InitiatePayment(ctx, cbebirr.PaymentRequest{
		Amount:          req.Amount,
		Currency:        currency,
		ReferenceNumber: referenceNumber,
		Description:     describe(req),
		CustomerAccount: req.CustomerAccount,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
	})
	if err != nil {
		return s.providerFailure("cbe birr initiation failed", referenceNumber, err)
	}

	transactionID := resp.TransactionID
	if transactionID == "" {
		transactionID = referenceNumber
	}

	record := &domain.PaymentRecord{
		ID:              uuid.New().String(),
		OrderID:         referenceNumber,
		TransactionID:   transactionID,
		Amount:          req.Amount,
		Currency:        currency,
		VehicleID:       req.VehicleID,
		PaymentType:     req.PaymentType,
		Provider:        domain.ProviderCBEBirr,
		Status:          domain.PaymentStatusPending,
		CustomerPhone:   req.CustomerPhone,
		CustomerName:    req.CustomerName,
		CustomerAccount: req.CustomerAccount,
	}
	if err := s.paymentRepo.Create(ctx, record); err != nil {
		return s.systemError("store cbe birr payment", referenceNumber, err)
	}

	s.logger.Info("cbe birr payment initiated",
		zap.String("reference_number", referenceNumber),
		zap.String("transaction_id", transactionID),
		zap.String("vehicle_id", req.VehicleID))

	ref := resp.ReferenceNumber
	if ref == "" {
		ref = referenceNumber
	}

	return &domain.PaymentResult{
		Success:         true,
		TransactionID:   transactionID,
		ReferenceNumber: ref,
		QRCode:          resp.QRCode,
		DeepLink:        resp.DeepLink,
		Message:         "Payment initiated successfully. Please complete payment using CBE Birr app.",
	}
}

// CheckPaymentStatus polls the provider and reconciles the stored payment
// with the answer. A failed poll leaves the stored payment untouched.
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, transactionID string, p domain.Provider) (*domain.PaymentStatusResult, error) {
	if transactionID == "" {
		return nil, ErrInvalidTransactionID
	}
	if !p.IsValid() {
		return nil, ErrInvalidProvider
	}

	record, err := s.paymentRepo.GetByTransactionID(ctx, transactionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("load payment for status check", zap.String("transaction_id", transactionID), zap.Error(err))
		return statusCheckFailed(), nil
	}
	if record != nil && record.Provider != p {
		s.logger.Warn("status check provider mismatch",
			zap.String("transaction_id", transactionID),
			zap.String("requested", string(p)),
			zap.String("stored", string(record.Provider)))
		return nil, ErrInvalidProvider
	}

	var (
		result      *domain.PaymentStatusResult
		completedAt string
		reason      string
	)

	switch p {
	case domain.ProviderTelebirr:
		resp, err := s.telebirr.CheckPaymentStatus(ctx, transactionID)
		if err != nil {
			s.logger.Warn("telebirr status check failed", zap.String("transaction_id", transactionID), zap.Error(err))
			return statusCheckFailed(), nil
		}
		completedAt, reason = resp.PaidAt, resp.FailureReason
		result = &domain.PaymentStatusResult{
			Success:       true,
			Status:        resp.Status,
			Amount:        resp.Amount,
			Currency:      resp.Currency,
			PaidAt:        resp.PaidAt,
			FailureReason: resp.FailureReason,
		}
	case domain.ProviderCBEBirr:
		reference := transactionID
		if record != nil {
			reference = record.OrderID
		}
		resp, err := s.cbe.CheckPaymentStatus(ctx, reference)
		if err != nil {
			s.logger.Warn("cbe birr inquiry failed", zap.String("reference_number", reference), zap.Error(err))
			return statusCheckFailed(), nil
		}
		completedAt, reason = resp.CompletedAt, resp.FailureReason
		result = &domain.PaymentStatusResult{
			Success:       true,
			Status:        resp.Status,
			Amount:        resp.Amount,
			Currency:      resp.Currency,
			PaidAt:        resp.CompletedAt,
			FailureReason: resp.FailureReason,
		}
	}

	if record != nil && !record.Status.IsTerminal() &&
		result.Status != record.Status && result.Status != domain.PaymentStatusPending {
		_, err := s.reconciler.Apply(ctx, record, Transition{
			To:            result.Status,
			CompletedAt:   parseProviderTime(completedAt),
			FailureReason: reason,
		})
		if err != nil {
			s.logger.Warn("status poll not applied",
				zap.String("transaction_id", transactionID),
				zap.String("stored_status", string(record.Status)),
				zap.String("provider_status", string(result.Status)),
				zap.Error(err))
		}
	}

	return result, nil
}

// RefundPayment refunds a successful payment through its provider: a
// Telebirr refund or a CBE Birr reversal. Only one refund per payment
// reaches the provider; concurrent callers get ErrRefundInProgress.
func (s *PaymentService) RefundPayment(ctx context.Context, transactionID string) (*domain.PaymentResult, error) {
	if transactionID == "" {
		return nil, ErrInvalidTransactionID
	}

	record, err := s.paymentRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if record.Status != domain.PaymentStatusSuccess {
		return nil, ErrRefundNotAllowed
	}
	if !record.Provider.IsValid() {
		return nil, ErrInvalidProvider
	}

	claimed, err := s.locks.ClaimEvent(ctx, string(record.Provider), record.TransactionID, refundClaim, redis.ReplayWindow)
	if err != nil {
		return nil, fmt.Errorf("claim refund: %w", err)
	}
	if !claimed {
		s.logger.Info("refund already in progress", zap.String("transaction_id", record.TransactionID))
		return nil, ErrRefundInProgress
	}

	// The claim holder re-reads the payment: a refund that finished after
	// the first read has already moved it to REFUNDED.
	current, err := s.paymentRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		s.releaseRefund(ctx, record)
		return nil, fmt.Errorf("reload payment: %w", err)
	}
	if current.Status != domain.PaymentStatusSuccess {
		s.releaseRefund(ctx, record)
		return nil, ErrRefundNotAllowed
	}
	record = current

	result := &domain.PaymentResult{Success: true, TransactionID: record.TransactionID}
	switch record.Provider {
	case domain.ProviderTelebirr:
		resp, err := s.telebirr.RefundPayment(ctx, record.TransactionID, nil)
		if err != nil {
			s.releaseRefund(ctx, record)
			return providerErrorResult(err, "Refund request failed"), nil
		}
		result.ReferenceNumber = resp.RefundID
		result.Message = "Refund processed successfully"
	case domain.ProviderCBEBirr:
		resp, err := s.cbe.ReversePayment(ctx, record.OrderID)
		if err != nil {
			s.releaseRefund(ctx, record)
			return providerErrorResult(err, "Reversal request failed"), nil
		}
		result.ReferenceNumber = resp.ReversalReference
		result.Message = "Payment reversed successfully"
	}

	// The claim is kept once the provider accepted the refund.
	now := s.now().UTC()
	if _, err := s.reconciler.Apply(ctx, record, Transition{To: domain.PaymentStatusRefunded, CompletedAt: &now}); err != nil {
		s.logger.Error("refund accepted by provider but not recorded",
			zap.String("transaction_id", record.TransactionID),
			zap.String("refund_reference", result.ReferenceNumber),
			zap.Error(err))
		return nil, fmt.Errorf("record refund: %w", err)
	}

	s.logger.Info("payment refunded",
		zap.String("transaction_id", record.TransactionID),
		zap.String("provider", string(record.Provider)))

	return result, nil
}

// releaseRefund drops the refund claim so that the refund can be retried.
func (s *PaymentService) releaseRefund(ctx context.Context, record *domain.PaymentRecord) {
	if err := s.locks.ReleaseEvent(ctx, string(record.Provider), record.TransactionID, refundClaim); err != nil {
		s.logger.Warn("release refund claim",
			zap.String("transaction_id", record.TransactionID),
			zap.Error(err))
	}
}

// GetPayment retrieves a payment by transaction id.
func (s *PaymentService) GetPayment(ctx context.Context, transactionID string) (*domain.PaymentRecord, error) {
	if transactionID == "" {
		return nil, ErrInvalidTransactionID
	}

	payment, err := s.paymentRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// ListPayments returns payments matching the filter, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]*domain.PaymentRecord, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if filter.Provider != "" && !filter.Provider.IsValid() {
		return nil, ErrInvalidProvider
	}
	return s.paymentRepo.List(ctx, filter)
}

func (s *PaymentService) orderID(prefix, vehicleID string) string {
	return fmt.Sprintf("%s_%s_%d", prefix, vehicleID, s.now().UnixMilli())
}

func (s *PaymentService) providerFailure(msg, orderID string, err error) *domain.PaymentResult {
	var perr *provider.Error
	if !errors.As(err, &perr) {
		return s.systemError(msg, orderID, err)
	}
	s.logger.Warn(msg,
		zap.String("order_id", orderID),
		zap.String("error_code", perr.Code),
		zap.Error(err))
	return failed(perr.Message, perr.Code)
}

func (s *PaymentService) systemError(msg, orderID string, err error) *domain.PaymentResult {
	s.logger.Error(msg, zap.String("order_id", orderID), zap.Error(err))
	return failed("Payment initiation failed. Please try again.", CodeSystemError)
}

func validatePaymentRequest(req domain.PaymentRequest) *domain.PaymentResult {
	switch {
	case req.VehicleID == "":
		return failed("Vehicle id is required", CodeMissingVehicleID)
	case !req.Amount.IsPositive():
		return failed("Amount must be greater than zero", CodeInvalidAmount)
	case !req.PaymentType.IsValid():
		return failed("Unknown payment type", CodeInvalidPaymentType)
	}
	return nil
}

func providerErrorResult(err error, fallback string) *domain.PaymentResult {
	var perr *provider.Error
	if errors.As(err, &perr) {
		msg := perr.Message
		if msg == "" {
			msg = fallback
		}
		return failed(msg, perr.Code)
	}
	return failed(fallback, CodeSystemError)
}

func failed(message, code string) *domain.PaymentResult {
	return &domain.PaymentResult{Success: false, Message: message, ErrorCode: code}
}

func statusCheckFailed() *domain.PaymentStatusResult {
	return &domain.PaymentStatusResult{
		Success:       false,
		Status:        domain.PaymentStatusFailed,
		Amount:        decimal.Zero,
		Currency:      domain.DefaultCurrency,
		FailureReason: "Status check failed",
	}
}

func describe(req domain.PaymentRequest) string {
	return fmt.Sprintf("%s - Vehicle: %s", req.Description, req.VehicleID)
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return domain.DefaultCurrency
	}
	return currency
}

// parseProviderTime accepts the RFC 3339 timestamps sent by both providers.
// Missing or malformed values yield nil.
func parseProviderTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
