package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/metrics"
	"github.com/mgthompo1/payeez-sub001/internal/models"
	"github.com/mgthompo1/payeez-sub001/internal/notify"
)

// vendorEventTables maps each provider's event codes onto the canonical
// set. Unknown codes are persisted but applied to nothing.
var vendorEventTables = map[string]map[string]models.CanonicalEventType{
	"stripe": {
		"payment_intent.succeeded":      models.EventPaymentCaptured,
		"payment_intent.payment_failed": models.EventPaymentFailed,
		"payment_intent.processing":     models.EventPaymentPending,
		"payment_intent.canceled":       models.EventPaymentCanceled,
		"charge.refunded":               models.EventRefundCompleted,
	},
	"moov": {
		"transfer.completed": models.EventTransferSettled,
		"transfer.returned":  models.EventTransferReturned,
		"transfer.failed":    models.EventPaymentFailed,
	},
	"paypal_ach": {
		"PAYMENT.PAYOUTS-ITEM.SUCCEEDED": models.EventTransferSettled,
		"PAYMENT.PAYOUTS-ITEM.RETURNED":  models.EventTransferReturned,
		"PAYMENT.PAYOUTS-ITEM.FAILED":    models.EventPaymentFailed,
	},
}

// sessionStatusByEvent applies canonical events to payment sessions.
var sessionStatusByEvent = map[models.CanonicalEventType]models.SessionStatus{
	models.EventPaymentCaptured: models.SessionStatusSucceeded,
	models.EventPaymentFailed:   models.SessionStatusFailed,
	models.EventPaymentPending:  models.SessionStatusProcessing,
	models.EventPaymentCanceled: models.SessionStatusCanceled,
}

// WebhookStore persists events, endpoints and deliveries.
type WebhookStore interface {
	InsertEvent(ctx context.Context, e *models.WebhookEvent) (bool, error)
	ListActiveEndpoints(ctx context.Context, tenantID string) ([]*models.WebhookEndpoint, error)
	InsertDelivery(ctx context.Context, d *models.WebhookDelivery) error
	UpdateDelivery(ctx context.Context, d *models.WebhookDelivery) error
}

// SessionUpdater is the session slice webhook processing mutates.
type SessionUpdater interface {
	GetAttemptByTransactionID(ctx context.Context, transactionID string) (*models.PaymentAttempt, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, failureCode, failureMessage string) error
	TenantOf(ctx context.Context, sessionID string) (string, error)
}

// WebhookService verifies inbound processor events, normalizes them, and
// fans them out to subscribed merchant endpoints.
type WebhookService struct {
	store   WebhookStore
	session SessionUpdater
	pool    *notify.Pool
	client  *http.Client
	logger  *zap.Logger

	// secrets holds the per-provider inbound signing secret.
	secrets map[string]string
	// enforce disabled only for non-production test environments.
	enforce bool
	now     func() time.Time
}

func NewWebhookService(store WebhookStore, session SessionUpdater, pool *notify.Pool, secrets map[string]string, enforce bool, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		store:   store,
		session: session,
		pool:    pool,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		secrets: secrets,
		enforce: enforce,
		now:     time.Now,
	}
}

// inboundPayload is the lowest common denominator the supported providers
// put in their event envelope.
type inboundPayload struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Event   string `json:"event_type"`
	Data    struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
	TransactionID string `json:"transaction_id"`
}

func (p inboundPayload) eventID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.EventID
}

func (p inboundPayload) eventType() string {
	if p.Type != "" {
		return p.Type
	}
	return p.Event
}

func (p inboundPayload) transactionID() string {
	if p.Data.Object.ID != "" {
		return p.Data.Object.ID
	}
	return p.TransactionID
}

// HandleInbound verifies, dedupes, applies, and fans out one inbound
// processor webhook. Replays of an already-seen event are acknowledged
// without re-applying anything.
func (s *WebhookService) HandleInbound(ctx context.Context, psp, signatureHeader string, body []byte) (*models.WebhookEvent, error) {
	if s.enforce {
		secret, ok := s.secrets[psp]
		if !ok {
			return nil, ErrSignatureInvalid
		}
		if err := VerifySignature(signatureHeader, secret, body, s.now()); err != nil {
			return nil, err
		}
	}

	var payload inboundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: undecodable webhook payload", ErrValidation)
	}
	if payload.eventID() == "" {
		return nil, fmt.Errorf("%w: webhook event id missing", ErrValidation)
	}

	canonical := vendorEventTables[psp][payload.eventType()]

	event := &models.WebhookEvent{
		ID:            uuid.New().String(),
		PSP:           psp,
		PSPEventID:    payload.eventID(),
		EventType:     canonical,
		VendorType:    payload.eventType(),
		TransactionID: payload.transactionID(),
		Payload:       body,
		CreatedAt:     s.now(),
	}

	// Resolve tenant/session context through the stored attempt.
	if event.TransactionID != "" {
		attempt, err := s.session.GetAttemptByTransactionID(ctx, event.TransactionID)
		if err != nil {
			return nil, err
		}
		if attempt != nil {
			event.SessionID = attempt.SessionID
			tenantID, err := s.session.TenantOf(ctx, attempt.SessionID)
			if err != nil {
				return nil, err
			}
			event.TenantID = tenantID
		}
	}

	inserted, err := s.store.InsertEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Replay; already applied.
		return event, nil
	}

	if err := s.applyToSession(ctx, event); err != nil {
		s.logger.Error("webhook state application failed",
			zap.String("psp", psp),
			zap.String("event_id", event.PSPEventID),
			zap.Error(err))
	}

	if event.TenantID != "" {
		s.fanOut(ctx, event)
	}

	return event, nil
}

func (s *WebhookService) applyToSession(ctx context.Context, event *models.WebhookEvent) error {
	if event.SessionID == "" {
		return nil
	}
	status, ok := sessionStatusByEvent[event.EventType]
	if !ok {
		return nil
	}

	failureCode := ""
	if status == models.SessionStatusFailed {
		failureCode = "processor_reported_failure"
	}
	return s.session.UpdateStatus(ctx, event.SessionID, status, failureCode, "")
}

// fanOut signs and delivers the canonical event to every active endpoint.
// Endpoints are independent: one failing delivery never blocks the rest.
func (s *WebhookService) fanOut(ctx context.Context, event *models.WebhookEvent) {
	endpoints, err := s.store.ListActiveEndpoints(ctx, event.TenantID)
	if err != nil {
		s.logger.Error("endpoint listing failed", zap.String("tenant_id", event.TenantID), zap.Error(err))
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("event serialization failed", zap.Error(err))
		return
	}

	for _, endpoint := range endpoints {
		delivery := &models.WebhookDelivery{
			ID:         uuid.New().String(),
			EventID:    event.ID,
			EndpointID: endpoint.ID,
			Status:     models.DeliveryPending,
			CreatedAt:  s.now(),
			UpdatedAt:  s.now(),
		}
		if err := s.store.InsertDelivery(ctx, delivery); err != nil {
			s.logger.Error("delivery record creation failed", zap.Error(err))
			continue
		}

		ep := endpoint
		if err := s.pool.Submit(func(taskCtx context.Context) {
			s.deliver(taskCtx, event, ep, delivery, body)
		}); err != nil {
			delivery.Status = models.DeliveryFailed
			delivery.LastError = err.Error()
			retryAt := s.now().Add(time.Minute)
			delivery.NextRetryAt = &retryAt
			if err := s.store.UpdateDelivery(ctx, delivery); err != nil {
				s.logger.Error("delivery record update failed", zap.Error(err))
			}
		}
	}
}

// deliver posts one signed delivery and records the outcome.
func (s *WebhookService) deliver(ctx context.Context, event *models.WebhookEvent, endpoint *models.WebhookEndpoint, delivery *models.WebhookDelivery, body []byte) {
	delivery.Attempt++

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		s.recordDeliveryFailure(ctx, delivery, 0, err.Error())
		return
	}

	ts := s.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", SignatureHeader(endpoint.Secret, ts, body))
	req.Header.Set("X-Event-Type", string(event.EventType))
	req.Header.Set("X-Event-Id", event.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordDeliveryFailure(ctx, delivery, 0, err.Error())
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Status = models.DeliveryDelivered
		delivery.HTTPStatus = resp.StatusCode
		delivery.NextRetryAt = nil
		if err := s.store.UpdateDelivery(ctx, delivery); err != nil {
			s.logger.Error("delivery record update failed", zap.Error(err))
		}
		metrics.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
		return
	}

	s.recordDeliveryFailure(ctx, delivery, resp.StatusCode, fmt.Sprintf("endpoint returned %d", resp.StatusCode))
}

func (s *WebhookService) recordDeliveryFailure(ctx context.Context, delivery *models.WebhookDelivery, httpStatus int, lastError string) {
	delivery.Status = models.DeliveryFailed
	delivery.HTTPStatus = httpStatus
	delivery.LastError = lastError
	retryAt := s.now().Add(deliveryBackoff(delivery.Attempt))
	delivery.NextRetryAt = &retryAt

	if err := s.store.UpdateDelivery(ctx, delivery); err != nil {
		s.logger.Error("delivery record update failed", zap.Error(err))
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
}

func deliveryBackoff(attempt int) time.Duration {
	switch {
	case attempt <= 1:
		return time.Minute
	case attempt == 2:
		return 5 * time.Minute
	case attempt == 3:
		return 30 * time.Minute
	default:
		return 2 * time.Hour
	}
}
