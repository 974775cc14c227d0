package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/models"
	"github.com/mgthompo1/payeez-sub001/internal/notify"
)

type fakeWebhookStore struct {
	mu         sync.Mutex
	events     map[string]*models.WebhookEvent
	endpoints  []*models.WebhookEndpoint
	deliveries map[string]*models.WebhookDelivery
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{
		events:     make(map[string]*models.WebhookEvent),
		deliveries: make(map[string]*models.WebhookDelivery),
	}
}

func (f *fakeWebhookStore) InsertEvent(ctx context.Context, e *models.WebhookEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := e.PSP + "/" + e.PSPEventID
	if _, seen := f.events[key]; seen {
		return false, nil
	}
	f.events[key] = e
	return true, nil
}

func (f *fakeWebhookStore) ListActiveEndpoints(ctx context.Context, tenantID string) ([]*models.WebhookEndpoint, error) {
	return f.endpoints, nil
}

func (f *fakeWebhookStore) InsertDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.deliveries[d.ID] = &cp
	return nil
}

func (f *fakeWebhookStore) UpdateDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.deliveries[d.ID] = &cp
	return nil
}

func (f *fakeWebhookStore) deliveryByEndpoint(endpointID string) *models.WebhookDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deliveries {
		if d.EndpointID == endpointID {
			return d
		}
	}
	return nil
}

type fakeSessionUpdater struct {
	attempt *models.PaymentAttempt
	tenant  string
	updates []models.SessionStatus
}

func (f *fakeSessionUpdater) GetAttemptByTransactionID(ctx context.Context, transactionID string) (*models.PaymentAttempt, error) {
	return f.attempt, nil
}

func (f *fakeSessionUpdater) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, failureCode, failureMessage string) error {
	f.updates = append(f.updates, status)
	return nil
}

func (f *fakeSessionUpdater) TenantOf(ctx context.Context, sessionID string) (string, error) {
	return f.tenant, nil
}

func newWebhookFixture(t *testing.T, enforce bool) (*WebhookService, *fakeWebhookStore, *fakeSessionUpdater, *notify.Pool) {
	t.Helper()
	store := newFakeWebhookStore()
	session := &fakeSessionUpdater{
		attempt: &models.PaymentAttempt{ID: "att-1", SessionID: "sess-1", TransactionID: "pi_1"},
		tenant:  "t1",
	}
	pool := notify.NewPool(2, 16, zap.NewNop())
	svc := NewWebhookService(store, session, pool, map[string]string{"stripe": "whsec_test"}, enforce, zap.NewNop())
	return svc, store, session, pool
}

func stripeEvent(eventID, eventType, objectID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"data":{"object":{"id":%q}}}`, eventID, eventType, objectID))
}

func TestHandleInboundAppliesCapturedEvent(t *testing.T) {
	svc, store, session, pool := newWebhookFixture(t, false)
	defer pool.Close()

	body := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")
	event, err := svc.HandleInbound(context.Background(), "stripe", "", body)
	require.NoError(t, err)

	assert.Equal(t, models.EventPaymentCaptured, event.EventType)
	assert.Equal(t, "payment_intent.succeeded", event.VendorType)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, "t1", event.TenantID)
	assert.Len(t, store.events, 1)
	assert.Equal(t, []models.SessionStatus{models.SessionStatusSucceeded}, session.updates)
}

func TestHandleInboundDeduplicatesReplays(t *testing.T) {
	svc, store, session, pool := newWebhookFixture(t, false)
	defer pool.Close()

	body := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")

	_, err := svc.HandleInbound(context.Background(), "stripe", "", body)
	require.NoError(t, err)
	_, err = svc.HandleInbound(context.Background(), "stripe", "", body)
	require.NoError(t, err)

	// Exactly one stored event and one state application.
	assert.Len(t, store.events, 1)
	assert.Len(t, session.updates, 1)
}

func TestHandleInboundRejectsBadSignature(t *testing.T) {
	svc, store, _, pool := newWebhookFixture(t, true)
	defer pool.Close()

	body := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")

	_, err := svc.HandleInbound(context.Background(), "stripe", "t=1,v1=bogus", body)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	// Unknown provider has no secret configured, so nothing verifies.
	_, err = svc.HandleInbound(context.Background(), "unknown_psp", "t=1,v1=bogus", body)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	assert.Empty(t, store.events)
}

func TestHandleInboundAcceptsValidSignature(t *testing.T) {
	svc, _, session, pool := newWebhookFixture(t, true)
	defer pool.Close()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	body := stripeEvent("evt_1", "payment_intent.payment_failed", "pi_1")
	header := SignatureHeader("whsec_test", now.Unix(), body)

	event, err := svc.HandleInbound(context.Background(), "stripe", header, body)
	require.NoError(t, err)
	assert.Equal(t, models.EventPaymentFailed, event.EventType)
	assert.Equal(t, []models.SessionStatus{models.SessionStatusFailed}, session.updates)
}

func TestHandleInboundUnknownEventTypePersistedNotApplied(t *testing.T) {
	svc, store, session, pool := newWebhookFixture(t, false)
	defer pool.Close()

	body := stripeEvent("evt_1", "customer.subscription.updated", "pi_1")
	event, err := svc.HandleInbound(context.Background(), "stripe", "", body)
	require.NoError(t, err)

	assert.Empty(t, event.EventType)
	assert.Equal(t, "customer.subscription.updated", event.VendorType)
	assert.Len(t, store.events, 1)
	assert.Empty(t, session.updates)
}

func TestHandleInboundRejectsUndecodablePayload(t *testing.T) {
	svc, _, _, pool := newWebhookFixture(t, false)
	defer pool.Close()

	_, err := svc.HandleInbound(context.Background(), "stripe", "", []byte("not json"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.HandleInbound(context.Background(), "stripe", "", []byte(`{"type":"x"}`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFanOutEndpointIsolation(t *testing.T) {
	svc, store, _, pool := newWebhookFixture(t, false)

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Signature"))
		assert.Equal(t, string(models.EventPaymentCaptured), r.Header.Get("X-Event-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	store.endpoints = []*models.WebhookEndpoint{
		{ID: "ep-ok", TenantID: "t1", URL: healthy.URL, Secret: "epsec_1", Active: true},
		{ID: "ep-broken", TenantID: "t1", URL: broken.URL, Secret: "epsec_2", Active: true},
	}

	body := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")
	_, err := svc.HandleInbound(context.Background(), "stripe", "", body)
	require.NoError(t, err)

	// Close drains the queue, so both deliveries have completed.
	pool.Close()

	delivered := store.deliveryByEndpoint("ep-ok")
	require.NotNil(t, delivered)
	assert.Equal(t, models.DeliveryDelivered, delivered.Status)
	assert.Equal(t, http.StatusOK, delivered.HTTPStatus)

	failed := store.deliveryByEndpoint("ep-broken")
	require.NotNil(t, failed)
	assert.Equal(t, models.DeliveryFailed, failed.Status)
	assert.Equal(t, http.StatusInternalServerError, failed.HTTPStatus)
	require.NotNil(t, failed.NextRetryAt)
}

func TestDeliveryBackoffSchedule(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 5 * time.Minute},
		{3, 30 * time.Minute},
		{4, 2 * time.Hour},
		{9, 2 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, deliveryBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}
