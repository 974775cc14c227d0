package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type fakeSessionStore struct {
	sessions map[string]*models.PaymentSession
	attempts map[string][]*models.PaymentAttempt
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]*models.PaymentSession),
		attempts: make(map[string][]*models.PaymentAttempt),
	}
}

func (f *fakeSessionStore) Create(ctx context.Context, s *models.PaymentSession) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, tenantID, id string) (*models.PaymentSession, error) {
	s := f.sessions[id]
	if s == nil || s.TenantID != tenantID {
		return nil, nil
	}
	return s, nil
}

func (f *fakeSessionStore) GetByExternalID(ctx context.Context, tenantID, externalID string) (*models.PaymentSession, error) {
	for _, s := range f.sessions {
		if s.TenantID == tenantID && s.ExternalID == externalID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, failureCode, failureMessage string) error {
	s := f.sessions[id]
	s.Status = status
	s.FailureCode = failureCode
	s.FailureMessage = failureMessage
	return nil
}

func (f *fakeSessionStore) ListAttempts(ctx context.Context, sessionID string) ([]*models.PaymentAttempt, error) {
	return f.attempts[sessionID], nil
}

func newSessionFixture(charger Charger) (*SessionService, *fakeSessionStore) {
	store := newFakeSessionStore()
	svc := NewSessionService(store, charger, "test", zap.NewNop())
	return svc, store
}

func TestCreateSession(t *testing.T) {
	svc, _ := newSessionFixture(&scriptedCharger{})

	session, err := svc.Create(context.Background(), "t1", &models.SessionCreateRequest{
		Amount:   2500,
		Currency: "usd",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusRequiresPaymentMethod, session.Status)
	assert.Equal(t, "USD", session.Currency)
	assert.True(t, strings.HasPrefix(session.ClientSecret, "cs_"))
	assert.NotEmpty(t, session.ID)
}

func TestCreateSessionExternalIDIdempotency(t *testing.T) {
	svc, store := newSessionFixture(&scriptedCharger{})

	first, err := svc.Create(context.Background(), "t1", &models.SessionCreateRequest{
		Amount: 2500, Currency: "USD", ExternalID: "order-1",
	})
	require.NoError(t, err)

	replay, err := svc.Create(context.Background(), "t1", &models.SessionCreateRequest{
		Amount: 2500, Currency: "USD", ExternalID: "order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, replay.ID)
	assert.Len(t, store.sessions, 1)

	// Same external id under a different tenant is a different session.
	other, err := svc.Create(context.Background(), "t2", &models.SessionCreateRequest{
		Amount: 2500, Currency: "USD", ExternalID: "order-1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestConfirmSessionSuccess(t *testing.T) {
	charger := &scriptedCharger{outcomes: []*ChargeOutcome{{Success: true, PSP: "stripe", TransactionID: "pi_1"}}}
	svc, _ := newSessionFixture(charger)

	session, err := svc.Create(context.Background(), "t1", &models.SessionCreateRequest{Amount: 2500, Currency: "USD"})
	require.NoError(t, err)

	confirmed, err := svc.Confirm(context.Background(), "t1", session.ID, "tok_1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusSucceeded, confirmed.Status)

	require.Len(t, charger.requests, 1)
	assert.Equal(t, session.ID+"_try1", charger.requests[0].IdempotencyKey)
	assert.Equal(t, session.ID, charger.requests[0].SessionID)
}

func TestConfirmSessionDecline(t *testing.T) {
	charger := &scriptedCharger{outcomes: []*ChargeOutcome{{
		Success: false, PSP: "stripe", FailureCode: "card_declined", FailureMessage: "declined",
	}}}
	svc, _ := newSessionFixture(charger)

	session, err := svc.Create(context.Background(), "t1", &models.SessionCreateRequest{Amount: 2500, Currency: "USD"})
	require.NoError(t, err)

	confirmed, err := svc.Confirm(context.Background(), "t1", session.ID, "tok_1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, confirmed.Status)
	assert.Equal(t, "card_declined", confirmed.FailureCode)
}

func TestConfirmTerminalSessionRejected(t *testing.T) {
	charger := &scriptedCharger{outcomes: []*ChargeOutcome{{Success: true, PSP: "stripe"}}}
	svc, _ := newSessionFixture(charger)

	session, err := svc.Create(context.Background(), "t1", &models.SessionCreateRequest{Amount: 2500, Currency: "USD"})
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), "t1", session.ID, "tok_1")
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), "t1", session.ID, "tok_1")
	assert.ErrorIs(t, err, ErrTerminalState)
	assert.Len(t, charger.requests, 1)
}

func TestCancelSession(t *testing.T) {
	svc, store := newSessionFixture(&scriptedCharger{})

	session, err := svc.Create(context.Background(), "t1", &models.SessionCreateRequest{Amount: 2500, Currency: "USD"})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), "t1", session.ID))
	assert.Equal(t, models.SessionStatusCanceled, store.sessions[session.ID].Status)

	// Canceling twice hits the terminal guard.
	err = svc.Cancel(context.Background(), "t1", session.ID)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestSessionTenantScoping(t *testing.T) {
	svc, _ := newSessionFixture(&scriptedCharger{})

	session, err := svc.Create(context.Background(), "t1", &models.SessionCreateRequest{Amount: 2500, Currency: "USD"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "t2", session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
