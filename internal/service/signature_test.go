package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	header := SignatureHeader(secret, now.Unix(), body)
	assert.NoError(t, VerifySignature(header, secret, body, now))

	// Still valid just inside the tolerance window.
	assert.NoError(t, VerifySignature(header, secret, body, now.Add(SignatureTolerance)))
	assert.NoError(t, VerifySignature(header, secret, body, now.Add(-SignatureTolerance)))
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Correct MAC, but signed outside the tolerance window in either
	// direction.
	header := SignatureHeader(secret, now.Add(-6*time.Minute).Unix(), body)
	assert.ErrorIs(t, VerifySignature(header, secret, body, now), ErrSignatureInvalid)

	header = SignatureHeader(secret, now.Add(6*time.Minute).Unix(), body)
	assert.ErrorIs(t, VerifySignature(header, secret, body, now), ErrSignatureInvalid)
}

func TestVerifySignatureWrongMAC(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Equal-length wrong signature.
	good := ComputeSignature(secret, now.Unix(), body)
	bad := strings.Repeat("0", len(good))
	require.NotEqual(t, good, bad)

	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), bad)
	assert.ErrorIs(t, VerifySignature(header, secret, body, now), ErrSignatureInvalid)

	// Signed with a different secret.
	header = SignatureHeader("whsec_other", now.Unix(), body)
	assert.ErrorIs(t, VerifySignature(header, secret, body, now), ErrSignatureInvalid)

	// Tampered body.
	header = SignatureHeader(secret, now.Unix(), body)
	assert.ErrorIs(t, VerifySignature(header, secret, []byte(`{"id":"evt_2"}`), now), ErrSignatureInvalid)
}

func TestVerifySignatureMalformedHeaders(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{}`)
	now := time.Now()

	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"missing timestamp", "v1=abc"},
		{"missing signature", fmt.Sprintf("t=%d", now.Unix())},
		{"non-numeric timestamp", "t=never,v1=abc"},
		{"garbage", "not a signature header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, VerifySignature(tt.header, secret, body, now), ErrSignatureInvalid)
		})
	}
}

func TestVerifySignatureAcceptsAnyValidV1(t *testing.T) {
	// During secret rotation a sender may include MACs under both secrets.
	secret := "whsec_new"
	body := []byte(`{"id":"evt_1"}`)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	old := ComputeSignature("whsec_old", now.Unix(), body)
	current := ComputeSignature(secret, now.Unix(), body)
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), old, current)

	assert.NoError(t, VerifySignature(header, secret, body, now))
}
