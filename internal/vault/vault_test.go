package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := New("master-secret")

	creds := map[string]string{
		"api_key":        "sk_test_123",
		"webhook_secret": "whsec_456",
	}

	blob, err := v.Encrypt(creds)
	require.NoError(t, err)
	assert.Len(t, strings.Split(blob, ":"), 3)

	got, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}

func TestDecryptWrongKey(t *testing.T) {
	blob, err := New("secret-a").Encrypt(map[string]string{"api_key": "k"})
	require.NoError(t, err)

	_, err = New("secret-b").Decrypt(blob)
	assert.Error(t, err)
}

func TestDecryptMalformedBlob(t *testing.T) {
	v := New("master-secret")

	tests := []struct {
		name string
		blob string
	}{
		{"empty", ""},
		{"missing segments", "abc:def"},
		{"bad base64", "!!!:???:@@@"},
		{"tampered ciphertext", ""},
	}

	good, err := v.Encrypt(map[string]string{"api_key": "k"})
	require.NoError(t, err)
	parts := strings.Split(good, ":")
	tests[3].blob = parts[0] + ":" + parts[1] + ":" + parts[1]

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.blob)
			assert.Error(t, err)
		})
	}
}
