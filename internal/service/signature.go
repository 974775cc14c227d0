package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds how stale a signed timestamp may be.
const SignatureTolerance = 5 * time.Minute

// ComputeSignature produces the hex HMAC-SHA256 of "{timestamp}.{body}"
// under the given secret. Both inbound verification and outbound merchant
// deliveries use this scheme.
func ComputeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader renders the outbound "t={ts},v1={hmac}" header value.
func SignatureHeader(secret string, timestamp int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(secret, timestamp, body))
}

// VerifySignature checks a "t={ts},v1={hmac}" header against the body.
// The timestamp must be within tolerance of now and the MAC comparison is
// constant-time. The returned error never reveals which check failed.
func VerifySignature(header, secret string, body []byte, now time.Time) error {
	var ts int64 = -1
	var sigs []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrSignatureInvalid
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}

	if ts < 0 || len(sigs) == 0 {
		return ErrSignatureInvalid
	}

	diff := now.Unix() - ts
	if diff < 0 {
		diff = -diff
	}
	if time.Duration(diff)*time.Second > SignatureTolerance {
		return ErrSignatureInvalid
	}

	expected := ComputeSignature(secret, ts, body)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrSignatureInvalid
}
