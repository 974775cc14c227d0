package models

import "time"

// CanonicalEventType is the closed set vendor event codes are mapped into.
type CanonicalEventType string

const (
	EventPaymentCaptured  CanonicalEventType = "payment.captured"
	EventPaymentFailed    CanonicalEventType = "payment.failed"
	EventPaymentPending   CanonicalEventType = "payment.pending"
	EventPaymentCanceled  CanonicalEventType = "payment.canceled"
	EventRefundCompleted  CanonicalEventType = "refund.completed"
	EventTransferSettled  CanonicalEventType = "transfer.settled"
	EventTransferReturned CanonicalEventType = "transfer.returned"
)

// WebhookEvent is a normalized inbound processor event, deduplicated on
// (psp, psp_event_id) and persisted before any state mutation.
type WebhookEvent struct {
	ID            string             `json:"id" db:"id"`
	TenantID      string             `json:"tenant_id,omitempty" db:"tenant_id"`
	PSP           string             `json:"psp" db:"psp"`
	PSPEventID    string             `json:"psp_event_id" db:"psp_event_id"`
	EventType     CanonicalEventType `json:"event_type" db:"event_type"`
	VendorType    string             `json:"vendor_type" db:"vendor_type"`
	SessionID     string             `json:"session_id,omitempty" db:"session_id"`
	TransactionID string             `json:"transaction_id,omitempty" db:"transaction_id"`
	Payload       []byte             `json:"-" db:"payload"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// WebhookEndpoint is a merchant-subscribed delivery target.
type WebhookEndpoint struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	URL       string    `json:"url" db:"url"`
	Secret    string    `json:"-" db:"secret"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// WebhookDelivery records one delivery attempt to one merchant endpoint.
type WebhookDelivery struct {
	ID          string         `json:"id" db:"id"`
	EventID     string         `json:"event_id" db:"event_id"`
	EndpointID  string         `json:"endpoint_id" db:"endpoint_id"`
	Status      DeliveryStatus `json:"status" db:"status"`
	HTTPStatus  int            `json:"http_status,omitempty" db:"http_status"`
	Attempt     int            `json:"attempt" db:"attempt"`
	LastError   string         `json:"last_error,omitempty" db:"last_error"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

const WebhookSchema = `
CREATE TABLE IF NOT EXISTS webhook_events (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36),
    psp VARCHAR(32) NOT NULL,
    psp_event_id VARCHAR(255) NOT NULL,
    event_type VARCHAR(64) NOT NULL,
    vendor_type VARCHAR(128) NOT NULL,
    session_id VARCHAR(36),
    transaction_id VARCHAR(255),
    payload BYTEA,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    UNIQUE (psp, psp_event_id)
);

CREATE TABLE IF NOT EXISTS webhook_endpoints (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    url TEXT NOT NULL,
    secret VARCHAR(255) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id VARCHAR(36) PRIMARY KEY,
    event_id VARCHAR(36) NOT NULL REFERENCES webhook_events(id),
    endpoint_id VARCHAR(36) NOT NULL REFERENCES webhook_endpoints(id),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    http_status INT,
    attempt INT NOT NULL DEFAULT 0,
    last_error TEXT,
    next_retry_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`
