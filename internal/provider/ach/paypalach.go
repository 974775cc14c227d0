package ach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const PayPalACHName = "paypal_ach"

// PayPalACHAdapter settles credits through the PayPal payouts API. PayPal
// does not offer ACH debits, so debit requests fail permanently with a
// clear code instead of being silently rerouted.
type PayPalACHAdapter struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewPayPalACHAdapter(baseURL, clientID, clientSecret string, timeout time.Duration) *PayPalACHAdapter {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PayPalACHAdapter{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (a *PayPalACHAdapter) Name() string { return PayPalACHName }

type paypalPayoutItem struct {
	RecipientType string `json:"recipient_type"`
	Receiver      string `json:"receiver"`
	Amount        struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Note         string `json:"note,omitempty"`
	SenderItemID string `json:"sender_item_id"`
}

type paypalPayoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

func (a *PayPalACHAdapter) Execute(ctx context.Context, req SettlementRequest) (SettlementResponse, error) {
	if req.Direction == Debit {
		return SettlementResponse{
			Success:         false,
			Status:          "failed",
			FailureCode:     "debit_unsupported",
			FailureMessage:  "paypal_ach supports credits only",
			FailureCategory: FailurePermanent,
		}, nil
	}

	item := paypalPayoutItem{
		RecipientType: "PAYPAL_ID",
		Receiver:      req.AccountToken,
		Note:          req.Description,
		SenderItemID:  req.IdempotencyKey,
	}
	item.Amount.Value = fmt.Sprintf("%d.%02d", req.Amount/100, req.Amount%100)
	item.Amount.Currency = req.Currency

	body, err := json.Marshal(map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": req.IdempotencyKey,
		},
		"items": []paypalPayoutItem{item},
	})
	if err != nil {
		return SettlementResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/payments/payouts", bytes.NewReader(body))
	if err != nil {
		return SettlementResponse{}, err
	}
	httpReq.SetBasicAuth(a.clientID, a.clientSecret)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return SettlementResponse{}, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return SettlementResponse{}, err
	}

	var pr paypalPayoutResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return SettlementResponse{}, fmt.Errorf("paypal: undecodable response: %w", err)
	}

	resp := SettlementResponse{RawResponse: string(raw)}
	switch {
	case httpResp.StatusCode >= 500:
		resp.Status = "failed"
		resp.FailureCode = fmt.Sprintf("paypal_http_%d", httpResp.StatusCode)
		resp.FailureMessage = "paypal service error"
		resp.FailureCategory = FailureTransient
	case httpResp.StatusCode >= 400:
		resp.Status = "failed"
		resp.FailureCode = pr.Name
		resp.FailureMessage = pr.Message
		resp.FailureCategory = FailurePermanent
	default:
		resp.Success = true
		resp.ProviderID = pr.BatchHeader.PayoutBatchID
		resp.Status = "processing"
		eta := achBusinessDays(time.Now(), 1)
		resp.EstimatedSettlementAt = &eta
		if pr.BatchHeader.BatchStatus == "SUCCESS" {
			resp.Status = "settled"
		}
	}
	return resp, nil
}
