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

const MoovName = "moov"

// MoovAdapter settles transfers through the Moov transfers API.
type MoovAdapter struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewMoovAdapter(baseURL, token string, timeout time.Duration) *MoovAdapter {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &MoovAdapter{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (a *MoovAdapter) Name() string { return MoovName }

type moovTransferRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Direction      string            `json:"direction"`
	AccountToken   string            `json:"payment_method_id"`
	Description    string            `json:"description,omitempty"`
	IdempotencyKey string            `json:"-"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type moovTransferResponse struct {
	TransferID    string `json:"transferID"`
	Status        string `json:"status"`
	CompletedOn   string `json:"completedOn,omitempty"`
	FailureCode   string `json:"failureReason,omitempty"`
	FailureDetail string `json:"failureDetail,omitempty"`
	ReturnCode    string `json:"achReturnCode,omitempty"`
	ReturnReason  string `json:"achReturnReason,omitempty"`
}

func (a *MoovAdapter) Execute(ctx context.Context, req SettlementRequest) (SettlementResponse, error) {
	body, err := json.Marshal(moovTransferRequest{
		Amount:       req.Amount,
		Currency:     req.Currency,
		Direction:    string(req.Direction),
		AccountToken: req.AccountToken,
		Description:  req.Description,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return SettlementResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return SettlementResponse{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return SettlementResponse{}, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return SettlementResponse{}, err
	}

	if httpResp.StatusCode >= 500 {
		return SettlementResponse{
			Success:         false,
			Status:          "failed",
			FailureCode:     fmt.Sprintf("moov_http_%d", httpResp.StatusCode),
			FailureMessage:  "moov service error",
			FailureCategory: FailureTransient,
			RawResponse:     string(raw),
		}, nil
	}

	var mr moovTransferResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return SettlementResponse{}, fmt.Errorf("moov: undecodable response: %w", err)
	}

	resp := SettlementResponse{
		ProviderID:   mr.TransferID,
		ReturnCode:   mr.ReturnCode,
		ReturnReason: mr.ReturnReason,
		RawResponse:  string(raw),
	}
	switch mr.Status {
	case "completed":
		resp.Success = true
		resp.Status = "settled"
	case "pending", "created":
		resp.Success = true
		resp.Status = "processing"
		eta := achBusinessDays(time.Now(), 2)
		resp.EstimatedSettlementAt = &eta
	default:
		resp.Status = "failed"
		resp.FailureCode = mr.FailureCode
		resp.FailureMessage = mr.FailureDetail
		resp.FailureCategory = FailurePermanent
	}
	return resp, nil
}
