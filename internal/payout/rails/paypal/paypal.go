package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/payout/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	railName       = "paypal"
	defaultBaseURL = "https://api-m.sandbox.paypal.com"
)

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutItem struct {
	RecipientType string `json:"recipient_type"`
	Amount        amount `json:"amount"`
	Receiver      string `json:"receiver"`
	SenderItemID  string `json:"sender_item_id"`
	Note          string `json:"note,omitempty"`
}

type senderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject,omitempty"`
	RecipientType string `json:"recipient_type"`
}

type createPayoutRequest struct {
	SenderBatchHeader senderBatchHeader `json:"sender_batch_header"`
	Items             []payoutItem      `json:"items"`
}

type createPayoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Rail submits single-item PayPal payout batches.
type Rail struct {
	baseURL string
	client  *http.Client
	creds   *clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

func New(cfg config.Config) *Rail {
	return NewWithClient(cfg.PayPal, &http.Client{Timeout: 12 * time.Second})
}

func NewWithClient(cfg config.PayPalConfig, client *http.Client) *Rail {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Rail{
		baseURL: baseURL,
		client:  client,
		creds: &clientcredentials.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			TokenURL:     baseURL + "/v1/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
	}
}

// SenderBatchID is derived from the payout id so a retried submission is
// deduplicated by PayPal.
func SenderBatchID(req domain.DispatchRequest) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.IdempotencyKey())).String()
}

func (r *Rail) Dispatch(ctx context.Context, req domain.DispatchRequest) (domain.DispatchResult, error) {
	if r.creds.ClientID == "" || r.creds.ClientSecret == "" {
		return domain.DispatchResult{}, &domain.RailError{Rail: railName, Message: "client credentials not configured"}
	}

	token, err := r.accessToken(ctx)
	if err != nil {
		return domain.DispatchResult{}, err
	}

	batchID := SenderBatchID(req)
	payload, err := json.Marshal(createPayoutRequest{
		SenderBatchHeader: senderBatchHeader{
			SenderBatchID: batchID,
			EmailSubject:  "You have a commission payout",
			RecipientType: "EMAIL",
		},
		Items: []payoutItem{{
			RecipientType: "EMAIL",
			Amount: amount{
				Value:    formatMinorUnits(req.NetAmountCents),
				Currency: strings.ToUpper(req.Currency),
			},
			Receiver:     req.Destination,
			SenderItemID: req.IdempotencyKey(),
			Note:         "affiliate " + req.AffiliateID.String(),
		}},
	})
	if err != nil {
		return domain.DispatchResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/payments/payouts", bytes.NewReader(payload))
	if err != nil {
		return domain.DispatchResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(httpReq)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode == http.StatusUnauthorized {
			r.resetToken()
		}
		railErr := &domain.RailError{Rail: railName, StatusCode: resp.StatusCode, Message: "paypal_request_failed"}
		var body errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			if message := strings.TrimSpace(body.Message); message != "" {
				railErr.Message = message
			}
			railErr.Code = body.Name
		}
		return domain.DispatchResult{}, railErr
	}

	var created createPayoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return domain.DispatchResult{}, err
	}
	if created.BatchHeader.PayoutBatchID == "" {
		return domain.DispatchResult{}, &domain.RailError{Rail: railName, StatusCode: resp.StatusCode, Message: "paypal_response_invalid"}
	}

	return domain.DispatchResult{
		Status:            domain.StatusProcessing,
		ExternalReference: created.BatchHeader.PayoutBatchID,
		Metadata: map[string]any{
			"rail":            railName,
			"payout_batch_id": created.BatchHeader.PayoutBatchID,
			"batch_status":    created.BatchHeader.BatchStatus,
			"sender_batch_id": batchID,
		},
	}, nil
}

func (r *Rail) accessToken(ctx context.Context) (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token.Valid() {
		return r.token, nil
	}

	token, err := r.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, r.client))
	if err != nil {
		return nil, fmt.Errorf("paypal token: %w", err)
	}
	r.token = token
	return token, nil
}

func (r *Rail) resetToken() {
	r.mu.Lock()
	r.token = nil
	r.mu.Unlock()
}

func formatMinorUnits(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
