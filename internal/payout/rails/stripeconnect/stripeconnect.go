package stripeconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/payout/domain"
)

const (
	railName       = "stripe_connect"
	defaultBaseURL = "https://api.stripe.com"
)

type transfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Rail creates platform transfers to connected accounts.
type Rail struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func New(cfg config.Config) *Rail {
	return NewWithClient(cfg.Stripe, &http.Client{Timeout: 12 * time.Second})
}

func NewWithClient(cfg config.StripeConfig, client *http.Client) *Rail {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Rail{
		secretKey: strings.TrimSpace(cfg.SecretKey),
		baseURL:   baseURL,
		client:    client,
	}
}

func (r *Rail) Dispatch(ctx context.Context, req domain.DispatchRequest) (domain.DispatchResult, error) {
	if r.secretKey == "" {
		return domain.DispatchResult{}, &domain.RailError{Rail: railName, Message: "secret key not configured"}
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.NetAmountCents, 10))
	values.Set("currency", strings.ToLower(req.Currency))
	values.Set("destination", req.Destination)
	values.Set("transfer_group", req.IdempotencyKey())
	values.Set("metadata[payout_id]", req.PayoutID.String())
	values.Set("metadata[affiliate_id]", req.AffiliateID.String())
	values.Set("metadata[tenant_id]", req.TenantID.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/transfers", strings.NewReader(values.Encode()))
	if err != nil {
		return domain.DispatchResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey())

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		railErr := &domain.RailError{Rail: railName, StatusCode: resp.StatusCode, Message: "stripe_request_failed"}
		var body errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			if message := strings.TrimSpace(body.Error.Message); message != "" {
				railErr.Message = message
			}
			railErr.Code = body.Error.Code
		}
		return domain.DispatchResult{}, railErr
	}

	var created transfer
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return domain.DispatchResult{}, err
	}
	if created.ID == "" {
		return domain.DispatchResult{}, &domain.RailError{Rail: railName, StatusCode: resp.StatusCode, Message: "stripe_response_invalid"}
	}

	return domain.DispatchResult{
		Status:            domain.StatusProcessing,
		ExternalReference: created.ID,
		Metadata: map[string]any{
			"rail":        railName,
			"transfer_id": created.ID,
			"amount":      created.Amount,
			"currency":    created.Currency,
			"destination": created.Destination,
		},
	}, nil
}
