package stripeconnect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatchRequest() domain.DispatchRequest {
	return domain.DispatchRequest{
		PayoutID:       snowflake.ID(101),
		TenantID:       snowflake.ID(7),
		AffiliateID:    snowflake.ID(42),
		MethodType:     "stripe_connect",
		Destination:    "acct_123",
		NetAmountCents: 3500,
		Currency:       "USD",
	}
}

func TestDispatchCreatesTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "payout_101", r.Header.Get("Idempotency-Key"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "3500", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "acct_123", r.PostForm.Get("destination"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[affiliate_id]"))
		assert.Equal(t, "7", r.PostForm.Get("metadata[tenant_id]"))
		assert.Equal(t, "101", r.PostForm.Get("metadata[payout_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"tr_1","amount":3500,"currency":"usd","destination":"acct_123"}`))
	}))
	defer server.Close()

	rail := NewWithClient(config.StripeConfig{SecretKey: "sk_test", BaseURL: server.URL}, server.Client())
	result, err := rail.Dispatch(context.Background(), dispatchRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, result.Status)
	assert.Equal(t, "tr_1", result.ExternalReference)
	assert.Equal(t, "tr_1", result.Metadata["transfer_id"])
}

func TestDispatchSurfacesStripeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"balance_insufficient","message":"Insufficient funds"}}`))
	}))
	defer server.Close()

	rail := NewWithClient(config.StripeConfig{SecretKey: "sk_test", BaseURL: server.URL}, server.Client())
	_, err := rail.Dispatch(context.Background(), dispatchRequest())

	var railErr *domain.RailError
	require.ErrorAs(t, err, &railErr)
	assert.Equal(t, http.StatusBadRequest, railErr.StatusCode)
	assert.Equal(t, "balance_insufficient", railErr.Code)
	assert.Equal(t, "Insufficient funds", railErr.Message)
}

func TestDispatchHonoursContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	rail := NewWithClient(config.StripeConfig{SecretKey: "sk_test", BaseURL: server.URL}, server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rail.Dispatch(ctx, dispatchRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatchRequiresSecretKey(t *testing.T) {
	rail := NewWithClient(config.StripeConfig{}, nil)
	_, err := rail.Dispatch(context.Background(), dispatchRequest())

	var railErr *domain.RailError
	require.ErrorAs(t, err, &railErr)
}
