package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/auth"
	"github.com/smallbiznis/commissionrail/internal/authorization"
	"github.com/smallbiznis/commissionrail/internal/clock"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/internal/config"
	frauddomain "github.com/smallbiznis/commissionrail/internal/fraud/domain"
	payoutdomain "github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/smallbiznis/commissionrail/internal/testutil"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTenant = snowflake.ID(4200)

type fakePayoutService struct {
	payoutdomain.Service

	requestErr  error
	requests    []payoutdomain.RequestPayoutRequest
	completions []payoutdomain.CompletePayoutRequest
}

func (f *fakePayoutService) RequestPayout(ctx context.Context, req payoutdomain.RequestPayoutRequest) (payoutdomain.Payout, error) {
	_ = ctx
	f.requests = append(f.requests, req)
	if f.requestErr != nil {
		return payoutdomain.Payout{}, f.requestErr
	}
	return payoutdomain.Payout{
		ID:          snowflake.ID(500),
		AffiliateID: req.AffiliateID,
		AmountCents: req.AmountCents,
		Status:      payoutdomain.StatusProcessing,
	}, nil
}

func (f *fakePayoutService) GetPayout(ctx context.Context, id snowflake.ID) (payoutdomain.Payout, error) {
	_ = ctx
	if id != snowflake.ID(500) {
		return payoutdomain.Payout{}, payoutdomain.ErrNotFound
	}
	return payoutdomain.Payout{ID: id, Status: payoutdomain.StatusAwaitingApproval}, nil
}

func (f *fakePayoutService) CompletePayout(ctx context.Context, req payoutdomain.CompletePayoutRequest) (payoutdomain.Payout, error) {
	_ = ctx
	f.completions = append(f.completions, req)
	return payoutdomain.Payout{ID: req.PayoutID, Status: payoutdomain.StatusCompleted, ExternalReference: req.ReferenceNumber}, nil
}

type fakeFraudService struct {
	frauddomain.Service

	resolved []frauddomain.ResolveAlertRequest
}

func (f *fakeFraudService) ResolveAlert(ctx context.Context, req frauddomain.ResolveAlertRequest) (frauddomain.FraudAlert, error) {
	_ = ctx
	f.resolved = append(f.resolved, req)
	if req.Status == string(frauddomain.StatusDismissed) && req.ReverseEvent {
		return frauddomain.FraudAlert{}, frauddomain.ErrReverseRequiresFraud
	}
	return frauddomain.FraudAlert{ID: req.AlertID, Status: frauddomain.Status(req.Status)}, nil
}

type testServer struct {
	engine   *gin.Engine
	verifier *auth.Verifier
	payouts  *fakePayoutService
	fraud    *fakeFraudService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{AuthJWTSecret: "server-test-secret", HTTPPort: "0"}
	verifier, err := auth.NewVerifier(cfg, clk)
	require.NoError(t, err)

	db := testutil.NewDB(t)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	auditSvc := testutil.NewAudit(db, testutil.NewNode(t), clk)
	authzSvc := authorization.NewService(authorization.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		AuditSvc: auditSvc,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		engine:   engine,
		verifier: verifier,
		payouts:  &fakePayoutService{},
		fraud:    &fakeFraudService{},
	}
	srv := NewServer(ServerParams{
		Gin:       engine,
		Cfg:       cfg,
		Log:       zap.NewNop(),
		Verifier:  verifier,
		AuthzSvc:  authzSvc,
		AuditSvc:  auditSvc,
		PayoutSvc: ts.payouts,
		FraudSvc:  ts.fraud,
	})
	srv.RegisterAPIRoutes()
	return ts
}

func (ts *testServer) token(t *testing.T, role string, affiliateID snowflake.ID) string {
	t.Helper()
	raw, err := ts.verifier.Sign(auth.Principal{
		Subject:     role + "-1",
		TenantID:    testTenant,
		Role:        role,
		AffiliateID: affiliateID,
	}, time.Hour)
	require.NoError(t, err)
	return raw
}

func (ts *testServer) do(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestRoutesRequireBearerToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/payouts/500", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Type)

	w = ts.do(t, http.MethodGet, "/api/v1/payouts/500", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetPayout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, auth.RoleFinance, 0)

	w := ts.do(t, http.MethodGet, "/api/v1/payouts/500", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data payoutdomain.Payout `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, snowflake.ID(500), resp.Data.ID)
	assert.Equal(t, payoutdomain.StatusAwaitingApproval, resp.Data.Status)

	w = ts.do(t, http.MethodGet, "/api/v1/payouts/501", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/payouts/abc", token, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decodeError(t, w)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "id", payload.Errors[0].Field)
	assert.Equal(t, "invalid_id", payload.Errors[0].Code)
}

func TestRoleWithoutPermissionIsForbidden(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/payouts", ts.token(t, auth.RoleReviewer, 0),
		`{"affiliate_id":"77","amount_cents":5000,"method_type":"paypal"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, ts.payouts.requests)

	w = ts.do(t, http.MethodPost, "/api/v1/payouts/500/complete", ts.token(t, auth.RoleSystem, 0),
		`{"reference_number":"WIRE-1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, ts.payouts.completions)
}

func TestForbiddenRequestIsAudited(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/payouts/500/complete", ts.token(t, auth.RoleReviewer, 0),
		`{"reference_number":"WIRE-1"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/audit-logs?action="+auditdomain.ActionAuthorizationDenied, ts.token(t, auth.RoleAdmin, 0), "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []auditdomain.AuditLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "reviewer-1", resp.Data[0].ActorID)
	assert.Equal(t, "payout:complete", resp.Data[0].TargetID)

	w = ts.do(t, http.MethodGet, "/api/v1/audit-logs", ts.token(t, auth.RoleFinance, 0), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAffiliateCanOnlyRequestOwnPayout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, auth.RoleAffiliate, snowflake.ID(77))

	w := ts.do(t, http.MethodPost, "/api/v1/payouts", token,
		`{"affiliate_id":"78","amount_cents":5000,"method_type":"paypal"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, ts.payouts.requests)

	w = ts.do(t, http.MethodPost, "/api/v1/payouts", token,
		`{"affiliate_id":"77","amount_cents":5000,"method_type":" paypal "}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.payouts.requests, 1)
	assert.Equal(t, snowflake.ID(77), ts.payouts.requests[0].AffiliateID)
	assert.Equal(t, "paypal", ts.payouts.requests[0].MethodType)

	// Affiliates have no read access to other payout surfaces.
	w = ts.do(t, http.MethodGet, "/api/v1/payouts/500", token, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestPayoutErrorCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{name: "validation", err: payoutdomain.NewError(payoutdomain.CodeValidation, "invalid_amount"), status: http.StatusBadRequest, typ: "validation_error"},
		{name: "insufficient", err: payoutdomain.NewError(payoutdomain.CodeInsufficientBalance, "insufficient_balance"), status: http.StatusConflict, typ: "insufficient_balance"},
		{name: "ineligible", err: payoutdomain.NewError(payoutdomain.CodeIneligible, "tax_document_missing"), status: http.StatusUnprocessableEntity, typ: "ineligible"},
		{name: "no method", err: payoutdomain.NewError(payoutdomain.CodeNoVerifiedMethod, "no_verified_method"), status: http.StatusUnprocessableEntity, typ: "no_verified_method"},
		{name: "rail", err: payoutdomain.NewError(payoutdomain.CodeRailFailure, "rail_timeout"), status: http.StatusBadGateway, typ: "rail_failure"},
		{name: "internal", err: payoutdomain.NewError(payoutdomain.CodeInternal, "boom"), status: http.StatusInternalServerError, typ: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.payouts.requestErr = tc.err

			w := ts.do(t, http.MethodPost, "/api/v1/payouts", ts.token(t, auth.RoleFinance, 0),
				`{"affiliate_id":"77","amount_cents":5000,"method_type":"paypal"}`)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.typ, decodeError(t, w).Type)
		})
	}
}

func TestRequestPayoutRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/payouts", ts.token(t, auth.RoleFinance, 0), `{"affiliate_id":77}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decodeError(t, w)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)
	assert.Empty(t, ts.payouts.requests)
}

func TestCompletePayoutUsesCaller(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/payouts/500/complete", ts.token(t, auth.RoleFinance, 0),
		`{"reference_number":" WIRE-9 "}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.payouts.completions, 1)
	assert.Equal(t, snowflake.ID(500), ts.payouts.completions[0].PayoutID)
	assert.Equal(t, "WIRE-9", ts.payouts.completions[0].ReferenceNumber)
	assert.Empty(t, ts.payouts.completions[0].ApproverID)
}

func TestResolveFraudAlert(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, auth.RoleReviewer, 0)

	w := ts.do(t, http.MethodPatch, "/api/v1/fraud-alerts/900", token,
		`{"status":"confirmed_fraud","resolution_action":"suspend_affiliate","reverse_event":true,"notes":"chargeback ring"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.fraud.resolved, 1)
	got := ts.fraud.resolved[0]
	assert.Equal(t, snowflake.ID(900), got.AlertID)
	assert.Equal(t, "suspend_affiliate", got.ResolutionAction)
	assert.True(t, got.ReverseEvent)

	w = ts.do(t, http.MethodPatch, "/api/v1/fraud-alerts/900", token, `{"status":"dismissed","reverse_event":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/v1/fraud-alerts/900", ts.token(t, auth.RoleFinance, 0), `{"status":"dismissed"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{name: "nil", err: nil, status: http.StatusInternalServerError, typ: "internal_error"},
		{name: "validation errors", err: invalidRequestError(), status: http.StatusBadRequest, typ: "validation_error"},
		{name: "domain validation", err: affiliatedomain.ErrInvalidEmail, status: http.StatusBadRequest, typ: "validation_error"},
		{name: "bad page token", err: pagination.ErrInvalidPageToken, status: http.StatusBadRequest, typ: "validation_error"},
		{name: "missing token", err: auth.ErrMissingToken, status: http.StatusUnauthorized, typ: "unauthorized"},
		{name: "wrapped invalid token", err: errors.Join(auth.ErrInvalidToken, errors.New("expired")), status: http.StatusUnauthorized, typ: "unauthorized"},
		{name: "authz forbidden", err: authorization.ErrForbidden, status: http.StatusForbidden, typ: "forbidden"},
		{name: "not found", err: commissiondomain.ErrNotFound, status: http.StatusNotFound, typ: "not_found"},
		{name: "terminal", err: commissiondomain.ErrTerminalState, status: http.StatusConflict, typ: "conflict"},
		{name: "already resolved", err: frauddomain.ErrAlreadyResolved, status: http.StatusConflict, typ: "conflict"},
		{name: "code limit", err: affiliatedomain.ErrReferralCodeLimit, status: http.StatusUnprocessableEntity, typ: "unprocessable"},
		{name: "payout coded", err: payoutdomain.NewError(payoutdomain.CodeRailFailure, "rail_timeout"), status: http.StatusBadGateway, typ: "rail_failure"},
		{name: "rate limited", err: ErrRateLimited, status: http.StatusTooManyRequests, typ: "rate_limited"},
		{name: "unknown", err: errors.New("disk on fire"), status: http.StatusInternalServerError, typ: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
		})
	}
}

func TestMapErrorDomainValidationField(t *testing.T) {
	_, payload := mapError(frauddomain.ErrInvalidSeverity)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "severity", payload.Errors[0].Field)
	assert.Equal(t, "invalid_severity", payload.Errors[0].Code)

	_, payload = mapError(pagination.ErrInvalidPageToken)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "page_token", payload.Errors[0].Field)
}
