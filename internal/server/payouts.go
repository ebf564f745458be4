package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	payoutdomain "github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"go.uber.org/zap"
)

type requestPayoutRequest struct {
	AffiliateID snowflake.ID `json:"affiliate_id"`
	AmountCents int64        `json:"amount_cents"`
	MethodType  string       `json:"method_type"`
}

func (s *Server) RequestPayout(c *gin.Context) {
	var req requestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := authorizeAffiliateScope(c, req.AffiliateID); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.payoutSvc.RequestPayout(c.Request.Context(), payoutdomain.RequestPayoutRequest{
		AffiliateID: req.AffiliateID,
		AmountCents: req.AmountCents,
		MethodType:  strings.TrimSpace(req.MethodType),
	})
	if err != nil {
		if resp.ID != 0 {
			s.log.Warn("payout request failed after claim",
				zap.String("payout_id", resp.ID.String()),
				zap.String("status", string(resp.Status)),
				zap.Error(err),
			)
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayouts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		AffiliateID string `form:"affiliate_id"`
		Status      string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	affiliateID, err := parseOptionalSnowflakeID(query.AffiliateID)
	if err != nil {
		AbortWithError(c, newValidationError("affiliate_id", "invalid_affiliate_id", "invalid affiliate_id"))
		return
	}

	resp, err := s.payoutSvc.ListPayouts(c.Request.Context(), payoutdomain.ListPayoutRequest{
		Pagination:  query.Pagination,
		AffiliateID: affiliateID,
		Status:      strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payouts, "page_info": resp.PageInfo})
}

func (s *Server) GetPayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.payoutSvc.GetPayout(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type completePayoutRequest struct {
	ReferenceNumber string `json:"reference_number"`
}

func (s *Server) CompletePayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req completePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// The approver is always the authenticated caller.
	resp, err := s.payoutSvc.CompletePayout(c.Request.Context(), payoutdomain.CompletePayoutRequest{
		PayoutID:        id,
		ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type rejectPayoutRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectPayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rejectPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.RejectPayout(c.Request.Context(), payoutdomain.RejectPayoutRequest{
		PayoutID: id,
		Reason:   strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type railOutcomeRequest struct {
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
	FailureReason     string `json:"failure_reason"`
}

func (s *Server) ReportRailOutcome(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req railOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.ReportRailOutcome(c.Request.Context(), payoutdomain.RailOutcomeRequest{
		PayoutID:          id,
		Status:            strings.TrimSpace(req.Status),
		ExternalReference: strings.TrimSpace(req.ExternalReference),
		FailureReason:     strings.TrimSpace(req.FailureReason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
