package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
)

type createCommissionEventRequest struct {
	AffiliateID           snowflake.ID `json:"affiliate_id"`
	EventAmountCents      int64        `json:"event_amount_cents"`
	CommissionAmountCents int64        `json:"commission_amount_cents"`
	Currency              string       `json:"currency"`
	OccurredAt            time.Time    `json:"occurred_at"`
	SourceReference       string       `json:"source_reference"`
}

func (s *Server) CreateCommissionEvent(c *gin.Context) {
	var req createCommissionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.CreateEvent(c.Request.Context(), commissiondomain.CreateEventRequest{
		AffiliateID:           req.AffiliateID,
		EventAmountCents:      req.EventAmountCents,
		CommissionAmountCents: req.CommissionAmountCents,
		Currency:              strings.TrimSpace(req.Currency),
		OccurredAt:            req.OccurredAt,
		SourceReference:       strings.TrimSpace(req.SourceReference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCommissionEvents(c *gin.Context) {
	var query struct {
		pagination.Pagination
		AffiliateID string `form:"affiliate_id"`
		PayoutID    string `form:"payout_id"`
		Status      string `form:"status"`
		Claimed     string `form:"claimed"`
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
	payoutID, err := parseOptionalSnowflakeID(query.PayoutID)
	if err != nil {
		AbortWithError(c, newValidationError("payout_id", "invalid_payout_id", "invalid payout_id"))
		return
	}
	claimed, err := parseOptionalBool(query.Claimed)
	if err != nil {
		AbortWithError(c, newValidationError("claimed", "invalid_claimed", "invalid claimed"))
		return
	}

	resp, err := s.commissionSvc.ListEvents(c.Request.Context(), commissiondomain.ListEventRequest{
		Pagination:  query.Pagination,
		AffiliateID: affiliateID,
		PayoutID:    payoutID,
		Status:      strings.TrimSpace(query.Status),
		Claimed:     claimed,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Events, "page_info": resp.PageInfo})
}

func (s *Server) GetCommissionEvent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.commissionSvc.GetEvent(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveCommissionEvent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.commissionSvc.ApproveEvent(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type reverseCommissionEventRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ReverseCommissionEvent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reverseCommissionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.ReverseEvent(c.Request.Context(), commissiondomain.ReverseEventRequest{
		EventID: id,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
