package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	attributiondomain "github.com/smallbiznis/commissionrail/internal/attribution/domain"
)

type recordTouchRequest struct {
	ReferralCode       string     `json:"referral_code"`
	TouchType          string     `json:"touch_type"`
	VisitorFingerprint string     `json:"visitor_fingerprint"`
	ConvertedAt        *time.Time `json:"converted_at"`
}

func (s *Server) RecordTouch(c *gin.Context) {
	var req recordTouchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.attributionSvc.RecordTouch(c.Request.Context(), attributiondomain.RecordTouchRequest{
		ReferralCode:       strings.TrimSpace(req.ReferralCode),
		TouchType:          strings.TrimSpace(req.TouchType),
		VisitorFingerprint: strings.TrimSpace(req.VisitorFingerprint),
		ConvertedAt:        req.ConvertedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type recordConversionRequest struct {
	ReferralCode       string    `json:"referral_code"`
	AmountCents        int64     `json:"amount_cents"`
	Currency           string    `json:"currency"`
	OccurredAt         time.Time `json:"occurred_at"`
	SourceReference    string    `json:"source_reference"`
	VisitorFingerprint string    `json:"visitor_fingerprint"`
}

func (s *Server) RecordConversion(c *gin.Context) {
	var req recordConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.attributionSvc.RecordConversion(c.Request.Context(), attributiondomain.RecordConversionRequest{
		ReferralCode:       strings.TrimSpace(req.ReferralCode),
		AmountCents:        req.AmountCents,
		Currency:           strings.TrimSpace(req.Currency),
		OccurredAt:         req.OccurredAt,
		SourceReference:    strings.TrimSpace(req.SourceReference),
		VisitorFingerprint: strings.TrimSpace(req.VisitorFingerprint),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createPlanRequest struct {
	Name      string `json:"name"`
	PlanType  string `json:"plan_type"`
	FlatCents int64  `json:"flat_cents"`
	RateBps   int64  `json:"rate_bps"`
	AppliesTo string `json:"applies_to"`
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.attributionSvc.CreatePlan(c.Request.Context(), attributiondomain.CreatePlanRequest{
		Name:      strings.TrimSpace(req.Name),
		PlanType:  strings.TrimSpace(req.PlanType),
		FlatCents: req.FlatCents,
		RateBps:   req.RateBps,
		AppliesTo: strings.TrimSpace(req.AppliesTo),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPlans(c *gin.Context) {
	resp, err := s.attributionSvc.ListPlans(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type assignPlanRequest struct {
	AffiliateID   snowflake.ID `json:"affiliate_id"`
	EffectiveFrom time.Time    `json:"effective_from"`
	EffectiveTo   *time.Time   `json:"effective_to"`
}

func (s *Server) AssignPlan(c *gin.Context) {
	planID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.AffiliateID <= 0 {
		AbortWithError(c, newValidationError("affiliate_id", "invalid_affiliate_id", "invalid affiliate_id"))
		return
	}

	resp, err := s.attributionSvc.AssignPlan(c.Request.Context(), attributiondomain.AssignPlanRequest{
		PlanID:        planID,
		AffiliateID:   req.AffiliateID,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
