package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	frauddomain "github.com/smallbiznis/commissionrail/internal/fraud/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
)

type createFraudAlertRequest struct {
	AffiliateID       snowflake.ID   `json:"affiliate_id"`
	CommissionEventID *snowflake.ID  `json:"commission_event_id"`
	AlertType         string         `json:"alert_type"`
	Severity          string         `json:"severity"`
	Details           map[string]any `json:"details"`
}

func (s *Server) CreateFraudAlert(c *gin.Context) {
	var req createFraudAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.fraudSvc.CreateAlert(c.Request.Context(), frauddomain.CreateAlertRequest{
		AffiliateID:       req.AffiliateID,
		CommissionEventID: req.CommissionEventID,
		AlertType:         strings.TrimSpace(req.AlertType),
		Severity:          strings.TrimSpace(req.Severity),
		Details:           req.Details,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListFraudAlerts(c *gin.Context) {
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

	resp, err := s.fraudSvc.ListAlerts(c.Request.Context(), frauddomain.ListAlertRequest{
		Pagination:  query.Pagination,
		AffiliateID: affiliateID,
		Status:      strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Alerts, "page_info": resp.PageInfo})
}

func (s *Server) GetFraudAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.fraudSvc.GetAlert(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type resolveFraudAlertRequest struct {
	Status           string `json:"status"`
	ResolutionAction string `json:"resolution_action"`
	ReverseEvent     bool   `json:"reverse_event"`
	Notes            string `json:"notes"`
}

func (s *Server) ResolveFraudAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req resolveFraudAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.fraudSvc.ResolveAlert(c.Request.Context(), frauddomain.ResolveAlertRequest{
		AlertID:          id,
		Status:           strings.TrimSpace(req.Status),
		ResolutionAction: strings.TrimSpace(req.ResolutionAction),
		ReverseEvent:     req.ReverseEvent,
		Notes:            strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
