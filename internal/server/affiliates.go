package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
)

type createAffiliateRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ExternalID string `json:"external_id"`
}

func (s *Server) CreateAffiliate(c *gin.Context) {
	var req createAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.Create(c.Request.Context(), affiliatedomain.CreateAffiliateRequest{
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		ExternalID: strings.TrimSpace(req.ExternalID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAffiliates(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.List(c.Request.Context(), affiliatedomain.ListAffiliateRequest{
		Pagination: query.Pagination,
		Status:     strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Affiliates, "page_info": resp.PageInfo})
}

func (s *Server) GetAffiliate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.affiliateSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type changeAffiliateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (s *Server) ChangeAffiliateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req changeAffiliateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.ChangeStatus(c.Request.Context(), affiliatedomain.ChangeStatusRequest{
		AffiliateID: id,
		Status:      strings.TrimSpace(req.Status),
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createReferralCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) CreateReferralCode(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createReferralCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.CreateReferralCode(c.Request.Context(), affiliatedomain.CreateReferralCodeRequest{
		AffiliateID: id,
		Code:        strings.TrimSpace(req.Code),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReferralCodes(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.affiliateSvc.ListReferralCodes(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateReferralCode(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	codeID, ok := pathID(c, "code_id")
	if !ok {
		return
	}

	if err := s.affiliateSvc.DeactivateReferralCode(c.Request.Context(), id, codeID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetTouchStats(c *gin.Context) {
	if _, ok := pathID(c, "id"); !ok {
		return
	}
	codeID, ok := pathID(c, "code_id")
	if !ok {
		return
	}

	resp, err := s.attributionSvc.TouchStats(c.Request.Context(), codeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type addPayoutMethodRequest struct {
	MethodType  string `json:"method_type"`
	Destination string `json:"destination"`
}

func (s *Server) AddPayoutMethod(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addPayoutMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.AddPayoutMethod(c.Request.Context(), affiliatedomain.AddPayoutMethodRequest{
		AffiliateID: id,
		MethodType:  strings.TrimSpace(req.MethodType),
		Destination: strings.TrimSpace(req.Destination),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayoutMethods(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.affiliateSvc.ListPayoutMethods(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VerifyPayoutMethod(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	methodID, ok := pathID(c, "method_id")
	if !ok {
		return
	}

	resp, err := s.affiliateSvc.VerifyPayoutMethod(c.Request.Context(), id, methodID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type submitTaxDocumentRequest struct {
	TaxYear  int    `json:"tax_year"`
	FormType string `json:"form_type"`
}

func (s *Server) SubmitTaxDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req submitTaxDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.SubmitTaxDocument(c.Request.Context(), affiliatedomain.SubmitTaxDocumentRequest{
		AffiliateID: id,
		TaxYear:     req.TaxYear,
		FormType:    strings.TrimSpace(req.FormType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VerifyTaxDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	docID, ok := pathID(c, "doc_id")
	if !ok {
		return
	}

	resp, err := s.affiliateSvc.VerifyTaxDocument(c.Request.Context(), id, docID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EvaluateEligibility(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := authorizeAffiliateScope(c, id); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.eligibilitySvc.Evaluate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBalance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.commissionSvc.Balance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type upsertProgramRequest struct {
	MinPayoutCents int64  `json:"min_payout_cents"`
	Currency       string `json:"currency"`
	AutoApprove    bool   `json:"auto_approve"`
}

func (s *Server) GetProgram(c *gin.Context) {
	resp, err := s.affiliateSvc.GetProgram(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertProgram(c *gin.Context) {
	var req upsertProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.UpsertProgram(c.Request.Context(), affiliatedomain.UpsertProgramRequest{
		MinPayoutCents: req.MinPayoutCents,
		Currency:       strings.TrimSpace(req.Currency),
		AutoApprove:    req.AutoApprove,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
