package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	payoutservice "github.com/smallbiznis/connectpay/internal/payout/service"
)

type instantPayoutRequest struct {
	Amount      float64 `json:"amount"`
	Destination string  `json:"destination"`
}

func (s *Server) RequestInstantPayout(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	var body instantPayoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	if body.Amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}

	resp, err := s.payoutSvc.RequestInstantPayout(c.Request.Context(), payoutservice.InstantPayoutRequest{
		OrgID:       orgID,
		Amount:      body.Amount,
		Destination: body.Destination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetBalance(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	balance, err := s.payoutSvc.GetBalance(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) ListPayouts(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	payouts, err := s.payoutSvc.ListPayouts(c.Request.Context(), orgID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payouts})
}
