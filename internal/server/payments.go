package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentservice "github.com/smallbiznis/connectpay/internal/payment/service"
)

type createPaymentRequest struct {
	Amount    float64           `json:"amount"`
	InvoiceID string            `json:"invoice_id"`
	Metadata  map[string]string `json:"metadata"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	var body createPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	if body.Amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}

	req := paymentservice.CreatePaymentRequest{
		OrgID:    orgID,
		Amount:   body.Amount,
		Metadata: body.Metadata,
	}
	if body.InvoiceID != "" {
		invoiceID, err := snowflake.ParseString(body.InvoiceID)
		if err != nil {
			AbortWithError(c, newValidationError("invoice_id", "invalid_invoice_id", "invalid invoice id"))
			return
		}
		req.InvoiceID = &invoiceID
	}

	resp, err := s.paymentSvc.CreatePayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListPayments(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	payments, err := s.paymentSvc.ListPayments(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payments})
}
