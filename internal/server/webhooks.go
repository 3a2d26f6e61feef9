package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/connectpay/internal/webhook/domain"
)

// HandleStripeWebhook verifies the signature at the boundary, then always
// acknowledges. An event that fails internally is logged and acked so the
// processor does not disable the endpoint over our own bugs.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, webhookdomain.ErrInvalidPayload)
		return
	}

	if err := s.webhookSvc.VerifySignature(payload, c.GetHeader("Stripe-Signature")); err != nil {
		AbortWithError(c, err)
		return
	}

	result := s.webhookSvc.ProcessEvent(c.Request.Context(), payload)
	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"result":   result,
	})
}
