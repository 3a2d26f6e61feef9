package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	connectdomain "github.com/smallbiznis/connectpay/internal/connect/domain"
	"github.com/smallbiznis/connectpay/internal/fees"
	invoicedomain "github.com/smallbiznis/connectpay/internal/invoice/domain"
	orgdomain "github.com/smallbiznis/connectpay/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/connectpay/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/connectpay/internal/payout/domain"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	reconciliationdomain "github.com/smallbiznis/connectpay/internal/reconciliation/domain"
	webhookdomain "github.com/smallbiznis/connectpay/internal/webhook/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var processorErr *stripe.Error
	if errors.As(err, &processorErr) {
		return http.StatusBadGateway, errorPayload{
			Type:    "processor_error",
			Message: processorErr.Message,
		}
	}

	switch {
	case errors.Is(err, connectdomain.ErrPlatformOnboardingDisabled):
		return http.StatusBadGateway, errorPayload{
			Type:    "processor_error",
			Message: "platform_onboarding_disabled",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orgdomain.ErrInvalidOrganization),
		errors.Is(err, fees.ErrBelowMinimum),
		errors.Is(err, paymentdomain.ErrOrgMismatch),
		errors.Is(err, paymentdomain.ErrAmountMismatch),
		errors.Is(err, payoutdomain.ErrNotEligible),
		errors.Is(err, payoutdomain.ErrInsufficientBalance),
		errors.Is(err, webhookdomain.ErrInvalidSignature),
		errors.Is(err, webhookdomain.ErrInvalidPayload):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, orgdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, orgdomain.ErrNotReady),
		errors.Is(err, paymentdomain.ErrAlreadyPaid),
		errors.Is(err, payoutdomain.ErrPayoutInProgress),
		errors.Is(err, reconciliationdomain.ErrSweepInProgress):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "below_minimum", "insufficient_balance":
		return "amount"
	case "invoice_org_mismatch", "invoice_amount_mismatch":
		return "invoice_id"
	case "invalid_signature", "invalid_payload":
		return "payload"
	default:
		if strings.HasPrefix(code, "invalid_") {
			return strings.TrimPrefix(code, "invalid_")
		}
		return ""
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "below_minimum":
		return "amount is below the minimum viable amount"
	case "insufficient_balance":
		return "instant-available balance is below the requested amount"
	case "instant_payout_not_eligible":
		return "no instant-available balance on the connected account"
	case "invoice_amount_mismatch":
		return "amount does not match the invoice balance due"
	case "invoice_org_mismatch":
		return "invoice belongs to a different organization"
	case "invalid_signature":
		return "webhook signature verification failed"
	default:
		return "invalid value"
	}
}
