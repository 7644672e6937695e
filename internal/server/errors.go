package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	assistantdomain "github.com/smallbiznis/creditledger/internal/assistant/domain"
	"github.com/smallbiznis/creditledger/internal/authorization"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
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

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
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

	if code, ok := validationErrorCode(err); ok {
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

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, usagedomain.ErrUsageBlocked):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "usage_blocked",
			Message: "daily free limit reached and no credits remaining",
		}
	case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "wallet balance is too low",
		}
	case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: "no credits remaining",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrGatewayRejected):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_rejected",
			Message: "payment gateway rejected the request",
		}
	case errors.Is(err, assistantdomain.ErrInferenceRejected),
		errors.Is(err, assistantdomain.ErrEmptyReply):
		return http.StatusBadGateway, errorPayload{
			Type:    "assistant_failed",
			Message: "assistant could not answer",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment gateway unavailable",
		}
	case errors.Is(err, assistantdomain.ErrInferenceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "assistant_unavailable",
			Message: "assistant unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type and error_code on the request log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	switch {
	case status >= http.StatusInternalServerError:
		return "server", code
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth", code
	default:
		return "client", code
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = [][]error{
	{ErrInvalidRequest, pagination.ErrInvalidPageToken},
	ledgerValidationErrors,
	catalogValidationErrors,
	purchaseValidationErrors,
	paymentValidationErrors,
	assistantValidationErrors,
	{usagedomain.ErrInvalidMode},
	{authorization.ErrInvalidRole, authorization.ErrInvalidObject, authorization.ErrInvalidAction},
}

var ledgerValidationErrors = []error{
	ledgerdomain.ErrInvalidUser,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidCredits,
	ledgerdomain.ErrInvalidDirection,
	ledgerdomain.ErrInvalidPurpose,
}

var catalogValidationErrors = []error{
	catalogdomain.ErrInvalidID,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidCredits,
	catalogdomain.ErrInvalidPrice,
	catalogdomain.ErrInvalidRate,
	catalogdomain.ErrInvalidQuote,
	catalogdomain.ErrBundleInactive,
}

var purchaseValidationErrors = []error{
	purchasedomain.ErrInvalidOrder,
	purchasedomain.ErrInvalidIdempotencyKey,
}

var paymentValidationErrors = []error{
	paymentdomain.ErrInvalidSignature,
	paymentdomain.ErrInvalidRequest,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
	paymentdomain.ErrInvalidProvider,
}

var assistantValidationErrors = []error{
	assistantdomain.ErrInvalidMessage,
	assistantdomain.ErrMessageTooLong,
}

// validationErrorCode returns the code of the first validation sentinel
// err wraps.
func validationErrorCode(err error) (string, bool) {
	for _, group := range validationSentinels {
		for _, sentinel := range group {
			if errors.Is(err, sentinel) {
				return sentinel.Error(), true
			}
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrBundleNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, ledgerdomain.ErrInvalidTransition),
		errors.Is(err, ledgerdomain.ErrDuplicatePurchase),
		errors.Is(err, catalogdomain.ErrDuplicateSlug),
		errors.Is(err, purchasedomain.ErrReceiptUnavailable):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_signature":
		return "razorpay_signature"
	case "message_too_long":
		return "message"
	case "bundle_inactive":
		return "bundle_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_signature":
		return "payment signature does not match"
	case "message_too_long":
		return "message is too long"
	case "bundle_inactive":
		return "bundle is not available"
	default:
		return "invalid value"
	}
}
