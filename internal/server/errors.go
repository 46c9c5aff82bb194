package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
	"github.com/smallbiznis/hera/internal/smartcode"
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
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Errors  []ValidationError      `json:"errors,omitempty"`
	Summary *postingdomain.Summary `json:"summary,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

const (
	typeValidation  = "validation_error"
	typeNotFound    = "not_found"
	typeForbidden   = "forbidden"
	typeConflict    = "conflict"
	typeUnprocessed = "unprocessable"
	typeInternal    = "internal_error"
)

// codeStatus maps domain error codes to HTTP statuses. Codes prefixed with
// "invalid_" are validation failures unless listed here.
var codeStatus = map[string]int{
	"invalid_request":             http.StatusBadRequest,
	"smart_code_invalid":          http.StatusBadRequest,
	"self_relationship":           http.StatusBadRequest,
	"missing_entity_id":           http.StatusBadRequest,
	"unauthorized":                http.StatusUnauthorized,
	"forbidden":                   http.StatusForbidden,
	"not_found":                   http.StatusNotFound,
	"organization_inactive":       http.StatusNotFound,
	"entity_referenced":           http.StatusConflict,
	"duplicate_entity_code":       http.StatusConflict,
	"duplicate_transaction_code":  http.StatusConflict,
	"duplicate_organization_code": http.StatusConflict,
	"already_posted":              http.StatusConflict,
	"transaction_not_draft":       http.StatusConflict,
	"invalid_status_transition":   http.StatusConflict,
	"unbalanced_journal":          http.StatusUnprocessableEntity,
	"lines_immutable":             http.StatusUnprocessableEntity,
	"no_sales_found":              http.StatusUnprocessableEntity,
	"no_policy":                   http.StatusUnprocessableEntity,
	"invalid_policy":              http.StatusUnprocessableEntity,
	"currency_mismatch":           http.StatusUnprocessableEntity,
	"negative_net_sales":          http.StatusUnprocessableEntity,
}

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

func invalidRequestError(message string) error {
	return newValidationError("request", "invalid_request", message)
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
			Type:    typeInternal,
			Code:    strings.ToUpper(ErrInternal.Error()),
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		code := "INVALID_REQUEST"
		message := "invalid request"
		if len(vErr.Errors) > 0 {
			code = strings.ToUpper(vErr.Errors[0].Code)
			message = vErr.Errors[0].Message
		}
		return http.StatusBadRequest, errorPayload{
			Type:    typeValidation,
			Code:    code,
			Message: message,
			Errors:  vErr.Errors,
		}
	}

	code := errorCode(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		return status, errorPayload{
			Type:    typeInternal,
			Code:    strings.ToUpper(ErrInternal.Error()),
			Message: "internal server error",
		}
	}

	payload := errorPayload{
		Type:    typeForStatus(status),
		Code:    strings.ToUpper(code),
		Message: err.Error(),
		Summary: postingdomain.SummaryOf(err),
	}
	for _, v := range smartcode.Violations(err) {
		payload.Errors = append(payload.Errors, ValidationError{
			Field:   smartCodeField(err),
			Code:    string(v.Rule),
			Message: v.Message,
		})
	}
	return status, payload
}

// errorCode is the message of the innermost wrapped error, which for domain
// failures is the sentinel's snake_case code.
func errorCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func statusForCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, "invalid_") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func typeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return typeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return typeForbidden
	case http.StatusNotFound:
		return typeNotFound
	case http.StatusConflict:
		return typeConflict
	case http.StatusUnprocessableEntity:
		return typeUnprocessed
	default:
		return typeInternal
	}
}

func smartCodeField(err error) string {
	var scErr *smartcode.Error
	if errors.As(err, &scErr) && scErr.Field != "" {
		return scErr.Field
	}
	return "smart_code"
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return typeInternal, strings.ToUpper(ErrInternal.Error())
	}
	return payload.Type, payload.Code
}
