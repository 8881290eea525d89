package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrorTypeNotAuthorized ErrorType = "NOT_AUTHORIZED"
	ErrorTypeInvalidState  ErrorType = "INVALID_STATE"
	ErrorTypeDuplicate     ErrorType = "DUPLICATE_NUMBER"
	ErrorTypeBudgetConfig  ErrorType = "BUDGET_CONFIG_ERROR"
	ErrorTypeRateLimited   ErrorType = "RATE_LIMITED"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCategory  ErrorCode = "INVALID_CATEGORY"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidDate      ErrorCode = "INVALID_DATE"
	ErrCodeInvalidRole      ErrorCode = "INVALID_ROLE"
	ErrCodeInvalidLevel     ErrorCode = "INVALID_LEVEL"

	ErrCodeExpenseNotFound ErrorCode = "EXPENSE_NOT_FOUND"
	ErrCodeSiteNotFound    ErrorCode = "SITE_NOT_FOUND"
	ErrCodeUserNotFound    ErrorCode = "USER_NOT_FOUND"
	ErrCodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"

	ErrCodeNotAuthorized ErrorCode = "NOT_AUTHORIZED"

	ErrCodeInvalidState             ErrorCode = "INVALID_STATE"
	ErrCodeConcurrentModification   ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeNoActiveApprovers        ErrorCode = "NO_ACTIVE_APPROVERS"
	ErrCodePaymentAlreadyProcessed  ErrorCode = "PAYMENT_ALREADY_PROCESSED"
	ErrCodeDuplicateExpenseNumber   ErrorCode = "DUPLICATE_EXPENSE_NUMBER"
	ErrCodeBudgetConfigInvalid      ErrorCode = "BUDGET_CONFIG_INVALID"
	ErrCodeDuplicateSiteCode        ErrorCode = "DUPLICATE_SITE_CODE"
	ErrCodeDuplicateEmail           ErrorCode = "DUPLICATE_EMAIL"
	ErrCodeRateLimited              ErrorCode = "RATE_LIMITED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidCredentials       ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive             ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken             ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired             ErrorCode = "TOKEN_EXPIRED"
	ErrCodeUnauthenticated          ErrorCode = "UNAUTHENTICATED"
	ErrCodeMissingSiteForSiteScoped ErrorCode = "SITE_REQUIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so sentinel comparisons survive freshly built errors.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func (e *AppError) WithMessage(message string) *AppError {
	clone := *e
	clone.Message = message
	return &clone
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewNotAuthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotAuthorized,
		Code:       ErrCodeNotAuthorized,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInvalidStateError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidState,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewDuplicateNumberError(number string) *AppError {
	return &AppError{
		Type:       ErrorTypeDuplicate,
		Code:       ErrCodeDuplicateExpenseNumber,
		Message:    fmt.Sprintf("expense number %s already exists", number),
		StatusCode: http.StatusConflict,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeDuplicate,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewBudgetConfigError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBudgetConfig,
		Code:       ErrCodeBudgetConfigInvalid,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Code:       ErrCodeRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrExpenseNotFound = NewNotFoundError("expense not found", ErrCodeExpenseNotFound)
	ErrSiteNotFound    = NewNotFoundError("site not found", ErrCodeSiteNotFound)
	ErrUserNotFound    = NewNotFoundError("user not found", ErrCodeUserNotFound)
	ErrPaymentNotFound = NewNotFoundError("payment not found", ErrCodePaymentNotFound)

	ErrNotAuthorized          = NewNotAuthorizedError("actor is not authorized for this action")
	ErrInvalidState           = NewInvalidStateError("operation not allowed in current status", ErrCodeInvalidState)
	ErrConcurrentModification = NewInvalidStateError("expense was modified concurrently", ErrCodeConcurrentModification)
	ErrNoActiveApprovers      = NewInvalidStateError("no active approvers for the next level", ErrCodeNoActiveApprovers)
	ErrPaymentProcessed       = NewInvalidStateError("payment already processed", ErrCodePaymentAlreadyProcessed)
	ErrBudgetConfig           = NewBudgetConfigError("site approval thresholds must satisfy auto < l1 < l2 < l3")

	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewUnauthorizedError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrUnauthenticated    = NewUnauthorizedError("missing or invalid credentials", ErrCodeUnauthenticated)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func hasType(err error, t ErrorType) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}

func IsValidation(err error) bool    { return hasType(err, ErrorTypeValidation) }
func IsNotFound(err error) bool      { return hasType(err, ErrorTypeNotFound) }
func IsNotAuthorized(err error) bool { return hasType(err, ErrorTypeNotAuthorized) }
func IsInvalidState(err error) bool  { return hasType(err, ErrorTypeInvalidState) }
func IsDuplicate(err error) bool     { return hasType(err, ErrorTypeDuplicate) }
func IsBudgetConfig(err error) bool  { return hasType(err, ErrorTypeBudgetConfig) }

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
