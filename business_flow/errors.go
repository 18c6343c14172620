// Package businessflow contains the core business logic and use cases for click attribution
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Click ledger errors
	ErrClickLogNotFound       = errors.New("click log not found")
	ErrInvalidOriginalURL     = errors.New("original url must be an absolute http(s) url")
	ErrCustomerRefRequired    = errors.New("customer reference is required")
	ErrProductNameRequired    = errors.New("product name is required")
	ErrTotalAmountNotPositive = errors.New("total amount must be greater than zero")

	// Correlation errors
	ErrCorrelationAlreadyRunning = errors.New("a correlation run is already in progress")
	ErrSellerIDRequired          = errors.New("seller id is required")
	ErrMarketplaceFetchFailed    = errors.New("marketplace order fetch failed")
	ErrOrderAlreadyAttributed    = errors.New("order already attributed")

	// Filter errors
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
	ErrInvalidDate           = errors.New("dates must be YYYY-MM-DD or RFC3339")
	ErrDateRangeTooLarge     = errors.New("date range cannot exceed 366 days")
)

// Business error codes surfaced to API clients
const (
	CodeValidationError           = "VALIDATION_ERROR"
	CodeNotFound                  = "NOT_FOUND"
	CodeCorrelationAlreadyRunning = "CORRELATION_ALREADY_RUNNING"
	CodeMarketplaceFetchFailed    = "MARKETPLACE_FETCH_FAILED"
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// newValidationError wraps a sentinel so both IsValidationError and errors.Is match
func newValidationError(err error) *BusinessError {
	return NewBusinessError(CodeValidationError, err.Error(), err)
}

func IsValidationError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be) && be.Code == CodeValidationError
}

func IsClickLogNotFound(err error) bool {
	return errors.Is(err, ErrClickLogNotFound)
}

func IsCorrelationAlreadyRunning(err error) bool {
	return errors.Is(err, ErrCorrelationAlreadyRunning)
}

func IsMarketplaceFetchFailed(err error) bool {
	return errors.Is(err, ErrMarketplaceFetchFailed)
}

func IsOrderAlreadyAttributed(err error) bool {
	return errors.Is(err, ErrOrderAlreadyAttributed)
}
