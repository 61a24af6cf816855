package market

import (
	"errors"
	"fmt"
)

// User-facing messages. They deliberately omit upstream detail.
const (
	MsgAccount   = "Failed to fetch account data. Please try again later."
	MsgPositions = "Failed to fetch positions. Please try again later."
	MsgOrders    = "Failed to fetch orders. Please try again later."
	MsgPlace     = "Failed to place order. Please check your input and try again."
)

// MsgBars is the message for a failed price history fetch.
func MsgBars(symbol string) string {
	return fmt.Sprintf("Failed to fetch price history for %s. Please try again later.", symbol)
}

// MsgMarketData keeps the cause in the message, unlike the other operations.
func MsgMarketData(cause error) string {
	detail := "Unknown error occurred"
	if cause != nil {
		detail = cause.Error()
	}
	return "Failed to fetch market data: " + detail
}

// ValidationError reports bad input or a malformed payload. It is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// DomainError is the only error the UI is expected to display.
// Err keeps the underlying failure for logs and errors.As.
type DomainError struct {
	Op      string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Wrap builds a DomainError for op. A nil err returns nil.
func Wrap(op, message string, err error) error {
	if err == nil {
		return nil
	}
	return &DomainError{Op: op, Message: message, Err: err}
}

// IsValidation reports whether err was caused by a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UserMessage returns the text a user should see for err.
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
