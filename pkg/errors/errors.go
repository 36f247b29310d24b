package pkgerrors

import (
	"errors"
	"fmt"
)

const (
	CodeNonExistingKey   = -1001
	CodeMissingSignature = -2001
	CodeInvalidSignature = -2002
	CodeMissingBody      = -2003
	CodeInvalidPayload   = -2004
	CodePermanent        = -3001
	CodeUnknown          = -9999
)

type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

var (
	ErrNonExistingKey   = &AppError{Code: CodeNonExistingKey, Message: "non-existing key"}
	ErrMissingSignature = &AppError{Code: CodeMissingSignature, Message: "Missing Stripe-Signature"}
	ErrMissingBody      = &AppError{Code: CodeMissingBody, Message: "Missing raw body"}
)

func NewNonExistingKeyError(err error) *AppError {
	return &AppError{
		Code:    CodeNonExistingKey,
		Message: "key does not exist",
		Err:     err,
	}
}

func NewInvalidSignatureError(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidSignature,
		Message: "Invalid signature",
		Err:     err,
	}
}

func NewInvalidPayloadError(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidPayload,
		Message: "invalid event payload",
		Err:     err,
	}
}

// NewPermanentError marks err as not worth retrying.
func NewPermanentError(err error) *AppError {
	return &AppError{
		Code:    CodePermanent,
		Message: "permanent failure",
		Err:     err,
	}
}

func errorCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

func hasCode(err error, code int) bool {
	return errorCode(err) == code
}

func IsNonExistingKeyError(err error) bool {
	return hasCode(err, CodeNonExistingKey)
}

func IsMissingSignatureError(err error) bool {
	return hasCode(err, CodeMissingSignature)
}

func IsInvalidSignatureError(err error) bool {
	return hasCode(err, CodeInvalidSignature)
}

func IsMissingBodyError(err error) bool {
	return hasCode(err, CodeMissingBody)
}

func IsInvalidPayloadError(err error) bool {
	return hasCode(err, CodeInvalidPayload)
}

// IsPermanent reports whether a retry could ever succeed.
func IsPermanent(err error) bool {
	return hasCode(err, CodePermanent) || hasCode(err, CodeInvalidPayload)
}

// IsClientError is true for errors caused by the caller's request.
func IsClientError(err error) bool {
	switch errorCode(err) {
	case CodeMissingSignature, CodeInvalidSignature, CodeMissingBody, CodeInvalidPayload:
		return true
	}
	return false
}
