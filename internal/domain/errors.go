package domain

import (
	"errors"
	"fmt"
)

// Kind groups error codes by the component that raised them.
type Kind string

const (
	KindAuth     Kind = "auth"
	KindFetch    Kind = "fetch"
	KindDelivery Kind = "delivery"
	KindLedger   Kind = "ledger"
	KindConfig   Kind = "config"
)

const (
	CodeNoStoredCredential = "NO_STORED_CREDENTIAL"
	CodeRefreshFailed      = "REFRESH_FAILED"
	CodeRefreshRejected    = "REFRESH_REJECTED"
	CodeTokenIO            = "TOKEN_IO_ERROR"
	CodeExchangeExpired    = "EXCHANGE_EXPIRED"
	CodeExchangeFailed     = "EXCHANGE_FAILED"

	CodeFetchFailed       = "FETCH_FAILED"
	CodeFetchUnauthorized = "FETCH_UNAUTHORIZED"

	CodeDeliveryRejected  = "DELIVERY_REJECTED"
	CodeDeliveryExhausted = "DELIVERY_EXHAUSTED"

	CodeLedgerIO      = "LEDGER_IO"
	CodeInvalidFormat = "INVALID_FORMAT"

	CodeConfigInvalid = "CONFIG_INVALID"
)

// Error carries a stable machine-readable code next to the operator message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func NewError(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether any error in err's chain is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
