package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed pipeline error. Status maps it onto the trigger server's HTTP responses.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so that wrapped clones satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err keeping the code and status of kind.
func WrapAs(err error, kind *Error, message string) *Error {
	if message == "" {
		message = kind.Message
	}
	return Wrap(err, kind.Code, kind.Status, message)
}

// Run-level errors abort the whole run.
var (
	ErrSourceUnauthorized = New("SOURCE_UNAUTHORIZED", http.StatusServiceUnavailable, "spreadsheet credentials rejected")
	ErrSourceUnavailable  = New("SOURCE_UNAVAILABLE", http.StatusServiceUnavailable, "spreadsheet service unreachable")
	ErrSinkUnauthorized   = New("SINK_UNAUTHORIZED", http.StatusServiceUnavailable, "datastore credentials rejected")
	ErrSinkUnavailable    = New("SINK_UNAVAILABLE", http.StatusServiceUnavailable, "datastore unreachable")
	ErrConfigInvalid      = New("CONFIG_INVALID", http.StatusInternalServerError, "invalid configuration")
)

// Table-level errors fail a single table.
var (
	ErrWorksheetNotFound = New("WORKSHEET_NOT_FOUND", http.StatusUnprocessableEntity, "worksheet not found")
	ErrMalformedSheet    = New("MALFORMED_SHEET", http.StatusUnprocessableEntity, "worksheet is missing required columns")
	ErrLoadFailed        = New("LOAD_FAILED", http.StatusBadGateway, "datastore write failed")
	ErrAborted           = New("ABORTED", http.StatusServiceUnavailable, "run aborted before table started")
)

// Trigger server errors.
var (
	ErrRunInProgress = New("RUN_IN_PROGRESS", http.StatusConflict, "a run is already in progress")
	ErrRunFailed     = New("RUN_FAILED", http.StatusInternalServerError, "run finished with failed tables")
	ErrUnauthorized  = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrNotFound      = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation    = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrLedgerMiss    = New("LEDGER_MISS", http.StatusNotFound, "no run recorded for date")
	ErrInternal      = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

var fatalCodes = map[string]bool{
	ErrSourceUnauthorized.Code: true,
	ErrSourceUnavailable.Code:  true,
	ErrSinkUnauthorized.Code:   true,
	ErrSinkUnavailable.Code:    true,
	ErrConfigInvalid.Code:      true,
}

// IsFatal reports whether err must stop the whole run rather than a single table.
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return fatalCodes[e.Code]
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
