package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an operational error that is safe to show to clients.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Fields  []string  `json:"fields,omitempty"`
	Err     error     `json:"-"`

	status int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so sentinel values below
// work with errors.Is regardless of message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// StatusCode returns the HTTP status for the error code.
func (e *AppError) StatusCode() int {
	if e.Code == ErrPasswordMismatch && e.status != 0 {
		return e.status
	}
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrMissingFields
	ErrUnauthenticated
	ErrSessionStale
	ErrOTPExpired
	ErrOTPMismatch
	ErrPasswordMismatch
	ErrDailyLimitExceeded
	ErrSlotUnavailable
	ErrSlotConflict
	ErrHorizonExceeded
	ErrProfileIncomplete
	ErrDuplicateKey
	ErrValidation
	ErrTooManyRequests
)

var statusByCode = map[ErrorCode]int{
	ErrNotFound:           http.StatusNotFound,
	ErrBadRequest:         http.StatusBadRequest,
	ErrUnauthorized:       http.StatusUnauthorized,
	ErrForbidden:          http.StatusForbidden,
	ErrInternal:           http.StatusInternalServerError,
	ErrMissingFields:      http.StatusBadRequest,
	ErrUnauthenticated:    http.StatusUnauthorized,
	ErrSessionStale:       http.StatusUnauthorized,
	ErrOTPExpired:         http.StatusUnauthorized,
	ErrOTPMismatch:        http.StatusUnauthorized,
	ErrPasswordMismatch:   http.StatusBadRequest,
	ErrDailyLimitExceeded: http.StatusForbidden,
	ErrSlotUnavailable:    http.StatusBadRequest,
	ErrSlotConflict:       http.StatusBadRequest,
	ErrHorizonExceeded:    http.StatusBadRequest,
	ErrProfileIncomplete:  http.StatusForbidden,
	ErrDuplicateKey:       http.StatusBadRequest,
	ErrValidation:         http.StatusBadRequest,
	ErrTooManyRequests:    http.StatusTooManyRequests,
}

// Sentinels for errors.Is checks.
var (
	NotFoundErr           = &AppError{Code: ErrNotFound}
	ForbiddenErr          = &AppError{Code: ErrForbidden}
	MissingFieldsErr      = &AppError{Code: ErrMissingFields}
	UnauthenticatedErr    = &AppError{Code: ErrUnauthenticated}
	SessionStaleErr       = &AppError{Code: ErrSessionStale}
	OTPExpiredErr         = &AppError{Code: ErrOTPExpired}
	OTPMismatchErr        = &AppError{Code: ErrOTPMismatch}
	PasswordMismatchErr   = &AppError{Code: ErrPasswordMismatch}
	DailyLimitExceededErr = &AppError{Code: ErrDailyLimitExceeded}
	SlotUnavailableErr    = &AppError{Code: ErrSlotUnavailable}
	SlotConflictErr       = &AppError{Code: ErrSlotConflict}
	HorizonExceededErr    = &AppError{Code: ErrHorizonExceeded}
	ProfileIncompleteErr  = &AppError{Code: ErrProfileIncomplete}
	DuplicateKeyErr       = &AppError{Code: ErrDuplicateKey}
	ValidationErr         = &AppError{Code: ErrValidation}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "Something went wrong",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// InternalMessage is a 500 whose message is meant for the client.
func InternalMessage(message string, err error) *AppError {
	return &AppError{Code: ErrInternal, Message: message, Err: err}
}

func Unauthorized(err error) *AppError {
	return Unauthenticated(err)
}

func Unauthenticated(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthenticated,
		Message: "You are not logged in. Please log in to get access",
		Err:     err,
	}
}

// AccountGone rejects a valid session whose account was deleted or deactivated.
func AccountGone(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthenticated,
		Message: "The user belonging to this token no longer exists",
		Err:     err,
	}
}

func SessionStale() *AppError {
	return &AppError{
		Code:    ErrSessionStale,
		Message: "Password was changed recently. Please log in again",
	}
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "You do not have permission to perform this action"
	}
	return &AppError{Code: ErrForbidden, Message: message}
}

// MissingFields names the first absent input.
func MissingFields(fields ...string) *AppError {
	msg := "missing required fields"
	if len(fields) > 0 {
		msg = fmt.Sprintf("%s is required", fields[0])
	}
	return &AppError{Code: ErrMissingFields, Message: msg, Fields: fields}
}

func OTPExpired() *AppError {
	return &AppError{Code: ErrOTPExpired, Message: "The code has expired. Please request a new one"}
}

func OTPMismatch() *AppError {
	return &AppError{Code: ErrOTPMismatch, Message: "The code is wrong"}
}

// PasswordConfirmMismatch is the 400 variant used when a confirmation field differs.
func PasswordConfirmMismatch() *AppError {
	return &AppError{Code: ErrPasswordMismatch, Message: "Passwords are not the same", status: http.StatusBadRequest}
}

// PasswordMismatch is the 401 variant used on login and current-password checks.
func PasswordMismatch(message string) *AppError {
	if message == "" {
		message = "Incorrect email or password"
	}
	return &AppError{Code: ErrPasswordMismatch, Message: message, status: http.StatusUnauthorized}
}

func DailyLimitExceeded() *AppError {
	return &AppError{Code: ErrDailyLimitExceeded, Message: "You cannot book more than one visit per day with the same doctor"}
}

func SlotUnavailable() *AppError {
	return &AppError{Code: ErrSlotUnavailable, Message: "This time is not available"}
}

func SlotConflict(err error) *AppError {
	return &AppError{Code: ErrSlotConflict, Message: "This time has just been booked by someone else", Err: err}
}

func HorizonExceeded(days int) *AppError {
	return &AppError{
		Code:    ErrHorizonExceeded,
		Message: fmt.Sprintf("Visits can only be booked within the next %d days", days),
	}
}

func ProfileIncomplete(fields ...string) *AppError {
	return &AppError{
		Code:    ErrProfileIncomplete,
		Message: "Please complete your profile (name, birthday, id card) before booking",
		Fields:  fields,
	}
}

func DuplicateKey(field string, err error) *AppError {
	return &AppError{
		Code:    ErrDuplicateKey,
		Message: fmt.Sprintf("This %s already exists", field),
		Fields:  []string{field},
		Err:     err,
	}
}

// Validation aggregates schema-level failures into one message.
func Validation(messages ...string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: "Invalid input data. " + strings.Join(messages, ". "),
		Fields:  messages,
	}
}

func TooManyRequests() *AppError {
	return &AppError{Code: ErrTooManyRequests, Message: "Too many requests, please try again later"}
}

// As returns the AppError inside err, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is is errors.Is, re-exported so callers need only this package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
