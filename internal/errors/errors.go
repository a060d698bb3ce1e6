package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeInternal       ErrorType = "INTERNAL"
	ErrorTypePathInvalid    ErrorType = "PATH_INVALID"
	ErrorTypeBranchNotFound ErrorType = "BRANCH_NOT_FOUND"
	ErrorTypeRemote         ErrorType = "REMOTE"
	ErrorTypeCommit         ErrorType = "COMMIT"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, &Error{Type: ErrorTypeRemote}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Internal(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
		Err:     err,
	}
}

// PathInvalid is raised before any remote call when a required path is
// empty or otherwise unusable.
func PathInvalid(path, reason string) *Error {
	return &Error{
		Type:    ErrorTypePathInvalid,
		Message: fmt.Sprintf("invalid path %q: %s", path, reason),
		Code:    http.StatusBadRequest,
		Details: map[string]string{"path": path},
	}
}

func BranchNotFound(branch string) *Error {
	return &Error{
		Type:    ErrorTypeBranchNotFound,
		Message: fmt.Sprintf("branch %q does not exist in the project", branch),
		Code:    http.StatusNotFound,
		Details: map[string]string{"branch": branch},
	}
}

func Remote(op string, err error) *Error {
	return &Error{
		Type:    ErrorTypeRemote,
		Message: fmt.Sprintf("remote %s failed", op),
		Code:    http.StatusBadGateway,
		Err:     err,
	}
}

func Commit(branch string, err error) *Error {
	return &Error{
		Type:    ErrorTypeCommit,
		Message: fmt.Sprintf("commit to %q failed", branch),
		Code:    http.StatusBadGateway,
		Details: map[string]string{"branch": branch},
		Err:     err,
	}
}

// TypeOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

func Is(err error, t ErrorType) bool {
	return stderrors.Is(err, &Error{Type: t})
}

// StatusCode maps err to an HTTP status, defaulting to 500.
func StatusCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}
