package response

import (
	"fmt"
	"net/http"
)

type Error struct {
	StatusCode int
	Message    string
	Messages   []string
	Result     interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) AddMessages(msgs ...string) *Error {
	e.Messages = append(e.Messages, msgs...)
	return e
}

func (e *Error) WithResult(result interface{}) *Error {
	e.Result = result
	return e
}

func makeError(status int) *Error {
	return &Error{
		StatusCode: status,
		Messages:   make([]string, 0),
		Result:     []string{},
	}
}

// -----------------------------------------------

func ErrUnexpected() *Error {
	return makeError(http.StatusInternalServerError).
		WithMessage("Billing service hit an unexpected error")
}

func ErrUnauthorized() *Error {
	return makeError(http.StatusUnauthorized).
		WithMessage("Caller is not allowed to drive billing")
}

func ErrNotFound() *Error {
	return makeError(http.StatusNotFound).
		WithMessage("No such billing endpoint")
}

func ErrMethodNotAllowed() *Error {
	return makeError(http.StatusMethodNotAllowed).
		WithMessage("Method not supported by this billing endpoint")
}

func ErrNoBearer() *Error {
	return ErrUnauthorized().AddMessages("No valid Bearer token found in header")
}

func ErrInvalidSecret() *Error {
	return ErrUnauthorized().AddMessages("Scheduler secret does not match")
}

func ErrVerifyToken() *Error {
	return ErrUnexpected().AddMessages("Unable to verify operator token")
}

func ErrStatusUnavailable() *Error {
	return ErrUnexpected().AddMessages("Unable to count subscriptions by state")
}
