package convergence

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies generation failures. Only EmptyInput, ZeroYield and
// PersistenceFailure are returned to callers; ModelCallFailure stays inside a
// run as an attempt record.
type ErrorCode string

const (
	CodeEmptyInput         ErrorCode = "empty_input"
	CodeModelCallFailure   ErrorCode = "model_call_failure"
	CodeZeroYield          ErrorCode = "zero_yield"
	CodePersistenceFailure ErrorCode = "persistence_failure"
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	// Unpersisted counts generated records that never reached the store.
	Unpersisted int
	Cause       error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	if e.Unpersisted > 0 {
		msg = strings.TrimSpace(fmt.Sprintf("%s [%d records unpersisted]", msg, e.Unpersisted))
	}
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with code. A nil err stays nil.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// PersistenceFailure reports that n generated records were not written.
func PersistenceFailure(op string, n int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: CodePersistenceFailure, Op: strings.TrimSpace(op), Message: msg, Unpersisted: n, Cause: cause}
}

func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

func CodeOf(err error) ErrorCode {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
