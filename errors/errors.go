package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// Code classifies an Error
type Code string

const (
	// Internal is an unexpected failure inside the client
	Internal Code = "INTERNAL_ERROR"
	// NotFound indicates a missing transaction, document or collection
	NotFound Code = "NOT_FOUND"
	// Forbidden indicates the server rejected the api key's permissions
	Forbidden Code = "FORBIDDEN"
	// Validation indicates invalid configuration or arguments
	Validation Code = "VALIDATION_ERROR"
	// Query indicates a malformed filter or update specification
	Query Code = "QUERY_ERROR"
	// Update indicates an update operator could not be applied to a document
	Update Code = "UPDATE_ERROR"
	// TransactionState indicates an operation attempted in an invalid transaction state
	TransactionState Code = "TRANSACTION_STATE_ERROR"
	// Transport indicates the collaborator failed to deliver an operation
	Transport Code = "TRANSPORT_ERROR"
	// PartialCommit indicates a commit that stopped after flushing a prefix of its operations
	PartialCommit Code = "PARTIAL_COMMIT"
)

// Error is a custom error
type Error struct {
	Code     Code           `json:"code"`
	Messages []string       `json:"messages"`
	Details  map[string]any `json:"details,omitempty"`
	Err      error          `json:"err,omitempty"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	if e.Code == "" {
		e.Code = Internal
	}
	bits, _ := json.Marshal(struct {
		Code     Code           `json:"code"`
		Messages []string       `json:"messages"`
		Details  map[string]any `json:"details,omitempty"`
		Err      string         `json:"err,omitempty"`
	}{
		Code:     e.Code,
		Messages: e.Messages,
		Details:  e.Details,
		Err:      errString(e.Err),
	})
	return string(bits)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// RemoveError removes the error from the Error and leaves it's messages, details and code
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:     e.Code,
		Messages: e.Messages,
		Details:  e.Details,
		Err:      nil,
	}
}

// WithDetail sets a detail key on the error and returns it
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value if it exists
func (e *Error) Detail(key string) any {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// New creates a new error with the given code and formatted message
func New(code Code, msg string, args ...any) *Error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return &Error{
		Code:     "",
		Messages: nil,
		Err:      err,
	}
}

// HasCode returns true if err, or an error it wraps, is an *Error with the given code
func HasCode(err error, code Code) bool {
	for err != nil {
		e, ok := err.(*Error)
		if ok && e.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Wrap wraps the given error and returns a new one. A nil error stays nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if ok {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if code != "" {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
