/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package restapi contains helpers for writing JSON responses and errors of the restlimit REST API.
package restapi

import "fmt"

// Error is the body of an error response, it's wrapped into {"error": ...} on the wire.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error codes and messages used by the server itself.
// They are variables so an embedding service may rename them.
var (
	ErrCodeInternal                  = "internalError"
	ErrCodeNotFound                  = "notFound"
	ErrCodeMethodNotAllowed          = "methodNotAllowed"
	ErrCodeTooManyConcurrentRequests = "tooManyConcurrentRequests"

	ErrMessageInternal                  = "Internal error."
	ErrMessageNotFound                  = "Not found."
	ErrMessageMethodNotAllowed          = "Method not allowed."
	ErrMessageTooManyConcurrentRequests = "Too many concurrent requests."
)

// NewError creates a new Error.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates an error for unexpected failures (e.g. panics) in the given domain.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// NewTooManyConcurrentRequestsError creates an error for a call denied by the call limiter.
func NewTooManyConcurrentRequestsError(domain string) *Error {
	return NewError(domain, ErrCodeTooManyConcurrentRequests, ErrMessageTooManyConcurrentRequests)
}

// AddContext sets a field of the error context and returns the error for chaining.
func (e *Error) AddContext(field string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{}, 1)
	}
	e.Context[field] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Domain, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Domain, e.Code, e.Message)
}
