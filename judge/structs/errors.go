// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import "net/http"

// API error reasons. Every error body on the wire is
// {code, reason, message}.
const (
	ReasonInvalidArgument = "ERR_INVALID_ARGUMENT"
	ReasonNotFound        = "ERR_NOT_FOUND"
	ReasonRateLimit       = "ERR_RATE_LIMIT"
	ReasonInternal        = "ERR_INTERNAL"
)

// APIError is an error with a wire representation. It doubles as the JSON
// body written to the client and as the error value handlers return.
type APIError struct {
	Code    uint32 `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`

	status int
}

func (e *APIError) Error() string {
	return e.Message
}

// HTTPStatus is the status code the error is served with.
func (e *APIError) HTTPStatus() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

func NewInvalidArgument(message string) *APIError {
	return &APIError{Code: 1, Reason: ReasonInvalidArgument, Message: message, status: http.StatusBadRequest}
}

func NewNotFound(message string) *APIError {
	return &APIError{Code: 3, Reason: ReasonNotFound, Message: message, status: http.StatusNotFound}
}

func NewRateLimit(message string) *APIError {
	return &APIError{Code: 4, Reason: ReasonRateLimit, Message: message, status: http.StatusBadRequest}
}

func NewInternal(message string) *APIError {
	return &APIError{Code: 6, Reason: ReasonInternal, Message: message, status: http.StatusInternalServerError}
}

// NewMethodNotAllowed rejects a request whose method has no handler on the
// path.
func NewMethodNotAllowed() *APIError {
	return &APIError{
		Code:    1,
		Reason:  ReasonInvalidArgument,
		Message: "HTTP 405 Method Not Allowed",
		status:  http.StatusMethodNotAllowed,
	}
}
