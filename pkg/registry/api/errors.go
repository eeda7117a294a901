// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package api defines the registry's wire types: request and response
// bodies, and the typed error envelope.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode enumerates the machine-readable error codes of the registry
// API.
type ErrorCode string

const (
	CodeInvalidManifest  ErrorCode = "INVALID_MANIFEST"
	CodeInvalidVersion   ErrorCode = "INVALID_VERSION"
	CodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	CodeVersionExists    ErrorCode = "VERSION_EXISTS"
	CodePackageNotFound  ErrorCode = "PACKAGE_NOT_FOUND"
	CodeVersionNotFound  ErrorCode = "VERSION_NOT_FOUND"
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"
	CodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus maps an error code to the HTTP status it is served with.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeInvalidManifest, CodeInvalidVersion, CodeInvalidRequest, CodeChecksumMismatch:
		return http.StatusBadRequest
	case CodeVersionExists:
		return http.StatusConflict
	case CodePackageNotFound, CodeVersionNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// FieldDetail attributes a validation failure to one request field.
type FieldDetail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is the typed error that every non-2xx response is produced from.
type Error struct {
	Code    ErrorCode     `json:"code"`
	Message string        `json:"message"`
	Details []FieldDetail `json:"details,omitempty"`
	// RetryAfter is surfaced as a Retry-After header, not in the body.
	RetryAfter int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorEnvelope is the JSON body wrapping an Error.
type ErrorEnvelope struct {
	Error *Error `json:"error"`
}

// Errorf builds an Error.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts an *Error from err, wrapping anything else as
// INTERNAL_ERROR with no detail leaked.
func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Code: CodeInternalError, Message: "internal error"}
}
