// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/vidtube/vidtube/pkg/errutil"
)

// Storage sentinels. Repositories wrap these so callers can use errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// Error codes attached to oops errors raised by this package.
const (
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeInvalidUsername    = "AUTH_INVALID_USERNAME"
	CodeInvalidEmail       = "AUTH_INVALID_EMAIL"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodePasswordMismatch   = "AUTH_PASSWORD_MISMATCH"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidPassword    = "AUTH_INVALID_PASSWORD"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeTokenRejected      = "AUTH_TOKEN_REJECTED"
	CodeInvalidRefresh     = "AUTH_INVALID_REFRESH_TOKEN"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeUserExists         = "AUTH_USER_EXISTS"
	CodeInternal           = "AUTH_INTERNAL"
)

// Errors returned to callers. Every failure along a token path collapses into
// one of these values so callers cannot tell expired from forged from revoked.
var (
	ErrEmptyPassword = oops.Code(CodeEmptyPassword).
				Public("password cannot be empty").
				Errorf("password cannot be empty")

	ErrMissingCredentials = oops.Code(CodeInvalidInput).
				Public("username or email and password are required").
				Errorf("missing login credentials")

	ErrMissingFields = oops.Code(CodeInvalidInput).
				Public("all fields are required").
				Errorf("missing required fields")

	ErrWeakPassword = oops.Code(CodeWeakPassword).
			Public("password must be between 8 and 128 characters").
			Errorf("password length out of range")

	ErrPasswordMismatch = oops.Code(CodePasswordMismatch).
				Public("new password and confirmation do not match").
				Errorf("password confirmation mismatch")

	ErrInvalidCredentials = oops.Code(CodeInvalidCredentials).
				Public("invalid credentials").
				Errorf("invalid credentials")

	ErrInvalidPassword = oops.Code(CodeInvalidPassword).
				Public("invalid password").
				Errorf("current password does not match")

	ErrUnauthorized = oops.Code(CodeUnauthorized).
			Public("unauthorized request").
			Errorf("unauthorized request")

	ErrTokenRejected = oops.Code(CodeTokenRejected).
				Public("invalid token").
				Errorf("token rejected")

	ErrInvalidRefreshToken = oops.Code(CodeInvalidRefresh).
				Public("invalid or expired refresh token").
				Errorf("refresh token rejected")

	ErrUserNotFound = oops.Code(CodeUserNotFound).
			Public("user does not exist").
			Errorf("user does not exist")
)

// ErrorKind classifies an error for transport mapping.
type ErrorKind int

// Error kinds.
const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindNotFound
	KindConflict
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus returns the HTTP status code for the kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var codeKinds = map[string]ErrorKind{
	CodeEmptyPassword:      KindValidation,
	CodeInvalidInput:       KindValidation,
	CodeInvalidUsername:    KindValidation,
	CodeInvalidEmail:       KindValidation,
	CodeWeakPassword:       KindValidation,
	CodePasswordMismatch:   KindValidation,
	CodeInvalidCredentials: KindAuthentication,
	CodeInvalidPassword:    KindAuthentication,
	CodeUnauthorized:       KindAuthentication,
	CodeTokenRejected:      KindAuthentication,
	CodeInvalidRefresh:     KindAuthentication,
	CodeUserNotFound:       KindNotFound,
	CodeUserExists:         KindConflict,
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	if kind, ok := codeKinds[errutil.Code(err)]; ok {
		return kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// PublicMessage returns a message that is safe to show the caller.
// Internal errors never leak their detail.
func PublicMessage(err error) string {
	kind := KindOf(err)
	if kind == KindInternal {
		return "internal server error"
	}
	return oops.GetPublic(err, defaultMessages[kind])
}

var defaultMessages = map[ErrorKind]string{
	KindValidation:     "invalid request",
	KindAuthentication: "unauthorized request",
	KindNotFound:       "not found",
	KindConflict:       "already exists",
}
