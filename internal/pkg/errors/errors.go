// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines the application error taxonomy.
//
// Every failure that crosses a component boundary is classified into one of
// the kinds below, because callers decide retry/abort behaviour from the
// kind alone: transport errors are retried, auth errors abort the affected
// server's phase, not-found errors are terminal for a single artifact, and
// config errors abort before any network call.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError.
type Kind string

const (
	KindConfig    Kind = "config"    // invalid or incomplete configuration
	KindAuth      Kind = "auth"      // 401/403 from a server
	KindNotFound  Kind = "not_found" // 404 for a repo or artifact
	KindTransport Kind = "transport" // network failure or 5xx, retryable
	KindIntegrity Kind = "integrity" // checksum/digest mismatch
	KindInternal  Kind = "internal"  // everything else
)

// AppError is an error with a kind and a human-readable message.
// The wrapped cause is preserved for errors.Is/errors.As chains.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
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

// New creates an AppError without a cause.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Newf creates an AppError without a cause from a format string.
func Newf(kind Kind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(kind Kind, err error, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// WrapConfig marks err as a configuration error.
func WrapConfig(err error, message string) *AppError {
	return Wrap(KindConfig, err, message)
}

// WrapAuth marks err as an authentication/authorization error.
func WrapAuth(err error, message string) *AppError {
	return Wrap(KindAuth, err, message)
}

// WrapNotFound marks err as a missing repo or artifact.
func WrapNotFound(err error, message string) *AppError {
	return Wrap(KindNotFound, err, message)
}

// WrapTransport marks err as a retryable network-level failure.
func WrapTransport(err error, message string) *AppError {
	return Wrap(KindTransport, err, message)
}

// WrapIntegrity marks err as a checksum or digest mismatch.
func WrapIntegrity(err error, message string) *AppError {
	return Wrap(KindIntegrity, err, message)
}

// WrapInternal marks err as an unclassified internal failure.
func WrapInternal(err error, message string) *AppError {
	return Wrap(KindInternal, err, message)
}

// KindOf walks the error chain and returns the kind of the outermost
// AppError, or KindInternal when the chain carries none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return KindOf(err) == KindConfig }

// IsAuth reports whether err is an auth error.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsIntegrity reports whether err is an integrity error.
func IsIntegrity(err error) bool { return KindOf(err) == KindIntegrity }

// Retryable reports whether the operation that produced err may be retried.
// Only transport failures qualify; auth and not-found are terminal.
func Retryable(err error) bool {
	return IsTransport(err)
}
