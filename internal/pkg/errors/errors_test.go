// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorError(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without cause",
			err:  New(KindConfig, "missing source server"),
			want: "missing source server",
		},
		{
			name: "with cause",
			err:  WrapTransport(errors.New("connection refused"), "list components"),
			want: "list components: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"config", New(KindConfig, "bad file"), KindConfig},
		{"auth", WrapAuth(errors.New("401"), "login"), KindAuth},
		{"not found", WrapNotFound(errors.New("404"), "repo"), KindNotFound},
		{"transport", WrapTransport(errors.New("timeout"), "get"), KindTransport},
		{"integrity", WrapIntegrity(errors.New("sha mismatch"), "verify"), KindIntegrity},
		{"plain error", errors.New("plain"), KindInternal},
		{"nested in fmt", fmt.Errorf("outer: %w", WrapNotFound(errors.New("404"), "asset")), KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapInternal(cause, "wrapped")

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the wrapped cause")
	}
}

func TestPredicates(t *testing.T) {
	if !IsConfig(New(KindConfig, "x")) {
		t.Error("IsConfig() = false for config error")
	}
	if !IsAuth(New(KindAuth, "x")) {
		t.Error("IsAuth() = false for auth error")
	}
	if !IsNotFound(New(KindNotFound, "x")) {
		t.Error("IsNotFound() = false for not-found error")
	}
	if !IsTransport(New(KindTransport, "x")) {
		t.Error("IsTransport() = false for transport error")
	}
	if !IsIntegrity(New(KindIntegrity, "x")) {
		t.Error("IsIntegrity() = false for integrity error")
	}
	if IsAuth(New(KindConfig, "x")) {
		t.Error("IsAuth() = true for config error")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport is retryable", WrapTransport(errors.New("refused"), "dial"), true},
		{"auth is terminal", WrapAuth(errors.New("401"), "login"), false},
		{"not found is terminal", WrapNotFound(errors.New("404"), "repo"), false},
		{"integrity is terminal", WrapIntegrity(errors.New("mismatch"), "verify"), false},
		{"plain error is terminal", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
