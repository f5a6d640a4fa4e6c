package types

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrDependency, "risk model unavailable").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithStage("risk_scorer")

	if GetErrorCode(err) != ErrDependency {
		t.Fatalf("expected code %s, got %s", ErrDependency, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       *Error
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"validation", NewValidationError("income must be positive"), ErrValidation, http.StatusUnprocessableEntity, false},
		{"dependency", NewDependencyError("model timeout"), ErrDependency, http.StatusBadGateway, true},
		{"configuration", NewConfigurationError("approve threshold above decline"), ErrConfiguration, http.StatusInternalServerError, false},
		{"conflict", NewConflictError("already decided"), ErrConflict, http.StatusConflict, false},
		{"not_found", NewNotFoundError("no such escalation"), ErrNotFoundCode, http.StatusNotFound, false},
		{"invalid_request", NewInvalidRequestError("bad body"), ErrInvalidRequest, http.StatusBadRequest, false},
		{"rate_limited", NewRateLimitedError("slow down"), ErrRateLimited, http.StatusTooManyRequests, true},
		{"timeout", NewTimeoutError("deadline exceeded"), ErrTimeout, http.StatusGatewayTimeout, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("code: got %s, want %s", tc.err.Code, tc.code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("status: got %d, want %d", tc.err.HTTPStatus, tc.status)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("retryable: got %v, want %v", tc.err.Retryable, tc.retryable)
			}
			if HTTPStatusFor(tc.err) != tc.status {
				t.Errorf("HTTPStatusFor: got %d, want %d", HTTPStatusFor(tc.err), tc.status)
			}
		})
	}
}

func TestHTTPStatusFor_UnknownError(t *testing.T) {
	t.Parallel()

	if got := HTTPStatusFor(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for plain error, got %d", got)
	}
}

func TestIsErrorCode_WrappedChain(t *testing.T) {
	t.Parallel()

	inner := NewConflictError("duplicate application")
	outer := WrapError(inner, ErrInternalError, "store write failed")

	// errors.As walks the chain, so the outermost code wins.
	if !IsErrorCode(outer, ErrInternalError) {
		t.Fatalf("expected outer code to match")
	}
	if !errors.Is(outer, inner) {
		t.Fatalf("expected inner error in chain")
	}
}
