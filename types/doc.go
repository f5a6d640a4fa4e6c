/*
Package types defines the structured error contract shared by every
loanflow package.

# Overview

types is the lowest-level shared package. It depends on nothing inside
the module, so the pipeline stages, stores, and HTTP handlers can all
speak the same error language without import cycles.

# Core types

  - Error / ErrorCode — structured errors carrying a stable code, an
    HTTP status, a Retryable hint, and the pipeline stage that failed.

# Capabilities

  - Constructors per failure class: NewValidationError,
    NewDependencyError, NewConfigurationError, NewConflictError,
    NewNotFoundError, and the HTTP-surface set (NewInvalidRequestError,
    NewUnauthorizedError, NewRateLimitedError, NewTimeoutError,
    NewInternalError).
  - Wrapping and inspection: WrapError, AsError, IsErrorCode,
    IsRetryable, GetErrorCode, HTTPStatusFor. All of them see through
    error chains via errors.As.
  - Builder-style annotation: WithCause, WithHTTPStatus, WithRetryable,
    WithStage.
*/
package types
