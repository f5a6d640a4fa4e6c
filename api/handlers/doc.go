/*
Package handlers implements the loanflow HTTP endpoints.

# Overview

Every endpoint follows standard net/http handler signatures and wraps
its payload in the shared Response envelope. Domain errors carry their
own HTTP status through types.Error; anything untyped becomes a 500.

# Core types

  - EscalationHandler — review queue: pending/all listings, single
    record, decide, and the WebSocket watch feed
  - LoanHandler       — processed-loan history plus single-application
    pipeline runs
  - StatsHandler      — dashboard aggregates from history, queue and
    cache
  - HealthHandler     — /health, /healthz, /ready, /version
  - Response          — success/data/error/timestamp/request_id envelope
  - ResponseWriter    — status-capturing wrapper for middleware

# Capabilities

  - Envelope helpers: WriteSuccess / WriteError / WriteTypedError
  - Request validation: DecodeJSONBody (1 MB cap, unknown fields
    rejected), ValidateContentType
  - ErrorCode to HTTP status mapping for errors without an explicit
    status
  - Live queue feed: HandleWatch streams escalation events over
    WebSocket with ping keepalive
  - Pluggable readiness checks: database, cache and model probes via
    RegisterCheck
*/
package handlers
