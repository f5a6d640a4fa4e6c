/*
Package main is the loanflow executable.

# Overview

cmd/loanflow runs the loan screening service. The serve command wires
the pipeline, the escalation review queue, the processed-loan history,
and the review API behind a managed HTTP listener with Prometheus
metrics on a second port. Further subcommands run the sample batch,
apply database migrations, and probe a running instance.

# Core types

  - Server: owns every component and the two listeners; Start brings
    them up in dependency order, Shutdown releases them in reverse.
  - Middleware: func(http.Handler) http.Handler, composed with Chain
    so the first argument is the outermost wrapper.

# Subcommands

  - serve:   start the API and metrics servers
  - batch:   run the sample applicants through the pipeline and print
    the routing table
  - migrate: apply, roll back, or inspect schema migrations
  - version: print build metadata
  - health:  query a running instance's /health endpoint

# Middleware chain

Recovery, RequestID, SecurityHeaders, RequestLogger, Metrics, OTel
tracing, CORS, per-IP rate limiting, then reviewer auth. Reviewer auth
only engages when an auth secret is configured; health probes and
metrics scrapes are always exempt.

# Build metadata

Version, BuildTime, and GitCommit are injected via ldflags:

	go build -ldflags "-X main.Version=v1.2.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
*/
package main
