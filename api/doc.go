// Package api defines the wire types of the loanflow review API.
//
// The HTTP surface lives in api/handlers; this package holds the
// request and response shapes shared between the handlers, the CLI
// and API clients.
//
// # API Overview
//
// loanflow exposes a RESTful API for:
//   - Running loan applications through the screening pipeline
//   - Browsing and deciding the human review queue
//   - Reading the processed-loan history and aggregate stats
//   - Health monitoring and version info
//
// # Envelope
//
// Every JSON endpoint wraps its payload in a common envelope:
//
//	{
//	  "success": true,
//	  "data": { ... },
//	  "error": {"code": "...", "message": "..."},
//	  "timestamp": "2026-03-01T12:00:00Z",
//	  "request_id": "9f1c..."
//	}
//
// Exactly one of data and error is present. The request_id echoes the
// X-Request-ID header so a client can correlate a response with the
// server logs.
//
// # Authentication
//
// When the server is started with an auth secret, mutating endpoints
// require a bearer token:
//
//	Authorization: Bearer <jwt>
//
// and the reviewer identity on decisions is taken from the token
// subject rather than the request body.
//
// # Base URL
//
// The default base URL is:
//
//	http://localhost:8080/api/v1
package api
