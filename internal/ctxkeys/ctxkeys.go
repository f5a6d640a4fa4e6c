// Package ctxkeys carries request-scoped identifiers through context
// without leaking key types across package boundaries.
package ctxkeys

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
	reviewerKey  contextKey = "reviewer"
)

// WithRequestID sets the HTTP request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the HTTP request id.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRunID sets the pipeline run correlation id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the pipeline run correlation id.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithReviewer sets the authenticated reviewer identity.
func WithReviewer(ctx context.Context, reviewer string) context.Context {
	return context.WithValue(ctx, reviewerKey, reviewer)
}

// Reviewer returns the authenticated reviewer identity.
func Reviewer(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(reviewerKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
