// Package telemetry initializes the OpenTelemetry SDK for loanflow,
// exporting pipeline stage spans and runtime metrics over OTLP gRPC.
// When the telemetry section is disabled the global providers stay
// noop and no collector connection is made.
package telemetry
