/*
Package metrics provides Prometheus metric collection for the loan
pipeline service, covering HTTP, pipeline, escalation, cache and
database dimensions.

# Overview

The package registers all metric families through one Collector using
promauto, so no manual registry management is needed. Metrics are
isolated per namespace and grouped by labels for dashboarding and
alerting.

# Core types

  - Collector: holds the Counter, Histogram and Gauge vectors, grouped
    by business domain.

# Metric groups

  - HTTP: request totals, latency, request/response sizes, grouped by
    method/path/status with status classes folded to 2xx/3xx/4xx/5xx.
  - Pipeline: run totals and end-to-end latency by outcome, per-stage
    latency, degraded-run counter.
  - Escalation: queue events (escalated, decided).
  - Cache: hit and miss counts by cache type.
  - Database: open/idle connection gauges and query latency by
    database/operation.
*/
package metrics
