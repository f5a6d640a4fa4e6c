/*
Package cache provides Redis-backed caching with connection pooling,
background health checks, and JSON serialization.

# Overview

The package wraps the go-redis client behind a Manager that owns the
connection lifecycle: initialization, periodic pings, and shutdown.
Its primary consumer is the risk-model verdict cache, which reuses a
stored assessment when an identical application is scored again.

# Core types

  - Manager: holds the Redis client and pool configuration, exposing
    Get/Set/Delete/Exists/Expire plus the GetJSON/SetJSON convenience
    pair the verdict cache consumes.
  - Config: address, credentials, pool sizes, default TTL, and health
    check interval.
  - Stats: process-local hit and miss counts plus the live key count.

# Error semantics

An absent key returns the ErrCacheMiss sentinel; IsCacheMiss
distinguishes it from transport failures, which are wrapped and
logged.
*/
package cache
