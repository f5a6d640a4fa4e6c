/*
Package database manages the GORM connection pool behind the
escalation queue and the loan history log.

# Overview

PoolManager applies pool limits to an open GORM handle, runs a
background health check, and exposes the pool counters both as
structured logs and as Prometheus gauges.

# Core types

  - PoolManager: holds the GORM handle and the underlying sql.DB,
    exposing DB(), Ping(), Stats(), and Close().
  - PoolConfig: idle and open connection caps, connection lifetimes,
    and the health check interval.
  - PoolStats: the JSON-friendly counter view served by the stats
    endpoint.
  - TransactionFunc: the callback type for transactional work.

# Transactions

WithTransaction runs one transaction; WithTransactionRetry adds
exponential backoff for transient failures such as deadlocks,
serialization conflicts, and dropped connections.
*/
package database
