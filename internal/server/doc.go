/*
Package server manages HTTP server lifecycles for the loanflow API
and metrics listeners.

# Overview

Manager wraps net/http.Server with non-blocking startup, a connection
cap enforced at the listener, graceful drain on shutdown, and
SIGINT/SIGTERM handling. Asynchronous serve failures surface through
the Errors channel so the process can exit instead of running with a
dead listener.

# Core types

  - Manager: holds the http.Server, listener, and error channel;
    Start/StartTLS serve in the background, Shutdown drains within
    the configured timeout, WaitForShutdown blocks on signals.
  - Config: listen address, read/write/idle timeouts, header cap,
    connection cap, and shutdown timeout.
*/
package server
