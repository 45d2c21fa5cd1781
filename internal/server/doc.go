// Package server manages the HTTP listener lifecycle: non-blocking start,
// graceful shutdown within a configurable timeout and SIGINT/SIGTERM
// handling. Serve failures surface on an asynchronous error channel.
package server
