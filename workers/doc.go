// Package workers provides stateless processing workers behind a
// request/response envelope.
//
// This package implements:
//   - Envelope: Request/Response messages keyed by a correlation ID
//   - Registry: dispatch of envelopes to per-kind handlers
//   - Built-in kinds: MD5 hashing, image compression, detection overlay, PDF reports
//   - Server/Client: ZeroMQ ROUTER/DEALER transport for remote workers
package workers
