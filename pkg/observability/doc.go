// Package observability bundles the operational concerns of the
// identity service: structured JSON logging, prometheus metrics for
// authentication decisions, OTLP trace export, health probes, and
// graceful shutdown.
//
// The auth middleware reports every decision here with its detailed
// internal reason; the external HTTP response stays coarse. Logs and
// metrics are therefore the only place where "bad signature" and
// "user not found" are distinguishable.
package observability
