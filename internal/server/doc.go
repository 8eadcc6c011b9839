// Package server provides the MCP server context, health endpoints, and
// the dedicated metrics server for the calendar MCP application.
//
// # Key Components
//
// ServerContext assembles the dependency graph from the process
// configuration: the credential record store, the lifecycle manager, the
// authorization exchange adapter, and the request authentication gate in
// the configured mode (server-held or caller-supplied). It also caches a
// calendar backend client per principal, invalidating the cached client
// when the principal's access token changes.
//
// HealthChecker exposes /healthz and /readyz handlers for Kubernetes
// probes on the HTTP transport.
//
// MetricsServer serves Prometheus metrics on a dedicated port, isolating
// operational metrics from MCP traffic.
package server
