package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with principal identifiers.

// ExtractPrincipalDomain extracts the domain part from an email-shaped
// principal identifier. This reduces cardinality by using the domain
// instead of the full identifier.
//
// Example:
//
//	ExtractPrincipalDomain("jane@example.com")  // "example.com"
//	ExtractPrincipalDomain("user@gmail.com")    // "gmail.com"
//	ExtractPrincipalDomain("default")           // "unknown"
//	ExtractPrincipalDomain("")                  // "unknown"
func ExtractPrincipalDomain(principalID string) string {
	if principalID == "" {
		return "unknown"
	}

	parts := strings.Split(principalID, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Common operation types for backend and lifecycle metrics.
// Status, result, and mode constants are defined in config.go.
const (
	OperationList    = "list"
	OperationGet     = "get"
	OperationCreate  = "create"
	OperationUpdate  = "update"
	OperationDelete  = "delete"
	OperationIssue   = "issue"
	OperationRefresh = "refresh"
)
