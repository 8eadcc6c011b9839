// Package logging provides structured logging helpers for the calendar
// MCP server: consistent attribute naming, principal anonymization, and
// token sanitization on top of the standard library's slog.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation     = "operation"
	KeyTool          = "tool"
	KeyPrincipalHash = "principal_hash"
	KeyStatus        = "status"
	KeyError         = "error"
	KeyErrorKind     = "error_kind"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error. If err is nil, returns an
// empty Group attribute that slog omits from output, so Err(maybeNilErr)
// is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizePrincipal returns a hashed representation of a principal id for
// logging. This allows correlation of log entries without exposing the
// identity itself.
func AnonymizePrincipal(principalID string) string {
	if principalID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(principalID))
	return "principal:" + hex.EncodeToString(hash[:8])
}

// PrincipalHash returns a slog attribute with the anonymized principal id.
func PrincipalHash(principalID string) slog.Attr {
	return slog.String(KeyPrincipalHash, AnonymizePrincipal(principalID))
}

// SanitizeToken returns a masked version of a token for logging. It
// reports only the length, as even partial token prefixes can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
