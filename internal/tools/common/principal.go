package common

import (
	"context"

	"github.com/calmcp/calendar-mcp/internal/gate"
)

// GetPrincipalFromRequest extracts the principal id for a tool call.
// For gated requests the validated credential in the context is
// authoritative; ungated tools fall back to the explicit argument.
//
// Priority order:
//  1. Validated credential from context (set by the gate)
//  2. Explicit "user_id" argument in request
//  3. gate.DefaultPrincipalID
func GetPrincipalFromRequest(ctx context.Context, args map[string]any) string {
	if cred, ok := gate.CredentialFromContext(ctx); ok && cred.PrincipalID != "" {
		return cred.PrincipalID
	}
	return gate.PrincipalFromArgs(args)
}
