// Package gate enforces authentication at the tool-invocation boundary.
// Every state-mutating or data-fetching tool handler is wrapped by the
// gate; discovery operations (listing tools) are never blocked because
// gating happens per handler, not per transport request.
//
// The gate is a pure precondition check: it either attaches a validated
// credential to the call context and forwards, or rejects with a
// structured error before any calendar backend call is attempted. It has
// no side effects on rejection.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/calmcp/calendar-mcp/internal/autherr"
	"github.com/calmcp/calendar-mcp/internal/logging"
)

// Credential is the validated credential attached to the call context.
// In server-held mode it mirrors the stored record; in caller-supplied
// mode it is built from the presented token and never persisted.
type Credential struct {
	PrincipalID  string
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	Scopes       []string
}

// ToolHandler is the mcp-go tool handler signature the gate wraps.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// contextKey is the type for context keys.
type contextKey string

// credentialContextKey is the key for the validated credential.
const credentialContextKey contextKey = "validated_credential"

// WithCredential returns a context carrying the validated credential.
func WithCredential(ctx context.Context, cred *Credential) context.Context {
	return context.WithValue(ctx, credentialContextKey, cred)
}

// CredentialFromContext retrieves the validated credential from the call
// context. The second return is false when the call did not pass the gate.
func CredentialFromContext(ctx context.Context) (*Credential, bool) {
	cred, ok := ctx.Value(credentialContextKey).(*Credential)
	return cred, ok
}

// ValidationRecorder receives the outcome of every gate check.
// *instrumentation.Metrics satisfies it.
type ValidationRecorder interface {
	RecordAuthValidation(ctx context.Context, mode, result string)
}

// Gate validates inbound tool invocations with a configured resolver.
type Gate struct {
	resolver Resolver
	mode     string
	recorder ValidationRecorder
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets a custom logger for the gate.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithValidationRecorder reports each validation outcome, labeled with the
// given resolution mode.
func WithValidationRecorder(mode string, recorder ValidationRecorder) Option {
	return func(g *Gate) {
		g.mode = mode
		g.recorder = recorder
	}
}

// New creates a gate using the given credential resolver.
func New(resolver Resolver, opts ...Option) *Gate {
	g := &Gate{
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// rejection is the structured error payload returned to the caller when
// an invocation is rejected before dispatch.
type rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Require wraps a tool handler so the invocation is validated before the
// handler runs. On success the validated credential is attached to the
// context; on failure the caller receives a {code, message} tool error and
// the handler is never invoked.
func (g *Gate) Require(handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cred, err := g.resolver.Resolve(ctx, request.GetArguments())
		if err != nil {
			kind := autherr.KindOf(err)
			if kind == "" {
				kind = autherr.Unauthenticated
			}
			g.recordValidation(ctx, kind)

			g.logger.Warn("rejected tool invocation",
				logging.Tool(request.Params.Name),
				slog.String(logging.KeyErrorKind, string(kind)),
				logging.Err(err))

			payload, marshalErr := json.Marshal(rejection{
				Code:    string(kind),
				Message: err.Error(),
			})
			if marshalErr != nil {
				return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err)), nil
			}
			return mcp.NewToolResultError(string(payload)), nil
		}

		g.recordValidation(ctx, "")
		return handler(WithCredential(ctx, cred), request)
	}
}

// recordValidation maps the rejection kind (empty for success) to a
// validation result label.
func (g *Gate) recordValidation(ctx context.Context, kind autherr.Kind) {
	if g.recorder == nil {
		return
	}
	result := "valid"
	switch kind {
	case "":
	case autherr.Expired:
		result = "expired"
	default:
		result = "failure"
	}
	g.recorder.RecordAuthValidation(ctx, g.mode, result)
}
