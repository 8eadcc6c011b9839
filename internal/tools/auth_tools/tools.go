package auth_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/calmcp/calendar-mcp/internal/gate"
	"github.com/calmcp/calendar-mcp/internal/instrumentation"
	"github.com/calmcp/calendar-mcp/internal/logging"
	"github.com/calmcp/calendar-mcp/internal/server"
	"github.com/calmcp/calendar-mcp/internal/tools/common"
)

// RegisterAuthTools registers the authorization flow tools with the MCP server.
// Both tools are ungated so a caller without a credential can complete the flow.
func RegisterAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getAuthURLTool := mcp.NewTool("calendar_get_auth_url",
		mcp.WithDescription("Get the OAuth URL to authorize Google Calendar access for a principal"),
		mcp.WithString("user_id",
			mcp.Description("Principal id (default: 'default'). Used to manage multiple Google accounts."),
		),
	)

	s.AddTool(getAuthURLTool, common.InstrumentedToolHandler(
		"calendar_get_auth_url", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetAuthURL(ctx, request, sc)
		}))

	exchangeTool := mcp.NewTool("calendar_exchange_auth_code",
		mcp.WithDescription("Exchange an OAuth authorization code for a stored Google Calendar credential"),
		mcp.WithString("user_id",
			mcp.Description("Principal id (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("The authorization code from Google OAuth"),
		),
		mcp.WithString("redirect_uri",
			mcp.Description("Redirect URI used during authorization, if different from the configured one"),
		),
	)

	s.AddTool(exchangeTool, common.InstrumentedToolHandler(
		"calendar_exchange_auth_code", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleExchangeAuthCode(ctx, request, sc)
		}))

	return nil
}

func handleGetAuthURL(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	principal := gate.PrincipalFromArgs(args)

	if sc.Config().GoogleAuth.ClientID == "" {
		return mcp.NewToolResultError("Google OAuth client credentials are not configured"), nil
	}

	authURL := sc.Exchanger().AuthURL(principal)

	result := fmt.Sprintf(`To authorize Google Calendar access for principal "%s":

1. Visit this URL in your browser:
   %s

2. Sign in with your Google account
3. Grant access to Google Calendar
4. Copy the authorization code

5. Call the calendar_exchange_auth_code tool with the code and user_id to complete authorization`, principal, authURL)

	return mcp.NewToolResultText(result), nil
}

// exchangeResult is the payload reported after a successful exchange.
type exchangeResult struct {
	Success   bool   `json:"success"`
	UserID    string `json:"user_id"`
	ExpiresIn int64  `json:"expires_in"`
}

func handleExchangeAuthCode(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	principal := gate.PrincipalFromArgs(args)

	code, ok := args["code"].(string)
	if !ok || code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}
	redirectURI, _ := args["redirect_uri"].(string)

	if sc.Config().GoogleAuth.ClientID == "" {
		return mcp.NewToolResultError("Google OAuth client credentials are not configured"), nil
	}
	if sc.Manager() == nil {
		return mcp.NewToolResultError("credential store is not configured; exchange requires server-held mode"), nil
	}

	raw, err := sc.Exchanger().Exchange(ctx, code, redirectURI)
	if err != nil {
		sc.Metrics().RecordCredentialExchange(ctx, instrumentation.ResultFailure)
		return mcp.NewToolResultError(fmt.Sprintf("authorization code exchange failed: %v", err)), nil
	}
	sc.Metrics().RecordCredentialExchange(ctx, instrumentation.ResultSuccess)

	rec, err := sc.Manager().Issue(ctx, principal,
		raw.AccessToken, raw.TokenType, raw.ExpiresIn, raw.RefreshToken, raw.Scopes)
	if err != nil {
		sc.Metrics().RecordCredentialIssuance(ctx, instrumentation.ResultFailure)
		return mcp.NewToolResultError(fmt.Sprintf("failed to store credential for principal %s: %v",
			logging.AnonymizePrincipal(principal), err)), nil
	}
	sc.Metrics().RecordCredentialIssuance(ctx, instrumentation.ResultSuccess)

	sc.Logger().Info("credential issued via authorization code exchange",
		logging.Operation("exchange_auth_code"),
		logging.PrincipalHash(principal))

	payload, err := json.Marshal(exchangeResult{
		Success:   true,
		UserID:    rec.PrincipalID,
		ExpiresIn: raw.ExpiresIn,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}

	return mcp.NewToolResultText(string(payload)), nil
}
