package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/calmcp/calendar-mcp/internal/gate"
	"github.com/calmcp/calendar-mcp/internal/server"
)

// RegisterAuthResources registers the authorization resources.
// These are ungated: a caller without a credential needs them to start the flow.
func RegisterAuthResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	authURLResource := mcp.NewResource(
		"auth://url",
		"Authorization URL",
		mcp.WithResourceDescription("The Google OAuth URL to authorize calendar access for the default principal"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(authURLResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAuthURL(ctx, request, sc)
	})

	return nil
}

// handleAuthURL returns the authorization URL and flow instructions.
func handleAuthURL(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	if sc.Config().GoogleAuth.ClientID == "" {
		return nil, fmt.Errorf("Google OAuth client credentials are not configured")
	}

	authData := map[string]any{
		"auth_url":     sc.Exchanger().AuthURL(gate.DefaultPrincipalID),
		"redirect_uri": sc.Config().GoogleAuth.RedirectURI,
		"scopes":       sc.Config().GoogleAuth.Scopes,
		"instructions": "Visit auth_url in a browser, grant access, then call calendar_exchange_auth_code with the authorization code.",
	}

	jsonData, err := json.MarshalIndent(authData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal auth data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
