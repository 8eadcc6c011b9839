package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/calmcp/calendar-mcp/internal/calendar"
	"github.com/calmcp/calendar-mcp/internal/gate"
	"github.com/calmcp/calendar-mcp/internal/server"
	"github.com/calmcp/calendar-mcp/internal/tools/common"
)

// RegisterCalendarTools registers all calendar management tools with the MCP
// server. Every tool passes the authentication gate before its handler runs;
// mutating tools are only registered when the server allows mutations.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listCalendarsTool := mcp.NewTool("calendar_list_calendars",
		mcp.WithDescription("List all calendars accessible to the user"),
		mcp.WithString("user_id",
			mcp.Description("Principal id (default: 'default'). Used to manage multiple Google accounts."),
		),
	)
	s.AddTool(listCalendarsTool, gated("calendar_list_calendars", "list", sc, handleListCalendars))

	getCalendarTool := mcp.NewTool("calendar_get_calendar",
		mcp.WithDescription("Get information about a specific calendar"),
		mcp.WithString("user_id",
			mcp.Description("Principal id (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("calendar_id",
			mcp.Required(),
			mcp.Description("Calendar ID (use 'primary' for the primary calendar)"),
		),
	)
	s.AddTool(getCalendarTool, gated("calendar_get_calendar", "get", sc, handleGetCalendar))

	createCalendarTool := mcp.NewTool("calendar_create_calendar",
		mcp.WithDescription("Create a new secondary calendar"),
		mcp.WithString("user_id",
			mcp.Description("Principal id (default: 'default'). Used to manage multiple Google accounts."),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Title of the new calendar"),
		),
		mcp.WithString("description",
			mcp.Description("Description of the calendar"),
		),
		mcp.WithString("location",
			mcp.Description("Geographic location of the calendar"),
		),
		mcp.WithString("time_zone",
			mcp.Description("Time zone of the calendar (IANA name, e.g. 'Europe/Berlin')"),
		),
	)
	s.AddTool(createCalendarTool, gated("calendar_create_calendar", "create", sc, handleCreateCalendar))

	// Update and delete mutate existing data and stay unregistered in
	// read-only mode.
	if !sc.ReadOnly() {
		updateCalendarTool := mcp.NewTool("calendar_update_calendar",
			mcp.WithDescription("Update an existing calendar's metadata"),
			mcp.WithString("user_id",
				mcp.Description("Principal id (default: 'default'). Used to manage multiple Google accounts."),
			),
			mcp.WithString("calendar_id",
				mcp.Required(),
				mcp.Description("Calendar ID to update"),
			),
			mcp.WithString("summary",
				mcp.Description("New title for the calendar"),
			),
			mcp.WithString("description",
				mcp.Description("New description for the calendar"),
			),
			mcp.WithString("location",
				mcp.Description("New location for the calendar"),
			),
			mcp.WithString("time_zone",
				mcp.Description("New time zone for the calendar"),
			),
		)
		s.AddTool(updateCalendarTool, gated("calendar_update_calendar", "update", sc, handleUpdateCalendar))

		deleteCalendarTool := mcp.NewTool("calendar_delete_calendar",
			mcp.WithDescription("Delete a secondary calendar"),
			mcp.WithString("user_id",
				mcp.Description("Principal id (default: 'default'). Used to manage multiple Google accounts."),
			),
			mcp.WithString("calendar_id",
				mcp.Required(),
				mcp.Description("Calendar ID to delete"),
			),
		)
		s.AddTool(deleteCalendarTool, gated("calendar_delete_calendar", "delete", sc, handleDeleteCalendar))
	}

	return nil
}

// calendarHandler is a gated handler with its dependencies resolved.
type calendarHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// gated wires a handler behind the authentication gate and the
// instrumentation wrapper, so rejections are counted alongside failures.
func gated(toolName, operation string, sc *server.ServerContext, handler calendarHandler) mcpserver.ToolHandlerFunc {
	return common.InstrumentedToolHandlerWithOperation(toolName, operation, sc,
		sc.Gate().Require(func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handler(ctx, request, sc)
		}))
}

// clientForCall returns the calendar client for the validated credential
// attached by the gate.
func clientForCall(ctx context.Context, sc *server.ServerContext) (*calendar.Client, error) {
	cred, ok := gate.CredentialFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no validated credential on call context")
	}
	return sc.CalendarClientFor(cred)
}

// jsonResult marshals a success payload into a text tool result.
func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
