package calendar_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/calmcp/calendar-mcp/internal/calendar"
	"github.com/calmcp/calendar-mcp/internal/server"
)

func handleListCalendars(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, err := clientForCall(ctx, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list calendars: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"count":     len(calendars),
		"calendars": calendars,
	})
}

func handleGetCalendar(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	calendarID, ok := args["calendar_id"].(string)
	if !ok || calendarID == "" {
		return mcp.NewToolResultError("calendar_id is required"), nil
	}

	client, err := clientForCall(ctx, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := client.GetCalendar(ctx, calendarID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get calendar: %v", err)), nil
	}

	return jsonResult(info)
}

func handleCreateCalendar(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	summary, ok := args["summary"].(string)
	if !ok || summary == "" {
		return mcp.NewToolResultError("summary is required"), nil
	}

	input := calendar.CalendarInput{Summary: summary}
	if description, ok := args["description"].(string); ok {
		input.Description = description
	}
	if location, ok := args["location"].(string); ok {
		input.Location = location
	}
	if timeZone, ok := args["time_zone"].(string); ok {
		input.TimeZone = timeZone
	}

	client, err := clientForCall(ctx, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := client.CreateCalendar(ctx, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create calendar: %v", err)), nil
	}

	return jsonResult(info)
}

func handleUpdateCalendar(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	calendarID, ok := args["calendar_id"].(string)
	if !ok || calendarID == "" {
		return mcp.NewToolResultError("calendar_id is required"), nil
	}

	// Only the provided fields are changed; the client merges with the
	// current calendar state.
	input := calendar.CalendarInput{}
	if summary, ok := args["summary"].(string); ok {
		input.Summary = summary
	}
	if description, ok := args["description"].(string); ok {
		input.Description = description
	}
	if location, ok := args["location"].(string); ok {
		input.Location = location
	}
	if timeZone, ok := args["time_zone"].(string); ok {
		input.TimeZone = timeZone
	}

	client, err := clientForCall(ctx, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := client.UpdateCalendar(ctx, calendarID, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update calendar: %v", err)), nil
	}

	return jsonResult(info)
}

func handleDeleteCalendar(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	calendarID, ok := args["calendar_id"].(string)
	if !ok || calendarID == "" {
		return mcp.NewToolResultError("calendar_id is required"), nil
	}

	client, err := clientForCall(ctx, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := client.DeleteCalendar(ctx, calendarID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete calendar: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"success":     true,
		"calendar_id": calendarID,
	})
}
