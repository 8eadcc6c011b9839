package calendar_tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/calmcp/calendar-mcp/internal/config"
	"github.com/calmcp/calendar-mcp/internal/server"
)

func newTestServerContext(t *testing.T, handler http.HandlerFunc) *server.ServerContext {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.New()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "creds.db")

	sc, err := server.NewServerContext(context.Background(), cfg,
		server.WithReadOnly(false),
		server.WithCalendarOptions(option.WithEndpoint(srv.URL)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func issueCredential(t *testing.T, sc *server.ServerContext, principal string) {
	t.Helper()
	_, err := sc.Manager().Issue(context.Background(), principal,
		"ya29.test", "Bearer", 3600, "", nil)
	require.NoError(t, err)
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "calendar_test_tool",
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func writeJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write([]byte(body))
	require.NoError(t, err)
}

func TestListCalendarsThroughGate(t *testing.T) {
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "users/me/calendarList")
		writeJSON(t, w, `{"items": [
			{"id": "primary-id", "summary": "Work", "primary": true, "accessRole": "owner"},
			{"id": "team-id", "summary": "Team", "accessRole": "reader"}
		]}`)
	})
	issueCredential(t, sc, "default")

	handler := gated("calendar_list_calendars", "list", sc, handleListCalendars)
	result, err := handler(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError, "unexpected error: %s", resultText(t, result))

	var payload struct {
		Count     int `json:"count"`
		Calendars []struct {
			ID      string `json:"id"`
			Summary string `json:"summary"`
		} `json:"calendars"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, "Work", payload.Calendars[0].Summary)
}

func TestGateRejectsWithoutCredential(t *testing.T) {
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called for a rejected invocation")
	})

	handler := gated("calendar_list_calendars", "list", sc, handleListCalendars)
	result, err := handler(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.True(t, result.IsError)

	var rejection struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &rejection))
	assert.Equal(t, "unauthenticated", rejection.Code)
}

func TestGetCalendarRequiresID(t *testing.T) {
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called without a calendar id")
	})
	issueCredential(t, sc, "default")

	handler := gated("calendar_get_calendar", "get", sc, handleGetCalendar)
	result, err := handler(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "calendar_id is required")
}

func TestGetCalendar(t *testing.T) {
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "calendars/team-id")
		writeJSON(t, w, `{"id": "team-id", "summary": "Team", "timeZone": "Europe/Berlin"}`)
	})
	issueCredential(t, sc, "default")

	handler := gated("calendar_get_calendar", "get", sc, handleGetCalendar)
	result, err := handler(context.Background(), toolRequest(map[string]any{
		"calendar_id": "team-id",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "unexpected error: %s", resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, `"team-id"`)
	assert.Contains(t, text, "Europe/Berlin")
}

func TestCreateCalendar(t *testing.T) {
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Project X", body["summary"])
		assert.Equal(t, "Planning", body["description"])

		writeJSON(t, w, `{"id": "created-id", "summary": "Project X", "description": "Planning"}`)
	})
	issueCredential(t, sc, "default")

	handler := gated("calendar_create_calendar", "create", sc, handleCreateCalendar)
	result, err := handler(context.Background(), toolRequest(map[string]any{
		"summary":     "Project X",
		"description": "Planning",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "unexpected error: %s", resultText(t, result))
	assert.Contains(t, resultText(t, result), "created-id")
}

func TestCreateCalendarRequiresSummary(t *testing.T) {
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called without a summary")
	})
	issueCredential(t, sc, "default")

	handler := gated("calendar_create_calendar", "create", sc, handleCreateCalendar)
	result, err := handler(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "summary is required")
}

func TestUpdateCalendar(t *testing.T) {
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, `{"id": "team-id", "summary": "Team", "description": "Old description"}`)
		case http.MethodPut:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Renamed", body["summary"])
			assert.Equal(t, "Old description", body["description"])
			writeJSON(t, w, `{"id": "team-id", "summary": "Renamed", "description": "Old description"}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
	issueCredential(t, sc, "default")

	handler := gated("calendar_update_calendar", "update", sc, handleUpdateCalendar)
	result, err := handler(context.Background(), toolRequest(map[string]any{
		"calendar_id": "team-id",
		"summary":     "Renamed",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "unexpected error: %s", resultText(t, result))
	assert.Contains(t, resultText(t, result), "Renamed")
}

func TestDeleteCalendar(t *testing.T) {
	deleted := false
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Contains(t, r.URL.Path, "calendars/old-id")
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	issueCredential(t, sc, "default")

	handler := gated("calendar_delete_calendar", "delete", sc, handleDeleteCalendar)
	result, err := handler(context.Background(), toolRequest(map[string]any{
		"calendar_id": "old-id",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "unexpected error: %s", resultText(t, result))
	assert.True(t, deleted)

	var payload struct {
		Success    bool   `json:"success"`
		CalendarID string `json:"calendar_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, "old-id", payload.CalendarID)
}

func TestBackendFailureIsToolError(t *testing.T) {
	sc := newTestServerContext(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(t, w, `{"error": {"code": 403, "message": "forbidden"}}`)
	})
	issueCredential(t, sc, "default")

	handler := gated("calendar_list_calendars", "list", sc, handleListCalendars)
	result, err := handler(context.Background(), toolRequest(nil))
	require.NoError(t, err, "backend failures surface as tool errors, not Go errors")
	assert.True(t, result.IsError)
	assert.True(t, strings.Contains(resultText(t, result), "failed to list calendars"))
}
