package calendar

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/calmcp/calendar-mcp/internal/autherr"
)

// Client wraps the Google Calendar service with an authenticated HTTP
// transport. A client is bound to the credential it was built with; the
// caller is responsible for only constructing clients from validated
// credentials.
type Client struct {
	svc       *calendar.Service
	principal string
}

// Principal returns the principal this client is associated with
func (c *Client) Principal() string {
	return c.principal
}

// NewClient creates a Calendar client authenticated with the given OAuth2
// token. Extra service options are appended after the authenticated HTTP
// client, so tests can override the API endpoint.
func NewClient(ctx context.Context, principal string, token *oauth2.Token, extra ...option.ClientOption) (*Client, error) {
	if token == nil || token.AccessToken == "" {
		return nil, autherr.New(autherr.Unauthenticated, "cannot build calendar client without an access token")
	}

	tokenSource := oauth2.StaticTokenSource(token)
	client := oauth2.NewClient(ctx, tokenSource)

	// Force HTTP/1.1 by disabling HTTP/2
	transport := client.Transport.(*oauth2.Transport)
	transport.Base = &http.Transport{
		ForceAttemptHTTP2: false,
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, extra...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, autherr.Wrap(autherr.BackendFailed, "failed to create calendar service", err)
	}

	return &Client{
		svc:       svc,
		principal: principal,
	}, nil
}

// ListCalendars lists all calendars accessible to the authenticated user
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	list, err := c.svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, autherr.Wrap(autherr.BackendFailed, "failed to list calendars", err)
	}

	var calendars []CalendarInfo
	for _, entry := range list.Items {
		calendars = append(calendars, toCalendarListInfo(entry))
	}

	return calendars, nil
}

// GetCalendar retrieves a specific calendar by ID
func (c *Client) GetCalendar(ctx context.Context, calendarID string) (*CalendarInfo, error) {
	if calendarID == "" {
		return nil, autherr.New(autherr.BackendFailed, "calendar id is required")
	}

	cal, err := c.svc.Calendars.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return nil, autherr.Wrapf(autherr.BackendFailed, err, "failed to get calendar %s", calendarID)
	}

	info := toCalendarInfo(cal)
	return &info, nil
}

// GetPrimaryCalendar retrieves the primary calendar
func (c *Client) GetPrimaryCalendar(ctx context.Context) (*CalendarInfo, error) {
	return c.GetCalendar(ctx, "primary")
}

// CreateCalendar creates a new secondary calendar. A summary is required;
// description, location and time zone are optional.
func (c *Client) CreateCalendar(ctx context.Context, input CalendarInput) (*CalendarInfo, error) {
	if input.Summary == "" {
		return nil, autherr.New(autherr.BackendFailed, "calendar summary is required")
	}

	created, err := c.svc.Calendars.Insert(&calendar.Calendar{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		TimeZone:    input.TimeZone,
	}).Context(ctx).Do()
	if err != nil {
		return nil, autherr.Wrap(autherr.BackendFailed, "failed to create calendar", err)
	}

	info := toCalendarInfo(created)
	return &info, nil
}

// UpdateCalendar updates an existing calendar. Only the fields set in the
// input are changed; empty fields keep their current value.
func (c *Client) UpdateCalendar(ctx context.Context, calendarID string, input CalendarInput) (*CalendarInfo, error) {
	if calendarID == "" {
		return nil, autherr.New(autherr.BackendFailed, "calendar id is required")
	}

	// Get the existing calendar first
	existing, err := c.svc.Calendars.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return nil, autherr.Wrapf(autherr.BackendFailed, err, "failed to get calendar %s", calendarID)
	}

	if input.Summary != "" {
		existing.Summary = input.Summary
	}
	if input.Description != "" {
		existing.Description = input.Description
	}
	if input.Location != "" {
		existing.Location = input.Location
	}
	if input.TimeZone != "" {
		existing.TimeZone = input.TimeZone
	}

	updated, err := c.svc.Calendars.Update(calendarID, existing).Context(ctx).Do()
	if err != nil {
		return nil, autherr.Wrapf(autherr.BackendFailed, err, "failed to update calendar %s", calendarID)
	}

	info := toCalendarInfo(updated)
	return &info, nil
}

// DeleteCalendar deletes a secondary calendar
func (c *Client) DeleteCalendar(ctx context.Context, calendarID string) error {
	if calendarID == "" {
		return autherr.New(autherr.BackendFailed, "calendar id is required")
	}

	if err := c.svc.Calendars.Delete(calendarID).Context(ctx).Do(); err != nil {
		return autherr.Wrapf(autherr.BackendFailed, err, "failed to delete calendar %s", calendarID)
	}
	return nil
}
