package calendar

import (
	calendar "google.golang.org/api/calendar/v3"
)

// CalendarInput represents the input for creating or updating a calendar
type CalendarInput struct {
	Summary     string
	Description string
	Location    string
	TimeZone    string
}

// CalendarInfo represents information about a calendar
type CalendarInfo struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
	AccessRole  string `json:"access_role,omitempty"` // "owner", "writer", "reader", "freeBusyReader"
}

// toCalendarInfo converts a Google Calendar resource to CalendarInfo
func toCalendarInfo(cal *calendar.Calendar) CalendarInfo {
	if cal == nil {
		return CalendarInfo{}
	}
	return CalendarInfo{
		ID:          cal.Id,
		Summary:     cal.Summary,
		Description: cal.Description,
		Location:    cal.Location,
		TimeZone:    cal.TimeZone,
	}
}

// toCalendarListInfo converts a Google Calendar list entry to CalendarInfo
func toCalendarListInfo(entry *calendar.CalendarListEntry) CalendarInfo {
	if entry == nil {
		return CalendarInfo{}
	}
	return CalendarInfo{
		ID:          entry.Id,
		Summary:     entry.Summary,
		Description: entry.Description,
		Location:    entry.Location,
		TimeZone:    entry.TimeZone,
		Primary:     entry.Primary,
		AccessRole:  entry.AccessRole,
	}
}
