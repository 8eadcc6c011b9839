// Package calendar provides a client for interacting with the Google Calendar API.
//
// This package offers functionality for managing calendars: listing the
// calendars accessible to the authenticated principal, retrieving a single
// calendar, and creating, updating, and deleting secondary calendars.
//
// A client is constructed per validated credential; backend failures are
// classified as autherr.BackendFailed so callers can distinguish upstream
// API problems from authentication failures.
//
// Example usage:
//
//	ctx := context.Background()
//	client, err := calendar.NewClient(ctx, "default", token)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// List accessible calendars
//	calendars, err := client.ListCalendars(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
package calendar
