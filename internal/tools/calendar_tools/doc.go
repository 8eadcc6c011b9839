// Package calendar_tools provides MCP (Model Context Protocol) tools for Google Calendar operations.
//
// This package exposes calendar management through a standardized MCP interface,
// allowing AI assistants to list, inspect, create, update, and delete calendars
// on behalf of users.
//
// Every tool is wrapped by the authentication gate: an invocation without a
// valid credential is rejected with a structured error before any backend call
// is attempted. Mutating tools are only registered when the server was
// started with mutations enabled.
package calendar_tools
