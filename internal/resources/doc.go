// Package resources provides MCP resources for exposing authorization data.
// Resources are read-only data sources that MCP clients can fetch, such as
// the OAuth authorization URL used to start the credential flow.
package resources
