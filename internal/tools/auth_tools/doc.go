// Package auth_tools provides MCP tools for the Google OAuth authorization flow.
//
// This package registers the authorization tools that allow AI assistants to:
//   - Get the OAuth authorization URL for Google Calendar access
//   - Exchange an authorization code for a stored credential
//
// The authorization flow:
//  1. Call calendar_get_auth_url to get the authorization URL
//  2. User visits the URL and authorizes access
//  3. User provides the authorization code
//  4. Call calendar_exchange_auth_code with the code to store the credential
//
// Once a credential is stored for a principal, all gated calendar tools work
// for that principal, and the credential is renewed automatically when it
// expires (as long as a refresh token was granted).
//
// These tools are deliberately ungated: they are the way a caller obtains a
// credential in the first place.
package auth_tools
