package common

import (
	"context"
	"testing"

	"github.com/calmcp/calendar-mcp/internal/gate"
)

func TestGetPrincipalFromRequest(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		args     map[string]any
		expected string
	}{
		{
			name:     "no user_id specified returns default",
			args:     map[string]any{},
			expected: "default",
		},
		{
			name: "user_id specified returns user_id",
			args: map[string]any{
				"user_id": "work",
			},
			expected: "work",
		},
		{
			name: "empty user_id returns default",
			args: map[string]any{
				"user_id": "",
			},
			expected: "default",
		},
		{
			name: "user_id with other params",
			args: map[string]any{
				"user_id": "personal",
				"other":   "value",
			},
			expected: "personal",
		},
		{
			name:     "nil args returns default",
			args:     nil,
			expected: "default",
		},
		{
			name: "non-string user_id type returns default",
			args: map[string]any{
				"user_id": 123,
			},
			expected: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetPrincipalFromRequest(ctx, tt.args)
			if result != tt.expected {
				t.Errorf("GetPrincipalFromRequest() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestGetPrincipalFromRequest_WithValidatedCredential(t *testing.T) {
	cred := &gate.Credential{
		PrincipalID: "gated-user",
		AccessToken: "ya29.token",
	}
	ctx := gate.WithCredential(context.Background(), cred)

	tests := []struct {
		name     string
		args     map[string]any
		expected string
	}{
		{
			name:     "credential takes precedence over default",
			args:     map[string]any{},
			expected: "gated-user",
		},
		{
			name: "credential takes precedence over explicit user_id",
			args: map[string]any{
				"user_id": "explicit-user",
			},
			expected: "gated-user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetPrincipalFromRequest(ctx, tt.args)
			if result != tt.expected {
				t.Errorf("GetPrincipalFromRequest() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestGetPrincipalFromRequest_WithEmptyCredentialPrincipal(t *testing.T) {
	cred := &gate.Credential{
		AccessToken: "ya29.token",
	}
	ctx := gate.WithCredential(context.Background(), cred)

	result := GetPrincipalFromRequest(ctx, map[string]any{"user_id": "fallback"})
	if result != "fallback" {
		t.Errorf("GetPrincipalFromRequest() = %v, expected fallback", result)
	}
}
