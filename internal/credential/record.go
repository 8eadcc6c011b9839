// Package credential owns the durable credential records issued for each
// principal and their lifecycle: issuance, refresh, and deactivation.
// Every record corresponds to one OAuth grant; superseded records are kept
// as an audit trail and never deleted or reactivated.
package credential

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is one persisted OAuth grant for one principal.
// At most one record per principal is active at any time; the store keeps
// one row per issuance event, indexed by (principal_id, active).
type Record struct {
	ID          uint   `gorm:"primarykey"`
	PrincipalID string `gorm:"size:255;not null;index:idx_credential_principal_active,priority:1"`

	AccessToken  string `gorm:"type:text;not null"`
	RefreshToken string `gorm:"type:text"`
	TokenType    string `gorm:"size:50;default:Bearer"`

	// ExpiresAt is always set at issuance/refresh time as now + expires_in.
	ExpiresAt time.Time `gorm:"not null"`

	// Scopes is a JSON-encoded array of scope strings. Semantically a
	// non-empty set; issuance substitutes the configured defaults when
	// the exchange returns none.
	Scopes string `gorm:"type:text;not null"`

	Active bool `gorm:"not null;default:true;index:idx_credential_principal_active,priority:2"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name used by Record.
func (Record) TableName() string {
	return "credential_records"
}

// IsExpired reports whether the record is past its validity window at the
// given instant.
func (r *Record) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ScopeList decodes the stored scope blob into a slice.
func (r *Record) ScopeList() ([]string, error) {
	var scopes []string
	if err := json.Unmarshal([]byte(r.Scopes), &scopes); err != nil {
		return nil, fmt.Errorf("failed to decode scopes for record %d: %w", r.ID, err)
	}
	return scopes, nil
}

// SetScopes encodes the scope set into the stored blob.
func (r *Record) SetScopes(scopes []string) error {
	data, err := json.Marshal(scopes)
	if err != nil {
		return fmt.Errorf("failed to encode scopes: %w", err)
	}
	r.Scopes = string(data)
	return nil
}
