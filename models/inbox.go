package models

import "time"

// Inbox binds one gateway instance (channel identity) to one organization
// and, optionally, to one automated agent. Read-only for the webhook pipeline.
type Inbox struct {
	ID             int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	OrganizationID int64      `gorm:"not null;index" json:"organization_id"`
	Name           string     `gorm:"not null" json:"name"`
	Instance       string     `gorm:"not null;unique_index" json:"instance"` // gateway instance name
	AgentID        *int64     `gorm:"index" json:"agent_id"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}
