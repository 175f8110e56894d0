package models

import "time"

// Conversation is the ongoing thread between one inbox and one external
// counterparty, keyed by (inbox_id, remote_id). Created on first contact,
// never deleted by the pipeline.
//
// AIPaused and PausedAt move together: PausedAt is set iff AIPaused is true.
// Use Pause/ClearPause instead of writing the fields directly.
type Conversation struct {
	ID          int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	InboxID     int64      `gorm:"not null;unique_index:ux_inbox_remote" json:"inbox_id"`
	RemoteID    string     `gorm:"not null;unique_index:ux_inbox_remote" json:"remote_id"` // canonical jid
	Phone       string     `gorm:"default:''" json:"phone"`
	DisplayName string     `gorm:"default:''" json:"display_name"`
	UnreadCount int        `gorm:"not null;default:0" json:"unread_count"`
	AIPaused    bool       `gorm:"column:ai_paused;not null;default:false" json:"ai_paused"`
	PausedAt    *time.Time `gorm:"column:paused_at" json:"paused_at"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// Pause marks the conversation as under manual control.
func (c *Conversation) Pause(now time.Time) {
	c.AIPaused = true
	c.PausedAt = &now
}

// ClearPause resumes automated handling.
func (c *Conversation) ClearPause() {
	c.AIPaused = false
	c.PausedAt = nil
}

// PausedSince reports whether the conversation is paused and, if so, from when.
func (c *Conversation) PausedSince() (time.Time, bool) {
	if !c.AIPaused || c.PausedAt == nil {
		return time.Time{}, false
	}
	return *c.PausedAt, true
}
