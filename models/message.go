package models

import "time"

/************************************************
/**** MARK: MESSAGE ROLES ****/
/************************************************/
const MESSAGE_ROLE_USER = "user"
const MESSAGE_ROLE_ASSISTANT = "assistant"

// Message is the append-only conversation log. Role "assistant" covers
// anything sent from the business side, including manual replies typed
// straight into the channel. ProviderMessageID is the gateway's message id;
// within the dedup window at most one row exists per id.
type Message struct {
	ID                string     `gorm:"type:varchar(36);primary_key" json:"id"`
	ConversationID    int64      `gorm:"not null;index" json:"conversation_id"`
	Role              string     `gorm:"not null" json:"role"`
	Content           string     `gorm:"type:text" json:"content"`
	ProviderMessageID string     `gorm:"index" json:"provider_message_id"`
	Metadata          string     `gorm:"type:text" json:"metadata"` // optional JSON blob (media descriptor)
	CreatedAt         *time.Time `json:"created_at"`
}
