package queue

// ReplyJob is the payload of an "agent.reply" task. Fence is the coalescing
// timestamp (unix milliseconds) written to the debounce cache key right before
// the task was enqueued; the responder compares it against the current key
// value and drops the task when a newer inbound message has moved the token.
type ReplyJob struct {
	OrganizationID int64  `json:"organization_id"`
	InboxID        int64  `json:"inbox_id"`
	AgentID        int64  `json:"agent_id"`
	ConversationID int64  `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Text           string `json:"text"`
	Fence          int64  `json:"fence"`
}
