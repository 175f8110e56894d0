package models

import "time"

/************************************************
/**** MARK: TASK STATUS ****/
/************************************************/
const TASK_STATUS_PENDING = "pending"
const TASK_STATUS_PROCESSING = "processing"
const TASK_STATUS_DONE = "done"
const TASK_STATUS_SUPERSEDED = "superseded"
const TASK_STATUS_FAILED = "failed"

/************************************************
/**** MARK: TASK NAMES ****/
/************************************************/
const TASK_AGENT_REPLY = "agent.reply"

// Task is a durable delayed job. It enters as "pending" with a ScheduledAt in
// the future and is claimed by the worker via an optimistic status swap, so
// multiple worker processes can share the table.
type Task struct {
	ID          int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Name        string     `gorm:"not null;index" json:"name"`
	Payload     string     `gorm:"type:text" json:"payload"`
	Status      string     `gorm:"not null;default:'pending';index" json:"status"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}
