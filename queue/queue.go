package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Paulo-german/kronos-crm-sub001/models"

	"github.com/jinzhu/gorm"
)

// Enqueuer schedules a named task for execution after a delay. Enqueue only
// acknowledges durable storage; nothing about the task's outcome is awaited.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, delay time.Duration) error
}

// DB is the gorm-backed Enqueuer. Tasks are rows in the tasks table; the
// responder worker polls them once ScheduledAt passes.
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB {
	return &DB{db: db}
}

func (q *DB) Enqueue(_ context.Context, name string, payload any, delay time.Duration) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", err)
	}

	scheduled := time.Now().Add(delay)
	task := models.Task{
		Name:        name,
		Payload:     string(b),
		Status:      models.TASK_STATUS_PENDING,
		ScheduledAt: &scheduled,
	}
	if err := q.db.Create(&task).Error; err != nil {
		return fmt.Errorf("queue: insert task: %w", err)
	}
	return nil
}

// ClaimDue flips up to limit due pending tasks to "processing" and returns
// them. The status swap is the optimistic lock: a row claimed by another
// worker process has RowsAffected == 0 and is skipped.
func ClaimDue(db *gorm.DB, name string, limit int) ([]models.Task, error) {
	now := time.Now()

	var due []models.Task
	err := db.
		Where("name = ? AND status = ?", name, models.TASK_STATUS_PENDING).
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", now).
		Order("scheduled_at asc, id asc").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]models.Task, 0, len(due))
	for _, task := range due {
		res := db.Model(&models.Task{}).
			Where("id = ? AND status = ?", task.ID, models.TASK_STATUS_PENDING).
			Update("status", models.TASK_STATUS_PROCESSING)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}
		task.Status = models.TASK_STATUS_PROCESSING
		claimed = append(claimed, task)
	}
	return claimed, nil
}

// Finish records the terminal status of a claimed task.
func Finish(db *gorm.DB, taskID int64, status string, lastErr string) error {
	t := time.Now()
	return db.Model(&models.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":       status,
			"processed_at": &t,
			"last_error":   lastErr,
		}).Error
}
