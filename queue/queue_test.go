package queue

import (
	"context"
	"testing"
	"time"

	"github.com/Paulo-german/kronos-crm-sub001/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// one shared in-memory database across the pool
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	db.AutoMigrate(&models.Task{})
	return db
}

func TestEnqueueAndClaimDue(t *testing.T) {
	db := testDB(t)
	q := NewDB(db)
	ctx := context.Background()

	type payload struct {
		ConversationID int64 `json:"conversation_id"`
	}

	if err := q.Enqueue(ctx, models.TASK_AGENT_REPLY, payload{ConversationID: 7}, -time.Second); err != nil {
		t.Fatalf("enqueue due: %v", err)
	}
	if err := q.Enqueue(ctx, models.TASK_AGENT_REPLY, payload{ConversationID: 8}, time.Hour); err != nil {
		t.Fatalf("enqueue future: %v", err)
	}

	claimed, err := ClaimDue(db, models.TASK_AGENT_REPLY, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 due task, got %d", len(claimed))
	}
	if claimed[0].Status != models.TASK_STATUS_PROCESSING {
		t.Fatalf("claimed task not marked processing: %s", claimed[0].Status)
	}

	// The claim is exclusive: a second pass finds nothing pending and due.
	again, err := ClaimDue(db, models.TASK_AGENT_REPLY, 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("task claimed twice: %d", len(again))
	}
}

func TestFinish(t *testing.T) {
	db := testDB(t)
	q := NewDB(db)

	if err := q.Enqueue(context.Background(), models.TASK_AGENT_REPLY, map[string]any{}, -time.Second); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := ClaimDue(db, models.TASK_AGENT_REPLY, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(claimed))
	}

	if err := Finish(db, claimed[0].ID, models.TASK_STATUS_SUPERSEDED, ""); err != nil {
		t.Fatalf("finish: %v", err)
	}

	var task models.Task
	if err := db.First(&task, claimed[0].ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if task.Status != models.TASK_STATUS_SUPERSEDED {
		t.Fatalf("status = %s, want superseded", task.Status)
	}
	if task.ProcessedAt == nil {
		t.Fatal("processed_at not set")
	}
}
