package workers

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Paulo-german/kronos-crm-sub001/cache"
	"github.com/Paulo-german/kronos-crm-sub001/models"
	"github.com/Paulo-german/kronos-crm-sub001/queue"
	"github.com/Paulo-german/kronos-crm-sub001/tools"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

type fakeAI struct {
	mu        sync.Mutex
	reply     string
	histories [][]tools.ChatMessage
}

func (f *fakeAI) GenerateReply(_ context.Context, history []tools.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, history)
	return f.reply, nil
}

type fakeSender struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSender) SendText(_ context.Context, _, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	return nil
}

type fixture struct {
	db        *gorm.DB
	store     *cache.Memory
	ai        *fakeAI
	sender    *fakeSender
	responder *Responder
	inbox     models.Inbox
	conv      models.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	db.AutoMigrate(&models.Inbox{}, &models.Agent{}, &models.Conversation{}, &models.Message{}, &models.Task{})

	f := &fixture{
		db:     db,
		store:  cache.NewMemory(),
		ai:     &fakeAI{reply: "canned reply"},
		sender: &fakeSender{},
	}
	f.responder = NewResponder(db, f.store, f.ai, f.sender)

	f.inbox = models.Inbox{OrganizationID: 1, Name: "main line", Instance: "main"}
	if err := db.Create(&f.inbox).Error; err != nil {
		t.Fatalf("seed inbox: %v", err)
	}
	f.conv = models.Conversation{InboxID: f.inbox.ID, RemoteID: "5511999990000@s.whatsapp.net", Phone: "5511999990000"}
	if err := db.Create(&f.conv).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return f
}

func (f *fixture) addMessage(t *testing.T, role, content string) {
	t.Helper()
	row := models.Message{ID: uuid.NewString(), ConversationID: f.conv.ID, Role: role, Content: content}
	if err := f.db.Create(&row).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

// claimReplyTask enqueues a due reply task with the given fence and claims it.
func (f *fixture) claimReplyTask(t *testing.T, fence int64) models.Task {
	t.Helper()
	job := queue.ReplyJob{
		OrganizationID: f.inbox.OrganizationID,
		InboxID:        f.inbox.ID,
		AgentID:        1,
		ConversationID: f.conv.ID,
		Text:           "hello",
		Fence:          fence,
	}
	if err := queue.NewDB(f.db).Enqueue(context.Background(), models.TASK_AGENT_REPLY, job, -time.Second); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := queue.ClaimDue(f.db, models.TASK_AGENT_REPLY, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(claimed))
	}
	return claimed[0]
}

func (f *fixture) taskStatus(t *testing.T, id int64) string {
	t.Helper()
	var task models.Task
	if err := f.db.First(&task, id).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	return task.Status
}

func TestStaleFenceSuperseded(t *testing.T) {
	f := newFixture(t)
	fence := time.Now().UnixMilli()

	// A newer inbound message has moved the token past this task's fence.
	_ = f.store.Set(context.Background(), cache.DebounceKey(f.conv.ID), strconv.FormatInt(fence+1000, 10), time.Minute)

	task := f.claimReplyTask(t, fence)
	f.responder.handleTask(task)

	if got := f.taskStatus(t, task.ID); got != models.TASK_STATUS_SUPERSEDED {
		t.Fatalf("status = %s, want superseded", got)
	}
	if len(f.ai.histories) != 0 {
		t.Error("stale task must not reach the model")
	}
	if len(f.sender.calls) != 0 {
		t.Error("stale task must not send")
	}
}

func TestCurrentFenceReplies(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, models.MESSAGE_ROLE_USER, "hi")
	f.addMessage(t, models.MESSAGE_ROLE_USER, "anyone?")

	fence := time.Now().UnixMilli()
	_ = f.store.Set(context.Background(), cache.DebounceKey(f.conv.ID), strconv.FormatInt(fence, 10), time.Minute)

	task := f.claimReplyTask(t, fence)
	f.responder.handleTask(task)

	if got := f.taskStatus(t, task.ID); got != models.TASK_STATUS_DONE {
		t.Fatalf("status = %s, want done", got)
	}
	if len(f.ai.histories) != 1 {
		t.Fatalf("model calls = %d, want 1", len(f.ai.histories))
	}
	if len(f.ai.histories[0]) != 2 {
		t.Errorf("history length = %d, want both user messages", len(f.ai.histories[0]))
	}
	if len(f.sender.calls) != 1 || f.sender.calls[0] != "canned reply" {
		t.Fatalf("sends = %v", f.sender.calls)
	}

	var replies int
	f.db.Model(&models.Message{}).
		Where("conversation_id = ? AND role = ?", f.conv.ID, models.MESSAGE_ROLE_ASSISTANT).
		Count(&replies)
	if replies != 1 {
		t.Errorf("assistant rows = %d, want 1", replies)
	}
}

func TestExpiredTokenStillReplies(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, models.MESSAGE_ROLE_USER, "hi")

	// No token in the cache: the debounce window passed and this task is the
	// surviving one.
	task := f.claimReplyTask(t, time.Now().UnixMilli())
	f.responder.handleTask(task)

	if got := f.taskStatus(t, task.ID); got != models.TASK_STATUS_DONE {
		t.Fatalf("status = %s, want done", got)
	}
	if len(f.sender.calls) != 1 {
		t.Errorf("sends = %d, want 1", len(f.sender.calls))
	}
}

func TestPausedConversationSkipped(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	if err := f.db.Model(&models.Conversation{}).
		Where("id = ?", f.conv.ID).
		Updates(map[string]any{"ai_paused": true, "paused_at": now}).Error; err != nil {
		t.Fatalf("pause: %v", err)
	}

	task := f.claimReplyTask(t, now.UnixMilli())
	f.responder.handleTask(task)

	if got := f.taskStatus(t, task.ID); got != models.TASK_STATUS_SUPERSEDED {
		t.Fatalf("status = %s, want superseded", got)
	}
	if len(f.ai.histories) != 0 || len(f.sender.calls) != 0 {
		t.Error("paused conversation must not be replied to")
	}
}
