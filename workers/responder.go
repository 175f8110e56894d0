package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/Paulo-german/kronos-crm-sub001/cache"
	"github.com/Paulo-german/kronos-crm-sub001/models"
	"github.com/Paulo-german/kronos-crm-sub001/queue"
	"github.com/Paulo-german/kronos-crm-sub001/tools"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// historyWindow is how many prior messages are sent to the model as context.
const historyWindow = 20

// ReplyGenerator produces the assistant answer for a conversation history.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []tools.ChatMessage) (string, error)
}

// TextSender delivers the generated reply through the gateway.
type TextSender interface {
	SendText(ctx context.Context, instance, to, text string) error
}

// Responder consumes due "agent.reply" tasks. It owns the supersession side
// of the debounce contract: a task whose fence is older than the current
// debounce token was coalesced into a later one and must no-op.
type Responder struct {
	DB     *gorm.DB
	Cache  cache.Store
	AI     ReplyGenerator
	Sender TextSender
}

func NewResponder(db *gorm.DB, store cache.Store, ai ReplyGenerator, sender TextSender) *Responder {
	return &Responder{DB: db, Cache: store, AI: ai, Sender: sender}
}

// Start launches the polling loop. Claimed tasks are handled concurrently;
// the optimistic status swap in queue.ClaimDue keeps workers from colliding.
func (r *Responder) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			tasks, err := queue.ClaimDue(r.DB, models.TASK_AGENT_REPLY, 50)
			if err != nil {
				log.Printf("responder: claim error: %v", err)
				continue
			}
			for _, task := range tasks {
				go r.handleTask(task)
			}
		}
	}()
}

func (r *Responder) handleTask(task models.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var job queue.ReplyJob
	if err := json.Unmarshal([]byte(task.Payload), &job); err != nil {
		log.Printf("responder: bad payload for task %d: %v", task.ID, err)
		_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_FAILED, err.Error())
		return
	}

	if r.superseded(ctx, job) {
		_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_SUPERSEDED, "")
		return
	}

	var conv models.Conversation
	if err := r.DB.First(&conv, job.ConversationID).Error; err != nil {
		log.Printf("responder: load conversation %d: %v", job.ConversationID, err)
		_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_FAILED, err.Error())
		return
	}

	// A human may have taken over between enqueue and execution.
	if conv.AIPaused {
		_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_SUPERSEDED, "conversation paused")
		return
	}

	var inbox models.Inbox
	if err := r.DB.First(&inbox, job.InboxID).Error; err != nil {
		log.Printf("responder: load inbox %d: %v", job.InboxID, err)
		_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_FAILED, err.Error())
		return
	}

	history, err := r.loadHistory(conv.ID)
	if err != nil {
		log.Printf("responder: load history for conversation %d: %v", conv.ID, err)
		_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_FAILED, err.Error())
		return
	}

	reply, err := r.AI.GenerateReply(ctx, history)
	if err != nil {
		log.Printf("responder: generate reply for conversation %d: %v", conv.ID, err)
		_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_FAILED, err.Error())
		return
	}

	row := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.MESSAGE_ROLE_ASSISTANT,
		Content:        reply,
	}
	if err := r.DB.Create(&row).Error; err != nil {
		log.Printf("responder: persist reply for conversation %d: %v", conv.ID, err)
		_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_FAILED, err.Error())
		return
	}

	to := conv.Phone
	if to == "" {
		to = conv.RemoteID
	}
	sendErr := ""
	if err := r.Sender.SendText(ctx, inbox.Instance, to, reply); err != nil {
		// The reply is already part of the conversation log; record the
		// delivery failure but do not retry from here.
		log.Printf("responder: send reply for conversation %d: %v", conv.ID, err)
		sendErr = err.Error()
	}

	_ = queue.Finish(r.DB, task.ID, models.TASK_STATUS_DONE, sendErr)
}

// superseded compares the task fence against the current debounce token. A
// missing token means the window expired with this task as the last one; an
// unreachable cache degrades open so the user still gets an answer.
func (r *Responder) superseded(ctx context.Context, job queue.ReplyJob) bool {
	current, err := r.Cache.Get(ctx, cache.DebounceKey(job.ConversationID))
	if err == cache.ErrNotFound {
		return false
	}
	if err != nil {
		log.Printf("responder: debounce token read failed for conversation %d: %v", job.ConversationID, err)
		return false
	}

	token, err := strconv.ParseInt(current, 10, 64)
	if err != nil {
		log.Printf("responder: malformed debounce token %q for conversation %d", current, job.ConversationID)
		return false
	}
	return token > job.Fence
}

func (r *Responder) loadHistory(conversationID int64) ([]tools.ChatMessage, error) {
	var rows []models.Message
	if err := r.DB.
		Where("conversation_id = ?", conversationID).
		Order("created_at desc, id desc").
		Limit(historyWindow).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	history := make([]tools.ChatMessage, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Content == "" {
			continue
		}
		history = append(history, tools.ChatMessage{
			Role:    rows[i].Role,
			Content: rows[i].Content,
		})
	}
	return history, nil
}
