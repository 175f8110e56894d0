package ingest

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/Paulo-german/kronos-crm-sub001/cache"
	"github.com/Paulo-german/kronos-crm-sub001/models"
	"github.com/Paulo-german/kronos-crm-sub001/queue"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"golang.org/x/sync/errgroup"
)

/************************************************
/**** MARK: REASON CODES ****/
/************************************************/
const REASON_EVENT_NOT_HANDLED = "event_not_handled"
const REASON_GROUP_MESSAGE = "group_message"
const REASON_NO_INBOX_FOUND = "no_inbox_found"
const REASON_FROM_ME_SAVED = "from_me_saved"
const REASON_AGENT_INACTIVE = "agent_inactive_message_saved"
const REASON_OUTSIDE_BUSINESS_HOURS = "outside_business_hours"
const REASON_AI_PAUSED = "ai_paused_message_saved"
const REASON_DUPLICATE = "duplicate"
const REASON_EMPTY_TEXT = "empty_text"

// DedupTTL bounds the window in which a provider message id is treated as a
// duplicate. Outside it, redelivered ids are accepted again (bounded risk).
const DedupTTL = 300 * time.Second

// PauseWindow is how long a human-takeover pause suppresses the responder
// before it lazily expires on the next inbound message.
const PauseWindow = 30 * time.Minute

// OutOfHoursReplyTTL rate-limits the out-of-hours auto-reply per counterparty.
const OutOfHoursReplyTTL = time.Hour

// TextSender delivers an outbound text through the gateway.
type TextSender interface {
	SendText(ctx context.Context, instance, to, text string) error
}

// Result is the outcome of one delivery. Dispatched means the message made it
// through every gate and a reply task was scheduled; otherwise Reason carries
// the stable ignore code. Hard failures are returned as errors instead.
type Result struct {
	Dispatched bool
	Reason     string
}

func ignored(reason string) Result { return Result{Reason: reason} }

// Pipeline runs the ordered filter/gate stages for one webhook delivery.
// Every delivery is an independent concurrent invocation; the only
// cross-process coordination happens through Cache.
type Pipeline struct {
	DB     *gorm.DB
	Cache  cache.Store
	Queue  queue.Enqueuer
	Sender TextSender

	// Now is the single timestamp source per delivery; the fence token and
	// pausedAt both derive from it. Overridable in tests.
	Now func() time.Time
}

func New(db *gorm.DB, store cache.Store, q queue.Enqueuer, sender TextSender) *Pipeline {
	return &Pipeline{DB: db, Cache: store, Queue: q, Sender: sender, Now: time.Now}
}

// Handle processes one authenticated delivery.
func (p *Pipeline) Handle(ctx context.Context, payload WebhookPayload) (Result, error) {
	now := p.Now()

	if payload.Event != EventMessagesUpsert {
		return ignored(REASON_EVENT_NOT_HANDLED), nil
	}
	if payload.IsGroup() {
		return ignored(REASON_GROUP_MESSAGE), nil
	}

	var inbox models.Inbox
	if err := p.DB.Where("instance = ?", payload.Instance).First(&inbox).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return ignored(REASON_NO_INBOX_FOUND), nil
		}
		return Result{}, fmt.Errorf("load inbox: %w", err)
	}

	msg := Normalize(payload)

	if msg.FromMe {
		return p.handleSelfSent(ctx, inbox, msg, now)
	}

	if !msg.HasContent() {
		return ignored(REASON_EMPTY_TEXT), nil
	}

	// Idempotency guard. The marker is the sole exclusivity primitive: if it
	// already exists this delivery is a redelivery and produces no side
	// effects at all. An unreachable cache degrades open; losing dedup beats
	// losing messages.
	created, err := p.Cache.SetIfAbsent(ctx, cache.DedupKey(msg.ProviderID), "1", DedupTTL)
	if err != nil {
		log.Printf("ingest: dedup cache unavailable, continuing without guard: %v", err)
	} else if !created {
		return ignored(REASON_DUPLICATE), nil
	}

	conv, err := p.resolveConversation(inbox.ID, msg)
	if err != nil {
		return Result{}, err
	}

	agent, ok, err := p.loadAgent(inbox)
	if err != nil {
		return Result{}, err
	}
	if !ok || !agent.Active {
		if err := p.saveInbound(conv, msg); err != nil {
			return Result{}, err
		}
		return ignored(REASON_AGENT_INACTIVE), nil
	}

	if agent.BusinessHoursEnabled {
		open, herr := WithinBusinessHours(agent.Schedule, agent.Timezone, now)
		if herr != nil {
			// Misconfigured hours close the gate; under-sending is the safe side.
			log.Printf("ingest: business hours eval failed for agent %d: %v", agent.ID, herr)
		}
		if !open {
			if err := p.saveInbound(conv, msg); err != nil {
				return Result{}, err
			}
			p.sendOutOfHoursReply(ctx, inbox, *agent, conv, now)
			return ignored(REASON_OUTSIDE_BUSINESS_HOURS), nil
		}
	}

	if since, paused := conv.PausedSince(); paused {
		if now.Sub(since) <= PauseWindow {
			if err := p.saveInbound(conv, msg); err != nil {
				return Result{}, err
			}
			return ignored(REASON_AI_PAUSED), nil
		}
		// Lazy expiry: the takeover window has passed, resume automation.
		if err := p.DB.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]any{"ai_paused": false, "paused_at": nil}).Error; err != nil {
			return Result{}, fmt.Errorf("clear pause: %w", err)
		}
		conv.ClearPause()
	}

	return p.dispatch(ctx, inbox, *agent, conv, msg, now)
}

// handleSelfSent covers deliveries originated by the business side itself,
// including manual replies typed straight into the channel. The dedup marker
// protects only message persistence here: the pause write is idempotent and
// must never be short-circuited by a duplicate redelivery.
func (p *Pipeline) handleSelfSent(ctx context.Context, inbox models.Inbox, msg InboundMessage, now time.Time) (Result, error) {
	// pushName on a self-sent delivery names the business side, not the
	// counterparty; it must not leak into the conversation contact data.
	msg.PushName = ""

	conv, err := p.resolveConversation(inbox.ID, msg)
	if err != nil {
		return Result{}, err
	}

	if msg.HasContent() {
		fresh := true
		created, derr := p.Cache.SetIfAbsent(ctx, cache.DedupKey(msg.ProviderID), "1", DedupTTL)
		if derr != nil {
			log.Printf("ingest: dedup cache unavailable on self-sent, continuing: %v", derr)
		} else if !created {
			fresh = false
		}
		if fresh {
			if err := p.persistMessage(conv.ID, models.MESSAGE_ROLE_ASSISTANT, msg); err != nil {
				return Result{}, err
			}
		}
	}

	if err := p.DB.Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]any{"ai_paused": true, "paused_at": now}).Error; err != nil {
		return Result{}, fmt.Errorf("set pause: %w", err)
	}

	return ignored(REASON_FROM_ME_SAVED), nil
}

// dispatch is the eligible path: persist, count, fence, enqueue. The three
// branches run concurrently; the token write strictly precedes the enqueue in
// its branch so a task can never race ahead of its own fence.
func (p *Pipeline) dispatch(ctx context.Context, inbox models.Inbox, agent models.Agent, conv *models.Conversation, msg InboundMessage, now time.Time) (Result, error) {
	fence := now.UnixMilli()
	messageID := uuid.NewString()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.persistMessageWithID(messageID, conv.ID, models.MESSAGE_ROLE_USER, msg)
	})
	g.Go(func() error {
		return p.incrementUnread(conv.ID)
	})
	g.Go(func() error {
		ttl := agent.Debounce() + time.Second
		if err := p.Cache.Set(gctx, cache.DebounceKey(conv.ID), strconv.FormatInt(fence, 10), ttl); err != nil {
			// Degraded: without the token every task in a burst will run, but
			// the reply still goes out. Losing the enqueue is the real failure.
			log.Printf("ingest: debounce token write failed for conversation %d: %v", conv.ID, err)
		}
		job := queue.ReplyJob{
			OrganizationID: inbox.OrganizationID,
			InboxID:        inbox.ID,
			AgentID:        agent.ID,
			ConversationID: conv.ID,
			MessageID:      messageID,
			Text:           msg.Text,
			Fence:          fence,
		}
		if err := p.Queue.Enqueue(gctx, models.TASK_AGENT_REPLY, job, agent.Debounce()); err != nil {
			return fmt.Errorf("enqueue reply task: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{Dispatched: true}, nil
}

func (p *Pipeline) sendOutOfHoursReply(ctx context.Context, inbox models.Inbox, agent models.Agent, conv *models.Conversation, now time.Time) {
	if agent.OutOfHoursMessage == "" {
		return
	}

	claimed, err := p.Cache.SetIfAbsent(ctx, cache.OutOfHoursKey(agent.ID, conv.RemoteID), now.Format(time.RFC3339), OutOfHoursReplyTTL)
	if err != nil {
		// Without the claim we could spam the counterparty; skip instead.
		log.Printf("ingest: out-of-hours claim failed for agent %d: %v", agent.ID, err)
		return
	}
	if !claimed {
		return
	}

	if err := p.Sender.SendText(ctx, inbox.Instance, conv.RemoteID, agent.OutOfHoursMessage); err != nil {
		log.Printf("ingest: out-of-hours send failed for conversation %d: %v", conv.ID, err)
	}
}

// resolveConversation find-or-creates the conversation row and refreshes
// contact metadata when the gateway supplied fresher values. A lost race on
// first contact falls back to re-reading the winner's row.
func (p *Pipeline) resolveConversation(inboxID int64, msg InboundMessage) (*models.Conversation, error) {
	var conv models.Conversation
	err := p.DB.Where("inbox_id = ? AND remote_id = ?", inboxID, msg.RemoteJid).First(&conv).Error
	if err == nil {
		updates := map[string]any{}
		if msg.PushName != "" && msg.PushName != conv.DisplayName {
			updates["display_name"] = msg.PushName
			conv.DisplayName = msg.PushName
		}
		if msg.Phone != "" && msg.Phone != conv.Phone {
			updates["phone"] = msg.Phone
			conv.Phone = msg.Phone
		}
		if len(updates) > 0 {
			if uerr := p.DB.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error; uerr != nil {
				log.Printf("ingest: contact metadata refresh failed for conversation %d: %v", conv.ID, uerr)
			}
		}
		return &conv, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	conv = models.Conversation{
		InboxID:     inboxID,
		RemoteID:    msg.RemoteJid,
		Phone:       msg.Phone,
		DisplayName: msg.PushName,
	}
	if cerr := p.DB.Create(&conv).Error; cerr != nil {
		if rerr := p.DB.Where("inbox_id = ? AND remote_id = ?", inboxID, msg.RemoteJid).First(&conv).Error; rerr != nil {
			return nil, fmt.Errorf("create conversation: %w", cerr)
		}
	}
	return &conv, nil
}

func (p *Pipeline) loadAgent(inbox models.Inbox) (*models.Agent, bool, error) {
	if inbox.AgentID == nil {
		return nil, false, nil
	}
	var agent models.Agent
	if err := p.DB.First(&agent, *inbox.AgentID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load agent: %w", err)
	}
	return &agent, true, nil
}

// saveInbound persists a counterparty message and bumps the unread counter.
// Used by every gated branch so conversation history stays complete.
func (p *Pipeline) saveInbound(conv *models.Conversation, msg InboundMessage) error {
	if err := p.persistMessage(conv.ID, models.MESSAGE_ROLE_USER, msg); err != nil {
		return err
	}
	return p.incrementUnread(conv.ID)
}

func (p *Pipeline) persistMessage(conversationID int64, role string, msg InboundMessage) error {
	return p.persistMessageWithID(uuid.NewString(), conversationID, role, msg)
}

func (p *Pipeline) persistMessageWithID(id string, conversationID int64, role string, msg InboundMessage) error {
	row := models.Message{
		ID:                id,
		ConversationID:    conversationID,
		Role:              role,
		Content:           msg.Text,
		ProviderMessageID: msg.ProviderID,
		Metadata:          msg.MetadataJSON(),
	}
	if err := p.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	return nil
}

func (p *Pipeline) incrementUnread(conversationID int64) error {
	if err := p.DB.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error; err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}
