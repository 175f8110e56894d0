package ingest

import (
	"encoding/json"
	"strings"

	"github.com/Paulo-german/kronos-crm-sub001/tools"
)

// Event kinds delivered by the gateway. Only message upserts are handled;
// everything else (connection updates, presence, read receipts) is ignored.
const EventMessagesUpsert = "messages.upsert"

const groupJidSuffix = "@g.us"
const lidJidSuffix = "@lid"

// WebhookPayload is the gateway delivery shape. One delivery carries one
// message; the gateway retries and may duplicate or reorder deliveries.
type WebhookPayload struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		Key struct {
			RemoteJid string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
			// SenderPn carries the phone-number jid when RemoteJid is a
			// linked-device (@lid) alias for the same counterparty.
			SenderPn string `json:"senderPn"`
		} `json:"key"`
		PushName         string          `json:"pushName"`
		MessageType      string          `json:"messageType"`
		MessageTimestamp int64           `json:"messageTimestamp"`
		Message          *MessageContent `json:"message"`
	} `json:"data"`
}

type MessageContent struct {
	Conversation        string `json:"conversation,omitempty"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage,omitempty"`
	ImageMessage *struct {
		URL      string `json:"url"`
		Mimetype string `json:"mimetype"`
		Caption  string `json:"caption"`
	} `json:"imageMessage,omitempty"`
	AudioMessage *struct {
		URL      string `json:"url"`
		Mimetype string `json:"mimetype"`
	} `json:"audioMessage,omitempty"`
	DocumentMessage *struct {
		URL      string `json:"url"`
		Mimetype string `json:"mimetype"`
		FileName string `json:"fileName"`
	} `json:"documentMessage,omitempty"`
}

// MediaDescriptor is stored as the Message metadata blob.
type MediaDescriptor struct {
	Kind     string `json:"kind"` // image | audio | document
	URL      string `json:"url"`
	Mimetype string `json:"mimetype"`
	FileName string `json:"file_name,omitempty"`
}

// InboundMessage is the canonical shape the pipeline works with.
type InboundMessage struct {
	ProviderID string
	RemoteJid  string // canonical counterparty jid
	FromMe     bool
	Text       string
	Media      *MediaDescriptor
	Phone      string
	PushName   string
}

// CanonicalJid resolves the two aliased id forms to one id. Linked-device
// deliveries arrive with a @lid RemoteJid plus the real phone jid in SenderPn;
// without this the same counterparty silently splits into two conversations.
func (p WebhookPayload) CanonicalJid() string {
	jid := strings.TrimSpace(p.Data.Key.RemoteJid)
	if strings.HasSuffix(jid, lidJidSuffix) {
		if pn := strings.TrimSpace(p.Data.Key.SenderPn); pn != "" {
			return pn
		}
	}
	return jid
}

// IsGroup reports whether the delivery targets a multi-party conversation.
func (p WebhookPayload) IsGroup() bool {
	return strings.HasSuffix(strings.TrimSpace(p.Data.Key.RemoteJid), groupJidSuffix)
}

// Normalize converts the provider payload into the canonical message. Text is
// empty for media without caption and for non-content events routed as
// messages (reactions, receipts).
func Normalize(p WebhookPayload) InboundMessage {
	msg := InboundMessage{
		ProviderID: strings.TrimSpace(p.Data.Key.ID),
		RemoteJid:  p.CanonicalJid(),
		FromMe:     p.Data.Key.FromMe,
		PushName:   strings.TrimSpace(p.Data.PushName),
	}
	msg.Phone = tools.NormalizePhone(phoneFromJid(msg.RemoteJid))

	content := p.Data.Message
	if content == nil {
		return msg
	}

	switch {
	case strings.TrimSpace(content.Conversation) != "":
		msg.Text = strings.TrimSpace(content.Conversation)
	case content.ExtendedTextMessage != nil:
		msg.Text = strings.TrimSpace(content.ExtendedTextMessage.Text)
	case content.ImageMessage != nil:
		msg.Text = strings.TrimSpace(content.ImageMessage.Caption)
		msg.Media = &MediaDescriptor{
			Kind:     "image",
			URL:      content.ImageMessage.URL,
			Mimetype: content.ImageMessage.Mimetype,
		}
	case content.AudioMessage != nil:
		msg.Media = &MediaDescriptor{
			Kind:     "audio",
			URL:      content.AudioMessage.URL,
			Mimetype: content.AudioMessage.Mimetype,
		}
	case content.DocumentMessage != nil:
		msg.Media = &MediaDescriptor{
			Kind:     "document",
			URL:      content.DocumentMessage.URL,
			Mimetype: content.DocumentMessage.Mimetype,
			FileName: content.DocumentMessage.FileName,
		}
	}

	return msg
}

// HasContent reports whether there is anything worth persisting: either text
// or a media descriptor. Empty text-type deliveries are usually receipts or
// reactions misrouted as messages.
func (m InboundMessage) HasContent() bool {
	return m.Text != "" || m.Media != nil
}

// MetadataJSON serializes the media descriptor for the Message row.
func (m InboundMessage) MetadataJSON() string {
	if m.Media == nil {
		return ""
	}
	b, err := json.Marshal(m.Media)
	if err != nil {
		return ""
	}
	return string(b)
}

func phoneFromJid(jid string) string {
	at := strings.Index(jid, "@")
	if at <= 0 {
		return ""
	}
	return jid[:at]
}
