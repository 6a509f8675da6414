// Package ws, workspace başına push bağlantısını yönetir ve sunucudan gelen
// event'leri store'lara dağıtır.
//
// Mimari:
//   - Connection: Tek bir workspace'in WebSocket bağlantısı (state machine + backoff)
//   - Hub: Workspace → Connection eşlemesini yöneten merkezi yapı
//   - Dispatcher: Decode edilmiş event'leri store'lara yönlendirir
//   - PushEvent: Event taksonomisi üzerinde kapalı (sealed) bir union
//
// Event akışı:
//  1. Başka bir client mesaj gönderir → sunucu push event yayınlar
//  2. Connection'ın okuma döngüsü frame'i okur ve Decode ile tipli event'e çevirir
//  3. Dispatcher.Apply event'i senkron olarak uygular (alınış sırası korunur)
//  4. Store'lar subscriber'lara değişikliği bildirir
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/mqvi-sync/models"
)

// ErrUnknownEvent, tanınmayan bir event türü için Decode'un döndüğü hata.
// İleri uyumluluk için bu event'ler yok sayılır, bağlantı kapatılmaz.
var ErrUnknownEvent = errors.New("unknown event type")

// Envelope, push bağlantısında iki yönde de taşınan frame formatı.
//
// Seq (sequence number): sunucunun her outbound event'e verdiği artan sayı.
// Sadece log ve teşhis için kullanılır; eksik event'ler seq ile geri
// istenmez, yeniden bağlanınca scope'lar refetch edilir.
type Envelope struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
}

// Server → Client event türleri
const (
	TypeMessageCreated          = "message.created"
	TypeMessageUpdated          = "message.updated"
	TypeMessageDeleted          = "message.deleted"
	TypeReactionAdded           = "reaction.added"
	TypeReactionRemoved         = "reaction.removed"
	TypeThreadReplyCountChanged = "thread.reply_count_changed"
	TypeChannelUnreadChanged    = "channel.unread_changed"
	TypeTypingStart             = "typing.start"
	TypeTypingStop              = "typing.stop"
	TypePresenceChanged         = "presence.changed"
)

// Kontrol frame'leri: event değildir, dispatcher'a gitmez.
const (
	TypeHeartbeat    = "heartbeat"     // Client her 30sn'de gönderir
	TypeHeartbeatAck = "heartbeat_ack" // Sunucunun heartbeat cevabı
	TypeTyping       = "typing"        // Client → Server: kullanıcı yazıyor
)

// PushEvent, sunucudan gelen tipli bir event.
//
// Interface unexported bir method taşıdığı için sadece bu paketteki tipler
// implement edebilir; Dispatcher.Apply içindeki type switch taksonominin
// tamamını kapsar.
type PushEvent interface {
	EventType() string
	pushEvent()
}

// MessageCreated, yeni bir mesaj (veya thread cevabı) oluşturuldu.
type MessageCreated struct {
	Message models.Message
}

// MessageUpdated, mesajın içeriği düzenlendi.
type MessageUpdated struct {
	ID          string               `json:"id"`
	ChannelID   string               `json:"channel_id"`
	Content     string               `json:"content"`
	EditedAt    *time.Time           `json:"edited_at"`
	Attachments *[]models.Attachment `json:"attachments,omitempty"`
}

// MessageDeleted, mesaj sunucuda silindi.
type MessageDeleted struct {
	ID             string  `json:"id"`
	ChannelID      string  `json:"channel_id"`
	ThreadParentID *string `json:"thread_parent_id,omitempty"`
}

// ReactionAdded, bir kullanıcı mesaja emoji ekledi.
type ReactionAdded struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

// ReactionRemoved, bir kullanıcı mesajdan emojisini kaldırdı.
type ReactionRemoved struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

// ThreadReplyCountChanged, bir thread'in cevap sayacı değişti.
//
// ReplyID doluysa artışa sebep olan cevabı belirtir; dispatcher bu cevap
// daha önce sayıldıysa sayacı tekrar artırmaz. ReplyID boşsa ReplyCount
// mutlak değer olarak yazılır.
type ThreadReplyCountChanged struct {
	ParentID    string     `json:"parent_id"`
	ChannelID   string     `json:"channel_id"`
	ReplyID     string     `json:"reply_id,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	ReplyCount  int        `json:"reply_count"`
	LastReplyAt *time.Time `json:"last_reply_at,omitempty"`
}

// ChannelUnreadChanged, kanalın sunucu tarafı okunmamış sayaçları değişti.
type ChannelUnreadChanged struct {
	ChannelID         string  `json:"channel_id"`
	UnreadCount       int     `json:"unread_count"`
	NotificationCount int     `json:"notification_count"`
	LastReadMessageID *string `json:"last_read_message_id,omitempty"`
}

// TypingStarted, bir kullanıcı kanalda yazmaya başladı (veya devam ediyor).
type TypingStarted struct {
	ChannelID   string `json:"channel_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// TypingStopped, kullanıcı yazmayı bıraktı.
type TypingStopped struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

// PresenceChanged, kullanıcının çevrimiçi durumu değişti.
type PresenceChanged struct {
	UserID string            `json:"user_id"`
	Status models.UserStatus `json:"status"`
}

func (MessageCreated) EventType() string          { return TypeMessageCreated }
func (MessageUpdated) EventType() string          { return TypeMessageUpdated }
func (MessageDeleted) EventType() string          { return TypeMessageDeleted }
func (ReactionAdded) EventType() string           { return TypeReactionAdded }
func (ReactionRemoved) EventType() string         { return TypeReactionRemoved }
func (ThreadReplyCountChanged) EventType() string { return TypeThreadReplyCountChanged }
func (ChannelUnreadChanged) EventType() string    { return TypeChannelUnreadChanged }
func (TypingStarted) EventType() string           { return TypeTypingStart }
func (TypingStopped) EventType() string           { return TypeTypingStop }
func (PresenceChanged) EventType() string         { return TypePresenceChanged }

func (MessageCreated) pushEvent()          {}
func (MessageUpdated) pushEvent()          {}
func (MessageDeleted) pushEvent()          {}
func (ReactionAdded) pushEvent()           {}
func (ReactionRemoved) pushEvent()         {}
func (ThreadReplyCountChanged) pushEvent() {}
func (ChannelUnreadChanged) pushEvent()    {}
func (TypingStarted) pushEvent()           {}
func (TypingStopped) pushEvent()           {}
func (PresenceChanged) pushEvent()         {}

// Decode, envelope'u tipli bir PushEvent'e çevirir.
// Envelope'taki channel_id, payload'da boş bırakılan channel_id'yi doldurur.
func Decode(env Envelope) (PushEvent, error) {
	switch env.Type {
	case TypeMessageCreated:
		var m models.Message
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		if m.ChannelID == "" {
			m.ChannelID = env.ChannelID
		}
		m.Provisional = false
		return MessageCreated{Message: m}, nil

	case TypeMessageUpdated:
		var e MessageUpdated
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		fillChannel(&e.ChannelID, env.ChannelID)
		return e, nil

	case TypeMessageDeleted:
		var e MessageDeleted
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		fillChannel(&e.ChannelID, env.ChannelID)
		return e, nil

	case TypeReactionAdded:
		var e ReactionAdded
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		fillChannel(&e.ChannelID, env.ChannelID)
		return e, nil

	case TypeReactionRemoved:
		var e ReactionRemoved
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		fillChannel(&e.ChannelID, env.ChannelID)
		return e, nil

	case TypeThreadReplyCountChanged:
		var e ThreadReplyCountChanged
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		fillChannel(&e.ChannelID, env.ChannelID)
		return e, nil

	case TypeChannelUnreadChanged:
		var e ChannelUnreadChanged
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		fillChannel(&e.ChannelID, env.ChannelID)
		return e, nil

	case TypeTypingStart:
		var e TypingStarted
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		fillChannel(&e.ChannelID, env.ChannelID)
		return e, nil

	case TypeTypingStop:
		var e TypingStopped
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		fillChannel(&e.ChannelID, env.ChannelID)
		return e, nil

	case TypePresenceChanged:
		var e PresenceChanged
		if err := decodePayload(env, &e); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
}

func decodePayload(env Envelope, out any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", env.Type, err)
	}
	return nil
}

func fillChannel(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}

// TypingFrame, sunucuya gönderilen "yazıyor" frame'ini oluşturur.
func TypingFrame(channelID string) Envelope {
	return Envelope{Type: TypeTyping, ChannelID: channelID}
}
