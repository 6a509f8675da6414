package ws

import (
	"errors"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg/metrics"
	"github.com/akinalp/mqvi-sync/presence"
	"github.com/akinalp/mqvi-sync/store"
)

// Dispatcher, push event'lerini ilgili store'a yönlendirir.
//
// Her event tek bir store çağrısı zinciri olarak senkron uygulanır; store'lar
// kendi lock'larını tutar. Materialized olmayan bir mesaja ya da bilinmeyen
// bir kanala referans veren event'ler stale sayılır ve düşürülür: bu bir
// hata değildir, ilgili scope henüz (veya artık) cache'te değildir.
type Dispatcher struct {
	messages *store.MessageStore
	channels *store.ChannelStore
	presence *presence.Store
	userID   string
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher, yeni bir Dispatcher oluşturur.
// userID mevcut kullanıcıdır: kendi typing event'leri ve kendi mesajları
// okunmamış sayılmaz.
func NewDispatcher(
	messages *store.MessageStore,
	channels *store.ChannelStore,
	presenceStore *presence.Store,
	userID string,
	clk clock.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		messages: messages,
		channels: channels,
		presence: presenceStore,
		userID:   userID,
		clock:    clk,
		logger:   logger.Named("push"),
		metrics:  m,
	}
}

// HandleFrame, bir workspace bağlantısından gelen envelope'u decode edip uygular.
// Hub'ın FrameHandler'ı olarak kullanılır.
func (d *Dispatcher) HandleFrame(workspaceID string, env Envelope) {
	ev, err := Decode(env)
	if err != nil {
		d.metrics.EventDropped(env.Type)
		if errors.Is(err, ErrUnknownEvent) {
			d.logger.Debug("unknown push event ignored",
				zap.String("workspace_id", workspaceID),
				zap.String("type", env.Type),
			)
			return
		}
		d.logger.Warn("malformed push event",
			zap.String("workspace_id", workspaceID),
			zap.String("type", env.Type),
			zap.Int64("seq", env.Seq),
			zap.Error(err),
		)
		return
	}
	d.Apply(ev)
}

// Apply, event'i store'lara uygular. Event en az bir store'u etkilediyse
// (veya idempotent olarak zaten uygulanmışsa) true, stale olarak
// düşürüldüyse false döner.
func (d *Dispatcher) Apply(ev PushEvent) bool {
	var applied bool
	switch e := ev.(type) {
	case MessageCreated:
		applied = d.messageCreated(e)
	case MessageUpdated:
		applied = d.messageUpdated(e)
	case MessageDeleted:
		applied = d.messageDeleted(e)
	case ReactionAdded:
		_, applied = d.messages.SetReaction(e.MessageID, e.UserID, e.Emoji, true)
	case ReactionRemoved:
		_, applied = d.messages.SetReaction(e.MessageID, e.UserID, e.Emoji, false)
	case ThreadReplyCountChanged:
		applied = d.replyCountChanged(e)
	case ChannelUnreadChanged:
		applied = d.channels.SetUnread(e.ChannelID, e.UnreadCount, e.NotificationCount, e.LastReadMessageID)
	case TypingStarted:
		if e.UserID == d.userID {
			return false
		}
		d.presence.StartTyping(e.ChannelID, e.UserID, e.DisplayName)
		applied = true
	case TypingStopped:
		d.presence.StopTyping(e.ChannelID, e.UserID)
		applied = true
	case PresenceChanged:
		d.presence.SetPresence(e.UserID, e.Status)
		if e.Status == models.UserStatusOffline {
			d.presence.ClearUser(e.UserID)
		}
		applied = true
	default:
		d.logger.Warn("unhandled push event", zap.String("type", ev.EventType()))
		return false
	}

	if applied {
		d.metrics.EventApplied(ev.EventType())
	} else {
		d.metrics.EventDropped(ev.EventType())
		d.logger.Debug("stale push event dropped", zap.String("type", ev.EventType()))
	}
	return applied
}

func (d *Dispatcher) messageCreated(e MessageCreated) bool {
	msg := e.Message
	res := d.messages.IngestCreated(msg)
	if res.Deleted {
		// Silinmiş bir mesajın tekrar teslimi; sayaçlara da yansımaz.
		return false
	}
	unread := d.channels.RecordMessage(msg, d.userID)
	threadUnread := d.channels.RecordThreadReply(msg, d.userID)

	// Mesaj gönderen kullanıcı artık yazmıyor.
	d.presence.StopTyping(msg.ChannelID, msg.UserID)

	if res.AdoptedTempID != "" {
		d.logger.Debug("provisional message adopted from push",
			zap.String("temp_id", res.AdoptedTempID),
			zap.String("message_id", msg.ID),
		)
	}
	return len(res.Scopes) > 0 || res.ReplyCounted || unread || threadUnread
}

func (d *Dispatcher) messageUpdated(e MessageUpdated) bool {
	// Sunucunun sildiğini bildirdiği bir mesajın geç gelen edit'i
	// tombstone'u diriltmemeli.
	if d.messages.IsServerDeleted(e.ID) {
		return false
	}
	d.messages.RecordConfirmedEdit(e.ID, e.Content, e.EditedAt)

	content := e.Content
	_, found := d.messages.PatchMessage(e.ID, models.MessagePatch{
		Content:     &content,
		EditedAt:    e.EditedAt,
		Attachments: e.Attachments,
	})
	return found
}

func (d *Dispatcher) messageDeleted(e MessageDeleted) bool {
	d.messages.MarkServerDeleted(e.ID)
	return len(d.messages.RemoveMessage(e.ID)) > 0
}

func (d *Dispatcher) replyCountChanged(e ThreadReplyCountChanged) bool {
	if e.ReplyID != "" {
		// Artışa sebep olan cevap biliniyor: aynı cevap message.created
		// veya optimistic gönderim ile sayıldıysa tekrar sayılmaz.
		parentID := e.ParentID
		at := d.clock.Now()
		if e.LastReplyAt != nil {
			at = *e.LastReplyAt
		}
		stub := models.Message{
			ID:             e.ReplyID,
			ChannelID:      e.ChannelID,
			UserID:         e.UserID,
			ThreadParentID: &parentID,
			CreatedAt:      at,
		}
		if d.messages.ApplyReply(stub) {
			return true
		}
		return d.messages.ReplyCounted(e.ParentID, e.ReplyID)
	}

	count := e.ReplyCount
	_, found := d.messages.PatchMessage(e.ParentID, models.MessagePatch{
		ReplyCount:  &count,
		LastReplyAt: e.LastReplyAt,
	})
	return found
}
