package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/repository"
	"github.com/akinalp/mqvi-sync/store"
)

// TempIDPrefix, sunucu onayı bekleyen mesajların geçici ID ön eki.
const TempIDPrefix = "tmp-"

// MaxEmojiLength, bir emoji string'inin maksimum karakter uzunluğu.
// Bazı bileşik emojiler (aile, bayrak vb.) 10+ codepoint olabilir.
const MaxEmojiLength = 32

// IsTempID, ID'nin henüz onaylanmamış bir mesaja ait olup olmadığını döner.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// op, tek bir optimistic aksiyonun komut nesnesi.
//
// Akış: apply (spekülatif yazma + snapshot) → execute (ağ isteği) →
// başarıda commit, hatada rollback. apply hata dönerse istek hiç gönderilmez.
// Her op kendi snapshot'ını taşıdığı için rollback ağdan bağımsız test edilebilir.
type op interface {
	kind() string
	ref() string
	apply() error
	execute(ctx context.Context) error
	commit()
	rollback(err error)
}

// mutationEnv, op'ların paylaştığı bağımlılıklar.
type mutationEnv struct {
	messageRepo   repository.MessageRepository
	reactionRepo  repository.ReactionRepository
	readStateRepo repository.ReadStateRepository
	channelRepo   repository.ChannelRepository

	messages *store.MessageStore
	channels *store.ChannelStore

	userID string
	clock  clock.Clock
	gens   *generations
}

// generations, aynı hedefe yapılan aksiyonların sırasını tutar.
// Rollback sadece hedefe en son yapılan aksiyon kendisiyse uygulanır;
// böylece eski bir isteğin hatası yeni bir aksiyonu ezmez.
type generations struct {
	mu   sync.Mutex
	last map[string]uint64
}

func newGenerations() *generations {
	return &generations{last: make(map[string]uint64)}
}

func (g *generations) next(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[key]++
	return g.last[key]
}

func (g *generations) isLatest(key string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last[key] == gen
}

// ─── send ───

type sendOp struct {
	env       *mutationEnv
	channelID string
	draft     models.Draft

	tempID    string
	confirmed *models.Message
}

func (o *sendOp) kind() string { return KindSend }
func (o *sendOp) ref() string  { return o.tempID }

func (o *sendOp) apply() error {
	if o.channelID == "" {
		return fmt.Errorf("%w: channel id is required", pkg.ErrBadRequest)
	}
	if err := o.draft.Validate(); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	if o.draft.ThreadParentID != nil && IsTempID(*o.draft.ThreadParentID) {
		return fmt.Errorf("%w: cannot reply to an unsent message", pkg.ErrBadRequest)
	}
	if o.draft.Nonce == "" {
		o.draft.Nonce = uuid.NewString()
	}

	provisional := models.Message{
		ID:                TempIDPrefix + uuid.NewString(),
		ChannelID:         o.channelID,
		UserID:            o.env.userID,
		ThreadParentID:    o.draft.ThreadParentID,
		Content:           o.draft.Content,
		Attachments:       o.draft.Attachments,
		AlsoSendToChannel: o.draft.AlsoSendToChannel,
		CreatedAt:         o.env.clock.Now(),
		Nonce:             o.draft.Nonce,
	}
	o.tempID = provisional.ID
	o.env.messages.InsertProvisional(provisional)
	return nil
}

func (o *sendOp) execute(ctx context.Context) error {
	msg, err := o.env.messageRepo.Send(ctx, o.channelID, o.draft)
	if err != nil {
		return err
	}
	if msg.ChannelID == "" {
		msg.ChannelID = o.channelID
	}
	if msg.Nonce == "" {
		msg.Nonce = o.draft.Nonce
	}
	o.confirmed = msg
	return nil
}

// commit, provisional mesajı sunucu mesajıyla değiştirir. Push event'i
// sunucu mesajını daha önce getirdiyse store ikisini tek kayıtta birleştirir.
func (o *sendOp) commit() {
	o.env.messages.ConfirmProvisional(o.tempID, *o.confirmed)
}

func (o *sendOp) rollback(error) {
	o.env.messages.DiscardProvisional(o.tempID)
}

// ─── edit ───

type editOp struct {
	env       *mutationEnv
	messageID string
	content   string

	confirmed *models.Message
}

func (o *editOp) kind() string { return KindEdit }
func (o *editOp) ref() string  { return o.messageID }

func (o *editOp) apply() error {
	if IsTempID(o.messageID) {
		return fmt.Errorf("%w: cannot edit an unsent message", pkg.ErrBadRequest)
	}
	req := models.UpdateMessageRequest{Content: o.content}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	o.content = req.Content

	now := o.env.clock.Now()
	o.env.messages.PatchMessage(o.messageID, models.MessagePatch{
		Content:  &o.content,
		EditedAt: &now,
	})
	return nil
}

func (o *editOp) execute(ctx context.Context) error {
	msg, err := o.env.messageRepo.Update(ctx, o.messageID, o.content)
	if err != nil {
		return err
	}
	o.confirmed = msg
	return nil
}

func (o *editOp) commit() {
	content, editedAt := o.content, o.confirmed.EditedAt
	if o.confirmed.Content != "" {
		content = o.confirmed.Content
	}
	o.env.messages.RecordConfirmedEdit(o.messageID, content, editedAt)
	if current, _, ok := o.env.messages.Find(o.messageID); !ok || current.IsDeleted() {
		return
	}
	o.env.messages.PatchMessage(o.messageID, models.MessagePatch{
		Content:  &content,
		EditedAt: editedAt,
	})
}

// rollback, içeriği bilinen son sunucu içeriğine döndürür. Bu arada gelen
// bir message.updated event'i kaydı güncellediyse o içerik geri yüklenir.
func (o *editOp) rollback(error) {
	o.env.messages.RevertEdit(o.messageID)
}

// ─── delete ───

type deleteOp struct {
	env       *mutationEnv
	messageID string

	removals []store.Removal
}

func (o *deleteOp) kind() string { return KindDelete }
func (o *deleteOp) ref() string  { return o.messageID }

func (o *deleteOp) apply() error {
	if IsTempID(o.messageID) {
		return fmt.Errorf("%w: cannot delete an unsent message", pkg.ErrBadRequest)
	}
	o.removals = o.env.messages.RemoveMessage(o.messageID)
	return nil
}

// execute, sunucuda zaten olmayan bir mesajı silinmiş sayar.
func (o *deleteOp) execute(ctx context.Context) error {
	err := o.env.messageRepo.Delete(ctx, o.messageID)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil
	}
	return err
}

func (o *deleteOp) commit() {
	o.env.messages.MarkServerDeleted(o.messageID)
}

// rollback, silinmeden önceki tam kopyayı geri yükler: sunucu bu arada
// silmeyi push ile bildirdiyse yüklemez.
func (o *deleteOp) rollback(error) {
	if o.env.messages.IsServerDeleted(o.messageID) {
		return
	}
	o.env.messages.RestoreMessage(o.removals)
}

// ─── reaction ───

type reactionOp struct {
	env       *mutationEnv
	messageID string
	emoji     string
	add       bool

	gen   uint64
	was   bool
	found bool
}

func (o *reactionOp) kind() string {
	if o.add {
		return KindAddReaction
	}
	return KindRemoveReaction
}

func (o *reactionOp) ref() string { return o.messageID }

func (o *reactionOp) key() string {
	return "reaction:" + o.messageID + ":" + o.emoji
}

func (o *reactionOp) apply() error {
	if IsTempID(o.messageID) {
		return fmt.Errorf("%w: cannot react to an unsent message", pkg.ErrBadRequest)
	}
	o.emoji = strings.TrimSpace(o.emoji)
	if o.emoji == "" {
		return fmt.Errorf("%w: emoji is required", pkg.ErrBadRequest)
	}
	if utf8.RuneCountInString(o.emoji) > MaxEmojiLength {
		return fmt.Errorf("%w: emoji too long", pkg.ErrBadRequest)
	}
	o.gen = o.env.gens.next(o.key())
	o.was, o.found = o.env.messages.SetReaction(o.messageID, o.env.userID, o.emoji, o.add)
	return nil
}

func (o *reactionOp) execute(ctx context.Context) error {
	if o.add {
		return o.env.reactionRepo.Add(ctx, o.messageID, o.emoji)
	}
	return o.env.reactionRepo.Remove(ctx, o.messageID, o.emoji)
}

func (o *reactionOp) commit() {}

// rollback, sadece mevcut kullanıcının (mesaj, emoji) çiftini eski haline
// döndürür; çifte daha sonra yeni bir aksiyon yapıldıysa hiçbir şey yapmaz.
// Diğer kullanıcıların reaction'larına dokunulmaz.
func (o *reactionOp) rollback(error) {
	if !o.found || !o.env.gens.isLatest(o.key(), o.gen) {
		return
	}
	o.env.messages.SetReaction(o.messageID, o.env.userID, o.emoji, o.was)
}

// ─── star ───

type starOp struct {
	env       *mutationEnv
	channelID string
	starred   bool

	gen  uint64
	prev bool
	ok   bool
}

func (o *starOp) kind() string { return KindStar }
func (o *starOp) ref() string  { return o.channelID }

func (o *starOp) apply() error {
	if o.channelID == "" {
		return fmt.Errorf("%w: channel id is required", pkg.ErrBadRequest)
	}
	o.gen = o.env.gens.next("star:" + o.channelID)
	o.prev, o.ok = o.env.channels.SetStarred(o.channelID, o.starred)
	return nil
}

func (o *starOp) execute(ctx context.Context) error {
	return o.env.channelRepo.SetStarred(ctx, o.channelID, o.starred)
}

func (o *starOp) commit() {}

func (o *starOp) rollback(error) {
	if !o.ok || !o.env.gens.isLatest("star:"+o.channelID, o.gen) {
		return
	}
	o.env.channels.SetStarred(o.channelID, o.prev)
}

// ─── mark read ───

// markReadOp, kanal veya thread sayacını sıfırlar. Hata durumunda geri
// alınmaz: sayaç eksik sayılabilir ama fazla sayılı takılı kalamaz; bir
// sonraki okunmamış event'i durumu düzeltir.
type markReadOp struct {
	env      *mutationEnv
	targetID string
	thread   bool

	lastReadID string
}

func (o *markReadOp) kind() string {
	if o.thread {
		return KindMarkThreadRead
	}
	return KindMarkRead
}

func (o *markReadOp) ref() string { return o.targetID }

func (o *markReadOp) apply() error {
	if o.targetID == "" {
		return fmt.Errorf("%w: id is required", pkg.ErrBadRequest)
	}
	if o.thread {
		o.env.channels.MarkThreadRead(o.targetID)
		return nil
	}

	var lastRead *string
	msgs := o.env.messages.Messages(store.ChannelScope(o.targetID))
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].Provisional {
			o.lastReadID = msgs[i].ID
			lastRead = &o.lastReadID
			break
		}
	}
	o.env.channels.MarkRead(o.targetID, lastRead)
	return nil
}

func (o *markReadOp) execute(ctx context.Context) error {
	if o.thread {
		return o.env.readStateRepo.MarkThreadRead(ctx, o.targetID)
	}
	return o.env.readStateRepo.MarkChannelRead(ctx, o.targetID, o.lastReadID)
}

func (o *markReadOp) commit() {}

func (o *markReadOp) rollback(error) {}
