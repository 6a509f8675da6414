package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength, bir mesajın içerebileceği maksimum karakter (rune) sayısı.
// Sunucudaki doğrulama kuralıyla aynıdır: client reddedilecek bir mesajı
// optimistic olarak cache'e yazmasın diye aynı kontrolü önceden yapar.
const MaxContentLength = 2000

// Message, cache'te tutulan tek bir chat mesajını temsil eder.
//
// Sunucudaki Message modelinin client karşılığıdır; ek olarak thread ve
// optimistic mutation alanlarını taşır:
//   - ThreadParentID doluysa mesaj bir thread cevabıdır.
//   - ReplyCount / LastReplyAt / ThreadParticipants thread'in kökü olan
//     mesajda tutulur.
//   - Provisional true ise mesaj henüz sunucu tarafından onaylanmamıştır
//     (geçici "tmp-" ID'si taşır, sunucuda hiç görünmez).
//
// DeletedAt doluysa mesaj tombstone'dur: içerik temizlenmiş ama thread
// placeholder'ı çözülebilsin diye yerinde tutuluyordur.
type Message struct {
	ID                 string       `json:"id"`
	ChannelID          string       `json:"channel_id"`
	UserID             string       `json:"user_id"`
	ThreadParentID     *string      `json:"thread_parent_id,omitempty"`
	Content            string       `json:"content"`
	Attachments        []Attachment `json:"attachments"`
	Reactions          []Reaction   `json:"reactions"`
	Mentions           []string     `json:"mentions"`
	ReplyCount         int          `json:"reply_count"`
	LastReplyAt        *time.Time   `json:"last_reply_at,omitempty"`
	ThreadParticipants []string     `json:"thread_participants"`
	EditedAt           *time.Time   `json:"edited_at,omitempty"`
	DeletedAt          *time.Time   `json:"deleted_at,omitempty"`
	AlsoSendToChannel  bool         `json:"also_send_to_channel"`
	CreatedAt          time.Time    `json:"created_at"`

	// Nonce, client'ın draft'a verdiği rastgele anahtar. Sunucu geri yansıtırsa
	// provisional mesajın eşleştirilmesi bununla yapılır.
	Nonce string `json:"nonce,omitempty"`

	// Provisional, sadece client tarafında anlamlıdır: JSON'a yazılmaz.
	Provisional bool `json:"-"`
}

// IsReply, mesajın bir thread cevabı olup olmadığını döner.
func (m *Message) IsReply() bool {
	return m.ThreadParentID != nil && *m.ThreadParentID != ""
}

// IsDeleted, mesajın tombstone olup olmadığını döner.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Clone, mesajın derin kopyasını döner.
//
// Store'lar dışarıya her zaman kopya verir: view katmanı elindeki
// Message'ı değiştirse bile cache etkilenmez (tek mutation noktası kuralı).
func (m Message) Clone() Message {
	out := m
	out.ThreadParentID = cloneStringPtr(m.ThreadParentID)
	out.LastReplyAt = cloneTimePtr(m.LastReplyAt)
	out.EditedAt = cloneTimePtr(m.EditedAt)
	out.DeletedAt = cloneTimePtr(m.DeletedAt)
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Reactions != nil {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.Mentions != nil {
		out.Mentions = append([]string(nil), m.Mentions...)
	}
	if m.ThreadParticipants != nil {
		out.ThreadParticipants = append([]string(nil), m.ThreadParticipants...)
	}
	return out
}

// Attachment, bir mesaja eklenmiş dosyayı temsil eder.
// Upload işlemi bu modülün dışındadır: burada sadece metadata tutulur.
type Attachment struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	Filename  string    `json:"filename"`
	FileURL   string    `json:"file_url"`
	FileSize  *int64    `json:"file_size"`
	MimeType  *string   `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagePatch, bir mesaja uygulanacak kısmi güncelleme.
// Pointer kullanılır: nil ise o alan değiştirilmez (partial update).
type MessagePatch struct {
	Content            *string
	EditedAt           *time.Time
	Attachments        *[]Attachment
	ReplyCount         *int
	LastReplyAt        *time.Time
	ThreadParticipants *[]string
	DeletedAt          *time.Time
}

// MessagePage, cursor-based pagination sonucu.
//
// Cursor, bir sonraki fetch'te gönderilecek opak değerdir (kanal timeline'ı için
// "bu ID'den öncekiler", thread için "bu ID'den sonrakiler").
// HasMore, o yönde daha fazla mesaj olup olmadığını belirtir.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Cursor   string    `json:"cursor"`
	HasMore  bool      `json:"has_more"`
}

// Draft, kullanıcının göndermek üzere hazırladığı mesaj.
type Draft struct {
	Content           string       `json:"content"`
	ThreadParentID    *string      `json:"thread_parent_id,omitempty"`
	AlsoSendToChannel bool         `json:"also_send_to_channel"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	Nonce             string       `json:"nonce,omitempty"`
}

// Validate, Draft'ın gönderilebilir olup olmadığını kontrol eder.
// İçerik 1-2000 karakter arası olmalı; sadece dosya içeren draft'larda boş olabilir.
func (d *Draft) Validate() error {
	d.Content = strings.TrimSpace(d.Content)
	contentLen := utf8.RuneCountInString(d.Content)
	if contentLen < 1 && len(d.Attachments) == 0 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > MaxContentLength {
		return fmt.Errorf("message content must be at most %d characters", MaxContentLength)
	}
	if d.ThreadParentID != nil && *d.ThreadParentID == "" {
		d.ThreadParentID = nil
	}
	if d.ThreadParentID == nil && d.AlsoSendToChannel {
		d.AlsoSendToChannel = false
	}
	return nil
}

// UpdateMessageRequest, mesaj düzenleme isteği.
type UpdateMessageRequest struct {
	Content string `json:"content"`
}

// Validate, UpdateMessageRequest'in geçerli olup olmadığını kontrol eder.
func (r *UpdateMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)
	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > MaxContentLength {
		return fmt.Errorf("message content must be at most %d characters", MaxContentLength)
	}
	return nil
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
