// Package models, sync engine'in domain modellerini (veri yapıları) tanımlar.
//
// Modeller sunucudan gelen JSON'un Go karşılığıdır; `json:"..."` tag'leri
// REST cevaplarının ve push event payload'larının nasıl decode edileceğini
// belirler. Client'a özgü alanlar (ör. Message.Provisional) `json:"-"` ile
// işaretlenir.
package models

import "time"

// UserStatus, kullanıcının çevrimiçi durumunu temsil eder.
// Go'da enum yoktur, bunun yerine typed constant'lar kullanılır.
type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusIdle    UserStatus = "idle"
	UserStatusAway    UserStatus = "away"
	UserStatusDND     UserStatus = "dnd"
	UserStatusOffline UserStatus = "offline"
)

// IsKnown, status'un tanınan bir değer olup olmadığını döner.
// Bilinmeyen değerler yine de saklanır (forward-compatibility): bu sadece
// view katmanının ikon seçimi içindir.
func (s UserStatus) IsKnown() bool {
	switch s {
	case UserStatusOnline, UserStatusIdle, UserStatusAway, UserStatusDND, UserStatusOffline:
		return true
	}
	return false
}

// PresenceEntry, bir kullanıcının son bilinen durumu.
// Last-write-wins; TTL yoktur: presence sessizlikle değil, açık "offline"
// event'iyle düzeltilir.
type PresenceEntry struct {
	UserID    string     `json:"user_id"`
	Status    UserStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TypingEntry, "kim nerede yazıyor" bilgisi.
// ExpiresAt geçtikten sonra entry okunmaz; yeni bir typing.start TTL'i yeniden kurar.
type TypingEntry struct {
	ChannelID   string    `json:"channel_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Alive, entry'nin verilen anda hâlâ görünür olup olmadığını döner.
func (e TypingEntry) Alive(now time.Time) bool {
	return e.ExpiresAt.After(now)
}
