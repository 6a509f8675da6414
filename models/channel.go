package models

// ChannelSummary, sidebar'da gösterilen kanal özeti.
//
// Sayaçlar üç kaynaktan değişir:
//  1. Yeni mesaj event'leri (unread / notification artar)
//  2. Mark-read aksiyonu (ikisi de tam olarak sıfırlanır)
//  3. Star/unstar aksiyonu (IsStarred)
//
// UnreadCount hiçbir zaman negatif olamaz; mark-read onu her zaman 0'a çeker,
// tahmini azaltma yapılmaz.
type ChannelSummary struct {
	ID                string  `json:"id"`
	WorkspaceID       string  `json:"workspace_id"`
	Name              string  `json:"name"`
	UnreadCount       int     `json:"unread_count"`
	NotificationCount int     `json:"notification_count"`
	LastReadMessageID *string `json:"last_read_message_id"`
	IsStarred         bool    `json:"is_starred"`
}

// ChannelGroup, sidebar'daki başlık altında toplanan kanallar.
// Selector'lar "starred" ve "channels" gruplarını üretir.
type ChannelGroup struct {
	Key      string           `json:"key"`
	Channels []ChannelSummary `json:"channels"`
}
