package models

// Watermark pattern: her mesajı tek tek "okundu" işaretlemek yerine
// "bu mesaja kadar okudum" bilgisi tutulur. Client bu bilgiyi sadece
// sunucuya iletir; sayaçlar ChannelSummary / ThreadSummary üzerinde yaşar.

// ThreadSummary, kullanıcının katıldığı bir thread'in okunmamış sayacı.
type ThreadSummary struct {
	ParentID    string `json:"parent_id"`
	ChannelID   string `json:"channel_id"`
	UnreadCount int    `json:"unread_count"`
}

// UnreadInfo, bir kanalın okunmamış bilgisini taşır (sidebar badge).
type UnreadInfo struct {
	ChannelID         string `json:"channel_id"`
	UnreadCount       int    `json:"unread_count"`
	NotificationCount int    `json:"notification_count"`
}

// MarkReadRequest, okundu işaretleme isteği.
type MarkReadRequest struct {
	MessageID string `json:"message_id,omitempty"`
}
