package repository

import "context"

// ReactionRepository, emoji reaction REST işlemleri için interface.
//
// Toggle yerine açık Add/Remove kullanılır: istek set semantiğinde
// idempotenttir, böylece geç gelen bir cevap reaction'ı ters yöne çeviremez.
// İşlemler her zaman mevcut kullanıcı adına yapılır (token'dan).
type ReactionRepository interface {
	Add(ctx context.Context, messageID, emoji string) error
	Remove(ctx context.Context, messageID, emoji string) error
}
