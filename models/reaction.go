package models

// Reaction, bir kullanıcının bir mesaja verdiği tek bir emoji tepkisi.
//
// Set semantiği: (user_id, emoji) çifti bir mesajda en fazla bir kez bulunur.
// Var olan çifti eklemek ve olmayan çifti silmek no-op'tur.
// MessageID alanı yoktur çünkü reaction her zaman sahibi olan Message
// içinde taşınır.
type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// ReactionGroup, bir mesajdaki aynı emojinin toplu görünümü.
// View katmanı için selector'lar tarafından üretilir.
//
// Örnek: 👍 3 [user1, user2, user3]
// Mevcut kullanıcı Users listesindeyse Me true olur (aktif buton).
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
	Me    bool     `json:"me"`
}

// HasReaction, reaction setinde (userID, emoji) çiftinin olup olmadığını döner.
func HasReaction(reactions []Reaction, userID, emoji string) bool {
	for _, r := range reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// AddReaction, çifti sete ekler. Çift zaten varsa seti olduğu gibi döner.
// İkinci dönüş değeri setin değişip değişmediğini belirtir.
func AddReaction(reactions []Reaction, userID, emoji string) ([]Reaction, bool) {
	if HasReaction(reactions, userID, emoji) {
		return reactions, false
	}
	out := make([]Reaction, 0, len(reactions)+1)
	out = append(out, reactions...)
	out = append(out, Reaction{UserID: userID, Emoji: emoji})
	return out, true
}

// RemoveReaction, çifti setten çıkarır. Çift yoksa seti olduğu gibi döner.
func RemoveReaction(reactions []Reaction, userID, emoji string) ([]Reaction, bool) {
	idx := -1
	for i, r := range reactions {
		if r.UserID == userID && r.Emoji == emoji {
			idx = i
			break
		}
	}
	if idx < 0 {
		return reactions, false
	}
	out := make([]Reaction, 0, len(reactions)-1)
	out = append(out, reactions[:idx]...)
	out = append(out, reactions[idx+1:]...)
	return out, true
}

// UnionReactions, iki seti birleştirir; a'nın sırası korunur.
func UnionReactions(a, b []Reaction) []Reaction {
	out := append([]Reaction(nil), a...)
	for _, r := range b {
		out, _ = AddReaction(out, r.UserID, r.Emoji)
	}
	return out
}
