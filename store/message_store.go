package store

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/models"
)

// ProvisionalMatchWindow, nonce taşımayan bir sunucu mesajının provisional
// bir mesajla eşleştirilebileceği maksimum zaman farkı.
const ProvisionalMatchWindow = 2 * time.Minute

// journalRetention, canlı yazma kayıtlarının journal'da tutulduğu süre.
// Bundan uzun süren bir fetch, arada gelen event'leri koruyamaz.
const journalRetention = 5 * time.Minute

// FetchMark, bir fetch başlamadan önce alınan store versiyonu.
// ReplaceSince bu versiyondan sonraki canlı yazmaları fetch sonucunun üzerine uygular.
type FetchMark uint64

// RemoveResult, scope seviyesindeki Remove çağrısının sonucu.
type RemoveResult int

const (
	RemoveMissing    RemoveResult = iota // ID scope'ta yok, no-op
	RemovePurged                         // Mesaj tamamen silindi
	RemoveTombstoned                     // reply_count > 0, içerik temizlendi
)

// Removal, mesaj seviyesindeki bir silmenin tek scope'taki kaydı.
// RestoreMessage bu kayıtlarla silmeyi birebir geri alır.
type Removal struct {
	Key        ScopeKey
	Message    models.Message // Silmeden önceki tam kopya
	AfterID    string         // Silinen mesajdan önceki mesajın ID'si ("" = scope başı)
	Tombstoned bool
}

// IngestResult, push ile gelen yeni bir mesajın store'a nasıl işlendiğini anlatır.
type IngestResult struct {
	AdoptedTempID string     // Provisional bir mesaj bu mesajla değiştirildiyse geçici ID
	Scopes        []ScopeKey // Mesajın yazıldığı (veya merge edildiği) scope'lar
	ReplyCounted  bool       // Parent'ın reply_count'u bu mesaj için artırıldı
	Duplicate     bool       // Mesaj zaten materialized idi (tekrar teslim)
	Deleted       bool       // Mesajın sunucuda silindiği biliniyor, event yok sayıldı
}

// journalEntry, bir mesajın son canlı yazmadan sonraki hali.
type journalEntry struct {
	version uint64
	at      time.Time
	msg     models.Message
	removed bool // Mesaj hiçbir scope'ta kalmadı
}

type editSnapshot struct {
	content  string
	editedAt *time.Time
}

// MessageStore, paginated entity cache.
//
// Her scope için eskiden yeniye sıralı sayfalar tutar. Mesaj seviyesindeki
// method'lar (PatchMessage, RemoveMessage, SetReaction, ...) ID'nin bulunduğu
// bütün materialized scope'lara uygulanır. Materialized olmayan bir scope'a
// yapılan yazmalar no-op'tur; scope kapatılırken (Evict) bekleyen
// mutation'lar beklenmez, sonuçları sessizce düşer.
type MessageStore struct {
	mu     sync.Mutex
	scopes map[ScopeKey]*scope

	// counted, parent ID → reply_count'a yansıtılmış child ID'leri.
	// Aynı cevabın (optimistic + push) iki kez sayılmasını engeller.
	counted map[string]map[string]struct{}

	// adopted, push tarafından sunucu mesajıyla değiştirilen geçici ID'ler.
	adopted map[string]string

	// confirmed, sunucunun onayladığı son içerik (edit rollback'i için).
	confirmed map[string]editSnapshot

	// serverDeleted, sunucunun silindiğini bildirdiği mesajlar.
	serverDeleted map[string]struct{}

	// version her canlı yazmada artar; journal, mesaj ID → son canlı hali.
	version uint64
	journal map[string]journalEntry

	listeners map[int]func(ScopeKey)
	nextSub   int

	clock  clock.Clock
	logger *zap.Logger
}

// NewMessageStore, boş bir MessageStore oluşturur.
func NewMessageStore(clk clock.Clock, logger *zap.Logger) *MessageStore {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageStore{
		scopes:        make(map[ScopeKey]*scope),
		counted:       make(map[string]map[string]struct{}),
		adopted:       make(map[string]string),
		confirmed:     make(map[string]editSnapshot),
		serverDeleted: make(map[string]struct{}),
		journal:       make(map[string]journalEntry),
		listeners:     make(map[int]func(ScopeKey)),
		clock:         clk,
		logger:        logger.Named("store"),
	}
}

// Subscribe, her scope değişikliğinde çağrılacak bir listener kaydeder.
// Dönen fonksiyon aboneliği iptal eder.
func (s *MessageStore) Subscribe(fn func(ScopeKey)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update, fn'i lock altında çalıştırır ve değişen scope'ları lock
// bırakıldıktan sonra listener'lara bildirir.
func (s *MessageStore) update(fn func(ch *changes)) {
	ch := &changes{}
	s.mu.Lock()
	fn(ch)
	if len(ch.touched) > 0 {
		s.journalLocked(ch.touched)
	}
	var fns []func(ScopeKey)
	if len(ch.keys) > 0 {
		ids := make([]int, 0, len(s.listeners))
		for id := range s.listeners {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fns = append(fns, s.listeners[id])
		}
	}
	s.mu.Unlock()

	for _, key := range ch.keys {
		for _, fn := range fns {
			fn(key)
		}
	}
}

// ─── Scope seviyesinde okuma ───

// Materialized, scope'un cache'te yüklü olup olmadığını döner.
func (s *MessageStore) Materialized(key ScopeKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.scopes[key]
	return ok
}

// Keys, materialized scope'ları deterministik sırada döner.
func (s *MessageStore) Keys() []ScopeKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]ScopeKey, 0, len(s.scopes))
	for k := range s.scopes {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Get, scope içindeki bir mesajın kopyasını döner.
func (s *MessageStore) Get(key ScopeKey, id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scopes[key]
	if !ok {
		return models.Message{}, false
	}
	m, ok := sc.get(id)
	if !ok {
		return models.Message{}, false
	}
	return m.Clone(), true
}

// Find, mesajı herhangi bir materialized scope'ta arar.
// Birden fazla scope'ta varsa kanal timeline'ı önceliklidir.
func (s *MessageStore) Find(id string) (models.Message, ScopeKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.locateLocked(id)
	if len(keys) == 0 {
		return models.Message{}, ScopeKey{}, false
	}
	m, _ := s.scopes[keys[0]].get(id)
	return m.Clone(), keys[0], true
}

// Locate, mesajın bulunduğu tüm scope'ları döner.
func (s *MessageStore) Locate(id string) []ScopeKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locateLocked(id)
}

// Messages, scope'un tüm sayfalarını tek bir sıralı liste olarak döner.
func (s *MessageStore) Messages(key ScopeKey) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scopes[key]
	if !ok {
		return nil
	}
	return sc.flatten()
}

// Pages, scope'un sayfalarının kopyasını döner.
func (s *MessageStore) Pages(key ScopeKey) []models.MessagePage {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scopes[key]
	if !ok {
		return nil
	}
	out := make([]models.MessagePage, 0, len(sc.pages))
	for _, p := range sc.pages {
		mp := models.MessagePage{Cursor: p.cursor, HasMore: p.hasMore}
		for i := range p.messages {
			mp.Messages = append(mp.Messages, p.messages[i].Clone())
		}
		out = append(out, mp)
	}
	return out
}

// State, scope'un pagination durumunu döner.
func (s *MessageStore) State(key ScopeKey) (ScopeState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scopes[key]
	if !ok {
		return ScopeState{}, false
	}
	return ScopeState{
		Cursor:   sc.cursor,
		HasMore:  sc.hasMore,
		Pages:    len(sc.pages),
		Messages: sc.count(),
	}, true
}

// ─── Scope seviyesinde yazma ───

// Upsert, mesajı scope'a ekler veya ID'si varsa merge eder.
// Bilinmeyen ID son sayfanın sonuna eklenir. Scope materialized değilse
// no-op'tur ve false döner.
func (s *MessageStore) Upsert(key ScopeKey, msg models.Message) bool {
	var ok bool
	s.update(func(ch *changes) {
		ok = s.upsertLocked(key, msg, ch)
	})
	return ok
}

// Patch, ID scope'ta varsa kısmi güncellemeyi uygular.
// Olmayan bir ID için entity üretmez, false döner.
func (s *MessageStore) Patch(key ScopeKey, id string, patch models.MessagePatch) bool {
	var ok bool
	s.update(func(ch *changes) {
		sc, exists := s.scopes[key]
		if !exists {
			return
		}
		m, found := sc.get(id)
		if !found {
			return
		}
		applyPatch(m, patch)
		ch.add(key)
		ch.touch(id)
		ok = true
	})
	return ok
}

// Remove, mesajı scope'tan siler. reply_count > 0 ise mesaj tombstone'a
// çevrilir (içerik ve ekler temizlenir, DeletedAt set edilir).
func (s *MessageStore) Remove(key ScopeKey, id string) RemoveResult {
	result := RemoveMissing
	s.update(func(ch *changes) {
		sc, exists := s.scopes[key]
		if !exists {
			return
		}
		r, ok := s.removeFromScopeLocked(key, sc, id)
		if !ok {
			return
		}
		ch.add(key)
		ch.touch(id)
		result = RemovePurged
		if r.Tombstoned {
			result = RemoveTombstoned
		}
	})
	return result
}

// Mark, fetch isteği gönderilmeden önce çağrılır; dönen değer ReplaceSince'e verilir.
func (s *MessageStore) Mark() FetchMark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FetchMark(s.version)
}

// Replace, scope'u tek bir taze sayfa ile değiştirir ve gerekirse materialize eder.
// Bekleyen provisional mesajlar korunur ve sayfanın sonuna eklenir.
func (s *MessageStore) Replace(key ScopeKey, mp models.MessagePage) {
	s.update(func(ch *changes) {
		s.replaceLocked(key, mp, FetchMark(s.version), ch)
	})
}

// ReplaceSince, Replace gibidir; ek olarak mark alındıktan sonra canlı
// event'lerin ve mutation'ların yazdığı mesajlar fetch sonucunun üzerine
// uygulanır: sayfadaki kopya canlı kopyayla değiştirilir, canlı olarak
// silinen mesaj sayfadan çıkarılır, scope'a ait yeni mesaj sırasına eklenir.
func (s *MessageStore) ReplaceSince(key ScopeKey, mp models.MessagePage, mark FetchMark) {
	s.update(func(ch *changes) {
		s.replaceLocked(key, mp, mark, ch)
	})
}

func (s *MessageStore) replaceLocked(key ScopeKey, mp models.MessagePage, mark FetchMark, ch *changes) {
	var provisional []models.Message
	if old, ok := s.scopes[key]; ok {
		provisional = old.removeWhere(func(m *models.Message) bool { return m.Provisional })
	}

	sc := newScope()
	p := fetchedPage(mp, s.serverDeleted)
	s.seedLocked(key, p.messages)
	sc.pages = []*page{p}
	sc.cursor, sc.hasMore = p.cursor, p.hasMore
	sc.reindex()
	sc.ensurePage()
	s.overlayLocked(key, sc, uint64(mark))
	sc.ensurePage()

	p = sc.pages[len(sc.pages)-1]
	for _, m := range provisional {
		if _, dup := sc.index[m.ID]; !dup {
			p.messages = append(p.messages, m)
		}
	}
	sc.reindex()
	s.scopes[key] = sc
	ch.add(key)
}

// overlayLocked, mark'tan sonraki journal kayıtlarını yeni kurulan scope'a uygular.
func (s *MessageStore) overlayLocked(key ScopeKey, sc *scope, mark uint64) {
	ids := make([]string, 0)
	for id, e := range s.journal {
		if e.version > mark && !e.msg.Provisional {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	sort.Slice(ids, func(i, j int) bool { return s.journal[ids[i]].version < s.journal[ids[j]].version })

	oldest, newest, bounded := sc.bounds()
	for _, id := range ids {
		e := s.journal[id]
		if m, ok := sc.get(id); ok {
			if e.removed {
				sc.removeID(id)
				continue
			}
			*m = e.msg.Clone()
			continue
		}
		if e.removed || !belongsTo(key, &e.msg) {
			continue
		}
		// Sayfanın kapsamadığı aralıktaki mesajlar sonraki sayfalarla gelir.
		if bounded && sc.hasMore {
			if key.Kind == ScopeChannel && e.msg.CreatedAt.Before(oldest) {
				continue
			}
			if key.Kind != ScopeChannel && e.msg.CreatedAt.After(newest) {
				continue
			}
		}
		sc.insertChronological(e.msg.Clone())
	}
}

// belongsTo, canlı yazılmış bir mesajın scope'a eklenip eklenmeyeceğini döner.
// Okunmamış akışın üyeliği sunucuda hesaplandığı için oraya hiç eklenmez.
func belongsTo(key ScopeKey, msg *models.Message) bool {
	for _, k := range TargetScopes(msg) {
		if k == key {
			return true
		}
	}
	return false
}

// journalLocked, çağrının dokunduğu mesajların son halini journal'a yazar
// ve journalRetention'dan eski kayıtları temizler.
func (s *MessageStore) journalLocked(touched []touchedMessage) {
	s.version++
	now := s.clock.Now()
	for _, t := range touched {
		e := journalEntry{version: s.version, at: now}
		if keys := s.locateLocked(t.id); len(keys) > 0 {
			m, _ := s.scopes[keys[0]].get(t.id)
			e.msg = m.Clone()
		} else if t.fallback != nil {
			e.msg = t.fallback.Clone()
		} else {
			e.removed = true
		}
		s.journal[t.id] = e
	}
	for id, e := range s.journal {
		if now.Sub(e.at) > journalRetention {
			delete(s.journal, id)
		}
	}
}

// AppendPage, scope'un sonuna (daha yeni tarafa) fetch edilen sayfayı ekler.
// Fetch edilen kopya cache'teki aynı ID'li mesajın yerini alır. Provisional
// mesajlar en yeni konumda kalır. Scope materialized değilse false döner.
func (s *MessageStore) AppendPage(key ScopeKey, mp models.MessagePage) bool {
	return s.extend(key, mp, false)
}

// PrependPage, scope'un başına (daha eski tarafa) fetch edilen sayfayı ekler.
func (s *MessageStore) PrependPage(key ScopeKey, mp models.MessagePage) bool {
	return s.extend(key, mp, true)
}

func (s *MessageStore) extend(key ScopeKey, mp models.MessagePage, front bool) bool {
	var ok bool
	s.update(func(ch *changes) {
		sc, exists := s.scopes[key]
		if !exists {
			return
		}
		p := fetchedPage(mp, s.serverDeleted)
		fetched := make(map[string]struct{}, len(p.messages))
		for i := range p.messages {
			fetched[p.messages[i].ID] = struct{}{}
		}
		sc.removeWhere(func(m *models.Message) bool {
			_, dup := fetched[m.ID]
			return dup && !m.Provisional
		})

		if front {
			sc.pages = append([]*page{p}, sc.pages...)
		} else {
			provisional := sc.removeWhere(func(m *models.Message) bool { return m.Provisional })
			sc.pages = append(sc.pages, p)
			p.messages = append(p.messages, provisional...)
		}
		sc.cursor, sc.hasMore = mp.Cursor, mp.HasMore
		sc.reindex()
		s.seedLocked(key, p.messages)
		ch.add(key)
		ok = true
	})
	return ok
}

// Evict, scope'u cache'ten çıkarır (ör. thread paneli kapandığında).
func (s *MessageStore) Evict(key ScopeKey) {
	s.update(func(ch *changes) {
		if _, ok := s.scopes[key]; !ok {
			return
		}
		delete(s.scopes, key)
		ch.add(key)
	})
}

// ─── Mesaj seviyesinde yazma (tüm scope'lar) ───

// PatchMessage, patch'i mesajın bulunduğu bütün scope'lara uygular.
// Patch'ten önceki kopyayı döner.
func (s *MessageStore) PatchMessage(id string, patch models.MessagePatch) (models.Message, bool) {
	var prev models.Message
	var found bool
	s.update(func(ch *changes) {
		for _, key := range s.locateLocked(id) {
			m, _ := s.scopes[key].get(id)
			if !found {
				prev = m.Clone()
				found = true
			}
			applyPatch(m, patch)
			ch.add(key)
		}
		if found {
			ch.touch(id)
		}
	})
	return prev, found
}

// RemoveMessage, mesajı bulunduğu bütün scope'lardan siler (veya tombstone'a
// çevirir). Dönen kayıtlar RestoreMessage ile birebir geri alınabilir.
func (s *MessageStore) RemoveMessage(id string) []Removal {
	var removals []Removal
	s.update(func(ch *changes) {
		for _, key := range s.locateLocked(id) {
			r, ok := s.removeFromScopeLocked(key, s.scopes[key], id)
			if ok {
				removals = append(removals, r)
				ch.add(key)
			}
		}
		if len(removals) > 0 {
			ch.touch(id)
		}
	})
	return removals
}

// RestoreMessage, RemoveMessage'ın kayıtlarını geri uygular: mesaj hâlâ
// varsa (tombstone) snapshot ile tamamen değiştirilir, yoksa eski yerine
// eklenir. Materialized olmayan scope'lar atlanır.
func (s *MessageStore) RestoreMessage(removals []Removal) {
	s.update(func(ch *changes) {
		for _, r := range removals {
			sc, ok := s.scopes[r.Key]
			if !ok {
				continue
			}
			snapshot := r.Message.Clone()
			if m, exists := sc.get(snapshot.ID); exists {
				*m = snapshot
			} else if pos, ok := sc.positionFor(&snapshot, r.AfterID); ok {
				sc.insertAt(pos, snapshot)
			} else {
				sc.appendMessage(snapshot)
			}
			ch.add(r.Key)
			ch.touch(snapshot.ID)
		}
	})
}

// SetReaction, (userID, emoji) çiftinin mesajdaki varlığını present yapar.
// Çiftin önceki durumunu ve mesajın bulunup bulunmadığını döner.
func (s *MessageStore) SetReaction(id, userID, emoji string, present bool) (was bool, found bool) {
	s.update(func(ch *changes) {
		for _, key := range s.locateLocked(id) {
			m, _ := s.scopes[key].get(id)
			had := models.HasReaction(m.Reactions, userID, emoji)
			if !found {
				was = had
				found = true
			}
			var changed bool
			if present {
				m.Reactions, changed = models.AddReaction(m.Reactions, userID, emoji)
			} else {
				m.Reactions, changed = models.RemoveReaction(m.Reactions, userID, emoji)
			}
			if changed {
				ch.add(key)
				ch.touch(id)
			}
		}
	})
	return was, found
}

// ─── Thread cevap sayacı ───

// ApplyReply, cevabın parent'ının reply_count'unu bir artırır: ancak bu
// cevap daha önce sayılmadıysa. last_reply_at ve thread_participants da
// güncellenir. Sayım yapıldıysa true döner.
func (s *MessageStore) ApplyReply(reply models.Message) bool {
	var counted bool
	s.update(func(ch *changes) {
		counted = s.countReplyLocked(&reply, ch)
	})
	return counted
}

// ReplyCounted, child'ın parent'ın reply_count'una yansıtılıp yansıtılmadığını döner.
func (s *MessageStore) ReplyCounted(parentID, childID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.counted[parentID][childID]
	return ok
}

// ─── Provisional (optimistic send) mesajlar ───

// InsertProvisional, henüz sunucu tarafından onaylanmamış bir mesajı hedef
// scope'lara ekler; thread cevabıysa parent'ın reply_count'unu artırır.
// Mesajın eklendiği scope'ları döner.
func (s *MessageStore) InsertProvisional(msg models.Message) []ScopeKey {
	msg = msg.Clone()
	msg.Provisional = true
	var inserted []ScopeKey
	s.update(func(ch *changes) {
		for _, key := range TargetScopes(&msg) {
			if s.upsertLocked(key, msg, ch) {
				inserted = append(inserted, key)
			}
		}
		if msg.IsReply() {
			s.countReplyLocked(&msg, ch)
		}
	})
	return inserted
}

// ConfirmProvisional, HTTP cevabı ile gelen sunucu mesajını provisional
// mesajın yerine koyar. Push event'i sunucu mesajını zaten teslim ettiyse
// sadece provisional kopya kaldırılır ve sunucu mesajı merge edilir.
func (s *MessageStore) ConfirmProvisional(tempID string, confirmed models.Message) {
	confirmed = confirmed.Clone()
	confirmed.Provisional = false
	s.update(func(ch *changes) {
		adoptedAs, wasAdopted := s.adopted[tempID]
		delete(s.adopted, tempID)
		mismatched := wasAdopted && adoptedAs != confirmed.ID

		keys := s.locateLocked(tempID)
		keys = append(keys, s.locateLocked(confirmed.ID)...)
		if mismatched {
			keys = append(keys, TargetScopes(&confirmed)...)
		}
		seen := make(map[ScopeKey]struct{})
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			sc, ok := s.scopes[key]
			if !ok {
				continue
			}
			switch {
			case sc.has(confirmed.ID):
				sc.removeID(tempID)
				m, _ := sc.get(confirmed.ID)
				*m = mergeMessage(*m, confirmed)
			case sc.has(tempID):
				m, _ := sc.get(tempID)
				*m = mergeMessage(*m, confirmed)
				sc.reindex()
			case mismatched:
				sc.appendMessage(confirmed)
			default:
				continue
			}
			ch.add(key)
		}

		if confirmed.IsReply() {
			s.swapCountedLocked(*confirmed.ThreadParentID, tempID, &confirmed, ch)
		}
		s.recordConfirmedLocked(&confirmed)
		ch.touchMessage(&confirmed)
	})
}

// DiscardProvisional, başarısız bir gönderimin provisional mesajını her
// yerden kaldırır. Geçici ID sayılmışsa parent'ın reply_count'u geri alınır.
func (s *MessageStore) DiscardProvisional(tempID string) bool {
	var removed bool
	s.update(func(ch *changes) {
		for _, key := range s.locateLocked(tempID) {
			sc := s.scopes[key]
			if m, _ := sc.get(tempID); !m.Provisional {
				continue
			}
			sc.removeID(tempID)
			removed = true
			ch.add(key)
		}
		delete(s.adopted, tempID)
		for parentID, set := range s.counted {
			if _, ok := set[tempID]; ok {
				delete(set, tempID)
				s.bumpParentLocked(parentID, -1, nil, ch)
			}
		}
	})
	return removed
}

// AdoptProvisional, push ile gelen sunucu mesajına karşılık gelen
// provisional mesajı bulur ve yerine koyar. Eşleşme önce nonce ile, yoksa
// yazar + içerik + thread + ProvisionalMatchWindow ile yapılır.
func (s *MessageStore) AdoptProvisional(confirmed models.Message) (string, bool) {
	var tempID string
	s.update(func(ch *changes) {
		tempID = s.adoptLocked(&confirmed, ch)
	})
	return tempID, tempID != ""
}

// IngestCreated, push ile gelen yeni bir mesajı işler:
//   - ID zaten materialized ise merge edilir (tekrar teslim),
//   - eşleşen bir provisional mesaj varsa onun yerine konur,
//   - aksi halde hedef scope'lara eklenir.
//
// Thread cevaplarında parent sayacı sadece bu cevap daha önce sayılmadıysa artar.
func (s *MessageStore) IngestCreated(msg models.Message) IngestResult {
	msg = msg.Clone()
	msg.Provisional = false
	var res IngestResult
	s.update(func(ch *changes) {
		if _, gone := s.serverDeleted[msg.ID]; gone {
			res.Deleted = true
			return
		}
		s.recordConfirmedLocked(&msg)
		ch.touchMessage(&msg)

		if existing := s.locateLocked(msg.ID); len(existing) > 0 {
			res.Duplicate = true
			for _, key := range existing {
				m, _ := s.scopes[key].get(msg.ID)
				*m = mergeMessage(*m, msg)
				ch.add(key)
			}
			res.Scopes = existing
		} else if tempID := s.adoptLocked(&msg, ch); tempID != "" {
			res.AdoptedTempID = tempID
			res.Scopes = s.locateLocked(msg.ID)
			return
		} else {
			for _, key := range TargetScopes(&msg) {
				if s.upsertLocked(key, msg, ch) {
					res.Scopes = append(res.Scopes, key)
				}
			}
		}

		if msg.IsReply() {
			res.ReplyCounted = s.countReplyLocked(&msg, ch)
		}
	})
	return res
}

// ─── Sunucu state kayıtları ───

// RecordConfirmedEdit, mesajın sunucu tarafından onaylanmış son içeriğini kaydeder.
func (s *MessageStore) RecordConfirmedEdit(id, content string, editedAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed[id] = editSnapshot{content: content, editedAt: cloneTime(editedAt)}
}

// ConfirmedEdit, mesajın bilinen son sunucu içeriğini döner.
func (s *MessageStore) ConfirmedEdit(id string) (string, *time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.confirmed[id]
	if !ok {
		return "", nil, false
	}
	return snap.content, cloneTime(snap.editedAt), true
}

// RevertEdit, mesajın içeriğini ve edited_at alanını bilinen son sunucu
// değerine döndürür. Tombstone'lara ve kaydı olmayan mesajlara dokunmaz.
func (s *MessageStore) RevertEdit(id string) bool {
	var reverted bool
	s.update(func(ch *changes) {
		snap, ok := s.confirmed[id]
		if !ok {
			return
		}
		for _, key := range s.locateLocked(id) {
			m, _ := s.scopes[key].get(id)
			if m.IsDeleted() {
				continue
			}
			m.Content = snap.content
			m.EditedAt = cloneTime(snap.editedAt)
			reverted = true
			ch.add(key)
			ch.touch(id)
		}
	})
	return reverted
}

// MarkServerDeleted, mesajın sunucuda silindiğini kaydeder.
// Bu mesaj için bekleyen bir delete rollback'i artık geri yükleme yapmaz;
// sonraki fetch'ler de mesajı geri getirmez.
func (s *MessageStore) MarkServerDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverDeleted[id] = struct{}{}
	delete(s.confirmed, id)
}

// IsServerDeleted, mesajın sunucuda silindiğinin bilinip bilinmediğini döner.
func (s *MessageStore) IsServerDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.serverDeleted[id]
	return ok
}

// ─── lock altında çalışan yardımcılar ───

func (s *MessageStore) locateLocked(id string) []ScopeKey {
	var keys []ScopeKey
	for key, sc := range s.scopes {
		if sc.has(id) {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)
	return keys
}

func (s *MessageStore) upsertLocked(key ScopeKey, msg models.Message, ch *changes) bool {
	sc, ok := s.scopes[key]
	if !ok {
		return false
	}
	if m, exists := sc.get(msg.ID); exists {
		*m = mergeMessage(*m, msg)
	} else {
		sc.appendMessage(msg.Clone())
	}
	ch.add(key)
	ch.touch(msg.ID)
	return true
}

func (s *MessageStore) removeFromScopeLocked(key ScopeKey, sc *scope, id string) (Removal, bool) {
	m, ok := sc.get(id)
	if !ok {
		return Removal{}, false
	}
	snapshot := m.Clone()
	if m.ReplyCount > 0 {
		now := s.clock.Now()
		m.Content = ""
		m.Attachments = nil
		m.Mentions = nil
		if m.DeletedAt == nil {
			m.DeletedAt = &now
		}
		return Removal{Key: key, Message: snapshot, AfterID: sc.predecessor(sc.index[id]), Tombstoned: true}, true
	}
	_, afterID, _ := sc.removeID(id)
	return Removal{Key: key, Message: snapshot, AfterID: afterID}, true
}

// seedLocked, fetch edilen cevapları sayılmış olarak işaretler; sunucunun
// verdiği reply_count bunları zaten içerir. Thread scope'unda parent, scope
// ID'sidir; kanal timeline'ındaki "kanala da gönder" cevaplarında
// ThreadParentID'den okunur.
func (s *MessageStore) seedLocked(key ScopeKey, msgs []models.Message) {
	for i := range msgs {
		m := &msgs[i]
		if m.Provisional {
			continue
		}
		s.recordConfirmedLocked(m)

		parentID := parentOf(m)
		if key.Kind == ScopeThread {
			parentID = key.ID
		}
		if parentID == "" {
			continue
		}
		set := s.counted[parentID]
		if set == nil {
			set = make(map[string]struct{})
			s.counted[parentID] = set
		}
		set[m.ID] = struct{}{}
	}
}

func (s *MessageStore) countReplyLocked(reply *models.Message, ch *changes) bool {
	if !reply.IsReply() {
		return false
	}
	parentID := *reply.ThreadParentID
	set := s.counted[parentID]
	if set == nil {
		set = make(map[string]struct{})
		s.counted[parentID] = set
	}
	if _, ok := set[reply.ID]; ok {
		s.logger.Debug("reply already counted", zap.String("parent_id", parentID), zap.String("reply_id", reply.ID))
		return false
	}
	set[reply.ID] = struct{}{}
	s.bumpParentLocked(parentID, 1, reply, ch)
	return true
}

// swapCountedLocked, sayılmış geçici ID'yi sunucu ID'si ile değiştirir.
// İkisi birden sayılmışsa (eşleşmeyen push + HTTP onayı) fazla sayım geri alınır.
func (s *MessageStore) swapCountedLocked(parentID, tempID string, confirmed *models.Message, ch *changes) {
	set := s.counted[parentID]
	if set == nil {
		set = make(map[string]struct{})
		s.counted[parentID] = set
	}
	_, tempCounted := set[tempID]
	_, realCounted := set[confirmed.ID]
	delete(set, tempID)

	switch {
	case tempCounted && realCounted:
		s.bumpParentLocked(parentID, -1, nil, ch)
	case tempCounted:
		set[confirmed.ID] = struct{}{}
	case !realCounted:
		set[confirmed.ID] = struct{}{}
		s.bumpParentLocked(parentID, 1, confirmed, ch)
	}
}

// bumpParentLocked, parent mesajın bulunduğu her scope'ta reply_count'u
// delta kadar değiştirir (0'ın altına inmez).
func (s *MessageStore) bumpParentLocked(parentID string, delta int, reply *models.Message, ch *changes) {
	for _, key := range s.locateLocked(parentID) {
		m, _ := s.scopes[key].get(parentID)
		m.ReplyCount += delta
		if m.ReplyCount < 0 {
			m.ReplyCount = 0
		}
		if reply != nil && delta > 0 {
			if m.LastReplyAt == nil || reply.CreatedAt.After(*m.LastReplyAt) {
				t := reply.CreatedAt
				m.LastReplyAt = &t
			}
			m.ThreadParticipants = addParticipant(m.ThreadParticipants, reply.UserID)
		}
		ch.add(key)
		ch.touch(parentID)
	}
}

func (s *MessageStore) adoptLocked(confirmed *models.Message, ch *changes) string {
	if len(s.locateLocked(confirmed.ID)) > 0 {
		return ""
	}

	var best *models.Message
	byNonce := false
	for _, key := range TargetScopes(confirmed) {
		sc, ok := s.scopes[key]
		if !ok {
			continue
		}
		sc.each(func(m *models.Message) {
			if !m.Provisional || byNonce {
				return
			}
			if confirmed.Nonce != "" && m.Nonce == confirmed.Nonce {
				best, byNonce = m, true
				return
			}
			if !provisionalMatches(m, confirmed) {
				return
			}
			if best == nil || m.CreatedAt.Before(best.CreatedAt) {
				best = m
			}
		})
	}
	if best == nil {
		return ""
	}

	tempID := best.ID
	merged := confirmed.Clone()
	for _, key := range s.locateLocked(tempID) {
		sc := s.scopes[key]
		m, _ := sc.get(tempID)
		*m = mergeMessage(*m, merged)
		sc.reindex()
		ch.add(key)
	}
	s.adopted[tempID] = confirmed.ID
	ch.touch(confirmed.ID)
	if confirmed.IsReply() {
		s.swapCountedLocked(*confirmed.ThreadParentID, tempID, confirmed, ch)
	}
	s.logger.Debug("adopted provisional message",
		zap.String("temp_id", tempID),
		zap.String("message_id", confirmed.ID),
		zap.Bool("by_nonce", byNonce),
	)
	return tempID
}

func (s *MessageStore) recordConfirmedLocked(m *models.Message) {
	if m.IsDeleted() {
		return
	}
	s.confirmed[m.ID] = editSnapshot{content: m.Content, editedAt: cloneTime(m.EditedAt)}
}

// provisionalMatches, nonce olmadan eşleştirme kuralı: aynı yazar, aynı
// içerik, aynı thread ve ProvisionalMatchWindow içinde oluşturulmuş.
func provisionalMatches(p, confirmed *models.Message) bool {
	if p.UserID != confirmed.UserID || p.Content != confirmed.Content {
		return false
	}
	if p.Nonce != "" && confirmed.Nonce != "" && p.Nonce != confirmed.Nonce {
		return false
	}
	if p.ChannelID != confirmed.ChannelID {
		return false
	}
	if parentOf(p) != parentOf(confirmed) {
		return false
	}
	diff := confirmed.CreatedAt.Sub(p.CreatedAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= ProvisionalMatchWindow
}

func parentOf(m *models.Message) string {
	if m.ThreadParentID == nil {
		return ""
	}
	return *m.ThreadParentID
}

// mergeMessage, var olan bir mesajın üzerine gelen kopyayı uygular.
// Skaler alanlar gelen kopyadan alınır; thread sayaçları, ekler ve
// reaction'lar gelen kopyada boşsa korunur.
func mergeMessage(existing, incoming models.Message) models.Message {
	out := incoming.Clone()
	if out.ReplyCount == 0 {
		out.ReplyCount = existing.ReplyCount
	}
	if out.LastReplyAt == nil {
		out.LastReplyAt = cloneTime(existing.LastReplyAt)
	}
	if len(out.ThreadParticipants) == 0 && len(existing.ThreadParticipants) > 0 {
		out.ThreadParticipants = append([]string(nil), existing.ThreadParticipants...)
	}
	if len(out.Attachments) == 0 && len(existing.Attachments) > 0 && !out.IsDeleted() {
		out.Attachments = append([]models.Attachment(nil), existing.Attachments...)
	}
	if len(out.Reactions) == 0 && len(existing.Reactions) > 0 {
		out.Reactions = append([]models.Reaction(nil), existing.Reactions...)
	}
	if out.Nonce == "" {
		out.Nonce = existing.Nonce
	}
	return out
}

// applyPatch, nil olmayan patch alanlarını mesaja yazar.
func applyPatch(m *models.Message, p models.MessagePatch) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.EditedAt != nil {
		t := *p.EditedAt
		m.EditedAt = &t
	}
	if p.Attachments != nil {
		m.Attachments = append([]models.Attachment(nil), (*p.Attachments)...)
	}
	if p.ReplyCount != nil {
		m.ReplyCount = *p.ReplyCount
		if m.ReplyCount < 0 {
			m.ReplyCount = 0
		}
	}
	if p.LastReplyAt != nil {
		t := *p.LastReplyAt
		m.LastReplyAt = &t
	}
	if p.ThreadParticipants != nil {
		var out []string
		for _, uid := range *p.ThreadParticipants {
			out = addParticipant(out, uid)
		}
		m.ThreadParticipants = out
	}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		m.DeletedAt = &t
		m.Content = ""
		m.Attachments = nil
	}
}

// addParticipant, userID'yi listeye ekler (user_id bazında tekil).
func addParticipant(list []string, userID string) []string {
	if userID == "" {
		return list
	}
	for _, id := range list {
		if id == userID {
			return list
		}
	}
	return append(list, userID)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
