package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/presence"
	"github.com/akinalp/mqvi-sync/store"
)

// Change feed bağlantı sabitleri
const (
	feedWriteWait = 10 * time.Second

	// feedPongWait: view'dan pong gelmezse bağlantı kopmuş sayılır.
	feedPongWait = 60 * time.Second

	// feedPingPeriod, feedPongWait'ten kısa olmalı.
	feedPingPeriod = (feedPongWait * 9) / 10

	// View feed'e veri yazmaz; sadece control frame'leri okunur.
	feedMaxMessageSize = 512

	// Buffer doluysa (view yavaş) client feed'den düşürülür; view yeniden
	// bağlanıp selector'ları baştan okur.
	feedSendBufferSize = 256
)

// Change feed topic'leri.
const (
	TopicMessages = "messages" // ID: scope key ("channel:c1", "thread:p1", ...)
	TopicChannels = "channels" // ID: channel ID
	TopicTyping   = "typing"   // ID: channel ID (boş = birden fazla kanal)
	TopicPresence = "presence" // ID: user ID

	TopicConnection = "connection" // ID: workspace ID
)

// ChangeNotice, view'a "bu parçayı yeniden oku" diyen bildirim.
// Payload taşımaz; view ilgili bridge endpoint'ini tekrar çağırır.
type ChangeNotice struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	ID    string `json:"id,omitempty"`
	Seq   int64  `json:"seq"`
}

// ChangeFeed, store değişikliklerini bağlı view'lara WebSocket üzerinden yayar.
//
// Her bağlantı için iki goroutine çalışır: readPump sadece pong/close
// frame'lerini işler, writePump send kanalındaki bildirimleri yazar.
type ChangeFeed struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	seq     int64
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewChangeFeed, constructor. allowedOrigins boşsa veya "*" içeriyorsa
// her origin kabul edilir; Origin header'ı olmayan (tarayıcı dışı) istekler
// her zaman kabul edilir.
func NewChangeFeed(allowedOrigins []string, logger *zap.Logger) *ChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &ChangeFeed{
		logger:  logger.Named("feed"),
		clients: make(map[*feedClient]struct{}),
	}
	f.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return f
}

// Watch, üç store'a subscribe olur ve her değişikliği Publish eder.
// Dönen fonksiyon bütün subscription'ları kaldırır.
func (f *ChangeFeed) Watch(messages *store.MessageStore, channels *store.ChannelStore, ps *presence.Store) func() {
	stops := []func(){
		messages.Subscribe(func(key store.ScopeKey) {
			f.Publish(TopicMessages, key.String())
		}),
		channels.Subscribe(func(channelID string) {
			f.Publish(TopicChannels, channelID)
		}),
		ps.Subscribe(func(c presence.Change) {
			if c.Kind == presence.ChangePresence {
				f.Publish(TopicPresence, c.UserID)
				return
			}
			f.Publish(TopicTyping, c.ChannelID)
		}),
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// Publish, bağlı bütün view'lara bir değişiklik bildirimi gönderir. Bloklamaz.
func (f *ChangeFeed) Publish(topic, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	f.seq++
	data, err := json.Marshal(ChangeNotice{Type: "changed", Topic: topic, ID: id, Seq: f.seq})
	if err != nil {
		f.logger.Error("failed to marshal change notice", zap.Error(err))
		return
	}

	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			f.logger.Warn("view too slow, dropping feed client")
			delete(f.clients, c)
			close(c.send)
		}
	}
}

// Clients, bağlı view sayısını döner.
func (f *ChangeFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close, bütün view bağlantılarını kapatır; sonraki Publish çağrıları no-op olur.
func (f *ChangeFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
}

// ServeWS godoc
// GET /bridge/ws?token=...
//
// HTTP bağlantısını WebSocket'e yükseltir ve view'ı feed'e kaydeder.
// Tarayıcı WebSocket'inde header gönderilemediği için token query'den gelir
// (BridgeAuth middleware ikisini de kabul eder).
func (f *ChangeFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade cevabı zaten yazdı.
		f.logger.Warn("feed upgrade failed", zap.Error(err))
		return
	}

	c := &feedClient{conn: conn, send: make(chan []byte, feedSendBufferSize)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	f.logger.Debug("view connected", zap.String("remote", r.RemoteAddr))

	go f.writePump(c)
	go f.readPump(c)
}

func (f *ChangeFeed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
}

func (f *ChangeFeed) readPump(c *feedClient) {
	defer func() {
		f.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(feedMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Debug("view closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func (f *ChangeFeed) writePump(c *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				// Feed client'ı düşürdü veya kapandı.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
