package ws

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/pkg/metrics"
)

// FrameHandler, bir workspace bağlantısından gelen event frame'ini işler.
// Dispatcher.HandleFrame bu imzayı karşılar.
type FrameHandler func(workspaceID string, env Envelope)

// HubOptions, NewHub parametreleri.
type HubOptions struct {
	// URL, push endpoint'i (ör: wss://mqvi.example.com/ws).
	// token ve workspace_id query parametreleri Hub tarafından eklenir.
	URL   string
	Token string

	Transport Transport
	Handler   FrameHandler

	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Hub, workspace başına bir push Connection tutan merkezi yapı.
//
// Her workspace bağımsız bağlanır, kopar ve yeniden bağlanır; bir
// workspace'in bağlantı sorunu diğerlerinin event akışını etkilemez.
type Hub struct {
	opts   HubOptions
	logger *zap.Logger

	mu          sync.Mutex
	conns       map[string]*Connection
	lastSeq     map[string]int64
	onReconnect []func(workspaceID string)
	onState     []func(workspaceID string, s State)
	closed      bool
}

// NewHub, yeni bir Hub oluşturur. Bağlantılar Connect ile açılır.
func NewHub(opts HubOptions) *Hub {
	if opts.Transport == nil {
		opts.Transport = NewGorillaTransport()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Hub{
		opts:    opts,
		logger:  opts.Logger,
		conns:   make(map[string]*Connection),
		lastSeq: make(map[string]int64),
	}
}

// OnReconnect, herhangi bir workspace yeniden bağlandığında çağrılacak
// fonksiyonu ekler. Connect'ten önce çağrılmalıdır.
func (h *Hub) OnReconnect(fn func(workspaceID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReconnect = append(h.onReconnect, fn)
}

// OnStateChange, herhangi bir bağlantının durum geçişinde çağrılacak
// fonksiyonu ekler. Connect'ten önce çağrılmalıdır.
func (h *Hub) OnStateChange(fn func(workspaceID string, s State)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onState = append(h.onState, fn)
}

// Connect, workspace için push bağlantısını başlatır.
// Workspace zaten bağlıysa no-op'tur; Shutdown'dan sonra ErrConnectionClosed döner.
func (h *Hub) Connect(workspaceID string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return pkg.ErrConnectionClosed
	}
	if _, ok := h.conns[workspaceID]; ok {
		h.mu.Unlock()
		return nil
	}

	header := http.Header{}
	if h.opts.Token != "" {
		header.Set("Authorization", "Bearer "+h.opts.Token)
	}
	conn := NewConnection(ConnectionOptions{
		WorkspaceID:       workspaceID,
		URL:               h.pushURL(workspaceID),
		Header:            header,
		Transport:         h.opts.Transport,
		Handler:           func(env Envelope) { h.handle(workspaceID, env) },
		HeartbeatInterval: h.opts.HeartbeatInterval,
		ReadTimeout:       h.opts.ReadTimeout,
		BackoffMin:        h.opts.BackoffMin,
		BackoffMax:        h.opts.BackoffMax,
		Clock:             h.opts.Clock,
		Logger:            h.logger,
		Metrics:           h.opts.Metrics,
	})
	for _, fn := range h.onReconnect {
		conn.OnReconnect(func() { fn(workspaceID) })
	}
	for _, fn := range h.onState {
		conn.OnStateChange(func(s State) { fn(workspaceID, s) })
	}
	h.conns[workspaceID] = conn
	h.mu.Unlock()

	conn.Start()
	return nil
}

// Disconnect, workspace'in bağlantısını kapatır ve Hub'dan çıkarır.
// Aynı workspace daha sonra tekrar Connect edilebilir.
func (h *Hub) Disconnect(workspaceID string) {
	h.mu.Lock()
	conn, ok := h.conns[workspaceID]
	delete(h.conns, workspaceID)
	delete(h.lastSeq, workspaceID)
	h.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// Send, envelope'u workspace'in bağlantısına yazar.
func (h *Hub) Send(workspaceID string, env Envelope) error {
	h.mu.Lock()
	conn, ok := h.conns[workspaceID]
	closed := h.closed
	h.mu.Unlock()

	if closed {
		return pkg.ErrConnectionClosed
	}
	if !ok {
		return ErrNotConnected
	}
	return conn.Send(env)
}

// SendTyping, kanal için "yazıyor" frame'i gönderir.
func (h *Hub) SendTyping(workspaceID, channelID string) error {
	return h.Send(workspaceID, TypingFrame(channelID))
}

// State, workspace bağlantısının durumunu döner. Bilinmeyen workspace'ler
// disconnected sayılır.
func (h *Hub) State(workspaceID string) State {
	h.mu.Lock()
	conn, ok := h.conns[workspaceID]
	h.mu.Unlock()
	if !ok {
		return StateDisconnected
	}
	return conn.State()
}

// States, tüm bağlantıların durumunu döner.
func (h *Hub) States() map[string]State {
	h.mu.Lock()
	conns := make(map[string]*Connection, len(h.conns))
	for id, c := range h.conns {
		conns[id] = c
	}
	h.mu.Unlock()

	out := make(map[string]State, len(conns))
	for id, c := range conns {
		out[id] = c.State()
	}
	return out
}

// Shutdown, tüm bağlantıları kapatır. Sonraki Connect çağrıları reddedilir.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()
	h.logger.Info("push hub shut down", zap.Int("connections", len(conns)))
}

// handle, frame'i handler'a iletmeden önce seq boşluklarını loglar.
// Boşluklar geri istenmez; kaçan state reconnect sonrası refetch ile gelir.
func (h *Hub) handle(workspaceID string, env Envelope) {
	if env.Seq > 0 {
		h.mu.Lock()
		last := h.lastSeq[workspaceID]
		h.lastSeq[workspaceID] = env.Seq
		h.mu.Unlock()
		if last > 0 && env.Seq != last+1 {
			h.logger.Debug("push sequence gap",
				zap.String("workspace_id", workspaceID),
				zap.Int64("last_seq", last),
				zap.Int64("seq", env.Seq),
			)
		}
	}
	if h.opts.Handler != nil {
		h.opts.Handler(workspaceID, env)
	}
}

func (h *Hub) pushURL(workspaceID string) string {
	u, err := url.Parse(h.opts.URL)
	if err != nil {
		return h.opts.URL
	}
	q := u.Query()
	if h.opts.Token != "" {
		q.Set("token", h.opts.Token)
	}
	q.Set("workspace_id", workspaceID)
	u.RawQuery = q.Encode()
	return u.String()
}
