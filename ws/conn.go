package ws

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/pkg/metrics"
)

// Varsayılan bağlantı zamanlamaları.
const (
	// DefaultHeartbeatInterval: Client her 30sn'de bir heartbeat frame'i gönderir.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultReadTimeout: 3 heartbeat kaçırma = 30s × 3 = 90s.
	// Bu sürede sunucudan hiç frame gelmezse bağlantı kopmuş sayılır.
	DefaultReadTimeout = 90 * time.Second

	DefaultBackoffMin = 500 * time.Millisecond
	DefaultBackoffMax = 30 * time.Second

	backoffFactor = 2.0
	backoffJitter = 0.2 // ±%20
)

// ErrNotConnected, bağlantı o an açık değilken Send çağrıldığında döner.
var ErrNotConnected = errors.New("push connection not established")

// State, push bağlantısının durumu.
//
//	disconnected → connecting → connected → reconnecting → connected
//	                                                     ↘ closed (terminal)
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// MarshalText, State'i JSON'da string olarak yazar.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionOptions, NewConnection parametreleri.
// Sıfır değerli süreler varsayılanlarla doldurulur.
type ConnectionOptions struct {
	WorkspaceID string
	URL         string
	Header      http.Header
	Transport   Transport

	// Handler, okuma döngüsünden her event frame'i için senkron çağrılır.
	// Frame'ler alınış sırasıyla ve tek goroutine'den teslim edilir.
	Handler func(Envelope)

	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration

	// Jitter, [0,1) aralığında sayı döner. nil ise math/rand kullanılır.
	Jitter func() float64

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Connection, tek bir workspace'in push bağlantısı.
//
// Bağlantı koptuğunda kendiliğinden yeniden bağlanır (capped exponential
// backoff). Close terminaldir: kapatılan bir Connection tekrar açılmaz.
type Connection struct {
	opts   ConnectionOptions
	clock  clock.Clock
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	sock        Socket
	started     bool
	onState     []func(State)
	onReconnect []func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnection, bağlantıyı oluşturur ama açmaz: Start ile başlatılır.
func NewConnection(opts ConnectionOptions) *Connection {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = DefaultBackoffMin
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = max(DefaultBackoffMax, opts.BackoffMin)
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	if opts.Transport == nil {
		opts.Transport = NewGorillaTransport()
	}
	if opts.Handler == nil {
		opts.Handler = func(Envelope) {}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		opts:   opts,
		clock:  clk,
		logger: logger.With(zap.String("workspace_id", opts.WorkspaceID)),
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// OnStateChange, her durum geçişinde çağrılacak fonksiyonu ekler.
// Fonksiyon durum değiştiren goroutine'den, lock dışında çağrılır.
func (c *Connection) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

// OnReconnect, bağlantı koptuktan sonra her başarılı yeniden bağlanmada
// çağrılacak fonksiyonu ekler. Fonksiyon ayrı bir goroutine'de çalışır —
// okuma döngüsü resync'i beklemeden event'leri uygulamaya devam eder.
func (c *Connection) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

// State, bağlantının güncel durumunu döner.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start, bağlantı döngüsünü arka planda başlatır. Birden fazla çağrı ve
// Close'dan sonraki çağrı no-op'tur.
func (c *Connection) Start() {
	c.mu.Lock()
	if c.started || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
}

// Send, envelope'u açık socket'e yazar.
func (c *Connection) Send(env Envelope) error {
	c.mu.Lock()
	state, sock := c.state, c.sock
	c.mu.Unlock()

	if state == StateClosed {
		return pkg.ErrConnectionClosed
	}
	if sock == nil || state != StateConnected {
		return ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return sock.WriteMessage(data)
}

// Close, bağlantıyı kalıcı olarak kapatır ve döngünün bitmesini bekler.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if started {
		<-c.done
	}
	c.setState(StateClosed)
}

// run, bağla → oku → koptuysa bekle → tekrar bağla döngüsü.
func (c *Connection) run() {
	defer close(c.done)

	attempt := 0
	everConnected := false
	for {
		if everConnected {
			c.setState(StateReconnecting)
		} else {
			c.setState(StateConnecting)
		}

		sock, err := c.opts.Transport.Dial(c.ctx, c.opts.URL, c.opts.Header)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			delay := Backoff(attempt, c.opts.BackoffMin, c.opts.BackoffMax, c.opts.Jitter())
			c.logger.Warn("push dial failed",
				zap.Int("attempt", attempt+1),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			attempt++
			if !c.sleep(delay) {
				return
			}
			continue
		}

		reconnected := everConnected
		everConnected = true

		c.mu.Lock()
		c.sock = sock
		c.mu.Unlock()
		c.setState(StateConnected)
		c.logger.Info("push connected", zap.Bool("reconnect", reconnected))

		if reconnected {
			c.opts.Metrics.Reconnected(c.opts.WorkspaceID)
			c.fireReconnect()
		}

		received, err := c.serve(sock)

		c.mu.Lock()
		c.sock = nil
		c.mu.Unlock()
		_ = sock.Close()

		if c.ctx.Err() != nil {
			return
		}

		// Backoff sadece sunucudan en az bir frame alındıysa sıfırlanır;
		// kabul edip hemen düşüren bir sunucuya da artan aralıklarla bağlanılır.
		if received {
			attempt = 0
		}
		delay := Backoff(attempt, c.opts.BackoffMin, c.opts.BackoffMax, c.opts.Jitter())
		attempt++
		c.logger.Warn("push connection dropped",
			zap.Bool("received", received),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		c.setState(StateReconnecting)
		if !c.sleep(delay) {
			return
		}
	}
}

// serve, socket kapanana kadar frame okur. Heartbeat ayrı bir goroutine'de
// yazılır; heartbeat yazılamazsa socket kapatılır ve okuma hata ile döner.
// received, bağlantı boyunca en az bir frame okunup okunmadığıdır.
func (c *Connection) serve(sock Socket) (received bool, err error) {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.heartbeat(sock, stop)
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for {
		// Read deadline her frame'de yenilenir: heartbeat_ack dahil.
		if err := sock.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
			return received, err
		}
		data, err := sock.ReadMessage()
		if err != nil {
			return received, err
		}
		received = true

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("invalid push frame", zap.Error(err))
			continue
		}
		if env.Type == TypeHeartbeatAck || env.Type == TypeHeartbeat {
			continue
		}
		c.opts.Handler(env)
	}
}

func (c *Connection) heartbeat(sock Socket, stop <-chan struct{}) {
	ticker := c.clock.Ticker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	frame, _ := json.Marshal(Envelope{Type: TypeHeartbeat})
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			// Close çağrıldı: bloklayan ReadMessage'ı serbest bırak.
			_ = sock.Close()
			return
		case <-ticker.C:
			if err := sock.WriteMessage(frame); err != nil {
				c.logger.Warn("heartbeat write failed", zap.Error(err))
				_ = sock.Close()
				return
			}
		}
	}
}

// sleep, enjekte edilen clock ile d kadar bekler. Bağlantı kapatılırsa false döner.
func (c *Connection) sleep(d time.Duration) bool {
	t := c.clock.Timer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	if c.state == s || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = s
	listeners := append([]func(State){}, c.onState...)
	c.mu.Unlock()

	c.opts.Metrics.SetConnectionState(c.opts.WorkspaceID, int(s))
	c.logger.Debug("push state changed",
		zap.Stringer("from", prev),
		zap.Stringer("to", s),
	)
	for _, fn := range listeners {
		fn(s)
	}
}

func (c *Connection) fireReconnect() {
	c.mu.Lock()
	listeners := append([]func(){}, c.onReconnect...)
	c.mu.Unlock()

	for _, fn := range listeners {
		go fn()
	}
}

// Backoff, attempt'inci (0'dan başlar) yeniden deneme için bekleme süresini
// hesaplar: min × 2^attempt, max ile sınırlı, ardından ±%20 jitter.
// r, [0,1) aralığında bir rastgele sayıdır.
func Backoff(attempt int, minDelay, maxDelay time.Duration, r float64) time.Duration {
	base := float64(minDelay) * math.Pow(backoffFactor, float64(attempt))
	if base > float64(maxDelay) || math.IsInf(base, 1) {
		base = float64(maxDelay)
	}
	jitter := 1 + backoffJitter*(2*r-1)
	return time.Duration(base * jitter)
}
