package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir frame'i yazmak için maksimum bekleme süresi.
	// Bu süre aşılırsa yazma hata verir ve bağlantı yeniden kurulur.
	writeWait = 10 * time.Second

	// maxMessageSize: Sunucudan kabul edilen maksimum frame boyutu (byte).
	// Mesaj event'leri içerik + ek metadata taşıdığı için sunucu tarafındaki
	// client limitinden büyüktür.
	maxMessageSize = 64 * 1024
)

// Socket, tek bir açık push bağlantısının okuma/yazma yüzeyi.
//
// Connection sadece bu interface'i bilir; testlerde gerçek ağ yerine
// in-memory bir Socket kullanılabilir.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Transport, push sunucusuna yeni bir Socket açar.
type Transport interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// GorillaTransport, gorilla/websocket üzerinde çalışan Transport.
type GorillaTransport struct {
	Dialer *websocket.Dialer
}

// NewGorillaTransport, varsayılan handshake timeout'u ile bir transport oluşturur.
func NewGorillaTransport() *GorillaTransport {
	return &GorillaTransport{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
		},
	}
}

// Dial, WebSocket handshake'ini yapar.
func (t *GorillaTransport) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &gorillaSocket{conn: conn}, nil
}

// gorillaSocket, *websocket.Conn'u Socket'e uyarlar.
//
// gorilla/websocket aynı anda sadece bir writer destekler: heartbeat
// goroutine'i ile typing gönderimi aynı anda yazabileceği için yazmalar
// mutex ile korunur.
type gorillaSocket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *gorillaSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *gorillaSocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Socket deadline'ları her zaman duvar saatiyle kurulur; enjekte edilen
	// clock sadece backoff ve heartbeat zamanlamasını sürer.
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *gorillaSocket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *gorillaSocket) Close() error {
	s.mu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.mu.Unlock()
	return s.conn.Close()
}
