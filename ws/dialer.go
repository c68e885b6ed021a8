package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/pkg"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultHeartbeat        = 10 * time.Second
)

// StompDialer, sunucunun SockJS endpoint'inin ham WebSocket yoluna
// (…/ws/websocket) bağlanır ve STOMP 1.2 el sıkışmasını yapar.
//
// Token query parametresiyle gönderilir (?token=JWT): sunucu handshake
// interceptor'ı Authorization header'ı değil bu parametreyi okur.
type StompDialer struct {
	URL              string
	HandshakeTimeout time.Duration
	// Heartbeat, client'ın gönderdiği heartbeat aralığı. Sunucudan heartbeat beklenmez ("N,0").
	Heartbeat time.Duration

	ws  *websocket.Dialer
	log *zap.Logger
}

// NewStompDialer, varsayılan ayarlarla dialer oluşturur.
func NewStompDialer(rawURL string, log *zap.Logger) *StompDialer {
	return &StompDialer{
		URL:              rawURL,
		HandshakeTimeout: defaultHandshakeTimeout,
		Heartbeat:        defaultHeartbeat,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		log: log,
	}
}

// Dial, bağlantıyı açar, CONNECTED frame'ini bekler ve pump'ları başlatır.
//
// Hata eşlemesi:
//   - HTTP 401/403 handshake cevabı → pkg.ErrUnauthenticated
//   - Diğer bağlantı hataları, ERROR frame, timeout → pkg.ErrTransport
func (d *StompDialer) Dial(ctx context.Context, token string, h Handler) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid websocket url: %v", pkg.ErrTransport, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := d.ws.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: websocket handshake rejected (%d)", pkg.ErrUnauthenticated, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", pkg.ErrTransport, u.Host, err)
	}

	if err := d.handshake(ctx, conn, u.Hostname()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := newClient(conn, h, d.Heartbeat, d.log)
	go c.WritePump()
	go c.ReadPump()

	d.log.Debug("stomp session established", zap.String("host", u.Host))
	return c, nil
}

// handshake, CONNECT gönderir ve CONNECTED/ERROR cevabını bekler.
func (d *StompDialer) handshake(ctx context.Context, conn *websocket.Conn, host string) error {
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, host,
		frame.HeartBeat, fmt.Sprintf("%d,0", d.Heartbeat.Milliseconds()),
	)
	data, err := encodeFrame(connect)
	if err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrTransport, err)
	}

	deadline := time.Now().Add(d.HandshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrTransport, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: send CONNECT: %v", pkg.ErrTransport, err)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrTransport, err)
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: waiting for CONNECTED: %v", pkg.ErrTransport, err)
		}
		frames, err := decodeFrames(raw)
		if err != nil {
			return fmt.Errorf("%w: invalid handshake frame: %v", pkg.ErrTransport, err)
		}
		for _, f := range frames {
			switch f.Command {
			case frame.CONNECTED:
				// Handshake bitti; okuma deadline'ı kaldırılır, heartbeat sadece client'tan akar.
				if err := conn.SetReadDeadline(time.Time{}); err != nil {
					return fmt.Errorf("%w: %v", pkg.ErrTransport, err)
				}
				return nil
			case frame.ERROR:
				return fmt.Errorf("%w: broker rejected CONNECT: %s", pkg.ErrTransport, f.Header.Get(frame.Message))
			}
		}
	}
}
