package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/pkg"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir frame'i yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// maxMessageSize: Sunucudan kabul edilen maksimum frame boyutu (byte).
	// Mesaj DTO'ları reaksiyon listeleriyle büyüyebilir, 4KB yetmez.
	maxMessageSize = 512 * 1024

	// sendBufferSize: Giden frame kuyruğunun boyutu.
	// Buffer doluysa yazma tarafı takılmış demektir, bağlantı kapatılır.
	sendBufferSize = 256
)

// client, tek bir STOMP-over-WebSocket bağlantısı.
//
// Her bağlantı için iki goroutine:
//   - ReadPump: Sunucudan gelen frame'leri okur → Handler'a iletir
//   - WritePump: send kuyruğundaki frame'leri ve heartbeat'leri yazar
//
// gorilla/websocket aynı anda tek okuyucu ve tek yazıcı destekler;
// yazmalar ayrıca mu ile korunur (kapanıştaki DISCONNECT de yazar).
type client struct {
	conn      *websocket.Conn
	handler   Handler
	log       *zap.Logger
	heartbeat time.Duration

	send chan []byte
	mu   sync.Mutex

	subsMu sync.Mutex
	subs   map[string]string // subscription id → destination

	closed    chan struct{}
	closeOnce sync.Once
	local     atomic.Bool // Close() ile mi kapandı?
}

func newClient(conn *websocket.Conn, h Handler, heartbeat time.Duration, log *zap.Logger) *client {
	return &client{
		conn:      conn,
		handler:   h,
		log:       log,
		heartbeat: heartbeat,
		send:      make(chan []byte, sendBufferSize),
		subs:      make(map[string]string),
		closed:    make(chan struct{}),
	}
}

// Subscribe, SUBSCRIBE frame'i gönderir. Id olarak UUID kullanılır.
func (c *client) Subscribe(destination string) (string, error) {
	id := uuid.NewString()
	f := frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	)
	if err := c.enqueue(f); err != nil {
		return "", err
	}

	c.subsMu.Lock()
	c.subs[id] = destination
	c.subsMu.Unlock()
	return id, nil
}

// Unsubscribe, UNSUBSCRIBE frame'i gönderir.
func (c *client) Unsubscribe(id string) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: connection closed", pkg.ErrTransport)
	default:
	}

	c.subsMu.Lock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	c.subsMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: unknown subscription %s", pkg.ErrNotFound, id)
	}
	return c.enqueue(frame.New(frame.UNSUBSCRIBE, frame.Id, id))
}

// Send, payload'ı JSON'a çevirip SEND frame'i olarak kuyruğa koyar.
func (c *client) Send(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", destination, err)
	}

	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json",
	)
	f.Body = body
	return c.enqueue(f)
}

// Close, bağlantıyı kapatır. Handler.HandleClose çağrılmaz.
func (c *client) Close() error {
	c.local.Store(true)
	c.shutdown(nil)
	return nil
}

// enqueue, frame'i encode edip send kuyruğuna koyar.
// Kuyruk doluysa yazma tarafı takılmıştır, bağlantı kapatılır.
func (c *client) enqueue(f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return fmt.Errorf("%w: connection closed", pkg.ErrTransport)
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return fmt.Errorf("%w: connection closed", pkg.ErrTransport)
	default:
		c.log.Warn("send buffer full, dropping connection")
		c.shutdown(fmt.Errorf("%w: send buffer full", pkg.ErrTransport))
		return fmt.Errorf("%w: send buffer full", pkg.ErrTransport)
	}
}

// ReadPump, sunucudan gelen frame'leri okur.
// Bağlantı kapanana kadar döngüde kalır; hata olursa shutdown çağırır.
func (c *client) ReadPump() {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.local.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("unexpected close", zap.Error(err))
			}
			c.shutdown(fmt.Errorf("%w: %v", pkg.ErrTransport, err))
			return
		}

		frames, err := decodeFrames(raw)
		if err != nil {
			// Bozuk frame bağlantıyı düşürmez, sadece atlanır.
			c.log.Warn("invalid frame", zap.Error(err))
			continue
		}

		for _, f := range frames {
			if !c.handleFrame(f) {
				return
			}
		}
	}
}

// handleFrame, tek bir frame'i işler. false → okuma döngüsü bitmeli.
func (c *client) handleFrame(f *frame.Frame) bool {
	switch f.Command {
	case frame.MESSAGE:
		c.handler.HandleDelivery(Delivery{
			Subscription: f.Header.Get(frame.Subscription),
			Destination:  f.Header.Get(frame.Destination),
			Body:         f.Body,
		})
		return true

	case frame.ERROR:
		msg := f.Header.Get(frame.Message)
		if msg == "" {
			msg = string(f.Body)
		}
		c.log.Warn("broker error frame", zap.String("message", msg))
		c.shutdown(fmt.Errorf("%w: broker error: %s", pkg.ErrTransport, msg))
		return false

	case frame.RECEIPT:
		return true

	default:
		c.log.Debug("ignoring frame", zap.String("command", f.Command))
		return true
	}
}

// WritePump, send kuyruğunu ve heartbeat'leri WebSocket'e yazar.
func (c *client) WritePump() {
	var tick <-chan time.Time
	if c.heartbeat > 0 {
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(fmt.Errorf("%w: write failed: %v", pkg.ErrTransport, err))
				return
			}
		case <-tick:
			// STOMP heartbeat: tek bir EOL.
			if err := c.writeMessage(websocket.TextMessage, []byte("\n")); err != nil {
				c.shutdown(fmt.Errorf("%w: heartbeat failed: %v", pkg.ErrTransport, err))
				return
			}
		case <-c.closed:
			return
		}
	}
}

// writeMessage, WebSocket'e yazar (mutex ile korunur).
func (c *client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// shutdown, bağlantıyı bir kez kapatır.
//
// Yerel kapanışta önce DISCONNECT frame'i ve close mesajı gönderilir (best-effort).
// Uzak kapanış veya hata durumunda Handler.HandleClose ayrı goroutine'de çağrılır ,
// handler kendi lock'unu alırken bu goroutine'i bloklamasın diye.
func (c *client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		close(c.closed)

		if cause == nil {
			if data, err := encodeFrame(frame.New(frame.DISCONNECT)); err == nil {
				_ = c.writeMessage(websocket.TextMessage, data)
			}
			_ = c.writeMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
		_ = c.conn.Close()

		c.subsMu.Lock()
		c.subs = make(map[string]string)
		c.subsMu.Unlock()

		if !c.local.Load() {
			go c.handler.HandleClose(cause)
		}
	})
}

// encodeFrame, frame'i wire formatına çevirir. content-length her zaman yazılır.
func encodeFrame(f *frame.Frame) ([]byte, error) {
	if f.Body != nil {
		f.Header.Set(frame.ContentLength, strconv.Itoa(len(f.Body)))
	}

	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// decodeFrames, bir WebSocket mesajındaki frame'leri okur.
// Heartbeat (boş satır) nil frame olarak gelir ve atlanır.
func decodeFrames(raw []byte) ([]*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(raw))

	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		if f == nil {
			continue
		}
		frames = append(frames, f)
	}
}
