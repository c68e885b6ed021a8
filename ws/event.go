// Package ws, sunucunun push kanalına (STOMP 1.2 over WebSocket) client tarafı erişim sağlar.
//
// Mimari:
//   - Dialer: WebSocket handshake + STOMP CONNECT/CONNECTED el sıkışması
//   - Conn: Tek bir canlı bağlantı; Subscribe/Unsubscribe/Send
//   - Handler: Gelen MESSAGE frame'lerini ve bağlantı kopmasını alan taraf
//
// Event akışı:
//  1. Sunucu bir topic'e publish eder → MESSAGE frame gelir
//  2. ReadPump frame'i parse eder → Handler.HandleDelivery(Delivery)
//  3. ConnectionManager subscription id'den topic'i bulur → session event loop'una iletir
//
// Bu paket payload'ların anlamını bilmez, body ham JSON olarak taşınır,
// parse işi services katmanındaki decode'a aittir.
package ws

import "context"

// ────────────────────────────────────────────
// Destination sabitleri
// ────────────────────────────────────────────

// Client → Server (STOMP SEND destination'ları, app prefix "/app")
const (
	DestSendMessage    = "/app/chat.sendMessage"
	DestAddReaction    = "/app/chat.addReaction"
	DestRemoveReaction = "/app/chat.removeReaction"
	DestTyping         = "/app/chat.typing"
)

// Scope'a bağlı topic'lerin son ekleri. Prefix ChatScope.TopicBase()'den gelir:
// /topic/channels/{id} veya /topic/dm/{id}.
const (
	SuffixMessages        = "/messages"
	SuffixMessagesUpdated = "/messages/updated"
	SuffixMessagesDeleted = "/messages/deleted"
	SuffixTyping          = "/typing"
	SuffixReactions       = "/reactions" // sadece kanal scope'larında
)

// Scope'tan bağımsız destination'lar.
const (
	TopicUsersUpdated = "/topic/users/updated"
	QueueErrors       = "/user/queue/errors"
)

// Delivery, sunucudan gelen tek bir MESSAGE frame'i.
//
// Subscription: SUBSCRIBE sırasında verdiğimiz id, hangi subscription'a ait olduğunu söyler.
// Destination: Sunucunun yazdığı destination (loglama için).
// Body: Ham JSON payload.
type Delivery struct {
	Subscription string
	Destination  string
	Body         []byte
}

// Handler, bir Conn'un olaylarını alır.
//
// HandleDelivery ReadPump goroutine'inden sırayla çağrılır, tek topic için
// sunucu sırası korunur. HandleClose sadece uzak taraf veya transport hatası
// bağlantıyı kapattığında çağrılır; Conn.Close() ile yapılan kapanışta çağrılmaz.
type Handler interface {
	HandleDelivery(d Delivery)
	HandleClose(err error)
}

// Conn, canlı bir push bağlantısı.
type Conn interface {
	// Subscribe, destination'a abone olur ve subscription id döner.
	Subscribe(destination string) (string, error)
	// Unsubscribe, subscription'ı iptal eder. Kapalı bağlantıda pkg.ErrTransport döner.
	Unsubscribe(id string) error
	// Send, payload'ı JSON olarak destination'a gönderir.
	Send(destination string, payload any) error
	// Close, bağlantıyı kapatır. Birden fazla çağrı güvenlidir.
	Close() error
}

// Dialer, yeni push bağlantısı açar.
type Dialer interface {
	Dial(ctx context.Context, token string, h Handler) (Conn, error)
}
