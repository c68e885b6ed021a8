package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/pkg/metrics"
	"github.com/akinalp/chatsync/ws"
)

// Topic, bir subscription'ın mantıksal adı.
type Topic string

// Scope'a bağlı ve scope'tan bağımsız topic'ler.
const (
	TopicMessages       Topic = "messages"
	TopicMessageUpdates Topic = "message-updates"
	TopicMessageDeletes Topic = "message-deletes"
	TopicTyping         Topic = "typing"
	TopicReactions      Topic = "reactions"
	TopicUserUpdates    Topic = "users-updated"
	TopicErrors         Topic = "errors"
)

// topicDest, açılacak tek bir subscription.
type topicDest struct {
	topic Topic
	dest  string
}

// topicDestinations, scope için açılacak subscription'ları deterministik sırada döner.
//
// Her scope: messages, message-updates, message-deletes, typing.
// Kanal scope'ları ek olarak reactions.
// Scope'tan bağımsız: errors kuyruğu ve users-updated.
func topicDestinations(scope models.ChatScope) []topicDest {
	base := scope.TopicBase()
	out := []topicDest{
		{TopicMessages, base + ws.SuffixMessages},
		{TopicMessageUpdates, base + ws.SuffixMessagesUpdated},
		{TopicMessageDeletes, base + ws.SuffixMessagesDeleted},
		{TopicTyping, base + ws.SuffixTyping},
	}
	if scope.IsChannel() {
		out = append(out, topicDest{TopicReactions, base + ws.SuffixReactions})
	}
	return append(out,
		topicDest{TopicErrors, ws.QueueErrors},
		topicDest{TopicUserUpdates, ws.TopicUsersUpdated},
	)
}

// Inbound, bir subscription'dan gelen ham frame ve ait olduğu scope/topic.
type Inbound struct {
	Scope models.ChatScope
	Topic Topic
	Body  []byte
}

// CredentialSource, bağlanmadan önce geçerli credential sağlar. SessionGuard karşılar.
type CredentialSource interface {
	EnsureValid(ctx context.Context) (models.SessionCredential, error)
}

// ConnectionManager, push bağlantısının ve SubscriptionSet'in tek sahibidir.
//
// Durumlar: Disconnected → Connecting → Connected → Disconnected.
// Başka geçiş yoktur. Transport hatası Disconnected'a götürür ve otomatik
// yeniden bağlanma yapılmaz; sonraki scope seçimi yeniden bağlar.
//
// Her bağlantı denemesi bir epoch alır. Eski epoch'a ait frame'ler ve
// kapanış bildirimleri sessizce atılır; böylece eski scope'un event'i yeni
// scope'a yanlışlıkla yazılmaz.
//
// Connect çağrıları connectMu ile sıraya girer ve her çağrı bir attempt
// numarası alır. Daha yeni bir Connect veya Disconnect gelmişse eski çağrı
// dial etmeden (veya dial ettiği bağlantıyı kapatarak) döner. Aynı anda
// en fazla bir SubscriptionSet vardır.
type ConnectionManager struct {
	dialer  ws.Dialer
	guard   CredentialSource
	log     *zap.Logger
	metrics *metrics.Metrics

	onDelivery func(Inbound)
	onClose    func(scope models.ChatScope, err error)

	connectMu sync.Mutex

	mu      sync.Mutex
	attempt uint64
	state   models.ConnectionState
	scope   models.ChatScope
	conn    ws.Conn
	subs    map[Topic]string
	routes  map[string]Topic
	epoch   uint64
}

// NewConnectionManager, constructor. Callback'ler OnDelivery/OnTransportError ile bağlanır.
func NewConnectionManager(dialer ws.Dialer, guard CredentialSource, log *zap.Logger, m *metrics.Metrics) *ConnectionManager {
	return &ConnectionManager{
		dialer:     dialer,
		guard:      guard,
		log:        log,
		metrics:    m,
		onDelivery: func(Inbound) {},
		onClose:    func(models.ChatScope, error) {},
		subs:       make(map[Topic]string),
		routes:     make(map[string]Topic),
	}
}

// OnDelivery, gelen her frame için çağrılır (ReadPump goroutine'inden).
func (m *ConnectionManager) OnDelivery(fn func(Inbound)) {
	m.onDelivery = fn
}

// OnTransportError, bağlantı uzak taraftan veya hatayla koptuğunda çağrılır.
func (m *ConnectionManager) OnTransportError(fn func(scope models.ChatScope, err error)) {
	m.onClose = fn
}

// Connect, mevcut bağlantıyı tamamen söküp scope için yenisini kurar.
//
// Sıra:
//  1. Teardown: tüm subscription'lar iptal edilir, bağlantı kapatılır
//  2. Credential kontrolü: yoksa state Disconnected kalır, hata döner
//  3. Connecting → dial → subscribe → Connected
//
// Bu çağrıdan sonra başlayan bir Connect/Disconnect onu geçersiz kılar;
// geçersiz kalan çağrı ErrTransport ile döner ve hiçbir şey bırakmaz.
func (m *ConnectionManager) Connect(ctx context.Context, scope models.ChatScope) error {
	attempt := m.nextAttempt()

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	if m.superseded(attempt) {
		return errSuperseded
	}
	m.teardown("scope change")

	if scope.IsZero() {
		return pkg.ErrNoActiveScope
	}

	cred, err := m.guard.EnsureValid(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.attempt != attempt {
		m.mu.Unlock()
		m.log.Debug("connect superseded before dial", zap.String("scope", scope.String()))
		return errSuperseded
	}
	m.epoch++
	epoch := m.epoch
	m.scope = scope
	m.setStateLocked(models.StateConnecting)
	m.mu.Unlock()

	m.log.Info("connecting", zap.String("scope", scope.String()))

	conn, err := m.dialer.Dial(ctx, cred.Token, &epochHandler{m: m, epoch: epoch})
	if err != nil {
		m.mu.Lock()
		if m.epoch == epoch {
			m.setStateLocked(models.StateDisconnected)
		}
		m.mu.Unlock()
		m.log.Warn("connect failed", zap.String("scope", scope.String()), zap.Error(err))
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch || m.attempt != attempt {
		// Dial sürerken başka bir Connect veya Disconnect geldi.
		_ = conn.Close()
		return errSuperseded
	}

	if m.conn != nil {
		m.unsubscribeAllLocked()
		m.releaseLocked()
	}
	m.conn = conn
	for _, td := range topicDestinations(scope) {
		id, err := conn.Subscribe(td.dest)
		if err != nil {
			m.releaseLocked()
			m.log.Warn("subscribe failed", zap.String("destination", td.dest), zap.Error(err))
			if errors.Is(err, pkg.ErrTransport) {
				return err
			}
			return fmt.Errorf("%w: subscribe %s: %w", pkg.ErrTransport, td.dest, err)
		}
		m.subs[td.topic] = id
		m.routes[id] = td.topic
	}

	m.setStateLocked(models.StateConnected)
	m.log.Info("connected", zap.String("scope", scope.String()), zap.Int("subscriptions", len(m.subs)))
	return nil
}

var errSuperseded = fmt.Errorf("%w: connection attempt superseded", pkg.ErrTransport)

// Disconnect, bağlantıyı kapatır ve sürmekte olan Connect'i geçersiz kılar.
// Zaten kapalıysa no-op.
func (m *ConnectionManager) Disconnect() {
	m.nextAttempt()
	m.teardown("disconnect")
}

func (m *ConnectionManager) nextAttempt() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	return m.attempt
}

func (m *ConnectionManager) superseded(attempt uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt != attempt
}

// Send, payload'ı destination'a gönderir. Connected değilse ErrNotConnected.
func (m *ConnectionManager) Send(destination string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateConnected || m.conn == nil {
		return pkg.ErrNotConnected
	}
	return m.conn.Send(destination, payload)
}

// State, bağlantı durumu.
func (m *ConnectionManager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Scope, bağlantının ait olduğu (veya son ait olduğu) scope.
func (m *ConnectionManager) Scope() models.ChatScope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// Subscriptions, canlı SubscriptionSet'in kopyası: topic → subscription id.
func (m *ConnectionManager) Subscriptions() map[Topic]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Topic]string, len(m.subs))
	for topic, id := range m.subs {
		out[topic] = id
	}
	return out
}

// teardown, tüm subscription'ları iptal eder ve bağlantıyı kapatır.
func (m *ConnectionManager) teardown(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	if m.conn == nil && len(m.subs) == 0 {
		m.setStateLocked(models.StateDisconnected)
		return
	}

	m.unsubscribeAllLocked()
	m.releaseLocked()
	m.log.Info("disconnected", zap.String("reason", reason), zap.String("scope", m.scope.String()))
}

// unsubscribeAllLocked, kapanmış transport üzerindeki unsubscribe hatalarını yutar.
func (m *ConnectionManager) unsubscribeAllLocked() {
	if m.conn == nil {
		return
	}
	for topic, id := range m.subs {
		if err := m.conn.Unsubscribe(id); err != nil {
			m.log.Debug("unsubscribe failed during teardown",
				zap.String("topic", string(topic)), zap.Error(err))
		}
	}
}

// releaseLocked, bağlantıyı kapatıp SubscriptionSet'i boşaltır.
func (m *ConnectionManager) releaseLocked() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.subs = make(map[Topic]string)
	m.routes = make(map[string]Topic)
	m.setStateLocked(models.StateDisconnected)
}

func (m *ConnectionManager) setStateLocked(s models.ConnectionState) {
	m.state = s
	if m.metrics != nil {
		m.metrics.ConnectionState.Set(float64(s))
	}
}

// epochHandler, ws.Handler'ı tek bir bağlantı denemesine bağlar.
type epochHandler struct {
	m     *ConnectionManager
	epoch uint64
}

func (h *epochHandler) HandleDelivery(d ws.Delivery) {
	m := h.m

	m.mu.Lock()
	if m.epoch != h.epoch {
		m.mu.Unlock()
		m.dropped("stale_epoch")
		return
	}
	topic, ok := m.routes[d.Subscription]
	scope := m.scope
	m.mu.Unlock()

	if !ok {
		m.dropped("unknown_subscription")
		m.log.Debug("frame for unknown subscription", zap.String("destination", d.Destination))
		return
	}

	if m.metrics != nil {
		m.metrics.FramesReceived.WithLabelValues(string(topic)).Inc()
	}
	m.onDelivery(Inbound{Scope: scope, Topic: topic, Body: d.Body})
}

func (h *epochHandler) HandleClose(err error) {
	m := h.m

	m.mu.Lock()
	if m.epoch != h.epoch {
		m.mu.Unlock()
		return
	}
	m.epoch++
	scope := m.scope
	m.conn = nil
	m.subs = make(map[Topic]string)
	m.routes = make(map[string]Topic)
	m.setStateLocked(models.StateDisconnected)
	m.mu.Unlock()

	if err == nil {
		err = pkg.ErrTransport
	} else if !errors.Is(err, pkg.ErrTransport) {
		err = fmt.Errorf("%w: %w", pkg.ErrTransport, err)
	}
	m.log.Warn("push connection lost", zap.String("scope", scope.String()), zap.Error(err))
	m.onClose(scope, err)
}

func (m *ConnectionManager) dropped(reason string) {
	if m.metrics != nil {
		m.metrics.FramesDropped.WithLabelValues(reason).Inc()
	}
}
