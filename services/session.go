package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/pkg/metrics"
	"github.com/akinalp/chatsync/pkg/ratelimit"
	"github.com/akinalp/chatsync/ws"
)

// ErrSessionStopped, Run döngüsü çalışmıyorken gelen intent'lere döner.
var ErrSessionStopped = errors.New("session is not running")

// NoticeKind, rendering katmanına giden bildirimin türü.
type NoticeKind int

const (
	NoticeStateChanged NoticeKind = iota
	NoticeMessagesChanged
	NoticeReactionsChanged
	NoticeTypingChanged
	NoticeProfileChanged
	NoticeServerError
	NoticeError
	NoticeLoginRequired
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeStateChanged:
		return "state"
	case NoticeMessagesChanged:
		return "messages"
	case NoticeReactionsChanged:
		return "reactions"
	case NoticeTypingChanged:
		return "typing"
	case NoticeProfileChanged:
		return "profile"
	case NoticeServerError:
		return "server-error"
	case NoticeError:
		return "error"
	case NoticeLoginRequired:
		return "login-required"
	default:
		return "unknown"
	}
}

// Notice, tek seferlik değişiklik bildirimi. Rendering katmanı bunu görünce
// ilgili accessor'ı tekrar okur; notice'in kendisi state taşımaz.
type Notice struct {
	Kind      NoticeKind
	Scope     models.ChatScope
	MessageID int64
	State     models.ConnectionState
	Text      string
	Err       error
}

// SessionConfig, session'ın ayarları. Sıfır değerler varsayılanlara düşer.
type SessionConfig struct {
	HistoryPageSize int
	TypingWindow    time.Duration
	TypingSweep     time.Duration
	TypingDebounce  time.Duration
	MaxAttachments  int
	SendLimit       int
	SendWindow      time.Duration
	SendCooldown    time.Duration
	NoticeBuffer    int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.TypingSweep <= 0 {
		c.TypingSweep = DefaultTypingSweep
	}
	if c.MaxAttachments <= 0 {
		c.MaxAttachments = 5
	}
	if c.SendLimit == 0 {
		c.SendLimit = 5
	}
	if c.SendWindow <= 0 {
		c.SendWindow = 5 * time.Second
	}
	if c.SendCooldown <= 0 {
		c.SendCooldown = 15 * time.Second
	}
	if c.NoticeBuffer <= 0 {
		c.NoticeBuffer = 64
	}
	return c
}

// AttachmentSender, dosyalı mesajı REST üzerinden gönderir. api.Client karşılar.
type AttachmentSender interface {
	SendWithAttachments(ctx context.Context, req models.SendMessageRequest) (*models.MessageRecord, error)
}

// SessionDeps, session'ın network collaborator'ları.
type SessionDeps struct {
	Guard    CredentialSource
	History  HistoryFetcher
	Uploader AttachmentSender
	Dialer   ws.Dialer
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

// Session, bir login'in tüm sync state'inin sahibidir.
//
// Login'de oluşturulur, logout'ta Reset edilir. Cache, reaksiyon merger'ı,
// typing tracker ve bağlantı sadece Run döngüsünün goroutine'inde değiştirilir:
//
//	push frame'leri ──┐
//	network sonuçları ┼──► Run (select) ──► cache / merger / tracker ──► Notices()
//	intent'ler ───────┤
//	sweep tick'i ─────┘
//
// Network çağrıları (history, connect, upload) döngüyü bloklamaz; ayrı
// goroutine'de çalışır ve sonucu döngüye event olarak geri gönderir.
// Aktif scope değiştiyse geç gelen sonuç atılır.
type Session struct {
	cfg     SessionConfig
	log     *zap.Logger
	metrics *metrics.Metrics

	guard    CredentialSource
	uploader AttachmentSender

	resolver *ScopeResolver
	cache    *MessageCache
	history  *HistoryLoader
	conn     *ConnectionManager
	merger   *ReactionMerger
	typing   *TypingTracker
	notifier *TypingNotifier
	limiter  *ratelimit.SendLimiter

	userMu sync.RWMutex
	user   models.User

	onSelect func(models.ChatScope)

	inbound chan Inbound
	events  chan any
	intents chan intent
	notices chan Notice
	done    chan struct{}
	running sync.Once

	// Sadece Run goroutine'i okur/yazar.
	epoch   uint64
	pending bool
}

type intent struct {
	run   func(ctx context.Context) error
	reply chan error
}

// Döngüye geri gelen network sonuçları.
type historyLoaded struct {
	epoch uint64
	scope models.ChatScope
	page  *models.MessagePage
	err   error
}

type connectFinished struct {
	epoch uint64
	scope models.ChatScope
	err   error
}

type transportLost struct {
	scope models.ChatScope
	err   error
}

// NewSession, login olmuş kullanıcı için session kurar. Run çağrılana kadar intent kabul etmez.
func NewSession(user models.User, deps SessionDeps, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	cache := NewMessageCache()
	s := &Session{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		guard:    deps.Guard,
		uploader: deps.Uploader,
		resolver: NewScopeResolver(),
		cache:    cache,
		history:  NewHistoryLoader(deps.History, cfg.HistoryPageSize, log.Named("history")),
		conn:     NewConnectionManager(deps.Dialer, deps.Guard, log.Named("connection"), m),
		merger:   NewReactionMerger(cache, log.Named("reactions")),
		typing:   NewTypingTracker(cfg.TypingWindow, log.Named("typing")),
		limiter:  ratelimit.NewSendLimiter(cfg.SendLimit, cfg.SendWindow, cfg.SendCooldown),
		user:     user,
		onSelect: func(models.ChatScope) {},
		inbound:  make(chan Inbound, 256),
		events:   make(chan any, 16),
		intents:  make(chan intent),
		notices:  make(chan Notice, cfg.NoticeBuffer),
		done:     make(chan struct{}),
	}
	s.notifier = NewTypingNotifier(cfg.TypingDebounce, s.sendTyping, log.Named("typing"))
	s.typing.SetSelf(user.ID)

	s.conn.OnDelivery(func(in Inbound) {
		select {
		case s.inbound <- in:
		case <-s.done:
		}
	})
	s.conn.OnTransportError(func(scope models.ChatScope, err error) {
		s.post(transportLost{scope: scope, err: err})
	})
	return s
}

// OnScopeSelected, her başarılı scope seçiminde çağrılır (ör. son scope'u kaydetmek).
// Run'dan önce bağlanmalı.
func (s *Session) OnScopeSelected(fn func(models.ChatScope)) {
	s.onSelect = fn
}

// Run, session'ın event döngüsü. ctx iptal edilene kadar döner.
// Bir session için yalnızca bir kez çağrılabilir.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.running.Do(func() { started = true })
	if !started {
		return fmt.Errorf("session already started")
	}

	ticker := time.NewTicker(s.cfg.TypingSweep)
	defer ticker.Stop()
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case in := <-s.inbound:
			s.handleInbound(in)

		case ev := <-s.events:
			s.handleEvent(ctx, ev)

		case it := <-s.intents:
			it.reply <- it.run(ctx)

		case <-ticker.C:
			if text, changed := s.typing.Sweep(); changed {
				s.notify(Notice{Kind: NoticeTypingChanged, Scope: s.ActiveScope(), Text: text})
			}
		}
	}
}

func (s *Session) shutdown() {
	close(s.done)
	s.notifier.Cancel()
	s.conn.Disconnect()
	s.typing.Close()
}

// ─── Intent'ler ───

// SelectScope, aktif konuşmayı değiştirir.
//
// Eski bağlantı hemen sökülür. Scope için taze bir snapshot varsa history
// tekrar çekilmez; yoksa (veya bağlantı kopması yüzünden stale ise) çekilir.
// Sonra bağlanılır. İlerleme Notices() üzerinden bildirilir.
func (s *Session) SelectScope(ctx context.Context, scope models.ChatScope) error {
	if scope.IsZero() {
		return pkg.ErrNoActiveScope
	}
	return s.call(ctx, func(runCtx context.Context) error {
		changed := s.resolver.Select(scope)
		if !changed && (s.pending || s.conn.State() == models.StateConnected) {
			return nil
		}

		s.epoch++
		s.pending = true
		s.notifier.Cancel()
		s.typing.SetActive(scope)
		s.conn.Disconnect()
		s.notify(Notice{Kind: NoticeStateChanged, Scope: scope, State: models.StateDisconnected})

		if s.cache.Has(scope) && !s.cache.IsStale(scope) {
			s.notify(Notice{Kind: NoticeMessagesChanged, Scope: scope})
			s.startConnect(runCtx, scope)
		} else {
			s.startHistory(runCtx, scope)
		}

		if changed {
			s.onSelect(scope)
		}
		return nil
	})
}

// SendMessage, aktif scope'a mesaj gönderir.
//
// Dosyasız mesajlar push kanalından gider ve sunucunun yayını cache'e düşer.
// Dosyalı mesajlar multipart REST çağrısıyla gider; dönen kayıt hemen cache'e eklenir.
func (s *Session) SendMessage(ctx context.Context, req models.SendMessageRequest) error {
	if err := s.ensureValid(ctx); err != nil {
		return err
	}

	var prepared models.SendMessageRequest
	err := s.call(ctx, func(context.Context) error {
		active, ok := s.resolver.Active()
		if !ok {
			return pkg.ErrNoActiveScope
		}
		if req.Scope.IsZero() {
			req.Scope = active
		}
		if req.Scope != active {
			return fmt.Errorf("%w: message for %s while %s is active", pkg.ErrBadRequest, req.Scope, active)
		}
		if err := req.Validate(s.cfg.MaxAttachments); err != nil {
			return fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
		}
		// Transport hatasından sonra yeniden bağlanana kadar hiçbir yol
		// (push veya multipart) mesaj göndermez.
		if s.conn.State() != models.StateConnected {
			return pkg.ErrNotConnected
		}
		if !s.limiter.Allow(active.String()) {
			return fmt.Errorf("%w: try again in %s", pkg.ErrRateLimited, s.limiter.Remaining(active.String()).Round(time.Second))
		}
		s.notifier.Cancel()

		if len(req.Files) == 0 {
			return s.conn.Send(ws.DestSendMessage, models.NewChatMessagePayload(req))
		}
		prepared = req
		return nil
	})
	if err != nil || prepared.Scope.IsZero() {
		return err
	}

	rec, err := s.uploader.SendWithAttachments(ctx, prepared)
	if err != nil {
		s.surface(err)
		return err
	}
	if rec == nil {
		return nil
	}
	return s.call(ctx, func(context.Context) error {
		if s.resolver.IsActive(rec.Scope) && s.cache.ApplyCreate(rec) {
			s.messagesChanged(rec.Scope)
		}
		return nil
	})
}

// ToggleReaction, mesaja emoji tepkisi ekler veya kaldırır (optimistic).
// Gönderim başarısız olursa yerel değişiklik geri alınır.
func (s *Session) ToggleReaction(ctx context.Context, messageID int64, emoji string, fromPicker bool) error {
	if err := s.ensureValid(ctx); err != nil {
		return err
	}

	return s.call(ctx, func(context.Context) error {
		rec, ok := s.cache.Find(messageID)
		if !ok || !s.resolver.IsActive(rec.Scope) {
			return fmt.Errorf("%w: message %d is not in the active chat", pkg.ErrNotFound, messageID)
		}

		self := s.User().Reactor()
		action, err := s.merger.Toggle(self, messageID, emoji, fromPicker)
		if err != nil || action == ReactionNone {
			return err
		}

		dest := ws.DestAddReaction
		if action == ReactionRemove {
			dest = ws.DestRemoveReaction
		}
		if err := s.conn.Send(dest, models.NewReactionPayload(rec.Scope, messageID, emoji)); err != nil {
			s.merger.Revert(self, messageID, emoji, action)
			return err
		}

		s.notify(Notice{Kind: NoticeReactionsChanged, Scope: rec.Scope, MessageID: messageID})
		return nil
	})
}

// NotifyTyping, yerel kullanıcı yazıyor. Debounce sonrası tek sinyal gider.
func (s *Session) NotifyTyping() {
	if scope, ok := s.resolver.Active(); ok {
		s.notifier.Notify(scope)
	}
}

// LoadOlder, aktif scope'un bir sonraki eski sayfasını çekip cache'e ekler.
// Eklenen mesaj sayısını döner; daha eski sayfa yoksa 0.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	var (
		scope models.ChatScope
		page  int
		more  bool
	)
	err := s.call(ctx, func(context.Context) error {
		active, ok := s.resolver.Active()
		if !ok {
			return pkg.ErrNoActiveScope
		}
		scope = active
		page, more = s.cache.NextPage(active)
		return nil
	})
	if err != nil || !more {
		return 0, err
	}

	result, err := s.history.LoadPage(ctx, scope, page)
	if err != nil {
		s.surface(err)
		return 0, err
	}

	added := 0
	err = s.call(ctx, func(context.Context) error {
		if !s.resolver.IsActive(scope) {
			s.log.Debug("discarding older page for inactive scope", zap.String("scope", scope.String()))
			return nil
		}
		added = s.cache.Merge(result)
		if added > 0 {
			s.messagesChanged(scope)
		}
		return nil
	})
	return added, err
}

// Disconnect, push bağlantısını kapatır. Seçim ve cache korunur.
func (s *Session) Disconnect(ctx context.Context) error {
	return s.call(ctx, func(context.Context) error {
		s.epoch++
		s.pending = false
		s.conn.Disconnect()
		s.notify(Notice{Kind: NoticeStateChanged, State: models.StateDisconnected})
		return nil
	})
}

// Reset, session'ı logout için boşaltır: bağlantı, seçim, cache ve typing state'i temizlenir.
func (s *Session) Reset(ctx context.Context) error {
	return s.call(ctx, func(context.Context) error {
		s.epoch++
		s.pending = false
		s.notifier.Cancel()
		s.conn.Disconnect()
		s.resolver.Clear()
		s.cache.Reset()
		s.typing.Reset()
		s.metrics.CachedMessages.Set(0)
		s.notify(Notice{Kind: NoticeStateChanged, State: models.StateDisconnected})
		return nil
	})
}

// ─── Read-only accessor'lar ───

// Messages, aktif scope'un sıralı mesaj snapshot'ı.
func (s *Session) Messages() []*models.MessageRecord {
	scope, ok := s.resolver.Active()
	if !ok {
		return nil
	}
	return s.cache.Get(scope)
}

// Reactions, mesajın render edilecek reaksiyon grupları.
func (s *Session) Reactions(messageID int64) []models.ReactionGroup {
	groups, _ := s.merger.Display(messageID, s.User().ID)
	return groups
}

// TypingIndicator, aktif scope için "X is typing…" metni.
func (s *Session) TypingIndicator() string {
	return s.typing.Indicator()
}

// ConnectionState, push bağlantısının durumu.
func (s *Session) ConnectionState() models.ConnectionState {
	return s.conn.State()
}

// ActiveScope, aktif konuşma (yoksa zero value).
func (s *Session) ActiveScope() models.ChatScope {
	scope, _ := s.resolver.Active()
	return scope
}

// Subscriptions, canlı subscription'lar.
func (s *Session) Subscriptions() map[Topic]string {
	return s.conn.Subscriptions()
}

// User, oturumdaki kullanıcı.
func (s *Session) User() models.User {
	s.userMu.RLock()
	defer s.userMu.RUnlock()
	return s.user
}

// Notices, değişiklik bildirimleri. Okunmazsa bildirimler düşürülür, döngü bloklanmaz.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// ─── Döngü içi ───

func (s *Session) handleEvent(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case historyLoaded:
		if e.epoch != s.epoch || !s.resolver.IsActive(e.scope) {
			s.log.Debug("discarding stale history", zap.String("scope", e.scope.String()))
			return
		}
		if e.err != nil {
			s.pending = false
			s.log.Warn("history load failed", zap.String("scope", e.scope.String()), zap.Error(e.err))
			s.surface(e.err)
			return
		}
		if err := s.cache.Load(e.page); err != nil {
			s.pending = false
			s.log.Warn("history page rejected", zap.Error(err))
			return
		}
		s.messagesChanged(e.scope)
		s.startConnect(ctx, e.scope)

	case connectFinished:
		if e.epoch != s.epoch {
			// Eski bir seçimin sonucu. SelectScope'taki Disconnect o denemeyi
			// geçersiz kıldığı için geride açık bağlantı kalmaz.
			return
		}
		s.pending = false
		if e.err != nil {
			s.log.Warn("connect failed", zap.String("scope", e.scope.String()), zap.Error(e.err))
			s.notify(Notice{Kind: NoticeStateChanged, Scope: e.scope, State: s.conn.State(), Err: e.err})
			s.surface(e.err)
			return
		}
		s.notify(Notice{Kind: NoticeStateChanged, Scope: e.scope, State: models.StateConnected})

	case transportLost:
		// Kopma sırasında kaçırılmış event olabilir; tekrar seçilince history yenilenir.
		s.cache.MarkStale(e.scope)
		s.notifier.Cancel()
		if s.resolver.IsActive(e.scope) {
			s.pending = false
			s.notify(Notice{Kind: NoticeStateChanged, Scope: e.scope, State: models.StateDisconnected, Err: e.err})
		}
	}
}

func (s *Session) handleInbound(in Inbound) {
	if !s.resolver.IsActive(in.Scope) {
		s.dropFrame("inactive_scope", in, nil)
		return
	}

	ev, err := DecodeInbound(in)
	if err != nil {
		s.dropFrame("malformed", in, err)
		return
	}

	switch e := ev.(type) {
	case MessageCreated:
		if s.cache.ApplyCreate(e.Record) {
			s.messagesChanged(e.Record.Scope)
		}
		if text, changed := s.typing.Remove(e.Record.Scope, e.Record.SenderID); changed {
			s.notify(Notice{Kind: NoticeTypingChanged, Scope: e.Record.Scope, Text: text})
		}

	case MessageUpdated:
		res, err := s.cache.ApplyUpdate(e.Record)
		if err != nil {
			s.dropFrame("malformed", in, err)
			return
		}
		if res.MarkedEdited {
			s.log.Debug("message edited", zap.Int64("message_id", e.Record.ID))
		}
		s.messagesChanged(e.Record.Scope)

	case MessageDeleted:
		if s.cache.ApplyDelete(e.Scope, e.MessageID) {
			s.messagesChanged(e.Scope)
		}

	case ReactionSnapshot:
		if s.merger.FoldServerSnapshot(e.MessageID, e.ByEmoji, e.Counts) {
			s.notify(Notice{Kind: NoticeReactionsChanged, Scope: e.Scope, MessageID: e.MessageID})
		}

	case TypingSignal:
		if text, changed := s.typing.Observe(e.Scope, e.UserID, e.DisplayName, e.IsTyping); changed {
			s.notify(Notice{Kind: NoticeTypingChanged, Scope: e.Scope, Text: text})
		}

	case UserUpdated:
		if e.User.ID == s.User().ID {
			s.userMu.Lock()
			s.user = e.User
			s.userMu.Unlock()
			s.notify(Notice{Kind: NoticeProfileChanged, Text: e.User.Username})
		}
		if s.cache.UpdateSender(e.User) > 0 {
			s.messagesChanged(in.Scope)
		}

	case ServerError:
		s.notify(Notice{Kind: NoticeServerError, Scope: in.Scope, Text: e.Text})
	}
}

func (s *Session) startHistory(ctx context.Context, scope models.ChatScope) {
	epoch := s.epoch
	go func() {
		page, err := s.history.Load(ctx, scope)
		s.post(historyLoaded{epoch: epoch, scope: scope, page: page, err: err})
	}()
}

func (s *Session) startConnect(ctx context.Context, scope models.ChatScope) {
	epoch := s.epoch
	s.notify(Notice{Kind: NoticeStateChanged, Scope: scope, State: models.StateConnecting})
	go func() {
		err := s.conn.Connect(ctx, scope)
		s.post(connectFinished{epoch: epoch, scope: scope, err: err})
	}()
}

// post, goroutine'den döngüye event gönderir. Döngü durduysa event atılır.
func (s *Session) post(ev any) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// call, fn'i döngü goroutine'inde çalıştırır ve sonucunu bekler.
func (s *Session) call(ctx context.Context, fn func(context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case s.intents <- intent{run: fn, reply: reply}:
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureValid, korunan intent'lerden önce credential'ı kontrol eder.
// Network çağrısı (refresh) çağıranın goroutine'inde yapılır.
func (s *Session) ensureValid(ctx context.Context) error {
	if _, err := s.guard.EnsureValid(ctx); err != nil {
		s.surface(err)
		return err
	}
	return nil
}

// surface, hatayı taksonomiye göre bildirir.
func (s *Session) surface(err error) {
	switch {
	case errors.Is(err, pkg.ErrUnauthenticated):
		s.notify(Notice{Kind: NoticeLoginRequired, Err: err})
	case errors.Is(err, context.Canceled):
	default:
		s.notify(Notice{Kind: NoticeError, Text: err.Error(), Err: err})
	}
}

func (s *Session) sendTyping(scope models.ChatScope) error {
	if !s.resolver.IsActive(scope) {
		return nil
	}
	return s.conn.Send(ws.DestTyping, models.NewTypingPayload(scope))
}

func (s *Session) messagesChanged(scope models.ChatScope) {
	s.metrics.CachedMessages.Set(float64(s.cache.Len(scope)))
	s.notify(Notice{Kind: NoticeMessagesChanged, Scope: scope})
}

func (s *Session) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		s.metrics.NoticesDropped.Inc()
	}
}

func (s *Session) dropFrame(reason string, in Inbound, err error) {
	s.metrics.FramesDropped.WithLabelValues(reason).Inc()
	if err != nil {
		s.log.Warn("dropping push frame",
			zap.String("reason", reason),
			zap.String("topic", string(in.Topic)),
			zap.String("scope", in.Scope.String()),
			zap.Error(err),
		)
	}
}
