package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg/cache"
)

// Typing zamanlamaları.
const (
	DefaultTypingWindow = 3 * time.Second
	DefaultTypingSweep  = 800 * time.Millisecond
)

type typingKey struct {
	scope  models.ChatScope
	userID int64
}

// TypingTracker, scope başına "kim yazıyor" kümesini tutar.
//
// Entry'ler TTLCache'te liveness penceresi kadar yaşar; süresi dolan entry
// sweep'i beklemeden okunamaz olur. Sweep tick'i dolanları fiziksel olarak siler
// ve aktif scope'un gösterim metnini yeniden hesaplar.
// Yerel kullanıcının kendi sinyalleri hiç kaydedilmez.
type TypingTracker struct {
	entries *cache.TTLCache[typingKey, models.TypingEntry]
	now     func() time.Time
	log     *zap.Logger

	mu     sync.Mutex
	selfID int64
	active models.ChatScope
	// last: en son dışarı bildirilen gösterim metni.
	last string
}

// NewTypingTracker, window <= 0 → DefaultTypingWindow.
func NewTypingTracker(window time.Duration, log *zap.Logger, opts ...cache.Option) *TypingTracker {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	t := &TypingTracker{now: time.Now, log: log}
	// Aynı saat hem cache'e hem LastSeenAt'e gitsin.
	clockCapture := cache.WithClock(func() time.Time { return t.now() })
	t.entries = cache.New[typingKey, models.TypingEntry](window, append([]cache.Option{clockCapture}, opts...)...)
	return t
}

// WithClock, testler için zaman kaynağını değiştirir.
func (t *TypingTracker) WithClock(now func() time.Time) *TypingTracker {
	t.now = now
	return t
}

// SetSelf, kendi sinyallerimizin filtrelenmesi için aktif kullanıcının id'si.
func (t *TypingTracker) SetSelf(userID int64) {
	t.mu.Lock()
	t.selfID = userID
	t.mu.Unlock()
}

// SetActive, gösterim metninin hesaplanacağı scope'u değiştirir.
// Önceki scope'un entry'leri silinir; başka scope'ta kimin yazdığı gösterilmez.
func (t *TypingTracker) SetActive(scope models.ChatScope) {
	t.mu.Lock()
	prev := t.active
	t.active = scope
	t.last = ""
	t.mu.Unlock()

	if prev != scope {
		t.entries.DeleteFunc(func(k typingKey) bool { return k.scope == prev })
	}
}

// Observe, kullanıcının scope'ta yazdığını kaydeder veya (isTyping=false) siler.
// Aktif scope'un gösterim metni değiştiyse yeni metin ve true döner.
func (t *TypingTracker) Observe(scope models.ChatScope, userID int64, displayName string, isTyping bool) (string, bool) {
	t.mu.Lock()
	self := t.selfID
	t.mu.Unlock()

	if userID == self || scope.IsZero() {
		return "", false
	}

	key := typingKey{scope: scope, userID: userID}
	if isTyping {
		t.entries.Set(key, models.TypingEntry{UserID: userID, DisplayName: displayName, LastSeenAt: t.now()})
	} else {
		t.entries.Delete(key)
	}
	return t.publish()
}

// Remove, kullanıcının entry'sini siler (ör. mesajı gönderildiğinde).
func (t *TypingTracker) Remove(scope models.ChatScope, userID int64) (string, bool) {
	t.entries.Delete(typingKey{scope: scope, userID: userID})
	return t.publish()
}

// Sweep, süresi dolmuş entry'leri siler ve metni yeniden hesaplar.
// Periyodik tick'ten çağrılır.
func (t *TypingTracker) Sweep() (string, bool) {
	if n := t.entries.EvictExpired(); n > 0 {
		t.log.Debug("typing entries expired", zap.Int("count", n))
	}
	return t.publish()
}

// Indicator, aktif scope için güncel gösterim metni. Kimse yazmıyorsa "".
func (t *TypingTracker) Indicator() string {
	t.mu.Lock()
	active := t.active
	t.mu.Unlock()
	return t.render(active)
}

// Typing, scope'ta yazan kullanıcılar (isim sırasıyla).
func (t *TypingTracker) Typing(scope models.ChatScope) []models.TypingEntry {
	var out []models.TypingEntry
	t.entries.Range(func(k typingKey, e models.TypingEntry) bool {
		if k.scope == scope {
			out = append(out, e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Reset, tüm entry'leri ve seçimi temizler. selfID session'ın kullanıcısına
// aittir ve korunur.
func (t *TypingTracker) Reset() {
	t.entries.Clear()
	t.mu.Lock()
	t.active = models.ChatScope{}
	t.last = ""
	t.mu.Unlock()
}

// Close, cache'in temizleme goroutine'ini durdurur.
func (t *TypingTracker) Close() {
	t.entries.Close()
}

// publish, metni hesaplar ve son bildirilenden farklıysa true döner.
func (t *TypingTracker) publish() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	text := t.render(t.active)
	if text == t.last {
		return text, false
	}
	t.last = text
	return text, true
}

func (t *TypingTracker) render(scope models.ChatScope) string {
	if scope.IsZero() {
		return ""
	}
	entries := t.Typing(scope)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.DisplayName)
	}
	return FormatTyping(names)
}

// FormatTyping, isim listesinden gösterim metni üretir.
//
//	[]              → ""
//	[alice]         → "alice is typing…"
//	[alice, bob]    → "alice, bob are typing…"
func FormatTyping(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	default:
		return strings.Join(names, ", ") + " are typing…"
	}
}
