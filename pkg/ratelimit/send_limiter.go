// Package ratelimit, giden mesajlar için client-side spam koruması.
//
// Sunucu kullanıcı başına "5 saniyede 5 mesaj, aşılırsa 15 saniye ceza" uygular.
// Client aynı kuralı önceden uygular: limit aşan mesaj ağa hiç çıkmaz,
// kullanıcıya ErrRateLimited döner ve kalan bekleme süresi gösterilir.
//
// İki durumlu bucket:
//  1. Normal mod: count artırılır, windowStart bazlı pencere kontrolü.
//  2. Cooldown mod: cooldownUntil > now → tüm mesajlar reddedilir.
package ratelimit

import (
	"sync"
	"time"
)

type sendBucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time // zero value = cooldown yok
}

// SendLimiter, key (scope) bazlı mesaj limiti.
//
//	limiter := ratelimit.NewSendLimiter(5, 5*time.Second, 15*time.Second)
//	if !limiter.Allow(scope.String()) { return pkg.ErrRateLimited }
type SendLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*sendBucket
	maxMessages int
	window      time.Duration
	cooldown    time.Duration
	now         func() time.Time
}

// NewSendLimiter, yeni limiter. maxMessages <= 0 → limiter kapalı (her şeye izin).
func NewSendLimiter(maxMessages int, window, cooldown time.Duration) *SendLimiter {
	return &SendLimiter{
		buckets:     make(map[string]*sendBucket),
		maxMessages: maxMessages,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// WithClock, zaman kaynağını değiştirir (testler için).
func (l *SendLimiter) WithClock(now func() time.Time) *SendLimiter {
	l.now = now
	return l
}

// Allow, bir mesaj daha gönderilebilir mi?
//
// Akış:
//  1. Cooldown'daysa → reject.
//  2. Cooldown bitmişse veya window dolmuşsa → yeni pencere.
//  3. Window içindeyse → count artır, max aşıldıysa cooldown başlat ve reject.
func (l *SendLimiter) Allow(key string) bool {
	if l.maxMessages <= 0 {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &sendBucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() && now.Before(b.cooldownUntil) {
		return false
	}

	if !b.cooldownUntil.IsZero() || now.Sub(b.windowStart) > l.window {
		b.count = 1
		b.windowStart = now
		b.cooldownUntil = time.Time{}
		return true
	}

	b.count++
	if b.count > l.maxMessages {
		b.cooldownUntil = now.Add(l.cooldown)
		return false
	}
	return true
}

// Remaining, cooldown'da kalan süre. Cooldown yoksa 0.
func (l *SendLimiter) Remaining(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists || b.cooldownUntil.IsZero() {
		return 0
	}
	remaining := b.cooldownUntil.Sub(l.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// pruneLocked, hem window'u hem cooldown'u bitmiş bucket'ları siler.
// Client tarafında bucket sayısı scope sayısı kadar olduğu için
// arka plan goroutine'i yerine her Allow'da yapılır.
func (l *SendLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		windowExpired := now.Sub(b.windowStart) > l.window
		cooldownExpired := b.cooldownUntil.IsZero() || now.After(b.cooldownUntil)
		if windowExpired && cooldownExpired {
			delete(l.buckets, key)
		}
	}
}
