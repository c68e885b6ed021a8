// Package cache, Generic in-memory TTL cache.
//
// TTLCache, her entry'si belirli bir süre sonra okunamaz hale gelen thread-safe,
// generic bir cache'tir. Typing tracker "kim yazıyor" kümesini bununla tutar:
// entry'nin TTL'i liveness penceresidir (3sn).
//
// İki ayrı kavram vardır:
//   - Mantıksal süre dolumu: Get/Range süresi dolmuş entry'yi asla döndürmez.
//   - Fiziksel temizlik: EvictExpired entry'yi map'ten siler. Bunu ya çağıran
//     (ör. typing sweep tick'i) ya da WithCleanupInterval ile açılan arka plan goroutine'i yapar.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Option, TTLCache ayarı.
type Option func(*options)

type options struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// WithClock, zaman kaynağını değiştirir (testlerde sahte saat).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCleanupInterval, periyodik temizleme goroutine'ini açar. 0 → kapalı.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// TTLCache, generic in-memory TTL cache.
//
//	c := cache.New[string, int](3 * time.Second)
//	c.Set("key", 42)
//	val, ok := c.Get("key")
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	now     func() time.Time

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New, yeni bir TTLCache oluşturur.
func New[K comparable, V any](ttl time.Duration, opts ...Option) *TTLCache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &TTLCache[K, V]{
		entries:     make(map[K]entry[V]),
		ttl:         ttl,
		now:         o.now,
		stopCleanup: make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(o.cleanupInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					c.EvictExpired()
				case <-c.stopCleanup:
					return
				}
			}
		}()
	}

	return c
}

// TTL, entry yaşam süresi.
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}

func (c *TTLCache[K, V]) expired(e entry[V], now time.Time) bool {
	return now.After(e.expiresAt)
}

// Get, süresi dolmamış değeri döner.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e, c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set, değeri yazar ve süresini şimdiden itibaren TTL kadar uzatır.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Delete, key'i siler. Key yoksa false.
func (c *TTLCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// DeleteFunc, predicate'i sağlayan tüm key'leri siler.
func (c *TTLCache[K, V]) DeleteFunc(predicate func(key K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if predicate(key) {
			delete(c.entries, key)
		}
	}
}

// Range, süresi dolmamış entry'leri gezer. fn false dönerse durur.
// fn içinde cache'e yazılmamalı (RLock tutuluyor).
func (c *TTLCache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	for key, e := range c.entries {
		if c.expired(e, now) {
			continue
		}
		if !fn(key, e.value) {
			return
		}
	}
}

// Clear, tüm cache'i boşaltır.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]entry[V])
}

// Len, map'teki entry sayısı (henüz temizlenmemiş, süresi dolmuşlar dahil).
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// EvictExpired, süresi dolan entry'leri fiziksel olarak siler ve kaç tane silindiğini döner.
func (c *TTLCache[K, V]) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Close, arka plan goroutine'ini (açıksa) durdurur. Birden fazla çağrı güvenlidir.
func (c *TTLCache[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}
