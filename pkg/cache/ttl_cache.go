// Package cache — Generic in-memory TTL cache.
//
// TTLCache, belirli bir süre sonra süresi dolan kayıtları tutan thread-safe,
// generic bir cache yapısıdır. Typing göstergeleri bunun üzerine kuruludur.
//
// Zaman kaynağı dışarıdan verilir (clock.Clock). Production'da clock.New(),
// testlerde clock.NewMock() kullanılır: böylece TTL testleri sleep'siz ve
// deterministik çalışır.
//
// Temizleme (Sweep) otomatik değildir: cache goroutine başlatmaz, sahibi
// olan bileşen kendi ticker'ı ile Sweep çağırır. Sweep kaç entry sildiğini
// döner: sahibi "gerçekten bir şey değişti mi?" sorusunu buna bakarak cevaplar.
package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// entry, cache'teki tek bir kayıttır.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache, generic in-memory TTL cache.
//
//	c := cache.New[string, int](clock.New(), 5*time.Second)
//	c.Set("key", 42)
//	val, ok := c.Get("key")
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	clock   clock.Clock
}

// New, yeni bir TTLCache oluşturur.
func New[K comparable, V any](clk clock.Clock, ttl time.Duration) *TTLCache[K, V] {
	if clk == nil {
		clk = clock.New()
	}
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		clock:   clk,
	}
}

// TTL, cache'in entry yaşam süresini döner.
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get, cache'ten bir değer okur.
//
// (value, expiresAt, true): key var ve süresi dolmamış.
// Süresi dolan entry burada silinmez: Sweep yapar. Okuma her zaman
// "şu an itibarıyla" yapılır; Sweep aralığı gerçek zamandan kabadır.
func (c *TTLCache[K, V]) Get(key K) (V, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !e.expiresAt.After(c.clock.Now()) {
		var zero V
		return zero, time.Time{}, false
	}
	return e.value, e.expiresAt, true
}

// Set, cache'e bir değer yazar. Key zaten varsa TTL yeniden kurulur.
// Yeni son kullanma zamanını döner.
func (c *TTLCache[K, V]) Set(key K, value V) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: expiresAt,
	}
	return expiresAt
}

// Delete, key'i siler. Key mevcutsa true döner.
func (c *TTLCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// DeleteFunc, predicate'i sağlayan tüm key'leri siler ve silinen sayıyı döner.
func (c *TTLCache[K, V]) DeleteFunc(predicate func(key K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if predicate(key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Range, süresi dolmamış her entry için fn'i çağırır.
// fn false dönerse iterasyon durur. fn içinde cache'e yazılmamalıdır.
func (c *TTLCache[K, V]) Range(fn func(key K, value V, expiresAt time.Time) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	for key, e := range c.entries {
		if !e.expiresAt.After(now) {
			continue
		}
		if !fn(key, e.value, e.expiresAt) {
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

// Len, cache'teki toplam entry sayısını döner (süresi dolmuşlar dahil).
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Sweep, süresi dolan entry'leri map'ten fiziksel olarak siler.
// Silinen entry sayısını döner.
func (c *TTLCache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
