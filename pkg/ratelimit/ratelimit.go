// Package ratelimit — key bazlı sliding window limiter.
//
// Sync engine'de giden "typing" frame'lerini kanal başına seyreltmek için
// kullanılır: kullanıcı her tuşa bastığında NotifyTyping çağrılır ama sunucuya
// window başına en fazla maxHits frame gider.
//
// Tasarım:
//   - Her key için sliding window ile istek sayısı takip edilir.
//   - Window içinde maxHits aşılırsa istek reddedilir.
//   - Reset() ile sayaç sıfırlanır (ör. mesaj gönderildiğinde typing biter).
//   - Süresi dolmuş bucket'lar Cleanup() ile temizlenir.
//
// pkg/ratelimit hiçbir proje içi pakete bağımlı değildir (leaf dependency).
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// bucket, bir key için istek sayacı ve window başlangıç zamanı tutar.
type bucket struct {
	count       int
	windowStart time.Time
}

// Limiter, key bazlı rate limiting.
//
//	limiter := ratelimit.New(clock.New(), 1, 3*time.Second)
//	if limiter.Allow(channelID) { send typing frame }
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxHits int
	window  time.Duration
	clock   clock.Clock
}

// New, yeni bir Limiter oluşturur.
func New(clk clock.Clock, maxHits int, window time.Duration) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	if maxHits < 1 {
		maxHits = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		maxHits: maxHits,
		window:  window,
		clock:   clk,
	}
}

// Allow, key için bir istek daha yapılıp yapılamayacağını döner.
// Her çağrı sayacı artırır.
func (l *Limiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	if now.Sub(b.windowStart) >= l.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	return b.count <= l.maxHits
}

// Reset, key'in sayacını sıfırlar.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// RetryAfter, key için window'un bitmesine kalan süreyi döner.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists {
		return 0
	}
	remaining := l.window - l.clock.Since(b.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Cleanup, window süresi geçmiş tüm bucket'ları siler.
func (l *Limiter) Cleanup() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
