package repository

import (
	"container/list"
	"context"
	"sync"
	"time"

	"installbot/internal/models"
)

// MemorySessionRepository is a bounded LRU of sessions with a per-entry TTL.
type MemorySessionRepository struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time

	rateLimits sync.Map
	sweepMu    sync.Mutex
	lastSweep  time.Time
}

type memoryEntry struct {
	session   *models.Session
	expiresAt time.Time
}

func NewMemorySessionRepository(capacity int, ttl time.Duration) *MemorySessionRepository {
	if capacity <= 0 {
		capacity = models.DefaultSessionCacheSize
	}
	return &MemorySessionRepository{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *MemorySessionRepository) GetSession(ctx context.Context, identity string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.items[identity]
	if !ok {
		return nil, nil
	}
	entry := el.Value.(*memoryEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.order.Remove(el)
		delete(r.items, identity)
		return nil, nil
	}
	r.order.MoveToFront(el)
	return entry.session.Clone(), nil
}

func (r *MemorySessionRepository) SetSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &memoryEntry{session: s.Clone(), expiresAt: r.now().Add(r.ttl)}
	if el, ok := r.items[s.Identity]; ok {
		el.Value = entry
		r.order.MoveToFront(el)
		return nil
	}

	r.items[s.Identity] = r.order.PushFront(entry)
	for r.order.Len() > r.capacity {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.items, oldest.Value.(*memoryEntry).session.Identity)
	}
	return nil
}

func (r *MemorySessionRepository) ClearSession(ctx context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.items[identity]; ok {
		r.order.Remove(el)
		delete(r.items, identity)
	}
	return nil
}

// Len reports how many sessions are cached.
func (r *MemorySessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
	dead      bool
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, identity string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	r.purgeRateLimits(now, window)

	for {
		val, _ := r.rateLimits.LoadOrStore(identity, &rateLimitEntry{expiresAt: now.Add(window)})
		entry := val.(*rateLimitEntry)

		entry.mu.Lock()
		if entry.dead {
			// removed by a purge after we loaded it
			entry.mu.Unlock()
			continue
		}
		if now.After(entry.expiresAt) {
			entry.count = 0
			entry.expiresAt = now.Add(window)
		}
		entry.count++
		allowed := entry.count <= limit
		entry.mu.Unlock()
		return allowed, nil
	}
}

// purgeRateLimits drops expired counters, at most once per window.
func (r *MemorySessionRepository) purgeRateLimits(now time.Time, window time.Duration) {
	r.sweepMu.Lock()
	if now.Sub(r.lastSweep) < window {
		r.sweepMu.Unlock()
		return
	}
	r.lastSweep = now
	r.sweepMu.Unlock()

	r.rateLimits.Range(func(key, val any) bool {
		entry := val.(*rateLimitEntry)
		entry.mu.Lock()
		if now.After(entry.expiresAt) {
			entry.dead = true
			r.rateLimits.Delete(key)
		}
		entry.mu.Unlock()
		return true
	})
}

func (r *MemorySessionRepository) rateLimitCount() int {
	n := 0
	r.rateLimits.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
