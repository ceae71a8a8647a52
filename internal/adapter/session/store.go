package session

import (
	"time"

	"github.com/patrickmn/go-cache"

	"nexus/internal/port"
)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = time.Minute

// Store is an in-process SessionStore. Nothing survives a restart.
type Store[T any] struct {
	cache *cache.Cache
}

var _ port.SessionStore[int] = (*Store[int])(nil)

// NewStore creates a store that purges expired entries every cleanupInterval.
func NewStore[T any](cleanupInterval time.Duration) *Store[T] {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Store[T]{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

// Put stores value under id. A ttl <= 0 keeps it until deleted; otherwise
// the entry expires ttl after this call.
func (s *Store[T]) Put(id string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.cache.Set(id, value, ttl)
}

func (s *Store[T]) Get(id string) (T, bool) {
	var zero T
	v, ok := s.cache.Get(id)
	if !ok {
		return zero, false
	}
	value, ok := v.(T)
	if !ok {
		return zero, false
	}
	return value, true
}

func (s *Store[T]) Delete(id string) {
	s.cache.Delete(id)
}

// Count includes expired entries that have not been purged yet.
func (s *Store[T]) Count() int {
	return s.cache.ItemCount()
}

// OnEvicted registers fn for entries removed by expiry or Delete.
func (s *Store[T]) OnEvicted(fn func(id string, value T)) {
	s.cache.OnEvicted(func(id string, v interface{}) {
		if value, ok := v.(T); ok {
			fn(id, value)
		}
	})
}
