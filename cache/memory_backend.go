package cache

import (
	"strings"
	"sync"
	"time"

	c "github.com/patrickmn/go-cache"
)

// MemoryBackend is the bounded fallback used when no redis cache is
// configured. go-cache handles TTL expiry; capacity is enforced here by
// evicting the oldest-inserted entry first.
type MemoryBackend struct {
	mu       sync.Mutex
	cache    *c.Cache
	capacity int
	order    []string
}

var _ Backend = new(MemoryBackend)

func NewMemoryBackend(capacity int) *MemoryBackend {
	return &MemoryBackend{
		cache:    c.New(c.NoExpiration, 10*time.Minute),
		capacity: capacity,
	}
}

func memKey(workflowId string, entry string) string {
	return workflowId + "/" + entry
}

func (b *MemoryBackend) Get(workflowId string, entry string) ([]byte, error) {
	val, found := b.cache.Get(memKey(workflowId, entry))
	if !found {
		return nil, ErrCacheMiss
	}
	return val.([]byte), nil
}

func (b *MemoryBackend) Set(workflowId string, entry string, value []byte, ttl time.Duration) error {
	key := memKey(workflowId, entry)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.cache.Get(key); !exists {
		for len(b.order) >= b.capacity {
			oldest := b.order[0]
			b.order = b.order[1:]
			b.cache.Delete(oldest)
		}
		b.order = append(b.order, key)
	}
	b.cache.Set(key, value, ttl)
	return nil
}

func (b *MemoryBackend) InvalidateWorkflow(workflowId string) error {
	prefix := workflowId + "/"
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.order[:0]
	for _, key := range b.order {
		if strings.HasPrefix(key, prefix) {
			b.cache.Delete(key)
		} else {
			kept = append(kept, key)
		}
	}
	b.order = kept
	return nil
}
