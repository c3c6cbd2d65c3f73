package dao

import (
	"sync"

	"firestore-dao/internal/shared/logger"
)

// Clearer owns a cache that can be dropped.
type Clearer interface {
	ClearCache()
}

// CacheManager keeps the set of live DAOs so their caches can be cleared together,
// for example when a user signs out.
type CacheManager struct {
	mu      sync.RWMutex
	members map[Clearer]struct{}
	log     logger.Logger
}

var defaultManager = NewCacheManager(nil)

// DefaultCacheManager returns the process-wide manager DAOs register with by default.
func DefaultCacheManager() *CacheManager {
	return defaultManager
}

// NewCacheManager creates an empty registry. A nil logger disables logging.
func NewCacheManager(log logger.Logger) *CacheManager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &CacheManager{
		members: make(map[Clearer]struct{}),
		log:     log,
	}
}

// Register adds c to the registry.
func (m *CacheManager) Register(c Clearer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[c] = struct{}{}
}

// Deregister removes c. Removing an unknown member is a no-op.
func (m *CacheManager) Deregister(c Clearer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, c)
}

// ClearAll clears the cache of every registered member and returns how many were cleared.
func (m *CacheManager) ClearAll() int {
	m.mu.RLock()
	members := make([]Clearer, 0, len(m.members))
	for c := range m.members {
		members = append(members, c)
	}
	m.mu.RUnlock()

	// members may deregister themselves while clearing
	for _, c := range members {
		c.ClearCache()
	}
	m.log.Infof("cleared caches of %d DAOs", len(members))
	return len(members)
}

// Len returns the number of registered members.
func (m *CacheManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}
