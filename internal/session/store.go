package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Store keeps sessions by user id. Implementations must return copies so
// callers cannot mutate stored state outside the engine.
type Store interface {
	Get(userID int64) (*Session, bool)
	Put(s *Session)
	Delete(userID int64)
	Len() int
}

// MemoryStore evicts sessions that have been idle for longer than the TTL.
// An evicted session is indistinguishable from a fresh IDLE one.
type MemoryStore struct {
	items *cache.Cache
}

func NewMemoryStore(idleTTL, cleanupInterval time.Duration) *MemoryStore {
	if idleTTL <= 0 {
		idleTTL = cache.NoExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryStore{items: cache.New(idleTTL, cleanupInterval)}
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (m *MemoryStore) Get(userID int64) (*Session, bool) {
	v, ok := m.items.Get(key(userID))
	if !ok {
		return nil, false
	}
	return v.(*Session).Clone(), true
}

// Put stores a copy of s and restarts its idle timer.
func (m *MemoryStore) Put(s *Session) {
	m.items.SetDefault(key(s.UserID), s.Clone())
}

func (m *MemoryStore) Delete(userID int64) {
	m.items.Delete(key(userID))
}

func (m *MemoryStore) Len() int {
	return m.items.ItemCount()
}

// keyedMutex serializes work per user. Entries are dropped once nobody
// holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refLock)}
}

func (k *keyedMutex) Lock(userID int64) func() {
	k.mu.Lock()
	l, ok := k.locks[userID]
	if !ok {
		l = &refLock{}
		k.locks[userID] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, userID)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
