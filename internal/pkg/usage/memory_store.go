package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clearaudio/gateway/app/models"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[string]models.Subscription
	entries       map[string][]models.UsageEntry

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]models.Subscription),
		entries:       make(map[string][]models.UsageEntry),
		locks:         make(map[string]*sync.Mutex),
	}
}

// PutSubscription stores sub as the user's current billing state.
func (s *MemoryStore) PutSubscription(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.UserID] = sub
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *MemoryStore) Atomically(ctx context.Context, userID string, fn func(Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	tx := &memoryLedger{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	for _, e := range tx.pending {
		s.entries[e.UserID] = append(s.entries[e.UserID], e)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, _ string, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memoryLedger{store: s})
}

func (s *MemoryStore) Recent(_ context.Context, userID string, limit int) ([]models.UsageEntry, error) {
	s.mu.RLock()
	out := append([]models.UsageEntry(nil), s.entries[userID]...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memoryLedger buffers appends so a failing step leaves no entries behind.
type memoryLedger struct {
	store   *MemoryStore
	pending []models.UsageEntry
}

func (l *memoryLedger) Subscription(userID string) (*models.Subscription, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	sub, ok := l.store.subscriptions[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (l *memoryLedger) CountSince(userID string, since time.Time) (int64, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	var n int64
	for _, e := range l.store.entries[userID] {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	for _, e := range l.pending {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (l *memoryLedger) Append(entry *models.UsageEntry) error {
	l.pending = append(l.pending, *entry)
	return nil
}
