package usage

import (
	"context"
	"time"

	"github.com/clearaudio/gateway/app/models"
)

// Reader is the read half of a Ledger.
type Reader interface {
	// Subscription returns nil without error when the user has no row.
	Subscription(userID string) (*models.Subscription, error)
	CountSince(userID string, since time.Time) (int64, error)
}

// Ledger is what an admission step may do while it holds the user's lock.
type Ledger interface {
	Reader
	Append(entry *models.UsageEntry) error
}

// Store persists usage entries. Atomically runs fn so that no other
// Atomically call for the same user interleaves between its reads and writes.
// Read runs fn without taking the user's lock; its view may be stale by the
// time fn returns.
type Store interface {
	Atomically(ctx context.Context, userID string, fn func(Ledger) error) error
	Read(ctx context.Context, userID string, fn func(Reader) error) error
	Recent(ctx context.Context, userID string, limit int) ([]models.UsageEntry, error)
}
