package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clearaudio/gateway/app/models"
	"github.com/clearaudio/gateway/internal/pkg/shortener"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("share: not found")
	ErrAlreadyShared = errors.New("share: usage entry already shared")
	ErrStore         = errors.New("share: store unavailable")
)

const maxIDAttempts = 5

// Outcome is what a successful separation publishes.
type Outcome struct {
	Label       string
	SourceURL   string
	TargetURL   string
	ResidualURL string
	SampleRate  int
}

// Store creates and looks up share records.
type Store struct {
	db       *gorm.DB
	cache    Cache
	cacheTTL time.Duration
	newID    func() (string, error)
}

type Option func(*Store)

// WithCache enables read-through caching of records.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithIDGenerator replaces the share id generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Store) { s.newID = fn }
}

func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, newID: shortener.NewShareID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create publishes out for the usage entry. An entry is shared at most
// once; a second call returns the existing record with ErrAlreadyShared.
func (s *Store) Create(ctx context.Context, entryID, userID string, out Outcome) (*models.ShareRecord, error) {
	if strings.TrimSpace(entryID) == "" {
		return nil, fmt.Errorf("share: usage entry id is required")
	}
	db := s.db.WithContext(ctx)

	existing, err := s.forEntry(db, entryID)
	switch {
	case err == nil:
		return existing, ErrAlreadyShared
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	sampleRate := out.SampleRate
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		shareID, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("share: generate id: %w", err)
		}
		rec := &models.ShareRecord{
			ID:           uuid.NewString(),
			ShareID:      shareID,
			UsageEntryID: entryID,
			UserID:       userID,
			Label:        out.Label,
			SourceURL:    out.SourceURL,
			TargetURL:    out.TargetURL,
			ResidualURL:  out.ResidualURL,
			SampleRate:   sampleRate,
		}
		err = db.Create(rec).Error
		if err == nil {
			log.Infof("[Share] created %s for entry %s", shareID, entryID)
			return rec, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}
		// either the entry was shared concurrently or the share id collided
		existing, ferr := s.forEntry(db, entryID)
		switch {
		case ferr == nil:
			return existing, ErrAlreadyShared
		case !errors.Is(ferr, ErrNotFound):
			return nil, ferr
		}
		log.Warnf("[Share] share id collision on attempt %d", attempt)
	}
	return nil, fmt.Errorf("%w: no free share id after %d attempts", ErrStore, maxIDAttempts)
}

// Get returns the record published under shareID.
func (s *Store) Get(ctx context.Context, shareID string) (*models.ShareRecord, error) {
	if !shortener.IsSlug(shareID, 32) {
		return nil, ErrNotFound
	}
	if rec, ok := s.cached(ctx, shareID); ok {
		return rec, nil
	}

	var rec models.ShareRecord
	err := s.db.WithContext(ctx).Where("share_id = ?", shareID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	s.remember(ctx, &rec)
	return &rec, nil
}

// forEntry returns the share of a usage entry, or ErrNotFound.
func (s *Store) forEntry(db *gorm.DB, entryID string) (*models.ShareRecord, error) {
	var rec models.ShareRecord
	err := db.Where("usage_entry_id = ?", entryID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return &rec, nil
}
