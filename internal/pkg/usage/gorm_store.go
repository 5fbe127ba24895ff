package usage

import (
	"context"
	"errors"
	"time"

	"github.com/clearaudio/gateway/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps entries in SQL. Admission serializes per user on a
// usage_locks row taken with SELECT ... FOR UPDATE inside one transaction,
// so the count and the insert see the same committed history.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Atomically(ctx context.Context, userID string, fn func(Ledger) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock := models.UsageLock{UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Take(&lock).Error; err != nil {
			return err
		}
		return fn(&gormLedger{tx: tx})
	})
}

func (s *GormStore) Read(ctx context.Context, _ string, fn func(Reader) error) error {
	return fn(&gormLedger{tx: s.db.WithContext(ctx)})
}

func (s *GormStore) Recent(ctx context.Context, userID string, limit int) ([]models.UsageEntry, error) {
	var entries []models.UsageEntry
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

type gormLedger struct {
	tx *gorm.DB
}

func (l *gormLedger) Subscription(userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := l.tx.Where("user_id = ?", userID).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (l *gormLedger) CountSince(userID string, since time.Time) (int64, error) {
	var n int64
	err := l.tx.Model(&models.UsageEntry{}).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Count(&n).Error
	return n, err
}

func (l *gormLedger) Append(entry *models.UsageEntry) error {
	return l.tx.Create(entry).Error
}
