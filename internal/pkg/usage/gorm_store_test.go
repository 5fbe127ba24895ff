package usage

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clearaudio/gateway/app/models"
	"github.com/clearaudio/gateway/internal/pkg/database"
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSQLiteStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := database.OpenMigratedSQLite(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	return NewGormStore(db), db
}

func TestGormStoreConcurrentAdmission(t *testing.T) {
	store, db := newSQLiteStore(t)
	clock := &fakeClock{now: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)}
	engine := newTestEngine(store, clock)
	ctx := context.Background()

	// two of three free units already used this month
	for i := 0; i < 2; i++ {
		adm, err := engine.AdmitAndRecord(ctx, "user-sql", freeProfile())
		require.NoError(t, err)
		require.True(t, adm.Admitted)
	}

	var admitted, denied int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := engine.AdmitAndRecord(ctx, "user-sql", freeProfile())
			if !assert.NoError(t, err) {
				return
			}
			if adm.Admitted {
				atomic.AddInt32(&admitted, 1)
			} else {
				atomic.AddInt32(&denied, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
	assert.Equal(t, int32(9), denied)

	var n int64
	require.NoError(t, db.Model(&models.UsageEntry{}).Where("user_id = ?", "user-sql").Count(&n).Error)
	assert.Equal(t, int64(3), n)
}

func TestGormStoreUsesSubscription(t *testing.T) {
	store, db := newSQLiteStore(t)
	clock := &fakeClock{now: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)}
	engine := newTestEngine(store, clock)
	ctx := context.Background()

	end := time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.Subscription{
		UserID:           "user-pro",
		Plan:             models.PlanPro,
		Status:           models.SubscriptionStatusActive,
		CurrentPeriodEnd: &end,
	}).Error)

	adm, err := engine.AdmitAndRecord(ctx, "user-pro", Profile{Tier: entitlements.TierLargeTV, SizeBytes: 50 << 20, HighFidelity: true})
	require.NoError(t, err)
	assert.True(t, adm.Admitted)
	assert.Equal(t, "pro", adm.Plan)
	assert.Equal(t, 100, adm.Limit)

	stats, err := engine.Stats(ctx, "user-pro")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Used)
	assert.True(t, stats.PeriodStart.Equal(time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)), stats.PeriodStart)
}

func TestGormStoreRecentOrder(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	err := store.Atomically(ctx, "user-r", func(l Ledger) error {
		for i, id := range []string{"a", "b", "c"} {
			if err := l.Append(&models.UsageEntry{
				ID:        id,
				UserID:    "user-r",
				CreatedAt: base.Add(time.Duration(i) * time.Hour),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	recent, err := store.Recent(ctx, "user-r", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
}

func TestGormLedgerMissingSubscription(t *testing.T) {
	store, _ := newSQLiteStore(t)
	err := store.Atomically(context.Background(), "nobody", func(l Ledger) error {
		sub, err := l.Subscription("nobody")
		assert.Nil(t, sub)
		return err
	})
	assert.NoError(t, err)
}

func TestGormStoreReadTakesNoLock(t *testing.T) {
	store, db := newSQLiteStore(t)
	engine := newTestEngine(store, &fakeClock{now: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	stats, err := engine.Stats(ctx, "reader")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Used)
	adm, err := engine.Check(ctx, "reader", Profile{Tier: entitlements.TierBase})
	require.NoError(t, err)
	assert.True(t, adm.Admitted)

	var locks, entries int64
	require.NoError(t, db.Model(&models.UsageLock{}).Count(&locks).Error)
	require.NoError(t, db.Model(&models.UsageEntry{}).Count(&entries).Error)
	assert.Zero(t, locks)
	assert.Zero(t, entries)
}
